package creditmeter

import "github.com/veloxio/creditmeter/types"

// Re-export common types for convenience so users don't have to import
// the types package.

// Amount is re-exported from the types package.
type Amount = types.Amount

// Entity is re-exported from the types package.
type Entity = types.Entity

// Re-export Amount constructors.
var (
	FromBasis   = types.FromBasis
	FromFloat   = types.FromFloat
	ParseAmount = types.ParseAmount
	Zero        = types.Zero
	Sum         = types.SumAmounts
)

// Re-export the Entity constructor.
var NewEntity = types.NewEntity
