package tier

import "strings"

// ProductTable maps subscription products to tiers. Product identifiers are
// stable in production billing environments; the name table covers sandboxed
// contexts where identifiers are regenerated and only display names hold.
type ProductTable struct {
	byRef  map[string]Tier
	byName map[string]Tier
}

// NewProductTable builds a ProductTable from explicit mappings. Name keys
// are matched case-insensitively.
func NewProductTable(byRef map[string]Tier, byName map[string]Tier) *ProductTable {
	t := &ProductTable{
		byRef:  make(map[string]Tier, len(byRef)),
		byName: make(map[string]Tier, len(byName)),
	}
	for ref, tr := range byRef {
		t.byRef[ref] = tr
	}
	for name, tr := range byName {
		t.byName[strings.ToLower(name)] = tr
	}
	return t
}

// ByRef resolves a product reference to a tier.
func (t *ProductTable) ByRef(productRef string) (Tier, bool) {
	tr, ok := t.byRef[productRef]
	return tr, ok
}

// ByName resolves a product display name to a tier. Used as a fallback when
// the reference is not in the table.
func (t *ProductTable) ByName(name string) (Tier, bool) {
	if tr, ok := t.byName[strings.ToLower(name)]; ok {
		return tr, true
	}
	// Legacy plan names still show up as product names in old sandboxes.
	if norm := Normalize(name); norm != Free {
		return norm, true
	}
	return Free, false
}
