package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/veloxio/creditmeter/tier"
	"github.com/veloxio/creditmeter/types"
)

// The account record carries a single mutable attribute blob shared with
// unrelated account fields. Sub-segments are separated by segmentSep and
// identified by a name up to the first ':'. The codec touches only its own
// segments and keeps every other segment byte-identical.
const (
	segmentSep    = "|"
	ledgerSegment = "cm_ledger"
	usageSegment  = "cm_usage"

	fieldCredits = "credits"
	fieldLimit   = "limit"
	fieldReset   = "reset"
	fieldLevel   = "level"
)

// DecodeLedger extracts the credit ledger from an attribute blob.
//
// It never fails hard: an absent segment yields the zero ledger with a nil
// error, and a malformed segment yields the zero ledger with a non-nil
// error so the caller can log the degradation.
func DecodeLedger(attrs string) (Ledger, error) {
	payload, ok := findSegment(attrs, ledgerSegment)
	if !ok {
		return Zero(), nil
	}

	l := Zero()
	for _, pair := range splitNonEmpty(payload, ",") {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return Zero(), fmt.Errorf("ledger: malformed pair %q", pair)
		}
		switch key {
		case fieldCredits:
			amt, err := types.ParseAmount(value)
			if err != nil {
				return Zero(), fmt.Errorf("ledger: credits: %w", err)
			}
			// Stored balances predate clamping fixes; floor at zero.
			l.AvailableCredits = amt.ClampFloor(types.Zero)
		case fieldLimit:
			amt, err := types.ParseAmount(value)
			if err != nil {
				return Zero(), fmt.Errorf("ledger: limit: %w", err)
			}
			l.CustomLimit = &amt
		case fieldReset:
			ts, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return Zero(), fmt.Errorf("ledger: reset: %w", err)
			}
			ts = ts.UTC()
			l.LastReset = &ts
		case fieldLevel:
			l.MembershipLevel = tier.Normalize(value)
		default:
			// Unknown keys are preserved intent from a newer writer; skip.
		}
	}
	return l, nil
}

// EncodeLedger replaces the ledger segment of an attribute blob, preserving
// every other segment byte-for-byte. An absent segment is appended.
func EncodeLedger(attrs string, l Ledger) string {
	var fields []string
	fields = append(fields, fieldCredits+"="+l.AvailableCredits.ClampFloor(types.Zero).String())
	if l.CustomLimit != nil {
		fields = append(fields, fieldLimit+"="+l.CustomLimit.String())
	}
	if l.LastReset != nil {
		fields = append(fields, fieldReset+"="+l.LastReset.UTC().Format(time.RFC3339))
	}
	fields = append(fields, fieldLevel+"="+l.MembershipLevel.String())

	return putSegment(attrs, ledgerSegment, strings.Join(fields, ","))
}

// DecodeUsage extracts the usage log from an attribute blob, with the same
// degradation contract as DecodeLedger.
func DecodeUsage(attrs string) ([]UsageEntry, error) {
	payload, ok := findSegment(attrs, usageSegment)
	if !ok {
		return nil, nil
	}

	var entries []UsageEntry
	for _, raw := range splitNonEmpty(payload, ";") {
		key, counts, found := strings.Cut(raw, "=")
		if !found {
			return nil, fmt.Errorf("ledger: malformed usage entry %q", raw)
		}
		provider, day, found := strings.Cut(key, "@")
		if !found || provider == "" {
			return nil, fmt.Errorf("ledger: malformed usage key %q", key)
		}
		unitsStr, costStr, found := strings.Cut(counts, ":")
		if !found {
			return nil, fmt.Errorf("ledger: malformed usage counts %q", counts)
		}
		units, err := strconv.ParseInt(unitsStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ledger: usage units: %w", err)
		}
		cost, err := types.ParseAmount(costStr)
		if err != nil {
			return nil, fmt.Errorf("ledger: usage cost: %w", err)
		}
		entries = append(entries, UsageEntry{Provider: provider, Day: day, Units: units, Cost: cost})
	}
	return entries, nil
}

// EncodeUsage replaces the usage segment of an attribute blob. Entries for
// the same (provider, day) are merged by summing units and cost, and the
// segment is written in deterministic (day, provider) order.
func EncodeUsage(attrs string, entries []UsageEntry) string {
	merged := make([]UsageEntry, 0, len(entries))
	for _, e := range entries {
		merged = MergeUsage(merged, e)
	}
	sortUsage(merged)

	parts := make([]string, 0, len(merged))
	for _, e := range merged {
		parts = append(parts, fmt.Sprintf("%s@%s=%d:%s", e.Provider, e.Day, e.Units, e.Cost))
	}
	return putSegment(attrs, usageSegment, strings.Join(parts, ";"))
}

// findSegment returns the payload of the named segment.
func findSegment(attrs, name string) (string, bool) {
	for _, seg := range strings.Split(attrs, segmentSep) {
		segName, payload, found := strings.Cut(seg, ":")
		if found && segName == name {
			return payload, true
		}
	}
	return "", false
}

// putSegment replaces the named segment's payload in place, appending a new
// segment when absent. All other segments pass through untouched.
func putSegment(attrs, name, payload string) string {
	segment := name + ":" + payload

	if attrs == "" {
		return segment
	}

	segs := strings.Split(attrs, segmentSep)
	for i, seg := range segs {
		segName, _, found := strings.Cut(seg, ":")
		if found && segName == name {
			segs[i] = segment
			return strings.Join(segs, segmentSep)
		}
	}
	return attrs + segmentSep + segment
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, sep)
}
