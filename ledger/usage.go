package ledger

import (
	"sort"
	"time"

	"github.com/veloxio/creditmeter/types"
)

// DayFormat is the calendar-day key used in the usage log.
const DayFormat = "2006-01-02"

// UsageEntry aggregates paid calls for one (provider, calendar day) pair.
type UsageEntry struct {
	Provider string       `json:"provider"`
	Day      string       `json:"day"` // YYYY-MM-DD
	Units    int64        `json:"units"`
	Cost     types.Amount `json:"cost"`
}

// Day returns the UTC calendar-day key for a timestamp.
func Day(t time.Time) string {
	return t.UTC().Format(DayFormat)
}

// MergeUsage merges entry into entries, summing units and cost for an
// existing (provider, day) pair. Entries are never deleted here; retention
// is out of scope.
func MergeUsage(entries []UsageEntry, entry UsageEntry) []UsageEntry {
	for i := range entries {
		if entries[i].Provider == entry.Provider && entries[i].Day == entry.Day {
			entries[i].Units += entry.Units
			entries[i].Cost = entries[i].Cost.Add(entry.Cost)
			return entries
		}
	}
	return append(entries, entry)
}

// sortUsage orders entries by day then provider so encoding is
// deterministic.
func sortUsage(entries []UsageEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Day != entries[j].Day {
			return entries[i].Day < entries[j].Day
		}
		return entries[i].Provider < entries[j].Provider
	})
}

// TotalUsageCost sums the cost of all entries.
func TotalUsageCost(entries []UsageEntry) types.Amount {
	var total types.Amount
	for _, e := range entries {
		total = total.Add(e.Cost)
	}
	return total
}
