package ledger

import (
	"sort"
	"strings"
)

const (
	// RolloverHour is the first hour that belongs to the same day. Earlier
	// hours are ordered after the evening entries of the previous one.
	RolloverHour = 5

	// NoDataPlaceholder is rendered instead of an empty table.
	NoDataPlaceholder = "no data"

	// UnorderedMarker flags rows whose time could not be ordered.
	UnorderedMarker = "(unordered)"
)

// TableHeader is the first line of every rendered table.
var TableHeader = []string{"Document", "Time", "Status"}

// OrderedRecord is a candidate with its chronological sort key.
type OrderedRecord struct {
	CandidateRecord

	SortKey int  `json:"sort_key"`
	Sorted  bool `json:"sorted"`
}

// SortKey returns minutes since the start of the business day. Hours before
// RolloverHour are moved past midnight; hours 24-29 are taken as already
// moved.
func SortKey(hm string) (int, bool) {
	h, m, ok := parseClock(hm)
	if !ok || h > 29 {
		return 0, false
	}
	if h < RolloverHour {
		h += 24
	}
	return h*60 + m, true
}

// OrderRecords sorts records by SortKey. The sort is stable, so records with
// equal times keep their extraction order. Records whose time does not parse
// are kept, after the sorted ones, in input order and with Sorted unset.
func OrderRecords(records []CandidateRecord) []OrderedRecord {
	sorted := make([]OrderedRecord, 0, len(records))
	var unordered []OrderedRecord
	for _, rec := range records {
		key, ok := SortKey(rec.Time)
		if !ok {
			unordered = append(unordered, OrderedRecord{CandidateRecord: rec})
			continue
		}
		sorted = append(sorted, OrderedRecord{CandidateRecord: rec, SortKey: key, Sorted: true})
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SortKey < sorted[j].SortKey
	})
	return append(sorted, unordered...)
}

// RenderTable renders the three-column table: label, time and status icon.
func RenderTable(records []OrderedRecord) string {
	if len(records) == 0 {
		return NoDataPlaceholder
	}

	var b strings.Builder
	b.WriteString(strings.Join(TableHeader, " | "))
	for _, rec := range records {
		b.WriteByte('\n')
		b.WriteString(rec.Label())
		b.WriteString(" | ")
		b.WriteString(rec.Time)
		b.WriteString(" | ")
		b.WriteString(rec.Status.Icon())
		if !rec.Sorted {
			b.WriteByte(' ')
			b.WriteString(UnorderedMarker)
		}
	}
	return b.String()
}

// OrderAndRender orders records and renders them.
func OrderAndRender(records []CandidateRecord) ([]OrderedRecord, string) {
	ordered := OrderRecords(records)
	return ordered, RenderTable(ordered)
}
