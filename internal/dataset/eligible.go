package dataset

import "strings"

// ParseProcessedFlag normalizes the heterogeneous truthy/falsy
// representations a processed flag takes after round-tripping through
// CSV/XLSX storage. Unknown non-empty values normalize to false, so a
// corrupted flag causes a reprocess rather than a silent skip.
func ParseProcessedFlag(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "ano":
		return true
	default:
		return false
	}
}

// Eligible returns the dataset positions whose processed flag normalizes to
// false, in original order. Pure read; the table is not mutated.
func Eligible(t *Table, s *Schema) []int {
	var out []int
	for i := range t.Rows {
		if !ParseProcessedFlag(t.Cell(i, s.Processed)) {
			out = append(out, i)
		}
	}
	return out
}
