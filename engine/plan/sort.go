package plan

import (
	"sort"

	"vellum/lib/value"
)

// SortRows orders rows in place by spec. The sort is stable, NULLs sort
// before other values and incomparable values count as equal. A nil spec
// leaves rows untouched.
func SortRows(rows [][]value.Value, spec *SortSpec) {
	if spec == nil || len(spec.Columns) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return compareRows(rows[i], rows[j], spec) < 0
	})
}

func compareRows(a, b []value.Value, spec *SortSpec) int {
	for _, col := range spec.Columns {
		if col.Index >= len(a) || col.Index >= len(b) {
			continue
		}
		cmp, ok := value.Compare(a[col.Index], b[col.Index])
		if !ok {
			continue
		}
		if col.Order == Desc {
			cmp = -cmp
		}
		if cmp != 0 {
			return cmp
		}
	}
	return 0
}
