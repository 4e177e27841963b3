package lookup

import (
	"slices"
	"strings"
)

// pool is the sorted, de-duplicated set of values owned by one table.
// Table entries refer to values by their position in the pool.
type pool []string

// newPool interns values. The input slice is sorted in place.
func newPool(values []string) pool {
	slices.Sort(values)
	p := make(pool, 0, len(values))
	for i, v := range values {
		if i > 0 && v == values[i-1] {
			continue
		}
		// Clone so the table owns its values and not the parser's buffers.
		p = append(p, strings.Clone(v))
	}
	return slices.Clip(p)
}

// ref returns the canonical position of v.
func (p pool) ref(v string) (uint32, bool) {
	i, ok := slices.BinarySearch(p, v)
	return uint32(i), ok //nolint:gosec // pool size is bounded by the row count
}

func (p pool) value(ref uint32) string {
	return p[ref]
}
