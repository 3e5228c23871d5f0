package aggregate

import (
	"container/heap"
	"fmt"
)

// OrderTerm is one ORDER BY key: a column and its sort direction. It
// mirrors internal/sqlparser.OrderTerm without importing that package.
type OrderTerm struct {
	Column string
	Desc   bool
}

// Compare compares two column values of the same dynamic type for
// ordering purposes: integers, floats, strings, and decimal.Decimal by
// value; anything else falls back to formatted-string comparison so the
// merge is always total, matching the documented client contract that
// shards are pre-sorted consistently.
func Compare(a, b any) int {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	as, bs := toComparableString(a), toComparableString(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		if d, err := asDecimal(v); err == nil {
			f, _ := d.Float64()
			return f, true
		}
		return 0, false
	}
}

func toComparableString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmtAny(v)
}

func fmtAny(v any) string {
	if v == nil {
		return ""
	}
	type stringer interface{ String() string }
	if s, ok := v.(stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", v)
}

// mergeSource is one shard's pre-sorted row stream, consumed in order.
type mergeSource struct {
	rows []Row
	pos  int
}

func (m *mergeSource) peek() (Row, bool) {
	if m.pos >= len(m.rows) {
		return nil, false
	}
	return m.rows[m.pos], true
}

// mergeHeap is a container/heap of source indices, ordered by each
// source's current head row per the ORDER BY clause. Ties break by shard
// list order (lower source index first).
type mergeHeap struct {
	sources []*mergeSource
	order   []OrderTerm
	indices []int
}

func (h *mergeHeap) Len() int { return len(h.indices) }

func (h *mergeHeap) Less(i, j int) bool {
	si, sj := h.sources[h.indices[i]], h.sources[h.indices[j]]
	ri, _ := si.peek()
	rj, _ := sj.peek()
	for _, term := range h.order {
		c := Compare(ri[term.Column], rj[term.Column])
		if term.Desc {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
	}
	return h.indices[i] < h.indices[j]
}

func (h *mergeHeap) Swap(i, j int) { h.indices[i], h.indices[j] = h.indices[j], h.indices[i] }

func (h *mergeHeap) Push(x any) { h.indices = append(h.indices, x.(int)) }

func (h *mergeHeap) Pop() any {
	n := len(h.indices)
	x := h.indices[n-1]
	h.indices = h.indices[:n-1]
	return x
}

// Merge performs the ordered k-way merge of this package: perShard holds
// each shard's rows, already sorted by order (the documented client
// contract); Merge interleaves them by order, applying offset and limit
// during the merge so rows beyond what's needed are never materialized
// into the result. limit < 0 means unbounded.
func Merge(perShard [][]Row, order []OrderTerm, offset, limit int64) []Row {
	sources := make([]*mergeSource, len(perShard))
	for i, rows := range perShard {
		sources[i] = &mergeSource{rows: rows}
	}
	h := &mergeHeap{sources: sources, order: order}
	for i, s := range sources {
		if _, ok := s.peek(); ok {
			h.indices = append(h.indices, i)
		}
	}
	heap.Init(h)

	var out []Row
	skipped := int64(0)
	for h.Len() > 0 {
		idx := h.indices[0]
		src := sources[idx]
		row, _ := src.peek()
		src.pos++

		if _, ok := src.peek(); ok {
			heap.Fix(h, 0)
		} else {
			heap.Pop(h)
		}

		if skipped < offset {
			skipped++
			continue
		}
		if limit >= 0 && int64(len(out)) >= limit {
			break
		}
		out = append(out, row)
	}
	return out
}
