// Package aggregate implements cross-shard COUNT/SUM/AVG/MIN/MAX
// combination, and the sorted k-way merge with LIMIT/OFFSET pushdown
// that the Router applies to scatter_aggregate and ordered scatter
// plans.
package aggregate

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Row is one result row, column name to host value — the same shape
// internal/storage's QueryResult uses, duplicated here rather than
// imported to keep this package free of a storage dependency.
type Row map[string]any

// The Combine* functions below reduce the per-shard COUNT/SUM/MIN/MAX
// partial values into the router-visible total, each per its own rule.
// AVG is intentionally absent here — see CombineAvg, which needs both
// the SUM and COUNT partials together.

// CombineCount sums the per-shard COUNT values.
func CombineCount(perShard []int64) int64 {
	var total int64
	for _, c := range perShard {
		total += c
	}
	return total
}

// CombineMin returns the minimum of the per-shard MIN values, using cmp
// to compare two values; nils (no rows on that shard) are skipped.
func CombineMin(perShard []any, cmp func(a, b any) int) any {
	return combineExtreme(perShard, cmp, -1)
}

// CombineMax returns the maximum of the per-shard MAX values.
func CombineMax(perShard []any, cmp func(a, b any) int) any {
	return combineExtreme(perShard, cmp, 1)
}

func combineExtreme(perShard []any, cmp func(a, b any) int, want int) any {
	var best any
	haveBest := false
	for _, v := range perShard {
		if v == nil {
			continue
		}
		if !haveBest {
			best, haveBest = v, true
			continue
		}
		if sign(cmp(v, best)) == want {
			best = v
		}
	}
	return best
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

// CombineSum sums the per-shard SUM values. Following the host's
// numeric promotion rules, it stays a 64-bit integer if every partial is
// an integer and the running total never overflows int64; otherwise it
// widens to decimal.Decimal, which is also the representation used for
// any partial that already arrived as a float or decimal (e.g. from a
// NUMERIC column).
func CombineSum(perShard []any) (any, error) {
	allInt := true
	for _, v := range perShard {
		if v == nil {
			continue
		}
		if _, ok := asInt64(v); !ok {
			allInt = false
			break
		}
	}
	if allInt {
		var total int64
		overflowed := false
		for _, v := range perShard {
			if v == nil {
				continue
			}
			n, _ := asInt64(v)
			sum := total + n
			if (n > 0 && sum < total) || (n < 0 && sum > total) {
				overflowed = true
				break
			}
			total = sum
		}
		if !overflowed {
			return total, nil
		}
	}
	total := decimal.Zero
	for _, v := range perShard {
		if v == nil {
			continue
		}
		d, err := asDecimal(v)
		if err != nil {
			return nil, fmt.Errorf("aggregate: SUM: %w", err)
		}
		total = total.Add(d)
	}
	return total, nil
}

// CombineAvg computes Σsum/Σcount, the exact path callers should prefer
// whenever every shard reported both SUM(x) and COUNT(x). Division uses
// decimal.Decimal to avoid floating-point drift.
func CombineAvg(sums []any, counts []int64) (any, error) {
	sum, err := CombineSum(sums)
	if err != nil {
		return nil, err
	}
	totalCount := CombineCount(counts)
	if totalCount == 0 {
		return nil, nil
	}
	sumDec, err := asDecimal(sum)
	if err != nil {
		return nil, fmt.Errorf("aggregate: AVG: %w", err)
	}
	return sumDec.Div(decimal.NewFromInt(totalCount)), nil
}

// CombineAvgLossy is the fallback path of this package when shards did not
// report SUM/COUNT separately: average directly over the concatenated
// per-row values of the tracked column.
func CombineAvgLossy(values []any) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	sum := decimal.Zero
	for _, v := range values {
		d, err := asDecimal(v)
		if err != nil {
			return nil, fmt.Errorf("aggregate: AVG (lossy): %w", err)
		}
		sum = sum.Add(d)
	}
	return sum.Div(decimal.NewFromInt(int64(len(values)))), nil
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	default:
		return 0, false
	}
}

func asDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case int64:
		return decimal.NewFromInt(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int32:
		return decimal.NewFromInt(int64(n)), nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Decimal{}, fmt.Errorf("cannot aggregate non-finite float %v", n)
		}
		return decimal.NewFromFloat(n), nil
	case float32:
		return decimal.NewFromFloat32(n), nil
	case string:
		return decimal.NewFromString(n)
	default:
		return decimal.Decimal{}, fmt.Errorf("value %v (%T) is not numeric", v, v)
	}
}
