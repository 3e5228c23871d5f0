package aggregate

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCombineCount(t *testing.T) {
	if got := CombineCount([]int64{3, 0, 7}); got != 10 {
		t.Fatalf("got %d, want 10", got)
	}
}

func TestCombineSumStaysIntegerWhenNoOverflow(t *testing.T) {
	got, err := CombineSum([]any{int64(1), int64(2), int64(3)})
	if err != nil {
		t.Fatal(err)
	}
	if got != int64(6) {
		t.Fatalf("got %v (%T), want int64(6)", got, got)
	}
}

func TestCombineSumWidensOnOverflow(t *testing.T) {
	got, err := CombineSum([]any{int64(math.MaxInt64), int64(1)})
	if err != nil {
		t.Fatal(err)
	}
	d, ok := got.(decimal.Decimal)
	if !ok {
		t.Fatalf("got %T, want decimal.Decimal after overflow", got)
	}
	want := decimal.NewFromInt(math.MaxInt64).Add(decimal.NewFromInt(1))
	if !d.Equal(want) {
		t.Fatalf("got %s, want %s", d, want)
	}
}

func TestCombineMinMax(t *testing.T) {
	vals := []any{int64(5), int64(1), int64(9), nil}
	if got := CombineMin(vals, Compare); got != int64(1) {
		t.Fatalf("min = %v", got)
	}
	if got := CombineMax(vals, Compare); got != int64(9) {
		t.Fatalf("max = %v", got)
	}
}

func TestCombineAvgExactPath(t *testing.T) {
	sums := []any{int64(10), int64(20)}
	counts := []int64{2, 3}
	got, err := CombineAvg(sums, counts)
	if err != nil {
		t.Fatal(err)
	}
	d := got.(decimal.Decimal)
	want := decimal.NewFromInt(30).Div(decimal.NewFromInt(5))
	if !d.Equal(want) {
		t.Fatalf("got %s, want %s", d, want)
	}
}

func TestMergeOrdersAcrossShardsWithLimitOffset(t *testing.T) {
	shardA := []Row{{"id": int64(1)}, {"id": int64(4)}, {"id": int64(7)}}
	shardB := []Row{{"id": int64(2)}, {"id": int64(3)}, {"id": int64(8)}}
	order := []OrderTerm{{Column: "id"}}

	out := Merge([][]Row{shardA, shardB}, order, 0, -1)
	var ids []int64
	for _, r := range out {
		ids = append(ids, r["id"].(int64))
	}
	want := []int64{1, 2, 3, 4, 7, 8}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("got %v, want %v", ids, want)
		}
	}
}

func TestMergeAppliesOffsetAndLimit(t *testing.T) {
	shardA := []Row{{"id": int64(1)}, {"id": int64(3)}, {"id": int64(5)}}
	shardB := []Row{{"id": int64(2)}, {"id": int64(4)}, {"id": int64(6)}}
	order := []OrderTerm{{Column: "id"}}

	out := Merge([][]Row{shardA, shardB}, order, 2, 2)
	if len(out) != 2 {
		t.Fatalf("got %d rows, want 2", len(out))
	}
	if out[0]["id"].(int64) != 3 || out[1]["id"].(int64) != 4 {
		t.Fatalf("got %v", out)
	}
}

func TestMergeDescendingOrder(t *testing.T) {
	shardA := []Row{{"id": int64(5)}, {"id": int64(1)}}
	shardB := []Row{{"id": int64(4)}, {"id": int64(2)}}
	order := []OrderTerm{{Column: "id", Desc: true}}

	out := Merge([][]Row{shardA, shardB}, order, 0, -1)
	var ids []int64
	for _, r := range out {
		ids = append(ids, r["id"].(int64))
	}
	want := []int64{5, 4, 2, 1}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("got %v, want %v", ids, want)
		}
	}
}

func TestMergeTiesBreakByShardOrder(t *testing.T) {
	shardA := []Row{{"id": int64(1), "shard": "a"}}
	shardB := []Row{{"id": int64(1), "shard": "b"}}
	order := []OrderTerm{{Column: "id"}}

	out := Merge([][]Row{shardA, shardB}, order, 0, -1)
	if out[0]["shard"] != "a" || out[1]["shard"] != "b" {
		t.Fatalf("tie-break order wrong: %v", out)
	}
}
