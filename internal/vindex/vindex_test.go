package vindex

import (
	"context"
	"testing"

	"github.com/dreamware/vshard/internal/ksid"
)

func TestHashVindexIsDeterministicAndUnique(t *testing.T) {
	v := NewHashVindex("hash", ksid.HashMD5Like)
	if !v.Unique() || v.NeedsLookup() {
		t.Fatal("hash vindex should be unique and synchronous")
	}
	a, err := v.Map(int64(42))
	if err != nil {
		t.Fatal(err)
	}
	b, _ := v.Map(int64(42))
	if len(a) != 1 || a[0] != b[0] {
		t.Fatal("hash vindex not deterministic")
	}
}

func TestHashVindexRejectsNil(t *testing.T) {
	v := NewHashVindex("hash", ksid.HashMD5Like)
	if _, err := v.Map(nil); err == nil {
		t.Fatal("expected error mapping nil")
	}
}

func TestConsistentHashRingIsStableAcrossReinit(t *testing.T) {
	shards := []string{"-40", "40-80", "80-c0", "c0-"}
	v1 := NewConsistentHashVindex("ch", ksid.HashXXHashLike, shards, 50)
	v2 := NewConsistentHashVindex("ch", ksid.HashXXHashLike, shards, 50)

	for _, n := range []uint64{0, 1, 12345, 0xFFFFFFFFFFFFFFFF} {
		id := ksid.FromUint64(n)
		s1, err := v1.ShardFor(id)
		if err != nil {
			t.Fatal(err)
		}
		s2, _ := v2.ShardFor(id)
		if s1 != s2 {
			t.Fatalf("ring not stable across reinit for id %x: %s != %s", n, s1, s2)
		}
	}
}

func TestConsistentHashEveryShardReachable(t *testing.T) {
	shards := []string{"a", "b", "c"}
	v := NewConsistentHashVindex("ch", ksid.HashXXHashLike, shards, 150)
	seen := map[string]bool{}
	// Spread the samples over the whole id space: the ring-key is the
	// high 32 bits of the id.
	step := ^uint64(0) / 2000
	for i := uint64(0); i < 2000; i++ {
		s, err := v.ShardFor(ksid.FromUint64(i * step))
		if err != nil {
			t.Fatal(err)
		}
		seen[s] = true
	}
	for _, s := range shards {
		if !seen[s] {
			t.Errorf("shard %s never reached by sampled ids", s)
		}
	}
}

func TestRangeVindexRoutesByInterval(t *testing.T) {
	rv, err := NewRangeVindex("numeric", map[string][2]uint64{
		"lo": {0, 1000},
		"hi": {1000, 1 << 63},
	})
	if err != nil {
		t.Fatal(err)
	}
	ids, err := rv.Map(int64(500))
	if err != nil {
		t.Fatal(err)
	}
	shard, err := rv.ShardFor(ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if shard != "lo" {
		t.Fatalf("got shard %s, want lo", shard)
	}

	ids2, _ := rv.Map(int64(5000))
	shard2, _ := rv.ShardFor(ids2[0])
	if shard2 != "hi" {
		t.Fatalf("got shard %s, want hi", shard2)
	}
}

func TestRangeVindexRejectsOverlap(t *testing.T) {
	_, err := NewRangeVindex("numeric", map[string][2]uint64{
		"a": {0, 100},
		"b": {50, 150},
	})
	if err == nil {
		t.Fatal("expected overlap error")
	}
}

// memLookupTable is a trivial in-memory LookupTable fake for testing the
// lookup vindex family without a real storage adapter.
type memLookupTable struct {
	rows map[any][]ksid.KeyspaceId
}

func newMemLookupTable() *memLookupTable {
	return &memLookupTable{rows: map[any][]ksid.KeyspaceId{}}
}

func (m *memLookupTable) Get(_ context.Context, value any) ([]ksid.KeyspaceId, error) {
	return m.rows[value], nil
}

func (m *memLookupTable) Put(_ context.Context, value any, id ksid.KeyspaceId) error {
	for _, existing := range m.rows[value] {
		if existing == id {
			return nil
		}
	}
	m.rows[value] = append(m.rows[value], id)
	return nil
}

func (m *memLookupTable) Remove(_ context.Context, value any, id ksid.KeyspaceId) error {
	rows := m.rows[value]
	for i, existing := range rows {
		if existing == id {
			m.rows[value] = append(rows[:i], rows[i+1:]...)
			return nil
		}
	}
	return nil
}

func TestLookupVindexMapAlwaysFails(t *testing.T) {
	v := NewLookupVindex("lu", false, newMemLookupTable())
	if !v.NeedsLookup() {
		t.Fatal("lookup vindex must report NeedsLookup")
	}
	if _, err := v.Map("x"); err == nil {
		t.Fatal("expected Map to fail synchronously")
	}
}

func TestLookupVindexCreateVerifyDelete(t *testing.T) {
	ctx := context.Background()
	v := NewLookupVindex("lu", false, newMemLookupTable())
	id1 := ksid.FromUint64(1)
	id2 := ksid.FromUint64(2)

	if err := v.Create(ctx, []any{"a", "a"}, []ksid.KeyspaceId{id1, id2}); err != nil {
		t.Fatal(err)
	}
	ids, err := v.Get(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 bindings, got %d", len(ids))
	}

	ok, err := v.Verify(ctx, []any{"a", "a"}, []ksid.KeyspaceId{id1, id2})
	if err != nil {
		t.Fatal(err)
	}
	if !ok[0] || !ok[1] {
		t.Fatal("expected both bindings to verify")
	}

	if err := v.Delete(ctx, []any{"a"}, []ksid.KeyspaceId{id1}); err != nil {
		t.Fatal(err)
	}
	ids, _ = v.Get(ctx, "a")
	if len(ids) != 1 || ids[0] != id2 {
		t.Fatal("expected only id2 to remain after delete")
	}
}

func TestLookupUniqueRejectsSecondBinding(t *testing.T) {
	ctx := context.Background()
	v := NewLookupVindex("lu_unique", true, newMemLookupTable())
	if err := v.Create(ctx, []any{"a"}, []ksid.KeyspaceId{ksid.FromUint64(1)}); err != nil {
		t.Fatal(err)
	}
	if err := v.Create(ctx, []any{"a"}, []ksid.KeyspaceId{ksid.FromUint64(2)}); err == nil {
		t.Fatal("expected unique violation on second distinct binding")
	}
}
