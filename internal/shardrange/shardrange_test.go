package shardrange

import (
	"testing"

	"github.com/dreamware/vshard/internal/ksid"
)

func TestParseFull(t *testing.T) {
	r, err := Parse("-")
	if err != nil {
		t.Fatal(err)
	}
	if r.HasEnd {
		t.Fatal("full range should have no end")
	}
	if r.Name() != "-" {
		t.Fatalf("Name() = %q, want -", r.Name())
	}
}

func TestParseHalves(t *testing.T) {
	r, err := Parse("-80")
	if err != nil {
		t.Fatal(err)
	}
	if !r.Contains(ksid.FromUint64(0)) {
		t.Error("expected -80 to contain 0")
	}
	if r.Contains(ksid.FromUint64(0x8000000000000000)) {
		t.Error("expected -80 to exclude 0x8000000000000000")
	}

	r2, err := Parse("80-")
	if err != nil {
		t.Fatal(err)
	}
	if !r2.Contains(ksid.FromUint64(0x8000000000000000)) {
		t.Error("expected 80- to contain 0x8000000000000000")
	}
	if r2.Contains(ksid.FromUint64(0)) {
		t.Error("expected 80- to exclude 0")
	}
}

func TestParseMidRange(t *testing.T) {
	r, err := Parse("40-80")
	if err != nil {
		t.Fatal(err)
	}
	// Bounds are left-padded: "40-80" is [0x40, 0x80).
	if r.Contains(ksid.FromUint64(0x30)) {
		t.Error("should not contain below start")
	}
	if !r.Contains(ksid.FromUint64(0x50)) {
		t.Error("should contain mid value")
	}
	if r.Contains(ksid.FromUint64(0x80)) {
		t.Error("end is exclusive")
	}
}

func TestPartitionValidCoversFullKeyspace(t *testing.T) {
	a, _ := Parse("-80")
	b, _ := Parse("80-")
	if err := Partition([]Range{a, b}); err != nil {
		t.Fatalf("expected valid partition, got %v", err)
	}
}

func TestPartitionDetectsGap(t *testing.T) {
	a, _ := Parse("-40")
	b, _ := Parse("80-")
	if err := Partition([]Range{a, b}); err == nil {
		t.Fatal("expected gap error")
	}
}

func TestPartitionDetectsOverlap(t *testing.T) {
	a, _ := Parse("-90")
	b, _ := Parse("80-")
	if err := Partition([]Range{a, b}); err == nil {
		t.Fatal("expected overlap error")
	}
}

func TestRouteToShard(t *testing.T) {
	a, _ := Parse("-80")
	b, _ := Parse("80-")
	ranges := []Range{a, b}

	got, err := RouteToShard(ranges, ksid.FromUint64(10))
	if err != nil {
		t.Fatal(err)
	}
	if got.Name() != a.Name() {
		t.Fatalf("got %s, want %s", got.Name(), a.Name())
	}

	got, err = RouteToShard(ranges, ksid.FromUint64(0x9000000000000000))
	if err != nil {
		t.Fatal(err)
	}
	if got.Name() != b.Name() {
		t.Fatalf("got %s, want %s", got.Name(), b.Name())
	}
}

// TestRouteToShardCoversEveryId is a cheap sampled check that every id
// falls in exactly one shard.
func TestRouteToShardCoversEveryId(t *testing.T) {
	a, _ := Parse("-40")
	b, _ := Parse("40-c0")
	c, _ := Parse("c0-")
	ranges := []Range{a, b, c}
	if err := Partition(ranges); err != nil {
		t.Fatal(err)
	}

	samples := []uint64{0, 1, 0x3FFFFFFFFFFFFFFF, 0x4000000000000000, 0x8000000000000000, 0xBFFFFFFFFFFFFFFF, 0xC000000000000000, 0xFFFFFFFFFFFFFFFF}
	for _, s := range samples {
		matches := 0
		for _, r := range ranges {
			if r.Contains(ksid.FromUint64(s)) {
				matches++
			}
		}
		if matches != 1 {
			t.Errorf("id %x matched %d shards, want 1", s, matches)
		}
	}
}
