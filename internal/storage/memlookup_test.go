package storage

import (
	"context"
	"testing"

	"github.com/dreamware/vshard/internal/ksid"
)

func TestMemoryLookupTableRoundTrips(t *testing.T) {
	ctx := context.Background()
	table := NewMemoryLookupTable()
	id := ksid.FromUint64(42)

	if ids, err := table.Get(ctx, "user@example.com"); err != nil || len(ids) != 0 {
		t.Fatalf("expected no bindings, got %v err=%v", ids, err)
	}
	if err := table.Put(ctx, "user@example.com", id); err != nil {
		t.Fatal(err)
	}
	ids, err := table.Get(ctx, "user@example.com")
	if err != nil || len(ids) != 1 || ids[0] != id {
		t.Fatalf("ids=%v err=%v", ids, err)
	}
	if err := table.Remove(ctx, "user@example.com", id); err != nil {
		t.Fatal(err)
	}
	if ids, _ := table.Get(ctx, "user@example.com"); len(ids) != 0 {
		t.Fatal("expected no bindings after remove")
	}
}

func TestMemoryLookupTableAccumulatesMultipleBindings(t *testing.T) {
	ctx := context.Background()
	table := NewMemoryLookupTable()
	idA, idB := ksid.FromUint64(1), ksid.FromUint64(2)

	if err := table.Put(ctx, "shared-tag", idA); err != nil {
		t.Fatal(err)
	}
	if err := table.Put(ctx, "shared-tag", idB); err != nil {
		t.Fatal(err)
	}
	ids, err := table.Get(ctx, "shared-tag")
	if err != nil || len(ids) != 2 {
		t.Fatalf("ids=%v err=%v", ids, err)
	}

	if err := table.Remove(ctx, "shared-tag", idA); err != nil {
		t.Fatal(err)
	}
	ids, err = table.Get(ctx, "shared-tag")
	if err != nil || len(ids) != 1 || ids[0] != idB {
		t.Fatalf("ids=%v err=%v", ids, err)
	}
}

func TestMemoryLookupTableDistinguishesKeyTypes(t *testing.T) {
	ctx := context.Background()
	table := NewMemoryLookupTable()
	idA, idB := ksid.FromUint64(1), ksid.FromUint64(2)

	if err := table.Put(ctx, int64(42), idA); err != nil {
		t.Fatal(err)
	}
	if err := table.Put(ctx, "42", idB); err != nil {
		t.Fatal(err)
	}
	ids, err := table.Get(ctx, int64(42))
	if err != nil || len(ids) != 1 || ids[0] != idA {
		t.Fatalf("ids=%v err=%v", ids, err)
	}
}
