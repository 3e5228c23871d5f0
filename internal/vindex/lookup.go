package vindex

import (
	"context"

	"github.com/dreamware/vshard/internal/ksid"
	"github.com/dreamware/vshard/internal/vterrors"
)

// LookupVindex implements the lookup/lookup_hash/lookup_unique family.
// Map always fails synchronously — resolution requires the asynchronous
// Verify/Create/Delete/Get operations against the injected LookupTable,
// which models the secondary lookup table whether it in fact lives in a
// Postgres-compatible or a SQLite-compatible adapter.
type LookupVindex struct {
	name   string
	unique bool
	table  LookupTable
}

// NewLookupVindex constructs a lookup vindex backed by table. unique
// should be true for the "lookup_unique" wire type, which guarantees at
// most one keyspace-id per value.
func NewLookupVindex(name string, unique bool, table LookupTable) *LookupVindex {
	return &LookupVindex{name: name, unique: unique, table: table}
}

func (l *LookupVindex) Name() string      { return l.name }
func (l *LookupVindex) Unique() bool      { return l.unique }
func (l *LookupVindex) NeedsLookup() bool { return true }

// Map always fails synchronously for the lookup family.
func (l *LookupVindex) Map(any) ([]ksid.KeyspaceId, error) {
	return nil, vterrors.Newf(vterrors.CodeUnsupportedSQL, "vindex %s: lookup vindexes cannot be mapped synchronously", l.name)
}

// Get resolves value to its currently bound keyspace-ids via the
// underlying lookup table.
func (l *LookupVindex) Get(ctx context.Context, value any) ([]ksid.KeyspaceId, error) {
	ids, err := l.table.Get(ctx, value)
	if err != nil {
		return nil, err
	}
	if l.unique && len(ids) > 1 {
		return nil, vterrors.Newf(vterrors.CodeConstraintViolation, "vindex %s: value has %d bindings, unique vindex allows at most 1", l.name, len(ids))
	}
	return ids, nil
}

// Verify confirms that each values[i] is currently bound to ids[i].
func (l *LookupVindex) Verify(ctx context.Context, values []any, ids []ksid.KeyspaceId) ([]bool, error) {
	out := make([]bool, len(values))
	for i := range values {
		bound, err := l.table.Get(ctx, values[i])
		if err != nil {
			return nil, err
		}
		for _, b := range bound {
			if b == ids[i] {
				out[i] = true
				break
			}
		}
	}
	return out, nil
}

// Create inserts values[i] -> ids[i] bindings into the lookup table. For a
// unique vindex, an existing binding for values[i] to a different id is a
// constraint violation.
func (l *LookupVindex) Create(ctx context.Context, values []any, ids []ksid.KeyspaceId) error {
	for i := range values {
		if l.unique {
			existing, err := l.table.Get(ctx, values[i])
			if err != nil {
				return err
			}
			for _, e := range existing {
				if e != ids[i] {
					return vterrors.Newf(vterrors.CodeUniqueViolation, "vindex %s: value already bound to a different keyspace id", l.name)
				}
			}
		}
		if err := l.table.Put(ctx, values[i], ids[i]); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes values[i] -> ids[i] bindings from the lookup table.
func (l *LookupVindex) Delete(ctx context.Context, values []any, ids []ksid.KeyspaceId) error {
	for i := range values {
		if err := l.table.Remove(ctx, values[i], ids[i]); err != nil {
			return err
		}
	}
	return nil
}
