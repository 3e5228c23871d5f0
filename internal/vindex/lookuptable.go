package vindex

import (
	"context"

	"github.com/dreamware/vshard/internal/ksid"
)

// LookupTable abstracts the secondary {value -> {KeyspaceId...}} multimap
// that backs the lookup/lookup_hash/lookup_unique vindex variants.
// internal/storage.MemoryLookupTable is the implementation in this
// module; this interface is the seam that lets LookupVindex work against
// a backing table without internal/vindex importing internal/storage.
type LookupTable interface {
	// Get returns every KeyspaceId currently bound to value.
	Get(ctx context.Context, value any) ([]ksid.KeyspaceId, error)
	// Put records value -> id, keeping any other ids already bound to
	// value. LookupVindex.Create checks uniqueness itself before Put.
	Put(ctx context.Context, value any, id ksid.KeyspaceId) error
	// Remove deletes the value -> id binding, if present.
	Remove(ctx context.Context, value any, id ksid.KeyspaceId) error
}
