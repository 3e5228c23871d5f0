// Package vindex implements the vindex variants: hash, consistent_hash,
// range/numeric, and the lookup family. A Vindex maps a
// column value to one or more keyspace-ids; the Router consults a vindex
// cache of these, keyed by (keyspace, vindex name), to plan queries.
package vindex

import (
	"context"

	"github.com/dreamware/vshard/internal/ksid"
	"github.com/dreamware/vshard/internal/vterrors"
)

// Vindex is the tagged-variant interface every vindex type satisfies.
// Unique, synchronous vindexes (hash, consistent_hash, range) only ever
// need Map; the lookup family additionally implements Lookup.
type Vindex interface {
	// Name is the vindex's configured name, for error messages and the
	// Router's vindex cache key.
	Name() string
	// Unique reports whether Map can return at most one KeyspaceId.
	Unique() bool
	// NeedsLookup reports whether Map always fails synchronously and
	// resolution instead requires the asynchronous Lookup interface.
	NeedsLookup() bool
	// Map computes the keyspace-id(s) bound to v. Null/absent v is an
	// argument error.
	Map(v any) ([]ksid.KeyspaceId, error)
}

// Lookup is implemented by the lookup/lookup_hash/lookup_unique family,
// whose mapping lives in a secondary table consulted asynchronously.
type Lookup interface {
	Vindex
	// Get resolves value to its currently bound keyspace-ids — the
	// Router's entry point for routing rule 7 ("execute lookup first;
	// resolved ids then route to shards").
	Get(ctx context.Context, value any) ([]ksid.KeyspaceId, error)
	// Verify confirms that each values[i] is currently bound to ids[i] in
	// the lookup table, returning one bool per pair.
	Verify(ctx context.Context, values []any, ids []ksid.KeyspaceId) ([]bool, error)
	// Create inserts values[i] -> ids[i] bindings into the lookup table.
	Create(ctx context.Context, values []any, ids []ksid.KeyspaceId) error
	// Delete removes values[i] -> ids[i] bindings from the lookup table.
	Delete(ctx context.Context, values []any, ids []ksid.KeyspaceId) error
}

// canonicalize wraps ksid.Canonicalize with the MISSING_PARAM wire code, so
// the hash and consistent_hash variants report null/absent values as an
// argument error. The range variant reports any non-integer value, null
// included, as TYPE_ERROR.
func canonicalize(v any) ([]byte, error) {
	b, err := ksid.Canonicalize(v)
	if err != nil {
		return nil, vterrors.Newf(vterrors.CodeMissingParam, "vindex: %v", err)
	}
	return b, nil
}

// errNoShardFor is returned by consistent_hash and range vindexes when a
// ring or interval list is misconfigured such that no entry covers a
// value that Map otherwise successfully hashed — a VSchema invariant
// violation.
func errNoShardFor(vindexName string, keyspaceID ksid.KeyspaceId) error {
	return vterrors.Newf(vterrors.CodeQueryError, "vindex %s: no shard covers keyspace id %x", vindexName, keyspaceID.Bytes())
}
