package storage

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/dreamware/vshard/internal/ksid"
	"github.com/dreamware/vshard/internal/vterrors"
)

// MemoryLookupTable adapts MemoryStore to internal/vindex.LookupTable,
// letting a lookup vindex (internal/vindex.LookupVindex) run against the
// same in-process key-value store the rest of this package already
// provides, without either package importing concrete storage adapters.
// Bindings for one lookup value are stored as a JSON-encoded slice of
// KeyspaceId hex strings under a JSON-encoded key, keeping MemoryStore's
// string-keyed byte-value contract intact while giving LookupTable its
// multimap-of-KeyspaceId shape.
type MemoryLookupTable struct {
	store *MemoryStore
}

// NewMemoryLookupTable wraps a fresh MemoryStore as a LookupTable.
func NewMemoryLookupTable() *MemoryLookupTable {
	return &MemoryLookupTable{store: NewMemoryStore()}
}

// Get returns every KeyspaceId currently bound to value.
func (t *MemoryLookupTable) Get(ctx context.Context, value any) ([]ksid.KeyspaceId, error) {
	key, err := encodeLookupKey(value)
	if err != nil {
		return nil, err
	}
	raw, err := t.store.Get(key)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, vterrors.Wrap(vterrors.CodeQueryError, err, "memlookup: get failed")
	}
	return decodeBindings(raw)
}

// Put records value -> id, appending to any existing bindings.
func (t *MemoryLookupTable) Put(ctx context.Context, value any, id ksid.KeyspaceId) error {
	key, err := encodeLookupKey(value)
	if err != nil {
		return err
	}
	existing, err := t.Get(ctx, value)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e == id {
			return nil
		}
	}
	raw, err := encodeBindings(append(existing, id))
	if err != nil {
		return err
	}
	if err := t.store.Put(key, raw); err != nil {
		return vterrors.Wrap(vterrors.CodeQueryError, err, "memlookup: put failed")
	}
	return nil
}

// Remove deletes the value -> id binding, if present. Idempotent.
func (t *MemoryLookupTable) Remove(ctx context.Context, value any, id ksid.KeyspaceId) error {
	key, err := encodeLookupKey(value)
	if err != nil {
		return err
	}
	existing, err := t.Get(ctx, value)
	if err != nil {
		return err
	}
	remaining := existing[:0]
	for _, e := range existing {
		if e != id {
			remaining = append(remaining, e)
		}
	}
	if len(remaining) == 0 {
		if err := t.store.Delete(key); err != nil {
			return vterrors.Wrap(vterrors.CodeQueryError, err, "memlookup: delete failed")
		}
		return nil
	}
	raw, err := encodeBindings(remaining)
	if err != nil {
		return err
	}
	if err := t.store.Put(key, raw); err != nil {
		return vterrors.Wrap(vterrors.CodeQueryError, err, "memlookup: put failed")
	}
	return nil
}

func encodeLookupKey(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", vterrors.Wrap(vterrors.CodeTypeError, err, "memlookup: lookup value is not JSON-encodable")
	}
	return string(b), nil
}

func encodeBindings(ids []ksid.KeyspaceId) ([]byte, error) {
	hexes := make([]string, len(ids))
	for i, id := range ids {
		hexes[i] = hex.EncodeToString(id.Bytes())
	}
	return json.Marshal(hexes)
}

func decodeBindings(raw []byte) ([]ksid.KeyspaceId, error) {
	var hexes []string
	if err := json.Unmarshal(raw, &hexes); err != nil {
		return nil, vterrors.Wrap(vterrors.CodeTypeError, err, "memlookup: corrupt bindings")
	}
	out := make([]ksid.KeyspaceId, 0, len(hexes))
	for _, h := range hexes {
		b, err := hex.DecodeString(h)
		if err != nil {
			return nil, vterrors.Wrap(vterrors.CodeTypeError, err, "memlookup: corrupt keyspace id binding")
		}
		id, ok := ksid.FromBytes(b)
		if !ok {
			return nil, vterrors.New(vterrors.CodeTypeError, "memlookup: corrupt keyspace id binding")
		}
		out = append(out, id)
	}
	return out, nil
}
