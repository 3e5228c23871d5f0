package vindex

import "github.com/dreamware/vshard/internal/ksid"

// HashVindex implements the hash / binary_md5 / unicode_loose_md5 variants
// of this package: map(v) = [H(canonicalize(v))], unique and synchronous.
// All three wire type names build this same type; the vindex cache backs
// each with HashMD5Like unless the vindex's "kernel" param names another.
type HashVindex struct {
	name   string
	kernel ksid.Kernel
}

// NewHashVindex constructs a unique, synchronous vindex backed by kernel.
// Pass ksid.HashMD5Like for "hash"/"binary_md5"/"unicode_loose_md5".
func NewHashVindex(name string, kernel ksid.Kernel) *HashVindex {
	return &HashVindex{name: name, kernel: kernel}
}

func (h *HashVindex) Name() string      { return h.name }
func (h *HashVindex) Unique() bool      { return true }
func (h *HashVindex) NeedsLookup() bool { return false }

// Map computes the single keyspace-id bound to v.
func (h *HashVindex) Map(v any) ([]ksid.KeyspaceId, error) {
	b, err := canonicalize(v)
	if err != nil {
		return nil, err
	}
	return []ksid.KeyspaceId{h.kernel(b)}, nil
}
