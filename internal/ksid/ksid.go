// Package ksid implements KeyspaceId, the 8-byte big-endian identifier that
// places a row within the keyspace [0, 2^64), and the three hash kernels
// (md5-like, xxhash-like, murmur3-like) that vindexes build on.
package ksid

import "encoding/binary"

// KeyspaceId is a fixed 8-byte big-endian unsigned integer. The keyspace is
// the half-open interval [0, 2^64); ShardRange partitions it.
type KeyspaceId [8]byte

// FromUint64 packs n as a big-endian KeyspaceId.
func FromUint64(n uint64) KeyspaceId {
	var k KeyspaceId
	binary.BigEndian.PutUint64(k[:], n)
	return k
}

// Uint64 unpacks the KeyspaceId back to its numeric value.
func (k KeyspaceId) Uint64() uint64 {
	return binary.BigEndian.Uint64(k[:])
}

// Compare returns -1, 0 or 1 as k is less than, equal to, or greater than
// other, using the KeyspaceId's total order.
func (k KeyspaceId) Compare(other KeyspaceId) int {
	for i := range k {
		if k[i] != other[i] {
			if k[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Bytes returns the raw 8-byte big-endian representation.
func (k KeyspaceId) Bytes() []byte {
	out := make([]byte, 8)
	copy(out, k[:])
	return out
}

// FromBytes reconstructs a KeyspaceId from an 8-byte big-endian slice.
func FromBytes(b []byte) (KeyspaceId, bool) {
	var k KeyspaceId
	if len(b) != 8 {
		return k, false
	}
	copy(k[:], b)
	return k, true
}
