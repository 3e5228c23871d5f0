package ksid

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
)

// Kernel is a pure function from canonicalized bytes to an 8-byte
// KeyspaceId. All three kernels below are deterministic and
// endian-stable, so the same input always maps to the same id.
type Kernel func(b []byte) KeyspaceId

// HashMD5Like is the "md5-like" kernel: a double-FNV-style mix over two
// independently salted 32-bit lanes, concatenated big-endian. Grounded
// on hash/fnv, the package already reached for elsewhere in this corpus
// to hash a routing key.
func HashMD5Like(b []byte) KeyspaceId {
	lane1 := fnvLane(b, 0)
	lane2 := fnvLane(b, 1)
	var k KeyspaceId
	binary.BigEndian.PutUint32(k[0:4], lane1)
	binary.BigEndian.PutUint32(k[4:8], lane2)
	return k
}

// fnvLane computes an FNV-1a 32-bit hash of b, salted by mixing salt into
// the hash before writing b, so the two lanes of HashMD5Like are
// independent of each other.
func fnvLane(b []byte, salt uint32) uint32 {
	h := fnv.New32a()
	var saltBytes [4]byte
	binary.BigEndian.PutUint32(saltBytes[:], salt)
	_, _ = h.Write(saltBytes[:])
	_, _ = h.Write(b)
	return h.Sum32()
}

// xxhashPrime2 is xxhash's own second prime constant, reused here to
// independently re-mix the first lane (the low 32 bits of the finalized
// hash) for the second lane.
const xxhashPrime2 = 0xC2B2AE3D27D4EB4F

// HashXXHashLike is the "xxhash-like" kernel. The first lane is the low 32
// bits of cespare/xxhash's 64-bit digest; the second lane re-finalizes
// that value after multiplying by xxhash's second prime, so the second
// lane is derived by a second, independent multiply of the finalized
// hash.
func HashXXHashLike(b []byte) KeyspaceId {
	sum := xxhash.Sum64(b)
	lane1 := uint32(sum)
	lane2 := xxhashAvalanche(uint64(lane1) * xxhashPrime2)
	var k KeyspaceId
	binary.BigEndian.PutUint32(k[0:4], lane1)
	binary.BigEndian.PutUint32(k[4:8], uint32(lane2))
	return k
}

// xxhashAvalanche is a 64-bit avalanche mix (the shifts and constants of
// MurmurHash3's fmix64 finalizer), applied to re-derive a second,
// independent-looking value from an already-hashed input.
func xxhashAvalanche(h uint64) uint64 {
	h ^= h >> 33
	h *= 0xFF51AFD7ED558CCD
	h ^= h >> 33
	h *= 0xC4CEB9FE1A85EC53
	h ^= h >> 33
	return h
}

// HashMurmur3Like is the "murmur3-like" kernel. The first lane is
// spaolacci/murmur3's standard 32-bit body+finalizer; the second lane is
// murmur_finalize(lane1 * 0x9e3779b9).
func HashMurmur3Like(b []byte) KeyspaceId {
	lane1 := murmur3.Sum32(b)
	lane2 := murmur3Finalize(lane1 * 0x9e3779b9)
	var k KeyspaceId
	binary.BigEndian.PutUint32(k[0:4], lane1)
	binary.BigEndian.PutUint32(k[4:8], lane2)
	return k
}

// murmur3Finalize is murmur3's 32-bit avalanche finalizer.
func murmur3Finalize(h uint32) uint32 {
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}
