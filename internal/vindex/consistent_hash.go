package vindex

import (
	"encoding/binary"
	"sort"

	"github.com/dreamware/vshard/internal/ksid"
)

// DefaultVirtualNodeFactor is the default number of ring entries placed
// per shard.
const DefaultVirtualNodeFactor = 150

// ringEntry is one virtual node on the consistent-hash ring: a 32-bit
// ring-key and the shard name it routes to.
type ringEntry struct {
	ringKey uint32
	shard   string
}

// ConsistentHashVindex implements the consistent_hash vindex variant:
// initialized from a shard list with a virtual-node factor, it maintains a
// sorted ring of 32-bit ring-keys and routes a keyspace-id to the first
// ring entry at or after its ring-key, wrapping to 0.
type ConsistentHashVindex struct {
	name   string
	kernel ksid.Kernel
	ring   []ringEntry // sorted ascending by ringKey
}

// NewConsistentHashVindex builds the ring for shards, placing
// virtualNodes entries per shard (DefaultVirtualNodeFactor if <= 0). The
// ring-key for virtual node i of shard s is the high 32 bits of the
// keyspace-id kernel returns for s's bytes followed by i as a 4-byte
// big-endian integer — using the xxhash-like kernel by convention.
// ShardFor takes the same high 32 bits of an id as its ring-key.
// Re-initializing from the same shard list in the same order always
// produces the same ring.
func NewConsistentHashVindex(name string, kernel ksid.Kernel, shards []string, virtualNodes int) *ConsistentHashVindex {
	if virtualNodes <= 0 {
		virtualNodes = DefaultVirtualNodeFactor
	}
	ring := make([]ringEntry, 0, len(shards)*virtualNodes)
	for _, shard := range shards {
		for i := 0; i < virtualNodes; i++ {
			key := ringKeyFor(kernel, shard, i)
			ring = append(ring, ringEntry{ringKey: key, shard: shard})
		}
	}
	sort.Slice(ring, func(i, j int) bool {
		if ring[i].ringKey != ring[j].ringKey {
			return ring[i].ringKey < ring[j].ringKey
		}
		return ring[i].shard < ring[j].shard
	})
	return &ConsistentHashVindex{name: name, kernel: kernel, ring: ring}
}

func ringKeyFor(kernel ksid.Kernel, shard string, vnode int) uint32 {
	buf := make([]byte, len(shard)+4)
	copy(buf, shard)
	binary.BigEndian.PutUint32(buf[len(shard):], uint32(vnode))
	return uint32(kernel(buf).Uint64() >> 32)
}

func (c *ConsistentHashVindex) Name() string      { return c.name }
func (c *ConsistentHashVindex) Unique() bool      { return true }
func (c *ConsistentHashVindex) NeedsLookup() bool { return false }

// Map computes v's keyspace-id via the configured kernel.
func (c *ConsistentHashVindex) Map(v any) ([]ksid.KeyspaceId, error) {
	b, err := canonicalize(v)
	if err != nil {
		return nil, err
	}
	return []ksid.KeyspaceId{c.kernel(b)}, nil
}

// ShardFor scans the ring in ascending order for the first entry whose
// ring-key is >= the ring-key of id, wrapping to ring[0] if id's ring-key
// exceeds every entry.
func (c *ConsistentHashVindex) ShardFor(id ksid.KeyspaceId) (string, error) {
	if len(c.ring) == 0 {
		return "", errNoShardFor(c.name, id)
	}
	key := uint32(id.Uint64() >> 32)
	i := sort.Search(len(c.ring), func(i int) bool {
		return c.ring[i].ringKey >= key
	})
	if i == len(c.ring) {
		i = 0
	}
	return c.ring[i].shard, nil
}
