// Package shardrange parses and compares the hex half-open shard intervals
// that partition a keyspace's shards.
package shardrange

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/dreamware/vshard/internal/ksid"
)

// Range is a half-open interval [Start, End) over keyspace-ids. An empty
// Start means 0; an empty End means 2^64. The textual form is two hex
// strings joined by "-", e.g. "-80", "80-", "40-80", or "-" for the full
// keyspace.
type Range struct {
	Start ksid.KeyspaceId
	End   ksid.KeyspaceId
	// HasEnd is false when this range extends to 2^64 (no finite KeyspaceId
	// represents that bound).
	HasEnd bool
}

// Full is the unsharded keyspace's single shard, "-".
func Full() Range { return Range{} }

// Name renders the range back to its canonical "hex-hex" textual form,
// left-padded to 16 hex digits per side.
func (r Range) Name() string {
	start := ""
	if r.Start != (ksid.KeyspaceId{}) {
		start = hex.EncodeToString(r.Start[:])
	}
	end := ""
	if r.HasEnd {
		end = hex.EncodeToString(r.End[:])
	}
	return start + "-" + end
}

// Contains reports whether id falls within [Start, End).
func (r Range) Contains(id ksid.KeyspaceId) bool {
	if id.Compare(r.Start) < 0 {
		return false
	}
	if r.HasEnd && id.Compare(r.End) >= 0 {
		return false
	}
	return true
}

// Parse parses a shard range from its canonical textual form: two hex
// strings (each up to 16 digits, left-zero-padded) separated by "-". An
// empty left side means 0; an empty right side means 2^64.
func Parse(s string) (Range, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return Range{}, fmt.Errorf("shardrange: %q is not of the form \"start-end\"", s)
	}
	startHex, endHex := parts[0], parts[1]

	start, err := parseHexBound(startHex)
	if err != nil {
		return Range{}, fmt.Errorf("shardrange: bad start in %q: %w", s, err)
	}

	r := Range{Start: start}
	if endHex != "" {
		end, err := parseHexBound(endHex)
		if err != nil {
			return Range{}, fmt.Errorf("shardrange: bad end in %q: %w", s, err)
		}
		r.End = end
		r.HasEnd = true
	}
	return r, nil
}

func parseHexBound(s string) (ksid.KeyspaceId, error) {
	if s == "" {
		return ksid.KeyspaceId{}, nil
	}
	if len(s) > 16 {
		return ksid.KeyspaceId{}, fmt.Errorf("hex bound %q longer than 16 digits", s)
	}
	padded := strings.Repeat("0", 16-len(s)) + s
	b, err := hex.DecodeString(padded)
	if err != nil {
		return ksid.KeyspaceId{}, err
	}
	k, _ := ksid.FromBytes(b)
	return k, nil
}

// Partition validates that ranges partitions [0, 2^64) with no overlaps and
// no gaps. Ranges need not be given in order.
func Partition(ranges []Range) error {
	if len(ranges) == 0 {
		return fmt.Errorf("shardrange: empty shard list")
	}
	sorted := append([]Range(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Compare(sorted[j].Start) < 0
	})

	if sorted[0].Start != (ksid.KeyspaceId{}) {
		return fmt.Errorf("shardrange: gap before first shard %s", sorted[0].Name())
	}
	for i := 0; i < len(sorted)-1; i++ {
		cur, next := sorted[i], sorted[i+1]
		if !cur.HasEnd {
			return fmt.Errorf("shardrange: shard %s is open-ended but is not last", cur.Name())
		}
		switch cur.End.Compare(next.Start) {
		case 0:
			// contiguous, fine
		case -1:
			return fmt.Errorf("shardrange: gap between %s and %s", cur.Name(), next.Name())
		default:
			return fmt.Errorf("shardrange: overlap between %s and %s", cur.Name(), next.Name())
		}
	}
	if sorted[len(sorted)-1].HasEnd {
		return fmt.Errorf("shardrange: gap after last shard %s", sorted[len(sorted)-1].Name())
	}
	return nil
}

// RouteToShard finds the unique range in ranges containing id, via binary
// search on a pre-sorted copy. Fails with "no shard for id" if none
// matches, which indicates a VSchema invariant violation.
func RouteToShard(ranges []Range, id ksid.KeyspaceId) (Range, error) {
	sorted := append([]Range(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Compare(sorted[j].Start) < 0
	})
	n := sort.Search(len(sorted), func(i int) bool {
		return sorted[i].Start.Compare(id) > 0
	})
	if n == 0 {
		return Range{}, fmt.Errorf("shardrange: no shard for id %x", id[:])
	}
	candidate := sorted[n-1]
	if candidate.Contains(id) {
		return candidate, nil
	}
	return Range{}, fmt.Errorf("shardrange: no shard for id %x", id[:])
}
