package vtgate

import (
	"sync"

	"github.com/dreamware/vshard/internal/ksid"
	"github.com/dreamware/vshard/internal/vindex"
	"github.com/dreamware/vshard/internal/vschema"
	"github.com/dreamware/vshard/internal/vterrors"
)

// LookupTableProvider resolves the named secondary table a lookup*
// vindex binds to, as named in its vindex params `{table: "..."}`. A
// deployment wires this to whatever backs its lookup tables —
// internal/storage.MemoryLookupTable for tests and non-distributed
// setups, or a real adapter-backed implementation.
type LookupTableProvider interface {
	LookupTable(name string) (vindex.LookupTable, error)
}

// vindexCache is the Router's (keyspace, name) -> Vindex cache:
// read-mostly and safe under concurrent reads; a write happens when a
// vindex is first built and takes the write lock, excluding readers.
type vindexCache struct {
	mu     sync.RWMutex
	doc    *vschema.Document
	tables LookupTableProvider
	built  map[string]vindex.Vindex
}

// NewVindexCache builds the cache's backing keyspace configuration. It
// constructs vindex instances lazily on first use and memoizes them.
func NewVindexCache(doc *vschema.Document, tables LookupTableProvider) VindexCache {
	return &vindexCache{doc: doc, tables: tables, built: map[string]vindex.Vindex{}}
}

func cacheKey(keyspace, name string) string { return keyspace + "." + name }

// Vindex implements VindexCache.
func (c *vindexCache) Vindex(keyspace, name string) (vindex.Vindex, error) {
	key := cacheKey(keyspace, name)

	c.mu.RLock()
	if v, ok := c.built[key]; ok {
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.built[key]; ok {
		return v, nil
	}

	ks, ok := c.doc.Keyspaces[keyspace]
	if !ok {
		return nil, vterrors.Newf(vterrors.CodeNoKeyspace, "vtgate: no keyspace %q", keyspace)
	}
	def, ok := ks.Vindexes[name]
	if !ok {
		return nil, vterrors.Newf(vterrors.CodeNoKeyspace, "vtgate: keyspace %q has no vindex %q", keyspace, name)
	}
	v, err := c.build(name, def, ks)
	if err != nil {
		return nil, err
	}
	c.built[key] = v
	return v, nil
}

// build constructs a live Vindex from its VSchema definition, reading
// each variant's own params shape from def.Params.
func (c *vindexCache) build(name string, def vschema.VindexDef, ks vschema.Keyspace) (vindex.Vindex, error) {
	switch def.Type {
	case "hash", "binary_md5":
		return vindex.NewHashVindex(name, kernelFor(def.Params, ksid.HashMD5Like)), nil
	case "unicode_loose_md5":
		return vindex.NewHashVindex(name, kernelFor(def.Params, ksid.HashMD5Like)), nil
	case "consistent_hash":
		vn := 0
		if f, ok := paramFloat(def.Params, "virtual_nodes"); ok {
			vn = int(f)
		}
		return vindex.NewConsistentHashVindex(name, kernelFor(def.Params, ksid.HashXXHashLike), ks.Shards, vn), nil
	case "range", "numeric":
		intervals, err := rangeIntervals(def.Params)
		if err != nil {
			return nil, err
		}
		return vindex.NewRangeVindex(name, intervals)
	case "lookup", "lookup_hash", "lookup_unique":
		if c.tables == nil {
			return nil, vterrors.Newf(vterrors.CodeNoKeyspace, "vtgate: vindex %q is a lookup type but no LookupTableProvider is configured", name)
		}
		tableName, _ := def.Params["table"].(string)
		if tableName == "" {
			tableName = name
		}
		table, err := c.tables.LookupTable(tableName)
		if err != nil {
			return nil, err
		}
		unique := def.Type == "lookup_unique"
		return vindex.NewLookupVindex(name, unique, table), nil
	default:
		return nil, vterrors.Newf(vterrors.CodeNoKeyspace, "vtgate: unknown vindex type %q", def.Type)
	}
}

func kernelFor(params map[string]any, fallback ksid.Kernel) ksid.Kernel {
	name, _ := params["kernel"].(string)
	switch name {
	case "xxhash":
		return ksid.HashXXHashLike
	case "murmur3":
		return ksid.HashMurmur3Like
	case "md5":
		return ksid.HashMD5Like
	default:
		return fallback
	}
}

func paramFloat(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// rangeIntervals decodes the range/numeric vindex's params shape
// {"intervals": {shard: [start, end]}}.
func rangeIntervals(params map[string]any) (map[string][2]uint64, error) {
	raw, ok := params["intervals"].(map[string]any)
	if !ok {
		return nil, vterrors.New(vterrors.CodeNoKeyspace, "vtgate: range vindex requires an \"intervals\" param")
	}
	out := make(map[string][2]uint64, len(raw))
	for shard, v := range raw {
		pair, ok := v.([]any)
		if !ok || len(pair) != 2 {
			return nil, vterrors.Newf(vterrors.CodeNoKeyspace, "vtgate: range vindex interval for shard %q must be a [start, end] pair", shard)
		}
		start, ok1 := toUint64Param(pair[0])
		end, ok2 := toUint64Param(pair[1])
		if !ok1 || !ok2 {
			return nil, vterrors.Newf(vterrors.CodeNoKeyspace, "vtgate: range vindex interval for shard %q must be numeric", shard)
		}
		out[shard] = [2]uint64{start, end}
	}
	return out, nil
}

func toUint64Param(v any) (uint64, bool) {
	switch n := v.(type) {
	case float64:
		return uint64(n), true
	case int:
		return uint64(n), true
	case int64:
		return uint64(n), true
	default:
		return 0, false
	}
}
