package vtgateserver

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/dreamware/vshard/internal/vindex"
	"github.com/dreamware/vshard/internal/vtgate"
	"github.com/dreamware/vshard/internal/vterrors"
)

// StaticResolver is a vtgate.TabletResolver backed by a fixed
// (keyspace, shard) -> base URL address book, the RPC-client
// counterpart of internal/tablet's in-process wiring — grounded on
// internal/cluster's NodeInfo-keyed-by-id registry, generalized here to
// a two-part key since a tablet is identified by (keyspace, shard), not
// a single id.
type StaticResolver struct {
	httpClient *http.Client

	mu      sync.RWMutex
	clients map[string]*TabletClient
}

// NewStaticResolver builds a resolver over addresses, a map of
// "keyspace/shard" to the tablet's base URL (e.g. "http://host:9000").
func NewStaticResolver(addresses map[string]string, httpClient *http.Client) *StaticResolver {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	r := &StaticResolver{httpClient: httpClient, clients: map[string]*TabletClient{}}
	for key, addr := range addresses {
		r.clients[key] = NewTabletClient(addr, httpClient)
	}
	return r
}

func resolverKey(keyspace, shard string) string { return keyspace + "/" + shard }

// Tablet implements vtgate.TabletResolver.
func (r *StaticResolver) Tablet(keyspace, shard string) (vtgate.Tablet, error) {
	c, err := r.Client(keyspace, shard)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Client returns the concrete TabletClient for (keyspace, shard), for
// callers (Server's transaction paths) that need the transaction-scoped
// methods vtgate.Tablet doesn't expose.
func (r *StaticResolver) Client(keyspace, shard string) (*TabletClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[resolverKey(keyspace, shard)]
	if !ok {
		return nil, vterrors.Newf(vterrors.CodeShardUnavailable, "vtgateserver: no tablet address for %s/%s", keyspace, shard)
	}
	return c, nil
}

// All returns every registered client, for fan-out health/status checks.
func (r *StaticResolver) All() map[string]*TabletClient {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*TabletClient, len(r.clients))
	for k, v := range r.clients {
		out[k] = v
	}
	return out
}

// memoryLookupTables adapts a plain map of vindex.LookupTable instances
// into vtgate.LookupTableProvider, for deployments whose lookup vindexes
// are backed by internal/storage.MemoryLookupTable rather than a real
// adapter-backed table.
type memoryLookupTables struct {
	tables map[string]vindex.LookupTable
}

// NewMemoryLookupTableProvider wraps a fixed name->table map.
func NewMemoryLookupTableProvider(tables map[string]vindex.LookupTable) vtgate.LookupTableProvider {
	return &memoryLookupTables{tables: tables}
}

func (m *memoryLookupTables) LookupTable(name string) (vindex.LookupTable, error) {
	t, ok := m.tables[name]
	if !ok {
		return nil, fmt.Errorf("vtgateserver: no lookup table configured for %q", name)
	}
	return t, nil
}
