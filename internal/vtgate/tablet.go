package vtgate

import (
	"context"

	"github.com/dreamware/vshard/internal/storage"
)

// Tablet is the Router's view of one shard's query surface — a stub in
// front of whatever actually executes SQL on that shard (an in-process
// storage.Adapter in tests, an RPC client to a remote tablet server in
// production), so the Router can be driven by either without caring
// which.
type Tablet interface {
	Query(ctx context.Context, sql string, params []any) (*storage.QueryResult, error)
	Execute(ctx context.Context, sql string, params []any) (*storage.ExecuteResult, error)
}

// TabletResolver maps a (keyspace, shard) pair to its Tablet stub; the
// Router owns the resolver but not the set of Tablet stubs themselves.
type TabletResolver interface {
	Tablet(keyspace, shard string) (Tablet, error)
}
