// Package storage defines the abstract storage-adapter interfaces and shared
// result/row types for a tablet's data persistence layer, enabling pluggable
// SQL backends behind a consistent query/execute/transaction API.
//
// # Overview
//
// storage is the foundation of a tablet's data persistence, providing a
// single abstraction over whichever SQL engine actually backs a shard. It
// defines the Adapter interface that every backend must satisfy, plus the
// Row/QueryResult/ExecuteResult/BatchResult types the Router and the wire
// protocol exchange, so callers never need to know which engine is behind a
// given shard.
//
// # Architecture
//
// The package follows a layered design:
//
//	┌─────────────────────────────────────┐
//	│           tablet.Server              │
//	│      (RPC handlers, one per shard)   │
//	└─────────────────────────────────────┘
//	                 │
//	                 ▼
//	┌─────────────────────────────────────┐
//	│           storage.Adapter            │
//	│  Init / State / Query / Execute /    │
//	│  Batch / Begin / WithTransaction /    │
//	│  Close                               │
//	└─────────────────────────────────────┘
//	                 │
//	    ┌────────────┴────────────┐
//	    ▼                         ▼
//	┌────────────────┐    ┌──────────────────┐
//	│ sqliteadapter   │    │ pgadapter        │
//	│ modernc.org/    │    │ jackc/pgx/v5,    │
//	│ sqlite          │    │ embedded-postgres│
//	└────────────────┘    └──────────────────┘
//
// # Core Interface
//
// Adapter is the uniform contract both backends implement:
//   - Init(ctx) - idempotent created->initializing->ready transition
//   - State() - current lifecycle state, for health reporting
//   - Query(ctx, sql, params) - run a query, get back a QueryResult
//   - Execute(ctx, sql, params) - run a DML/DDL statement
//   - Batch(ctx, statements) - run several statements, one BatchResult
//   - Begin(ctx, opts) - open a Transaction handle
//   - WithTransaction(ctx, opts, fn) - scoped transaction with guaranteed
//     commit-on-success / rollback-on-error, no manual commit/rollback inside
//     fn
//   - Close(ctx) - roll back any open transactions and release the engine
//
// Transaction narrows the same Query/Execute surface to one open
// transaction, plus Commit/Rollback and its own TxState.
//
// # Implementations
//
// sqliteadapter: a single modernc.org/sqlite engine (pure Go, no cgo) behind
// the Adapter contract, serialized through one *sql.DB with MaxOpenConns(1)
// since SQLite allows only one writer at a time. Accepts an optional
// Postgres-compatible SQL dialect via a translation layer
// (sqliteadapter/dialect) and parameter rewriter
// (sqliteadapter/paramrewrite), so callers that speak Postgres-flavored SQL
// against a shard backed by SQLite don't need a second code path.
//
// pgadapter: wired to a real Postgres server through jackc/pgx/v5's
// connection pool. When Options.Embedded is set, that server is an
// in-process instance managed by fergusstrange/embedded-postgres instead of
// a connection to an externally run cluster - useful for tests and
// single-binary deployments that want genuine Postgres semantics without an
// operator standing up a server.
//
// # Concurrency and Thread Safety
//
// Both implementations are safe for concurrent use by multiple goroutines:
//
// Locking strategy:
//   - sqliteadapter serializes writers through the database/sql connection
//     pool itself (MaxOpenConns(1)); reads and writes share the same
//     single-connection queue
//   - pgadapter delegates concurrency control to pgxpool, which hands out
//     pooled connections to concurrent callers
//   - Adapter.Init is safe to call concurrently; all callers observe the
//     same created->initializing->ready outcome exactly once
//
// Transaction isolation:
//   - pgadapter passes IsolationLevel to Postgres; a ReadUncommitted
//     request is promoted to ReadCommitted when its
//     DowngradeReadUncommitted option is set and rejected otherwise
//   - sqliteadapter accepts IsolationLevel but does not apply it
//
// # Error Handling
//
// Both adapters normalize engine-specific errors into vterrors.Code values
// (pgadapter via ClassifyBySQLState on the SQLSTATE, sqliteadapter by
// matching the SQLite error text), so the Router and RPC layer never need
// to branch on which backend produced an error. ClassifyBySQLState's rules:
//
//   - CodeConstraintViolation - unique/foreign-key/check constraint failed
//     (SQLSTATE class 23)
//   - CodeSyntaxError - malformed SQL (SQLSTATE 42601)
//   - CodeQueryError - other query-planning/semantic errors (SQLSTATE class
//     42), and the default for unrecognized codes
//   - CodeTypeError - a value doesn't fit its column's type (SQLSTATE class
//     22)
//
// # Usage
//
//	adapter := sqliteadapter.New(sqliteadapter.Options{URL: "file:shard.db"})
//	if err := adapter.Init(ctx); err != nil {
//		return err
//	}
//	defer adapter.Close(ctx)
//
//	result, err := adapter.Query(ctx, "SELECT id, name FROM users WHERE id = ?", []any{7})
//	if err != nil {
//		return err
//	}
//	for _, row := range result.Rows {
//		fmt.Println(row["name"])
//	}
//
//	err = adapter.WithTransaction(ctx, storage.TransactionOptions{}, func(ctx context.Context, tx storage.Transaction) error {
//		if _, err := tx.Execute(ctx, "UPDATE accounts SET balance = balance - ? WHERE id = ?", []any{100, 1}); err != nil {
//			return err
//		}
//		_, err := tx.Execute(ctx, "UPDATE accounts SET balance = balance + ? WHERE id = ?", []any{100, 2})
//		return err
//	})
//
// # See Also
//
// Related packages:
//   - internal/tablet: hosts one Adapter per shard behind an RPC server
//   - internal/vtgate: routes and scatters queries across many shards'
//     Adapters
//   - internal/vterrors: the wire error codes adapters classify into
package storage
