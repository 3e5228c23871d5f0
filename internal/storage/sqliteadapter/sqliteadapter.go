// Package sqliteadapter implements the SQLite-compatible storage.Adapter
// of this package: a single modernc.org/sqlite engine behind the same
// query/execute/transaction contract pgadapter exposes for Postgres,
// with an optional Postgres→SQLite Dialect Translator and Param
// Rewriter for callers that speak Postgres-flavored SQL.
package sqliteadapter

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/dreamware/vshard/internal/storage"
	"github.com/dreamware/vshard/internal/storage/sqliteadapter/dialect"
	"github.com/dreamware/vshard/internal/storage/sqliteadapter/paramrewrite"
	"github.com/dreamware/vshard/internal/vterrors"
)

// SQLDialect selects whether incoming SQL is assumed to already be
// SQLite-native or needs translation from Postgres first.
type SQLDialect string

const (
	DialectSQLite   SQLDialect = "sqlite"
	DialectPostgres SQLDialect = "postgres"
)

// TransactionMode is one of the SQLite-specific BEGIN modes.
type TransactionMode string

const (
	Deferred  TransactionMode = "deferred"
	Immediate TransactionMode = "immediate"
	Exclusive TransactionMode = "exclusive"
)

// Options configures an Adapter: a SQLite-compatible construction shape
// of {url, authToken?, syncUrl?, dialect? ∈ {sqlite, postgres}}.
type Options struct {
	URL     string
	// AuthToken and SyncURL are accepted for wire compatibility with
	// libsql-style remote/replica SQLite deployments; the embedded
	// modernc.org/sqlite engine this adapter wraps ignores them.
	AuthToken string
	SyncURL   string
	Dialect   SQLDialect

	// StrictRegex is forwarded to the Dialect Translator.
	StrictRegex bool
}

// Adapter implements storage.Adapter over modernc.org/sqlite.
type Adapter struct {
	opts Options

	mu       sync.RWMutex
	state    storage.State
	db       *sql.DB
	readyCh  chan struct{}
	readyErr error
	once     sync.Once

	txMu sync.Mutex
	txs  map[string]*transaction
}

// New constructs an Adapter in the "created" state; call Init before use.
func New(opts Options) *Adapter {
	if opts.Dialect == "" {
		opts.Dialect = DialectSQLite
	}
	return &Adapter{opts: opts, state: storage.StateCreated, readyCh: make(chan struct{}), txs: map[string]*transaction{}}
}

// Init performs the created->initializing->ready transition
// idempotently. Concurrent callers all observe the same outcome, via a
// channel closed exactly once.
func (a *Adapter) Init(ctx context.Context) error {
	a.mu.Lock()
	switch a.state {
	case storage.StateReady:
		a.mu.Unlock()
		return nil
	case storage.StateClosed:
		a.mu.Unlock()
		return vterrors.New(vterrors.CodeAlreadyClosed, "sqliteadapter: init after close")
	case storage.StateInitializing:
		a.mu.Unlock()
		select {
		case <-a.readyCh:
			if a.readyErr != nil {
				return vterrors.Wrap(vterrors.CodeConnectionError, a.readyErr, "sqliteadapter: initialization failed")
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	a.state = storage.StateInitializing
	a.mu.Unlock()

	db, err := sql.Open("sqlite", a.opts.URL)
	if err == nil {
		db.SetMaxOpenConns(1) // single-writer serialization
		err = db.PingContext(ctx)
	}

	a.mu.Lock()
	if err != nil {
		a.readyErr = err
		a.state = storage.StateCreated
	} else {
		a.db = db
		a.state = storage.StateReady
	}
	a.mu.Unlock()
	a.once.Do(func() { close(a.readyCh) })

	if err != nil {
		return vterrors.Wrap(vterrors.CodeConnectionError, err, "sqliteadapter: init failed")
	}
	return nil
}

// State reports the adapter's current lifecycle state.
func (a *Adapter) State() storage.State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *Adapter) requireReady() (*sql.DB, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.state == storage.StateClosed {
		return nil, vterrors.New(vterrors.CodeAlreadyClosed, "sqliteadapter: adapter is closed")
	}
	if a.state != storage.StateReady {
		return nil, vterrors.New(vterrors.CodeNotReady, "sqliteadapter: adapter is not ready")
	}
	return a.db, nil
}

// prepare runs the adapter's configured dialect translation and param
// rewrite over sql/params before execution.
func (a *Adapter) prepare(rawSQL string, params []any) (string, []any, error) {
	translated := rawSQL
	if a.opts.Dialect == DialectPostgres {
		t, err := dialect.Translate(rawSQL, dialect.Options{StrictRegex: a.opts.StrictRegex})
		if err != nil {
			return "", nil, err
		}
		translated = t
	}
	if strings.Contains(translated, "$") {
		rewritten, outParams, err := paramrewrite.Rewrite(translated, any(params))
		if err != nil {
			return "", nil, err
		}
		return rewritten, outParams, nil
	}
	return translated, params, nil
}

// Query executes sql (translated/rewritten per the adapter's configured
// dialect) and maps the result to host values.
func (a *Adapter) Query(ctx context.Context, rawSQL string, params []any) (*storage.QueryResult, error) {
	db, err := a.requireReady()
	if err != nil {
		return nil, err
	}
	finalSQL, finalParams, err := a.prepare(rawSQL, params)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := db.QueryContext(ctx, finalSQL, finalParams...)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()
	result, err := scanRows(rows)
	if err != nil {
		return nil, classifyError(err)
	}
	result.DurationMs = time.Since(start).Milliseconds()
	return result, nil
}

// Execute runs a non-row-returning statement.
func (a *Adapter) Execute(ctx context.Context, rawSQL string, params []any) (*storage.ExecuteResult, error) {
	db, err := a.requireReady()
	if err != nil {
		return nil, err
	}
	finalSQL, finalParams, err := a.prepare(rawSQL, params)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := db.ExecContext(ctx, finalSQL, finalParams...)
	if err != nil {
		return nil, classifyError(err)
	}
	affected, _ := res.RowsAffected()
	out := &storage.ExecuteResult{Affected: affected, DurationMs: time.Since(start).Milliseconds()}
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		out.LastInsertID = &id
	}
	return out, nil
}

// Batch runs each statement in order, stopping at the first error.
func (a *Adapter) Batch(ctx context.Context, statements []storage.Statement) (*storage.BatchResult, error) {
	out := &storage.BatchResult{}
	for _, st := range statements {
		upper := strings.ToUpper(strings.TrimSpace(st.SQL))
		if strings.HasPrefix(upper, "SELECT") {
			qr, err := a.Query(ctx, st.SQL, st.Params)
			if err != nil {
				return nil, err
			}
			out.Items = append(out.Items, storage.BatchItem{Query: qr})
			continue
		}
		er, err := a.Execute(ctx, st.SQL, st.Params)
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, storage.BatchItem{Execute: er})
	}
	return out, nil
}

// Begin starts a transaction with database/sql's default BeginTx, which
// opens SQLite's default deferred transaction. The TransactionMode
// constants above cannot be selected through TransactionOptions, so an
// immediate or exclusive BEGIN is not available here.
// TransactionOptions.Isolation is not meaningful to SQLite's own locking
// model and is accepted for wire compatibility only.
func (a *Adapter) Begin(ctx context.Context, opts storage.TransactionOptions) (storage.Transaction, error) {
	db, err := a.requireReady()
	if err != nil {
		return nil, err
	}
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classifyError(err)
	}
	tx := &transaction{
		adapter:  a,
		id:       newTxID(),
		sqlTx:    sqlTx,
		readOnly: opts.ReadOnly,
		state:    storage.TxOpen,
	}
	if opts.TimeoutMs > 0 {
		tx.deadline = time.Now().Add(time.Duration(opts.TimeoutMs) * time.Millisecond)
	}
	a.txMu.Lock()
	a.txs[tx.id] = tx
	a.txMu.Unlock()
	return tx, nil
}

// WithTransaction scopes a transaction with guaranteed release.
func (a *Adapter) WithTransaction(ctx context.Context, opts storage.TransactionOptions, fn func(ctx context.Context, tx storage.Transaction) error) error {
	tx, err := a.Begin(ctx, opts)
	if err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// Close rolls back all open transactions and releases the engine.
// Idempotent.
func (a *Adapter) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.state == storage.StateClosed {
		a.mu.Unlock()
		return nil
	}
	db := a.db
	a.state = storage.StateClosed
	a.mu.Unlock()

	// Rollback calls forgetTx, which takes txMu, so roll back outside it.
	a.txMu.Lock()
	open := make([]*transaction, 0, len(a.txs))
	for _, tx := range a.txs {
		open = append(open, tx)
	}
	a.txs = map[string]*transaction{}
	a.txMu.Unlock()
	for _, tx := range open {
		if tx.State() == storage.TxOpen {
			_ = tx.Rollback(ctx)
		}
	}

	if db != nil {
		return db.Close()
	}
	return nil
}

func (a *Adapter) forgetTx(id string) {
	a.txMu.Lock()
	delete(a.txs, id)
	a.txMu.Unlock()
}

var txSeq int64
var txSeqMu sync.Mutex

func newTxID() string {
	txSeqMu.Lock()
	txSeq++
	id := txSeq
	txSeqMu.Unlock()
	return "sqlite-tx-" + strconv.FormatInt(id, 10)
}

func scanRows(rows *sql.Rows) (*storage.QueryResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	fields := make([]storage.Field, len(cols))
	for i, ct := range types {
		fields[i] = storage.Field{Name: cols[i], EngineTypeID: ct.DatabaseTypeName(), PortableType: portableTypeFor(ct.DatabaseTypeName())}
	}

	var result []storage.Row
	for rows.Next() {
		ptrs := make([]any, len(cols))
		vals := make([]any, len(cols))
		for i := range ptrs {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := storage.Row{}
		for i, col := range cols {
			row[col] = vals[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &storage.QueryResult{Rows: result, RowCount: len(result), Fields: fields}, nil
}

func portableTypeFor(engineType string) string {
	switch strings.ToUpper(engineType) {
	case "INTEGER", "INT":
		return "integer"
	case "REAL", "FLOAT", "DOUBLE":
		return "double"
	case "TEXT", "VARCHAR", "CHAR":
		return "string"
	case "BLOB":
		return "bytes"
	case "BOOLEAN", "BOOL":
		return "boolean"
	default:
		return "string"
	}
}

// classifyError maps a SQLite driver error to the wire taxonomy:
// UNIQUE/NOT_NULL/CHECK/FOREIGN_KEY -> CONSTRAINT_VIOLATION, syntactic
// -> SYNTAX_ERROR, else QUERY_ERROR.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToUpper(err.Error())
	code := vterrors.CodeQueryError
	switch {
	case strings.Contains(msg, "UNIQUE CONSTRAINT"),
		strings.Contains(msg, "NOT NULL CONSTRAINT"),
		strings.Contains(msg, "CHECK CONSTRAINT"),
		strings.Contains(msg, "FOREIGN KEY CONSTRAINT"):
		code = vterrors.CodeConstraintViolation
	case strings.Contains(msg, "SYNTAX ERROR"):
		code = vterrors.CodeSyntaxError
	}
	return vterrors.Wrap(code, err, fmt.Sprintf("sqliteadapter: %v", err))
}
