// Package pgadapter implements the Postgres-compatible storage.Adapter
// of this package, wired to a real wire-compatible Postgres server via
// github.com/jackc/pgx/v5. When Options.Embedded is set, that server is
// an in-process instance started and stopped by
// github.com/fergusstrange/embedded-postgres rather than a connection to
// an externally managed one — useful for tests and single-binary
// deployments that want Postgres semantics without an operator standing
// up a cluster.
package pgadapter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dreamware/vshard/internal/storage"
	"github.com/dreamware/vshard/internal/vterrors"
)

// Options configures an Adapter: a Postgres-compatible construction
// shape of {host, port, database, user, password, sslMode?, poolSize?},
// plus the embedded-server knobs this adapter adds for standalone
// deployments.
type Options struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	PoolSize int32

	// Embedded, when true, starts a real embedded Postgres server
	// (data directory under EmbeddedDataDir) instead of dialing Host/Port.
	Embedded       bool
	EmbeddedDataDir string

	// DowngradeReadUncommitted silently promotes a ReadUncommitted
	// transaction request to ReadCommitted rather than failing, per the
	// open-question resolution recorded in DESIGN.md: Postgres has no
	// isolation level weaker than read committed.
	DowngradeReadUncommitted bool
}

func (o Options) connString() string {
	sslMode := o.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		o.Host, o.Port, o.Database, o.User, o.Password, sslMode)
}

// Adapter implements storage.Adapter over a Postgres-compatible server.
type Adapter struct {
	opts Options

	mu       sync.RWMutex
	state    storage.State
	pool     *pgxpool.Pool
	embedded *embeddedpostgres.EmbeddedPostgres
	readyCh  chan struct{}
	readyErr error
	once     sync.Once
}

// New constructs an Adapter in the "created" state; call Init before use.
func New(opts Options) *Adapter {
	return &Adapter{opts: opts, state: storage.StateCreated, readyCh: make(chan struct{})}
}

// Init performs the created->initializing->ready transition, starting
// the embedded server first (if configured) and then opening the
// connection pool. Idempotent and safe for concurrent callers, the same
// channel-closed-once coordination as sqliteadapter.Adapter.Init.
func (a *Adapter) Init(ctx context.Context) error {
	a.mu.Lock()
	switch a.state {
	case storage.StateReady:
		a.mu.Unlock()
		return nil
	case storage.StateClosed:
		a.mu.Unlock()
		return vterrors.New(vterrors.CodeAlreadyClosed, "pgadapter: init after close")
	case storage.StateInitializing:
		a.mu.Unlock()
		select {
		case <-a.readyCh:
			if a.readyErr != nil {
				return vterrors.Wrap(vterrors.CodeConnectionError, a.readyErr, "pgadapter: initialization failed")
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	a.state = storage.StateInitializing
	a.mu.Unlock()

	var embedded *embeddedpostgres.EmbeddedPostgres
	if a.opts.Embedded {
		cfg := embeddedpostgres.DefaultConfig().
			Port(uint32(a.opts.Port)).
			Database(a.opts.Database).
			Username(a.opts.User).
			Password(a.opts.Password)
		if a.opts.EmbeddedDataDir != "" {
			cfg = cfg.DataPath(a.opts.EmbeddedDataDir)
		}
		embedded = embeddedpostgres.NewDatabase(cfg)
		if err := embedded.Start(); err != nil {
			a.finishInit(nil, nil, fmt.Errorf("embedded postgres start: %w", err))
			return vterrors.Wrap(vterrors.CodeConnectionError, err, "pgadapter: embedded start failed")
		}
	}

	poolCfg, err := pgxpool.ParseConfig(a.opts.connString())
	if err == nil && a.opts.PoolSize > 0 {
		poolCfg.MaxConns = a.opts.PoolSize
	}
	var pool *pgxpool.Pool
	if err == nil {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
	}
	if err == nil {
		err = pool.Ping(ctx)
	}
	if err != nil {
		if embedded != nil {
			_ = embedded.Stop()
		}
		a.finishInit(nil, nil, err)
		return vterrors.Wrap(vterrors.CodeConnectionError, err, "pgadapter: init failed")
	}

	a.finishInit(pool, embedded, nil)
	return nil
}

func (a *Adapter) finishInit(pool *pgxpool.Pool, embedded *embeddedpostgres.EmbeddedPostgres, err error) {
	a.mu.Lock()
	if err != nil {
		a.readyErr = err
		a.state = storage.StateCreated
	} else {
		a.pool = pool
		a.embedded = embedded
		a.state = storage.StateReady
	}
	a.mu.Unlock()
	a.once.Do(func() { close(a.readyCh) })
}

// State reports the adapter's current lifecycle state.
func (a *Adapter) State() storage.State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *Adapter) requirePool() (*pgxpool.Pool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.state == storage.StateClosed {
		return nil, vterrors.New(vterrors.CodeAlreadyClosed, "pgadapter: adapter is closed")
	}
	if a.state != storage.StateReady {
		return nil, vterrors.New(vterrors.CodeNotReady, "pgadapter: adapter is not ready")
	}
	return a.pool, nil
}

// Query executes sql against the pool and maps the result rows to host
// values via pgx's own wire-type decoding.
func (a *Adapter) Query(ctx context.Context, sql string, params []any) (*storage.QueryResult, error) {
	pool, err := a.requirePool()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := pool.Query(ctx, sql, params...)
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
func (a *Adapter) Execute(ctx context.Context, sql string, params []any) (*storage.ExecuteResult, error) {
	pool, err := a.requirePool()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	tag, err := pool.Exec(ctx, sql, params...)
	if err != nil {
		return nil, classifyError(err)
	}
	return &storage.ExecuteResult{Affected: tag.RowsAffected(), DurationMs: time.Since(start).Milliseconds()}, nil
}

// Batch runs each statement in order within a single round trip via
// pgx's pipeline mode, stopping at the first error.
func (a *Adapter) Batch(ctx context.Context, statements []storage.Statement) (*storage.BatchResult, error) {
	pool, err := a.requirePool()
	if err != nil {
		return nil, err
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, classifyError(err)
	}
	defer conn.Release()

	batch := &pgx.Batch{}
	for _, st := range statements {
		batch.Queue(st.SQL, st.Params...)
	}
	br := conn.SendBatch(ctx, batch)
	defer br.Close()

	out := &storage.BatchResult{}
	for _, st := range statements {
		if isSelect(st.SQL) {
			rows, err := br.Query()
			if err != nil {
				return nil, classifyError(err)
			}
			qr, err := scanRows(rows)
			rows.Close()
			if err != nil {
				return nil, classifyError(err)
			}
			out.Items = append(out.Items, storage.BatchItem{Query: qr})
			continue
		}
		tag, err := br.Exec()
		if err != nil {
			return nil, classifyError(err)
		}
		out.Items = append(out.Items, storage.BatchItem{Execute: &storage.ExecuteResult{Affected: tag.RowsAffected()}})
	}
	return out, nil
}

// Begin starts a transaction at the requested isolation level.
// ReadUncommitted is silently promoted to ReadCommitted when
// Options.DowngradeReadUncommitted is set, since Postgres has no weaker
// level; otherwise an unsupported level is a hard error.
func (a *Adapter) Begin(ctx context.Context, opts storage.TransactionOptions) (storage.Transaction, error) {
	pool, err := a.requirePool()
	if err != nil {
		return nil, err
	}
	isolation := opts.Isolation
	if isolation == storage.ReadUncommitted {
		if !a.opts.DowngradeReadUncommitted {
			return nil, vterrors.New(vterrors.CodeUnsupportedSQL, "pgadapter: read_uncommitted is not supported")
		}
		isolation = storage.ReadCommitted
	}
	pgTx, err := pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   toPgxIsolation(isolation),
		AccessMode: toPgxAccessMode(opts.ReadOnly),
	})
	if err != nil {
		return nil, classifyError(err)
	}
	return &transaction{adapter: a, pgTx: pgTx, id: newTxID(), readOnly: opts.ReadOnly, state: storage.TxOpen}, nil
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

// Close releases the pool and, if this adapter started one, stops the
// embedded server. Idempotent.
func (a *Adapter) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.state == storage.StateClosed {
		a.mu.Unlock()
		return nil
	}
	pool := a.pool
	embedded := a.embedded
	a.state = storage.StateClosed
	a.mu.Unlock()

	if pool != nil {
		pool.Close()
	}
	if embedded != nil {
		return embedded.Stop()
	}
	return nil
}

var txSeq int64
var txSeqMu sync.Mutex

func newTxID() string {
	txSeqMu.Lock()
	txSeq++
	id := txSeq
	txSeqMu.Unlock()
	return fmt.Sprintf("pg-tx-%d", id)
}

func isSelect(sql string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sql)), "SELECT")
}

func toPgxIsolation(level storage.IsolationLevel) pgx.TxIsoLevel {
	switch level {
	case storage.RepeatableRead:
		return pgx.RepeatableRead
	case storage.Serializable:
		return pgx.Serializable
	default:
		return pgx.ReadCommitted
	}
}

func toPgxAccessMode(readOnly bool) pgx.TxAccessMode {
	if readOnly {
		return pgx.ReadOnly
	}
	return pgx.ReadWrite
}

// rowsSource is satisfied by both pgx.Rows (Query) and pgx.BatchResults'
// query results, letting scanRows serve both Query and Batch.
type rowsSource interface {
	FieldDescriptions() []pgconn.FieldDescription
	Next() bool
	Values() ([]any, error)
	Err() error
}

func scanRows(rows rowsSource) (*storage.QueryResult, error) {
	descs := rows.FieldDescriptions()
	fields := make([]storage.Field, len(descs))
	for i, d := range descs {
		fields[i] = storage.Field{Name: d.Name, EngineTypeID: fmt.Sprintf("%d", d.DataTypeOID), PortableType: portableTypeForOID(d.DataTypeOID)}
	}

	var result []storage.Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := storage.Row{}
		for i, d := range descs {
			row[d.Name] = vals[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &storage.QueryResult{Rows: result, RowCount: len(result), Fields: fields}, nil
}

// Postgres builtin OIDs relevant to the portable type mapping below;
// see pg_type.dat upstream for the full table.
const (
	oidBool      = 16
	oidInt8      = 20
	oidInt2      = 21
	oidInt4      = 23
	oidText      = 25
	oidFloat4    = 700
	oidFloat8    = 701
	oidVarchar   = 1043
	oidDate      = 1082
	oidTimestamp = 1114
	oidNumeric   = 1700
	oidBytea     = 17
	oidJSON      = 114
	oidJSONB     = 3802
	oidUUID      = 2950
)

func portableTypeForOID(oid uint32) string {
	switch oid {
	case oidInt2, oidInt4, oidInt8:
		return "integer"
	case oidFloat4, oidFloat8, oidNumeric:
		return "double"
	case oidText, oidVarchar, oidDate, oidTimestamp, oidUUID, oidJSON, oidJSONB:
		return "string"
	case oidBool:
		return "boolean"
	case oidBytea:
		return "bytes"
	default:
		return "string"
	}
}

// classifyError maps a pgx/Postgres error to the wire taxonomy via its
// SQLSTATE, using the shared storage.ClassifyBySQLState table.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		code := storage.ClassifyBySQLState(pgErr.Code)
		return &vterrors.Error{Code: code, Message: pgErr.Message, SQLState: pgErr.Code, Cause: err}
	}
	return vterrors.Wrap(vterrors.CodeConnectionError, err, "pgadapter: "+err.Error())
}
