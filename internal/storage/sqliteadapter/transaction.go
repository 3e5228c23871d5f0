package sqliteadapter

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/dreamware/vshard/internal/storage"
	"github.com/dreamware/vshard/internal/vterrors"
)

// transaction implements storage.Transaction over a database/sql.Tx.
type transaction struct {
	adapter  *Adapter
	id       string
	sqlTx    *sql.Tx
	readOnly bool
	deadline time.Time

	mu    sync.Mutex
	state storage.TxState
}

func (t *transaction) ID() string { return t.id }

func (t *transaction) State() storage.TxState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *transaction) ReadOnly() bool { return t.readOnly }

func (t *transaction) requireOpen() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != storage.TxOpen {
		return vterrors.New(vterrors.CodeTransactionError, "sqliteadapter: transaction is not open")
	}
	if !t.deadline.IsZero() && time.Now().After(t.deadline) {
		return vterrors.New(vterrors.CodeTimeout, "sqliteadapter: transaction deadline exceeded")
	}
	return nil
}

func (t *transaction) prepare(rawSQL string, params []any) (string, []any, error) {
	return t.adapter.prepare(rawSQL, params)
}

func (t *transaction) Query(ctx context.Context, rawSQL string, params []any) (*storage.QueryResult, error) {
	if err := t.requireOpen(); err != nil {
		return nil, err
	}
	finalSQL, finalParams, err := t.prepare(rawSQL, params)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := t.sqlTx.QueryContext(ctx, finalSQL, finalParams...)
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

func (t *transaction) Execute(ctx context.Context, rawSQL string, params []any) (*storage.ExecuteResult, error) {
	if err := t.requireOpen(); err != nil {
		return nil, err
	}
	finalSQL, finalParams, err := t.prepare(rawSQL, params)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := t.sqlTx.ExecContext(ctx, finalSQL, finalParams...)
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

func (t *transaction) Commit(ctx context.Context) error {
	if err := t.requireOpen(); err != nil {
		return err
	}
	err := t.sqlTx.Commit()
	if err == nil {
		t.mu.Lock()
		t.state = storage.TxCommitted
		t.mu.Unlock()
	}
	t.adapter.forgetTx(t.id)
	if err != nil {
		return classifyError(err)
	}
	return nil
}

func (t *transaction) Rollback(ctx context.Context) error {
	t.mu.Lock()
	if t.state != storage.TxOpen {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()
	err := t.sqlTx.Rollback()
	t.mu.Lock()
	t.state = storage.TxRolledBack
	t.mu.Unlock()
	t.adapter.forgetTx(t.id)
	if err != nil {
		return classifyError(err)
	}
	return nil
}
