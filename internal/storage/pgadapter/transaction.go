package pgadapter

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dreamware/vshard/internal/storage"
	"github.com/dreamware/vshard/internal/vterrors"
)

// transaction implements storage.Transaction over a pgx.Tx.
type transaction struct {
	adapter  *Adapter
	pgTx     pgx.Tx
	id       string
	readOnly bool

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
		return vterrors.New(vterrors.CodeTransactionError, "pgadapter: transaction is not open")
	}
	return nil
}

func (t *transaction) Query(ctx context.Context, sql string, params []any) (*storage.QueryResult, error) {
	if err := t.requireOpen(); err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := t.pgTx.Query(ctx, sql, params...)
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

func (t *transaction) Execute(ctx context.Context, sql string, params []any) (*storage.ExecuteResult, error) {
	if err := t.requireOpen(); err != nil {
		return nil, err
	}
	start := time.Now()
	tag, err := t.pgTx.Exec(ctx, sql, params...)
	if err != nil {
		return nil, classifyError(err)
	}
	return &storage.ExecuteResult{Affected: tag.RowsAffected(), DurationMs: time.Since(start).Milliseconds()}, nil
}

func (t *transaction) Commit(ctx context.Context) error {
	if err := t.requireOpen(); err != nil {
		return err
	}
	err := t.pgTx.Commit(ctx)
	if err == nil {
		t.mu.Lock()
		t.state = storage.TxCommitted
		t.mu.Unlock()
	}
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
	err := t.pgTx.Rollback(ctx)
	t.mu.Lock()
	t.state = storage.TxRolledBack
	t.mu.Unlock()
	if err != nil {
		return classifyError(err)
	}
	return nil
}
