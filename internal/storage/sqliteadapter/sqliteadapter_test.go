package sqliteadapter

import (
	"context"
	"testing"

	"github.com/dreamware/vshard/internal/storage"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	a := New(Options{URL: "file:" + t.Name() + "?mode=memory&cache=shared"})
	if err := a.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func TestAdapterLifecycle(t *testing.T) {
	a := New(Options{URL: "file:lifecycle?mode=memory&cache=shared"})
	if a.State() != storage.StateCreated {
		t.Fatalf("expected created, got %v", a.State())
	}
	if err := a.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if a.State() != storage.StateReady {
		t.Fatalf("expected ready, got %v", a.State())
	}
	if err := a.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if a.State() != storage.StateClosed {
		t.Fatalf("expected closed, got %v", a.State())
	}
	if err := a.Init(context.Background()); err == nil {
		t.Fatal("expected error re-initializing a closed adapter")
	}
}

func TestAdapterQueryAndExecute(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	if _, err := a.Execute(ctx, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)", nil); err != nil {
		t.Fatal(err)
	}
	res, err := a.Execute(ctx, "INSERT INTO users (id, name) VALUES (?, ?)", []any{1, "ada"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Affected != 1 {
		t.Fatalf("affected = %d", res.Affected)
	}

	qr, err := a.Query(ctx, "SELECT id, name FROM users WHERE id = ?", []any{1})
	if err != nil {
		t.Fatal(err)
	}
	if qr.RowCount != 1 || qr.Rows[0]["name"] != "ada" {
		t.Fatalf("unexpected result: %+v", qr)
	}
}

func TestAdapterPostgresDialectTranslation(t *testing.T) {
	ctx := context.Background()
	a := New(Options{URL: "file:pgdialect?mode=memory&cache=shared", Dialect: DialectPostgres})
	if err := a.Init(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = a.Close(ctx) })

	if _, err := a.Execute(ctx, "CREATE TABLE t (id SERIAL PRIMARY KEY, active BOOLEAN)", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Execute(ctx, "INSERT INTO t (active) VALUES ($1)", []any{true}); err != nil {
		t.Fatal(err)
	}
	qr, err := a.Query(ctx, "SELECT * FROM t WHERE active = TRUE", nil)
	if err != nil {
		t.Fatal(err)
	}
	if qr.RowCount != 1 {
		t.Fatalf("expected 1 row, got %d", qr.RowCount)
	}
}

func TestAdapterTransactionCommitAndRollback(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	if _, err := a.Execute(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY)", nil); err != nil {
		t.Fatal(err)
	}

	err := a.WithTransaction(ctx, storage.TransactionOptions{}, func(ctx context.Context, tx storage.Transaction) error {
		_, err := tx.Execute(ctx, "INSERT INTO t (id) VALUES (?)", []any{1})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	tx, err := a.Begin(ctx, storage.TransactionOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.Execute(ctx, "INSERT INTO t (id) VALUES (?)", []any{2}); err != nil {
		t.Fatal(err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatal(err)
	}

	qr, err := a.Query(ctx, "SELECT id FROM t ORDER BY id", nil)
	if err != nil {
		t.Fatal(err)
	}
	if qr.RowCount != 1 {
		t.Fatalf("expected rollback to discard row 2, got %d rows", qr.RowCount)
	}
}
