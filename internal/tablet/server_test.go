package tablet

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dreamware/vshard/internal/rpcpb"
	"github.com/dreamware/vshard/internal/storage/sqliteadapter"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	adapter := sqliteadapter.New(sqliteadapter.Options{URL: "file::memory:?cache=shared"})
	srv := NewServer("shard-0", adapter)
	if err := srv.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close(context.Background()) })
	return srv
}

func post(t *testing.T, srv *Server, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthzReflectsAdapterState(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestExecuteThenQueryRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	createRec := post(t, srv, rpcpb.QueryRequest{
		Header: rpcpb.Header{Type: rpcpb.Execute, ID: "1"},
		SQL:    "CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)",
	})
	if createRec.Code != http.StatusOK {
		t.Fatalf("create table: status %d body %s", createRec.Code, createRec.Body.String())
	}

	insertRec := post(t, srv, rpcpb.QueryRequest{
		Header: rpcpb.Header{Type: rpcpb.Execute, ID: "2"},
		SQL:    "INSERT INTO widgets (id, name) VALUES (1, 'sprocket')",
	})
	var execResult rpcpb.ExecuteResult
	decodeBody(t, insertRec, &execResult)
	if execResult.Affected != 1 {
		t.Fatalf("expected 1 row affected, got %d", execResult.Affected)
	}

	queryRec := post(t, srv, rpcpb.QueryRequest{
		Header: rpcpb.Header{Type: rpcpb.Query, ID: "3"},
		SQL:    "SELECT id, name FROM widgets WHERE id = 1",
	})
	var queryResult rpcpb.QueryResult
	decodeBody(t, queryRec, &queryResult)
	if queryResult.RowCount != 1 || queryResult.Rows[0]["name"] != "sprocket" {
		t.Fatalf("unexpected query result: %+v", queryResult)
	}
}

func TestTransactionCommitIsVisible(t *testing.T) {
	srv := newTestServer(t)
	post(t, srv, rpcpb.QueryRequest{
		Header: rpcpb.Header{Type: rpcpb.Execute, ID: "1"},
		SQL:    "CREATE TABLE counters (id INTEGER PRIMARY KEY, n INTEGER)",
	})

	beginRec := post(t, srv, rpcpb.BeginRequest{Header: rpcpb.Header{Type: rpcpb.Begin, ID: "2"}})
	var begin rpcpb.BeginResponse
	decodeBody(t, beginRec, &begin)
	if begin.TxID == "" {
		t.Fatal("expected non-empty transaction id")
	}

	post(t, srv, rpcpb.QueryRequest{
		Header: rpcpb.Header{Type: rpcpb.Execute, ID: "3"},
		SQL:    "INSERT INTO counters (id, n) VALUES (1, 10)",
		TxID:   begin.TxID,
	})

	commitRec := post(t, srv, rpcpb.TxRequest{Header: rpcpb.Header{Type: rpcpb.Commit, ID: "4"}, TxID: begin.TxID})
	if commitRec.Code != http.StatusOK {
		t.Fatalf("commit: status %d body %s", commitRec.Code, commitRec.Body.String())
	}

	queryRec := post(t, srv, rpcpb.QueryRequest{
		Header: rpcpb.Header{Type: rpcpb.Query, ID: "5"},
		SQL:    "SELECT n FROM counters WHERE id = 1",
	})
	var result rpcpb.QueryResult
	decodeBody(t, queryRec, &result)
	if result.RowCount != 1 {
		t.Fatalf("expected committed row to be visible, got %+v", result)
	}
}

func TestUnknownTransactionIsAnError(t *testing.T) {
	srv := newTestServer(t)
	rec := post(t, srv, rpcpb.TxRequest{Header: rpcpb.Header{Type: rpcpb.Commit, ID: "1"}, TxID: "nonexistent"})
	var payload rpcpb.ErrorPayload
	decodeBody(t, rec, &payload)
	if payload.Code != "TRANSACTION_ERROR" {
		t.Fatalf("expected TRANSACTION_ERROR, got %q", payload.Code)
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %T: %v (body: %s)", v, err, rec.Body.String())
	}
}
