package vtgateserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dreamware/vshard/internal/rpcpb"
	"github.com/dreamware/vshard/internal/storage/sqliteadapter"
	"github.com/dreamware/vshard/internal/tablet"
	"github.com/dreamware/vshard/internal/vschema"
	"github.com/dreamware/vshard/internal/vtgate"
)

// newTestGate wires one unsharded keyspace ("widgets", single shard "-")
// backed by a real tablet.Server running in an httptest.Server, the
// round-trip counterpart of internal/tablet's in-process tests: here the
// RPC hop is real, over loopback HTTP.
func newTestGate(t *testing.T) (*Server, func()) {
	t.Helper()
	adapter := sqliteadapter.New(sqliteadapter.Options{URL: "file::memory:?cache=shared"})
	tabletSrv := tablet.NewServer("-", adapter)
	if err := tabletSrv.Init(context.Background()); err != nil {
		t.Fatalf("init tablet: %v", err)
	}
	httpSrv := httptest.NewServer(tabletSrv.Handler())

	doc := &vschema.Document{Keyspaces: map[string]vschema.Keyspace{
		"widgets": {
			Sharded: false,
			Shards:  []string{"-"},
			Tables:  map[string]vschema.TableDef{},
		},
	}}

	resolver := NewStaticResolver(map[string]string{"widgets/-": httpSrv.URL}, http.DefaultClient)
	router := vtgate.NewRouter(doc, resolver, NewMemoryLookupTableProvider(nil))
	gate := NewServer(doc, router, resolver)

	cleanup := func() {
		httpSrv.Close()
		_ = tabletSrv.Close(context.Background())
	}
	return gate, cleanup
}

func postGate(t *testing.T, gate *Server, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	gate.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeGateBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %T: %v (body: %s)", v, err, rec.Body.String())
	}
}

func TestGateExecuteThenQueryRoundTrip(t *testing.T) {
	gate, cleanup := newTestGate(t)
	defer cleanup()

	createRec := postGate(t, gate, rpcpb.QueryRequest{
		Header:   rpcpb.Header{Type: rpcpb.Execute, ID: "1"},
		Keyspace: "widgets",
		SQL:      "CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)",
	})
	if createRec.Code != http.StatusOK {
		t.Fatalf("create table: status %d body %s", createRec.Code, createRec.Body.String())
	}

	insertRec := postGate(t, gate, rpcpb.QueryRequest{
		Header:   rpcpb.Header{Type: rpcpb.Execute, ID: "2"},
		Keyspace: "widgets",
		SQL:      "INSERT INTO widgets (id, name) VALUES (1, 'sprocket')",
	})
	var execResult rpcpb.ExecuteResult
	decodeGateBody(t, insertRec, &execResult)
	if execResult.Affected != 1 {
		t.Fatalf("expected 1 row affected, got %d", execResult.Affected)
	}

	queryRec := postGate(t, gate, rpcpb.QueryRequest{
		Header:   rpcpb.Header{Type: rpcpb.Query, ID: "3"},
		Keyspace: "widgets",
		SQL:      "SELECT id, name FROM widgets WHERE id = 1",
	})
	var queryResult rpcpb.QueryResult
	decodeGateBody(t, queryRec, &queryResult)
	if queryResult.RowCount != 1 || queryResult.Rows[0]["name"] != "sprocket" {
		t.Fatalf("unexpected query result: %+v", queryResult)
	}
}

func TestGateTransactionCommitIsVisible(t *testing.T) {
	gate, cleanup := newTestGate(t)
	defer cleanup()

	postGate(t, gate, rpcpb.QueryRequest{
		Header:   rpcpb.Header{Type: rpcpb.Execute, ID: "1"},
		Keyspace: "widgets",
		SQL:      "CREATE TABLE counters (id INTEGER PRIMARY KEY, n INTEGER)",
	})

	beginRec := postGate(t, gate, rpcpb.BeginRequest{
		Header:   rpcpb.Header{Type: rpcpb.Begin, ID: "2"},
		Keyspace: "widgets",
	})
	var begin rpcpb.BeginResponse
	decodeGateBody(t, beginRec, &begin)
	if begin.TxID == "" {
		t.Fatal("expected non-empty transaction id")
	}
	if len(begin.Shards) != 1 || begin.Shards[0] != "-" {
		t.Fatalf("expected begin to resolve to shard \"-\", got %+v", begin.Shards)
	}

	postGate(t, gate, rpcpb.QueryRequest{
		Header: rpcpb.Header{Type: rpcpb.Execute, ID: "3"},
		SQL:    "INSERT INTO counters (id, n) VALUES (1, 10)",
		TxID:   begin.TxID,
	})

	commitRec := postGate(t, gate, rpcpb.TxRequest{Header: rpcpb.Header{Type: rpcpb.Commit, ID: "4"}, TxID: begin.TxID})
	if commitRec.Code != http.StatusOK {
		t.Fatalf("commit: status %d body %s", commitRec.Code, commitRec.Body.String())
	}

	queryRec := postGate(t, gate, rpcpb.QueryRequest{
		Header:   rpcpb.Header{Type: rpcpb.Query, ID: "5"},
		Keyspace: "widgets",
		SQL:      "SELECT n FROM counters WHERE id = 1",
	})
	var result rpcpb.QueryResult
	decodeGateBody(t, queryRec, &result)
	if result.RowCount != 1 {
		t.Fatalf("expected committed row to be visible, got %+v", result)
	}
}

func TestGateBeginOnUnknownKeyspaceFails(t *testing.T) {
	gate, cleanup := newTestGate(t)
	defer cleanup()

	rec := postGate(t, gate, rpcpb.BeginRequest{Header: rpcpb.Header{Type: rpcpb.Begin, ID: "1"}, Keyspace: "nope"})
	var payload rpcpb.ErrorPayload
	decodeGateBody(t, rec, &payload)
	if payload.Code != "NO_KEYSPACE" {
		t.Fatalf("expected NO_KEYSPACE, got %q", payload.Code)
	}
}

func TestGateCommitOnUnknownTransactionFails(t *testing.T) {
	gate, cleanup := newTestGate(t)
	defer cleanup()

	rec := postGate(t, gate, rpcpb.TxRequest{Header: rpcpb.Header{Type: rpcpb.Commit, ID: "1"}, TxID: "nonexistent"})
	var payload rpcpb.ErrorPayload
	decodeGateBody(t, rec, &payload)
	if payload.Code != "TRANSACTION_ERROR" {
		t.Fatalf("expected TRANSACTION_ERROR, got %q", payload.Code)
	}
}

func TestGateVSchemaReturnsDocument(t *testing.T) {
	gate, cleanup := newTestGate(t)
	defer cleanup()

	rec := postGate(t, gate, rpcpb.ScopeRequest{Header: rpcpb.Header{Type: rpcpb.VSchema, ID: "1"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("vschema: status %d body %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Keyspaces map[string]vschema.Keyspace `json:"keyspaces"`
	}
	decodeGateBody(t, rec, &payload)
	if _, ok := payload.Keyspaces["widgets"]; !ok {
		t.Fatalf("expected widgets keyspace in vschema response, got %+v", payload.Keyspaces)
	}
}

func TestGateStatusReportsShardHealth(t *testing.T) {
	gate, cleanup := newTestGate(t)
	defer cleanup()

	rec := postGate(t, gate, rpcpb.ScopeRequest{Header: rpcpb.Header{Type: rpcpb.Status, ID: "1"}})
	var status rpcpb.ClusterStatus
	decodeGateBody(t, rec, &status)
	if len(status.Shards) != 1 || !status.Shards[0].Healthy {
		t.Fatalf("expected one healthy shard, got %+v", status.Shards)
	}
}
