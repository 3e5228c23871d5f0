package vtgateserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/mux"

	"github.com/dreamware/vshard/internal/rpcpb"
	"github.com/dreamware/vshard/internal/storage"
	"github.com/dreamware/vshard/internal/vschema"
	"github.com/dreamware/vshard/internal/vtgate"
	"github.com/dreamware/vshard/internal/vterrors"
)

// txBinding remembers which tablet a BEGIN was routed to, so later
// QUERY/EXECUTE/COMMIT/ROLLBACK requests naming the same txId forward
// straight to that tablet instead of being replanned.
type txBinding struct {
	keyspace string
	shard    string
	tabletTx string
}

// Server is the VTGate-facing RPC server: it terminates client
// connections, plans non-transactional requests through vtgate.Router,
// and for BEGIN/COMMIT/ROLLBACK binds the gate-level transaction id to
// exactly one tablet-local transaction — BEGIN/COMMIT are per-shard;
// cross-shard transactions fail outright. BEGIN only succeeds when its
// keyspace resolves unambiguously to a single shard (unsharded, or a
// sharded keyspace that happens to have exactly one).
type Server struct {
	doc      *vschema.Document
	router   *vtgate.Router
	resolver *StaticResolver
	monitor  *ShardHealthMonitor

	mu  sync.Mutex
	txs map[string]txBinding

	httpRouter *mux.Router
}

// NewServer builds a Server over a validated VSchema document, its
// already-constructed Router, and the resolver the Router was built
// with (kept separately for the transaction-scoped direct calls that
// bypass planning).
func NewServer(doc *vschema.Document, router *vtgate.Router, resolver *StaticResolver) *Server {
	s := &Server{doc: doc, router: router, resolver: resolver, txs: map[string]txBinding{}}
	s.httpRouter = mux.NewRouter()
	s.httpRouter.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.httpRouter.HandleFunc("/rpc", s.handleRPC).Methods(http.MethodPost)
	return s
}

// UseHealthMonitor attaches a background ShardHealthMonitor so STATUS
// requests answer from its cached snapshot instead of fanning out to
// every tablet synchronously. The caller owns starting/stopping it.
func (s *Server) UseHealthMonitor(m *ShardHealthMonitor) { s.monitor = m }

// Handler returns the server's http.Handler.
func (s *Server) Handler() http.Handler { return s.httpRouter }

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	defer r.Body.Close()
	if err != nil {
		writeError(w, "", vterrors.Wrap(vterrors.CodeQueryError, err, "vtgateserver: failed to read request body"))
		return
	}
	var header rpcpb.Header
	if err := json.Unmarshal(body, &header); err != nil {
		writeError(w, "", vterrors.Wrap(vterrors.CodeSyntaxError, err, "vtgateserver: malformed request envelope"))
		return
	}
	ctx := r.Context()

	switch header.Type {
	case rpcpb.Query:
		s.handleQuery(ctx, w, body, header.ID)
	case rpcpb.Execute:
		s.handleExecute(ctx, w, body, header.ID)
	case rpcpb.Batch:
		s.handleBatch(ctx, w, body, header.ID)
	case rpcpb.Begin:
		s.handleBegin(ctx, w, body, header.ID)
	case rpcpb.Commit:
		s.handleCommit(ctx, w, body, header.ID)
	case rpcpb.Rollback:
		s.handleRollback(ctx, w, body, header.ID)
	case rpcpb.ShardQuery, rpcpb.ShardExecute:
		s.handleShardDirect(ctx, w, body, header)
	case rpcpb.VSchema:
		s.handleVSchema(w, header.ID)
	case rpcpb.Health, rpcpb.Status:
		s.handleStatus(ctx, w, header.ID)
	case rpcpb.Schema:
		writeError(w, header.ID, vterrors.New(vterrors.CodeUnsupportedSQL, "vtgateserver: schema introspection is not implemented (embedded engines are black-box executors)"))
	default:
		writeError(w, header.ID, vterrors.Newf(vterrors.CodeUnsupportedSQL, "vtgateserver: unsupported message type %s", header.Type))
	}
}

func (s *Server) handleQuery(ctx context.Context, w http.ResponseWriter, body []byte, id string) {
	var req rpcpb.QueryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, id, vterrors.Wrap(vterrors.CodeSyntaxError, err, "vtgateserver: malformed query request"))
		return
	}
	if req.TxID != "" {
		s.handleTxQuery(ctx, w, req, id)
		return
	}
	start := time.Now()
	res, err := s.router.Query(ctx, req.Keyspace, req.SQL, req.Params)
	if err != nil {
		writeError(w, id, err)
		return
	}
	writeQueryResult(w, id, res, time.Since(start))
}

func (s *Server) handleExecute(ctx context.Context, w http.ResponseWriter, body []byte, id string) {
	var req rpcpb.QueryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, id, vterrors.Wrap(vterrors.CodeSyntaxError, err, "vtgateserver: malformed execute request"))
		return
	}
	if req.TxID != "" {
		s.handleTxExecute(ctx, w, req, id)
		return
	}
	start := time.Now()
	res, err := s.router.Execute(ctx, req.Keyspace, req.SQL, req.Params)
	if err != nil {
		writeError(w, id, err)
		return
	}
	writeExecuteResult(w, id, res, time.Since(start))
}

func (s *Server) handleTxQuery(ctx context.Context, w http.ResponseWriter, req rpcpb.QueryRequest, id string) {
	binding, err := s.lookupTx(req.TxID)
	if err != nil {
		writeError(w, id, err)
		return
	}
	client, err := s.resolver.Client(binding.keyspace, binding.shard)
	if err != nil {
		writeError(w, id, err)
		return
	}
	start := time.Now()
	res, err := client.QueryTx(ctx, binding.tabletTx, req.SQL, req.Params)
	if err != nil {
		writeError(w, id, err)
		return
	}
	writeQueryResult(w, id, res, time.Since(start))
}

func (s *Server) handleTxExecute(ctx context.Context, w http.ResponseWriter, req rpcpb.QueryRequest, id string) {
	binding, err := s.lookupTx(req.TxID)
	if err != nil {
		writeError(w, id, err)
		return
	}
	client, err := s.resolver.Client(binding.keyspace, binding.shard)
	if err != nil {
		writeError(w, id, err)
		return
	}
	start := time.Now()
	res, err := client.ExecuteTx(ctx, binding.tabletTx, req.SQL, req.Params)
	if err != nil {
		writeError(w, id, err)
		return
	}
	writeExecuteResult(w, id, res, time.Since(start))
}

// handleBatch runs a BATCH's statements through the Router one at a
// time: the Router has no multi-statement pipeline of its own (that
// optimization lives inside a single tablet's storage.Adapter.Batch),
// so a gate-level BATCH is sequential planning across the list, in
// request order.
func (s *Server) handleBatch(ctx context.Context, w http.ResponseWriter, body []byte, id string) {
	var req rpcpb.BatchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, id, vterrors.Wrap(vterrors.CodeSyntaxError, err, "vtgateserver: malformed batch request"))
		return
	}
	items := make([]rpcpb.BatchItemResult, 0, len(req.Statements))
	for _, stmt := range req.Statements {
		if req.TxID != "" {
			binding, err := s.lookupTx(req.TxID)
			if err != nil {
				writeError(w, id, err)
				return
			}
			client, err := s.resolver.Client(binding.keyspace, binding.shard)
			if err != nil {
				writeError(w, id, err)
				return
			}
			item, err := runOneStatement(ctx, stmt, func(sql string, params []any) (*storage.QueryResult, error) {
				return client.QueryTx(ctx, binding.tabletTx, sql, params)
			}, func(sql string, params []any) (*storage.ExecuteResult, error) {
				return client.ExecuteTx(ctx, binding.tabletTx, sql, params)
			})
			if err != nil {
				writeError(w, id, err)
				return
			}
			items = append(items, item)
			continue
		}
		item, err := runOneStatement(ctx, stmt, func(sql string, params []any) (*storage.QueryResult, error) {
			return s.router.Query(ctx, req.Keyspace, sql, params)
		}, func(sql string, params []any) (*storage.ExecuteResult, error) {
			return s.router.Execute(ctx, req.Keyspace, sql, params)
		})
		if err != nil {
			writeError(w, id, err)
			return
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, rpcpb.BatchResult{Header: responseHeader(rpcpb.Result, id), Results: items})
}

func runOneStatement(_ context.Context, stmt rpcpb.Statement, runQuery func(string, []any) (*storage.QueryResult, error), runExecute func(string, []any) (*storage.ExecuteResult, error)) (rpcpb.BatchItemResult, error) {
	if isSelectSQL(stmt.SQL) {
		res, err := runQuery(stmt.SQL, stmt.Params)
		if err != nil {
			return rpcpb.BatchItemResult{}, err
		}
		return rpcpb.BatchItemResult{Query: toWireQueryResult(res)}, nil
	}
	res, err := runExecute(stmt.SQL, stmt.Params)
	if err != nil {
		return rpcpb.BatchItemResult{}, err
	}
	return rpcpb.BatchItemResult{Execute: &rpcpb.ExecuteResult{Affected: res.Affected, LastInsertID: res.LastInsertID}}, nil
}

// handleBegin resolves req.Keyspace to its single target shard and
// opens a transaction there, minting a gate-level txId that is simply
// the tablet's own txId — the Server's txs map exists only to remember
// which (keyspace, shard) it belongs to.
func (s *Server) handleBegin(ctx context.Context, w http.ResponseWriter, body []byte, id string) {
	var req rpcpb.BeginRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, id, vterrors.Wrap(vterrors.CodeSyntaxError, err, "vtgateserver: malformed begin request"))
		return
	}
	ks, ok := s.doc.Keyspaces[req.Keyspace]
	if !ok {
		writeError(w, id, vterrors.Newf(vterrors.CodeNoKeyspace, "vtgateserver: no keyspace %q", req.Keyspace))
		return
	}
	shards := ks.Shards
	if len(shards) == 0 {
		shards = []string{"-"}
	}
	if len(shards) != 1 {
		writeError(w, id, vterrors.Newf(vterrors.CodeTransactionError, "vtgateserver: keyspace %q has %d shards; cross-shard transactions are not supported (no 2PC)", req.Keyspace, len(shards)))
		return
	}
	shard := shards[0]

	client, err := s.resolver.Client(req.Keyspace, shard)
	if err != nil {
		writeError(w, id, err)
		return
	}
	opts := storage.TransactionOptions{}
	if req.Options != nil {
		opts.Isolation = storage.IsolationLevel(req.Options.Isolation)
		opts.ReadOnly = req.Options.ReadOnly
		opts.TimeoutMs = req.Options.TimeoutMs
	}
	tabletTxID, err := client.Begin(ctx, opts)
	if err != nil {
		writeError(w, id, err)
		return
	}

	s.mu.Lock()
	s.txs[tabletTxID] = txBinding{keyspace: req.Keyspace, shard: shard, tabletTx: tabletTxID}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, rpcpb.BeginResponse{
		Header: responseHeader(rpcpb.Result, id),
		TxID:   tabletTxID,
		Shards: []string{shard},
	})
}

func (s *Server) handleCommit(ctx context.Context, w http.ResponseWriter, body []byte, id string) {
	var req rpcpb.TxRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, id, vterrors.Wrap(vterrors.CodeSyntaxError, err, "vtgateserver: malformed commit request"))
		return
	}
	binding, err := s.takeTx(req.TxID)
	if err != nil {
		writeError(w, id, err)
		return
	}
	client, err := s.resolver.Client(binding.keyspace, binding.shard)
	if err != nil {
		writeError(w, id, err)
		return
	}
	if err := client.Commit(ctx, binding.tabletTx); err != nil {
		writeError(w, id, err)
		return
	}
	writeAck(w, id)
}

func (s *Server) handleRollback(ctx context.Context, w http.ResponseWriter, body []byte, id string) {
	var req rpcpb.TxRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, id, vterrors.Wrap(vterrors.CodeSyntaxError, err, "vtgateserver: malformed rollback request"))
		return
	}
	binding, err := s.takeTx(req.TxID)
	if err != nil {
		writeError(w, id, err)
		return
	}
	client, err := s.resolver.Client(binding.keyspace, binding.shard)
	if err != nil {
		writeError(w, id, err)
		return
	}
	if err := client.Rollback(ctx, binding.tabletTx); err != nil {
		writeError(w, id, err)
		return
	}
	writeAck(w, id)
}

// handleShardDirect implements SHARD_QUERY/SHARD_EXECUTE: a caller-addressed
// bypass of planning that routes straight to one
// named (keyspace, shard), for administrative and diagnostic use.
func (s *Server) handleShardDirect(ctx context.Context, w http.ResponseWriter, body []byte, header rpcpb.Header) {
	var req rpcpb.QueryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, header.ID, vterrors.Wrap(vterrors.CodeSyntaxError, err, "vtgateserver: malformed shard request"))
		return
	}
	client, err := s.resolver.Client(req.Keyspace, req.Shard)
	if err != nil {
		writeError(w, header.ID, err)
		return
	}
	start := time.Now()
	if header.Type == rpcpb.ShardQuery {
		res, err := client.Query(ctx, req.SQL, req.Params)
		if err != nil {
			writeError(w, header.ID, vterrors.WithShard(req.Shard, err))
			return
		}
		writeQueryResult(w, header.ID, res, time.Since(start))
		return
	}
	res, err := client.Execute(ctx, req.SQL, req.Params)
	if err != nil {
		writeError(w, header.ID, vterrors.WithShard(req.Shard, err))
		return
	}
	writeExecuteResult(w, header.ID, res, time.Since(start))
}

func (s *Server) handleVSchema(w http.ResponseWriter, id string) {
	writeJSON(w, http.StatusOK, struct {
		rpcpb.Header
		Keyspaces map[string]vschema.Keyspace `json:"keyspaces"`
	}{Header: responseHeader(rpcpb.Result, id), Keyspaces: s.doc.Keyspaces})
}

func (s *Server) handleStatus(ctx context.Context, w http.ResponseWriter, id string) {
	if s.monitor != nil {
		writeJSON(w, http.StatusOK, rpcpb.ClusterStatus{Header: responseHeader(rpcpb.Result, id), Shards: s.monitor.Snapshot()})
		return
	}
	var shards []rpcpb.ShardHealth
	for key, client := range s.resolver.All() {
		health, err := client.Health(ctx)
		if err != nil {
			glog.Warningf("vtgateserver: health check for %s failed: %v", key, err)
			shards = append(shards, rpcpb.ShardHealth{Shard: key, Healthy: false, Detail: err.Error()})
			continue
		}
		health.Shard = key
		shards = append(shards, health)
	}
	writeJSON(w, http.StatusOK, rpcpb.ClusterStatus{Header: responseHeader(rpcpb.Result, id), Shards: shards})
}

func (s *Server) lookupTx(txID string) (txBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.txs[txID]
	if !ok {
		return txBinding{}, vterrors.Newf(vterrors.CodeTransactionError, "vtgateserver: unknown transaction %q", txID)
	}
	return b, nil
}

func (s *Server) takeTx(txID string) (txBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.txs[txID]
	if !ok {
		return txBinding{}, vterrors.Newf(vterrors.CodeTransactionError, "vtgateserver: unknown transaction %q", txID)
	}
	delete(s.txs, txID)
	return b, nil
}

func isSelectSQL(sql string) bool {
	for _, c := range sql {
		switch c {
		case ' ', '\t', '\n', '\r', '(':
			continue
		default:
			return c == 's' || c == 'S'
		}
	}
	return false
}

func responseHeader(t rpcpb.MessageType, requestID string) rpcpb.Header {
	return rpcpb.Header{Type: t, ID: requestID, TimestampMs: time.Now().UnixMilli()}
}

func toWireQueryResult(res *storage.QueryResult) *rpcpb.QueryResult {
	fields := make([]rpcpb.Field, len(res.Fields))
	for i, f := range res.Fields {
		fields[i] = rpcpb.Field{Name: f.Name, EngineTypeID: f.EngineTypeID, PortableType: f.PortableType}
	}
	rows := make([]map[string]any, len(res.Rows))
	for i, row := range res.Rows {
		rows[i] = row
	}
	return &rpcpb.QueryResult{Rows: rows, RowCount: res.RowCount, Fields: fields, DurationMs: res.DurationMs}
}

func writeQueryResult(w http.ResponseWriter, id string, res *storage.QueryResult, elapsed time.Duration) {
	wire := toWireQueryResult(res)
	wire.Header = responseHeader(rpcpb.Result, id)
	wire.DurationMs = elapsed.Milliseconds()
	writeJSON(w, http.StatusOK, wire)
}

func writeExecuteResult(w http.ResponseWriter, id string, res *storage.ExecuteResult, elapsed time.Duration) {
	writeJSON(w, http.StatusOK, rpcpb.ExecuteResult{
		Header:       responseHeader(rpcpb.Result, id),
		Affected:     res.Affected,
		LastInsertID: res.LastInsertID,
		DurationMs:   elapsed.Milliseconds(),
	})
}

func writeAck(w http.ResponseWriter, id string) {
	writeJSON(w, http.StatusOK, rpcpb.AckPayload{Header: responseHeader(rpcpb.Ack, id)})
}

func writeError(w http.ResponseWriter, id string, err error) {
	code := vterrors.CodeOf(err)
	message := err.Error()
	sqlState := ""
	shard := ""
	if ve, ok := err.(*vterrors.Error); ok {
		message = ve.Message
		sqlState = ve.SQLState
		shard = ve.Shard
	}
	glog.Errorf("vtgateserver[%s]: rpc error: %v", id, err)
	status := http.StatusInternalServerError
	if vterrors.IsFatal(code) {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, rpcpb.ErrorPayload{
		Header:   responseHeader(rpcpb.Error, id),
		Code:     string(code),
		Message:  message,
		SQLState: sqlState,
		Shard:    shard,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		glog.Errorf("vtgateserver: failed to encode response: %v", err)
	}
}
