// Package client is the RPC client to a VTGate: connect, issue
// QUERY/EXECUTE/BATCH/BEGIN/COMMIT/ROLLBACK over rpcpb, and retry
// transient failures with backoff. It generalizes cmd/node/main.go's
// hand-rolled registration retry loop into a reusable client built on
// github.com/cenkalti/backoff/v4.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang/glog"

	"github.com/dreamware/vshard/internal/rpcpb"
	"github.com/dreamware/vshard/internal/storage"
	"github.com/dreamware/vshard/internal/vterrors"
)

// DefaultMaxAttempts and DefaultBackoffMs are the retry policy's defaults
// when Options leaves them unset.
const (
	DefaultMaxAttempts = 3
	DefaultBackoffMs   = 100
)

// Options configures a Client.
type Options struct {
	// Addr is the VTGate base URL, e.g. "http://vtgate-0:15000".
	Addr string
	// Token, if set, is sent as a Bearer token on every request.
	Token string
	// HTTPClient is the transport to use; defaults to a client with a
	// 30-second timeout.
	HTTPClient *http.Client
	// MaxAttempts bounds how many transport attempts doWithRetry makes for
	// a single request, including the first. Zero uses DefaultMaxAttempts.
	MaxAttempts int
	// BackoffMs is the linear backoff unit: the wait between attempt k and
	// k+1 is k*BackoffMs. Zero uses DefaultBackoffMs.
	BackoffMs int64
}

// Client is a connection to one VTGate. It carries no required
// connect/disconnect state of its own beyond the wrapped *http.Client —
// Connect and Close exist to give callers a conventional lifecycle and
// a place to hang future connection pooling.
type Client struct {
	addr  string
	token string
	http  *http.Client

	maxAttempts int
	backoffMs   int64
}

// New builds a Client. It does not dial anything; call Connect (or just
// start issuing calls — Connect only validates reachability).
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	backoffMs := opts.BackoffMs
	if backoffMs <= 0 {
		backoffMs = DefaultBackoffMs
	}
	return &Client{addr: opts.Addr, token: opts.Token, http: httpClient, maxAttempts: maxAttempts, backoffMs: backoffMs}
}

// Connect verifies the VTGate is reachable by issuing a STATUS request
// through Status, so it is retried on transient failures with the same
// linear backoff as every other doWithRetry call.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.Status(ctx)
	return err
}

// Close releases the underlying transport's idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// Query runs a row-returning statement, retrying on connection and
// timeout failures — the two retryable error codes.
func (c *Client) Query(ctx context.Context, keyspace, sql string, params []any) (*storage.QueryResult, error) {
	var res rpcpb.QueryResult
	req := rpcpb.QueryRequest{Header: rpcpb.Header{Type: rpcpb.Query}, Keyspace: keyspace, SQL: sql, Params: params}
	if err := c.doWithRetry(ctx, req, &res); err != nil {
		return nil, err
	}
	return fromWireQueryResult(&res), nil
}

// Execute runs a non-row-returning statement, retrying on connection and
// timeout failures.
func (c *Client) Execute(ctx context.Context, keyspace, sql string, params []any) (*storage.ExecuteResult, error) {
	var res rpcpb.ExecuteResult
	req := rpcpb.QueryRequest{Header: rpcpb.Header{Type: rpcpb.Execute}, Keyspace: keyspace, SQL: sql, Params: params}
	if err := c.doWithRetry(ctx, req, &res); err != nil {
		return nil, err
	}
	return &storage.ExecuteResult{Affected: res.Affected, LastInsertID: res.LastInsertID, DurationMs: res.DurationMs}, nil
}

// Batch runs a list of statements as one BATCH request.
func (c *Client) Batch(ctx context.Context, keyspace string, statements []rpcpb.Statement) (*rpcpb.BatchResult, error) {
	var res rpcpb.BatchResult
	req := rpcpb.BatchRequest{Header: rpcpb.Header{Type: rpcpb.Batch}, Keyspace: keyspace, Statements: statements}
	if err := c.doWithRetry(ctx, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Status fetches cluster-wide shard health.
func (c *Client) Status(ctx context.Context) (*rpcpb.ClusterStatus, error) {
	var res rpcpb.ClusterStatus
	req := rpcpb.ScopeRequest{Header: rpcpb.Header{Type: rpcpb.Status}}
	if err := c.doWithRetry(ctx, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Tx is a handle to one open transaction, bound to the shard the gate
// resolved when it was opened (rpcpb.BeginResponse.Shards). Queries and
// execute calls issued through a Tx carry its txId.
type Tx struct {
	client *Client
	id     string
	shards []string
}

// Begin opens a transaction against keyspace. Since cross-shard
// transactions are unsupported (no 2PC), this only succeeds when the
// keyspace resolves to exactly one shard; the gate returns
// TRANSACTION_ERROR otherwise.
func (c *Client) Begin(ctx context.Context, keyspace string, opts storage.TransactionOptions) (*Tx, error) {
	var res rpcpb.BeginResponse
	req := rpcpb.BeginRequest{
		Header:   rpcpb.Header{Type: rpcpb.Begin},
		Keyspace: keyspace,
		Options: &rpcpb.TransactionOptions{
			Isolation: string(opts.Isolation),
			ReadOnly:  opts.ReadOnly,
			TimeoutMs: opts.TimeoutMs,
		},
	}
	// BEGIN is not retried: if it already opened a transaction on the
	// gate/tablet before a response was lost, retrying would leak it.
	if err := c.do(ctx, req, &res); err != nil {
		return nil, err
	}
	return &Tx{client: c, id: res.TxID, shards: res.Shards}, nil
}

// ID returns the transaction id the gate assigned.
func (t *Tx) ID() string { return t.id }

// Shards returns the shard(s) this transaction is bound to.
func (t *Tx) Shards() []string { return t.shards }

// Query runs a row-returning statement against this transaction.
func (t *Tx) Query(ctx context.Context, sql string, params []any) (*storage.QueryResult, error) {
	var res rpcpb.QueryResult
	req := rpcpb.QueryRequest{Header: rpcpb.Header{Type: rpcpb.Query}, SQL: sql, Params: params, TxID: t.id}
	if err := t.client.do(ctx, req, &res); err != nil {
		return nil, err
	}
	return fromWireQueryResult(&res), nil
}

// Execute runs a non-row-returning statement against this transaction.
func (t *Tx) Execute(ctx context.Context, sql string, params []any) (*storage.ExecuteResult, error) {
	var res rpcpb.ExecuteResult
	req := rpcpb.QueryRequest{Header: rpcpb.Header{Type: rpcpb.Execute}, SQL: sql, Params: params, TxID: t.id}
	if err := t.client.do(ctx, req, &res); err != nil {
		return nil, err
	}
	return &storage.ExecuteResult{Affected: res.Affected, LastInsertID: res.LastInsertID, DurationMs: res.DurationMs}, nil
}

// Commit commits the transaction. Not retried, for the same reason as Begin.
func (t *Tx) Commit(ctx context.Context) error {
	var res rpcpb.AckPayload
	return t.client.do(ctx, rpcpb.TxRequest{Header: rpcpb.Header{Type: rpcpb.Commit}, TxID: t.id}, &res)
}

// Rollback rolls back the transaction.
func (t *Tx) Rollback(ctx context.Context) error {
	var res rpcpb.AckPayload
	return t.client.do(ctx, rpcpb.TxRequest{Header: rpcpb.Header{Type: rpcpb.Rollback}, TxID: t.id}, &res)
}

// linearBackOff implements backoff.BackOff with a wait of k*backoffMs
// between attempt k and k+1, giving up once maxAttempts transport attempts
// have been made.
type linearBackOff struct {
	backoffMs   int64
	maxAttempts int
	attempt     int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	if b.attempt >= b.maxAttempts {
		return backoff.Stop
	}
	return time.Duration(b.attempt*int(b.backoffMs)) * time.Millisecond
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

// doWithRetry wraps do in a backoff.Retry loop: connection and timeout
// failures, and HTTP 500/502/503/504 (vterrors.IsRetryable), are retried
// with linear backoff up to c.maxAttempts transport attempts total;
// everything else is wrapped in backoff.Permanent so Retry gives up
// immediately.
func (c *Client) doWithRetry(ctx context.Context, req any, out any) error {
	bo := backoff.WithContext(&linearBackOff{backoffMs: c.backoffMs, maxAttempts: c.maxAttempts}, ctx)

	attempt := 0
	op := func() error {
		attempt++
		err := c.do(ctx, req, out)
		if err == nil {
			return nil
		}
		if !vterrors.IsRetryable(vterrors.CodeOf(err)) {
			return backoff.Permanent(err)
		}
		glog.Warningf("client: attempt %d failed, retrying: %v", attempt, err)
		return err
	}
	return backoff.Retry(op, bo)
}

// do POSTs req to the gate's /rpc endpoint and decodes its response
// into out, translating a wire ERROR envelope into a *vterrors.Error.
func (c *Client) do(ctx context.Context, req any, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return vterrors.Wrap(vterrors.CodeQueryError, err, "client: failed to encode request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.addr+"/rpc", bytes.NewReader(body))
	if err != nil {
		return vterrors.Wrap(vterrors.CodeConnectionError, err, "client: failed to build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return vterrors.Wrap(vterrors.CodeConnectionError, err, fmt.Sprintf("client: gate %s unreachable", c.addr))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return vterrors.Wrap(vterrors.CodeConnectionError, err, "client: failed to read response")
	}

	var header rpcpb.Header
	if err := json.Unmarshal(raw, &header); err == nil && header.Type == rpcpb.Error {
		var errPayload rpcpb.ErrorPayload
		if err := json.Unmarshal(raw, &errPayload); err == nil {
			return &vterrors.Error{Code: vterrors.Code(errPayload.Code), Message: errPayload.Message, SQLState: errPayload.SQLState, Shard: errPayload.Shard}
		}
	}
	switch resp.StatusCode {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return vterrors.Newf(vterrors.CodeConnectionError, "client: gate %s returned status %d", c.addr, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return vterrors.Wrap(vterrors.CodeTypeError, err, "client: failed to decode response")
	}
	return nil
}

func fromWireQueryResult(res *rpcpb.QueryResult) *storage.QueryResult {
	fields := make([]storage.Field, len(res.Fields))
	for i, f := range res.Fields {
		fields[i] = storage.Field{Name: f.Name, EngineTypeID: f.EngineTypeID, PortableType: f.PortableType}
	}
	rows := make([]storage.Row, len(res.Rows))
	for i, row := range res.Rows {
		rows[i] = storage.Row(row)
	}
	return &storage.QueryResult{Rows: rows, RowCount: res.RowCount, Fields: fields, DurationMs: res.DurationMs}
}
