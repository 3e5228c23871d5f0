// Package vtgateserver implements the VTGate-facing RPC server: the
// process that accepts client RPCs over internal/rpcpb, invokes
// internal/vtgate's Router to plan and execute them, and itself speaks
// the same RPC protocol as a client to every shard's tablet server —
// the Router's TabletResolver is backed here by a real network client
// instead of an in-process storage.Adapter.
package vtgateserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dreamware/vshard/internal/rpcpb"
	"github.com/dreamware/vshard/internal/storage"
	"github.com/dreamware/vshard/internal/vterrors"
)

// TabletClient is an RPC client to one tablet server's /rpc endpoint,
// grounded on internal/cluster's PostJSON/GetJSON pattern (plain
// net/http, JSON in, JSON out, no retry at this layer — retry lives in
// the client package's backoff) but widened into a
// struct so it can carry the wrapped transaction-scoped calls
// (Begin/Commit/Rollback/QueryTx/ExecuteTx) the bare vtgate.Tablet
// interface doesn't need.
type TabletClient struct {
	baseURL string
	http    *http.Client
}

// NewTabletClient wraps baseURL (e.g. "http://tablet-0:9000") as an RPC
// client. A nil httpClient defaults to http.DefaultClient.
func NewTabletClient(baseURL string, httpClient *http.Client) *TabletClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TabletClient{baseURL: baseURL, http: httpClient}
}

// Query implements vtgate.Tablet.
func (c *TabletClient) Query(ctx context.Context, sql string, params []any) (*storage.QueryResult, error) {
	var res rpcpb.QueryResult
	req := rpcpb.QueryRequest{Header: rpcpb.Header{Type: rpcpb.Query}, SQL: sql, Params: params}
	if err := c.do(ctx, req, &res); err != nil {
		return nil, err
	}
	return fromWireQueryResult(&res), nil
}

// Execute implements vtgate.Tablet.
func (c *TabletClient) Execute(ctx context.Context, sql string, params []any) (*storage.ExecuteResult, error) {
	var res rpcpb.ExecuteResult
	req := rpcpb.QueryRequest{Header: rpcpb.Header{Type: rpcpb.Execute}, SQL: sql, Params: params}
	if err := c.do(ctx, req, &res); err != nil {
		return nil, err
	}
	return &storage.ExecuteResult{Affected: res.Affected, LastInsertID: res.LastInsertID, DurationMs: res.DurationMs}, nil
}

// Begin opens a transaction on this tablet and returns its txId.
func (c *TabletClient) Begin(ctx context.Context, opts storage.TransactionOptions) (string, error) {
	var res rpcpb.BeginResponse
	req := rpcpb.BeginRequest{
		Header: rpcpb.Header{Type: rpcpb.Begin},
		Options: &rpcpb.TransactionOptions{
			Isolation: string(opts.Isolation),
			ReadOnly:  opts.ReadOnly,
			TimeoutMs: opts.TimeoutMs,
		},
	}
	if err := c.do(ctx, req, &res); err != nil {
		return "", err
	}
	return res.TxID, nil
}

// Commit commits the tablet-local transaction txID.
func (c *TabletClient) Commit(ctx context.Context, txID string) error {
	var res rpcpb.AckPayload
	return c.do(ctx, rpcpb.TxRequest{Header: rpcpb.Header{Type: rpcpb.Commit}, TxID: txID}, &res)
}

// Rollback rolls back the tablet-local transaction txID.
func (c *TabletClient) Rollback(ctx context.Context, txID string) error {
	var res rpcpb.AckPayload
	return c.do(ctx, rpcpb.TxRequest{Header: rpcpb.Header{Type: rpcpb.Rollback}, TxID: txID}, &res)
}

// QueryTx runs sql against the open transaction txID.
func (c *TabletClient) QueryTx(ctx context.Context, txID, sql string, params []any) (*storage.QueryResult, error) {
	var res rpcpb.QueryResult
	req := rpcpb.QueryRequest{Header: rpcpb.Header{Type: rpcpb.Query}, SQL: sql, Params: params, TxID: txID}
	if err := c.do(ctx, req, &res); err != nil {
		return nil, err
	}
	return fromWireQueryResult(&res), nil
}

// ExecuteTx runs sql against the open transaction txID.
func (c *TabletClient) ExecuteTx(ctx context.Context, txID, sql string, params []any) (*storage.ExecuteResult, error) {
	var res rpcpb.ExecuteResult
	req := rpcpb.QueryRequest{Header: rpcpb.Header{Type: rpcpb.Execute}, SQL: sql, Params: params, TxID: txID}
	if err := c.do(ctx, req, &res); err != nil {
		return nil, err
	}
	return &storage.ExecuteResult{Affected: res.Affected, LastInsertID: res.LastInsertID, DurationMs: res.DurationMs}, nil
}

// Health reports whether the tablet considers itself ready.
func (c *TabletClient) Health(ctx context.Context) (rpcpb.ShardHealth, error) {
	var res rpcpb.ClusterStatus
	err := c.do(ctx, rpcpb.ScopeRequest{Header: rpcpb.Header{Type: rpcpb.Health}}, &res)
	if err != nil {
		return rpcpb.ShardHealth{Healthy: false, Detail: err.Error()}, err
	}
	if len(res.Shards) == 0 {
		return rpcpb.ShardHealth{Healthy: false}, nil
	}
	return res.Shards[0], nil
}

// do POSTs req to the tablet's /rpc endpoint and decodes its response
// into out, translating a wire ERROR envelope into a *vterrors.Error.
func (c *TabletClient) do(ctx context.Context, req any, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return vterrors.Wrap(vterrors.CodeQueryError, err, "vtgateserver: failed to encode tablet request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc", bytes.NewReader(body))
	if err != nil {
		return vterrors.Wrap(vterrors.CodeConnectionError, err, "vtgateserver: failed to build tablet request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return vterrors.Wrap(vterrors.CodeConnectionError, err, fmt.Sprintf("vtgateserver: tablet %s unreachable", c.baseURL))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return vterrors.Wrap(vterrors.CodeConnectionError, err, "vtgateserver: failed to read tablet response")
	}

	var header rpcpb.Header
	if err := json.Unmarshal(raw, &header); err == nil && header.Type == rpcpb.Error {
		var errPayload rpcpb.ErrorPayload
		if err := json.Unmarshal(raw, &errPayload); err == nil {
			return &vterrors.Error{Code: vterrors.Code(errPayload.Code), Message: errPayload.Message, SQLState: errPayload.SQLState, Shard: errPayload.Shard}
		}
	}
	if resp.StatusCode >= 400 {
		return vterrors.Newf(vterrors.CodeShardUnavailable, "vtgateserver: tablet %s returned status %d", c.baseURL, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return vterrors.Wrap(vterrors.CodeTypeError, err, "vtgateserver: failed to decode tablet response")
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

// clientTimeout is a 30-second per-call timeout value. Nothing in this
// package applies it: a TabletClient call is bounded only by its context
// and its http.Client.
const clientTimeout = 30 * time.Second
