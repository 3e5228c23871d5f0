package rpcpb

// TransactionOptions configures a BEGIN request.
type TransactionOptions struct {
	Isolation string `json:"isolation,omitempty"`
	ReadOnly  bool   `json:"readOnly,omitempty"`
	TimeoutMs int64  `json:"timeoutMs,omitempty"`
}

// QueryRequest is the QUERY/EXECUTE/SHARD_QUERY/SHARD_EXECUTE payload.
type QueryRequest struct {
	Header
	SQL      string `json:"sql"`
	Params   []any  `json:"params,omitempty"`
	Keyspace string `json:"keyspace,omitempty"`
	TxID     string `json:"txId,omitempty"`
	Shard    string `json:"shard,omitempty"`
}

// Statement is one element of a BATCH request's statement list.
type Statement struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params,omitempty"`
}

// BatchRequest is the BATCH/SHARD_BATCH payload.
type BatchRequest struct {
	Header
	Statements []Statement `json:"statements"`
	Keyspace   string      `json:"keyspace,omitempty"`
	TxID       string      `json:"txId,omitempty"`
	Shard      string      `json:"shard,omitempty"`
}

// BeginRequest is the BEGIN payload.
type BeginRequest struct {
	Header
	Keyspace string               `json:"keyspace,omitempty"`
	Options  *TransactionOptions  `json:"options,omitempty"`
}

// TxRequest is the COMMIT/ROLLBACK payload.
type TxRequest struct {
	Header
	TxID string `json:"txId"`
}

// ScopeRequest is the HEALTH/STATUS/SCHEMA/VSCHEMA payload.
type ScopeRequest struct {
	Header
	Keyspace string `json:"keyspace,omitempty"`
	Shard    string `json:"shard,omitempty"`
}

// Field describes one result column: its name, the engine-native type
// id, and the portable type name.
type Field struct {
	Name         string `json:"name"`
	EngineTypeID string `json:"engineTypeId,omitempty"`
	PortableType string `json:"portableType"`
}

// QueryResult is the RESULT payload for a successful QUERY.
type QueryResult struct {
	Header
	Rows        []map[string]any `json:"rows"`
	RowCount    int               `json:"rowCount"`
	Fields      []Field           `json:"fields,omitempty"`
	DurationMs  int64             `json:"durationMs"`
}

// ExecuteResult is the RESULT payload for a successful EXECUTE.
type ExecuteResult struct {
	Header
	Affected     int64  `json:"affected"`
	LastInsertID *int64 `json:"lastInsertId,omitempty"`
	DurationMs   int64  `json:"durationMs"`
}

// BatchResult is the RESULT payload for a successful BATCH: one
// QueryResult or ExecuteResult per statement, tagged by which it is.
type BatchResult struct {
	Header
	Results []BatchItemResult `json:"results"`
}

// BatchItemResult is one element of a BatchResult.
type BatchItemResult struct {
	Query   *QueryResult   `json:"query,omitempty"`
	Execute *ExecuteResult `json:"execute,omitempty"`
}

// BeginResponse is the RESULT payload for a successful BEGIN.
type BeginResponse struct {
	Header
	TxID   string   `json:"txId"`
	Shards []string `json:"shards,omitempty"`
}

// ShardHealth is one element of the STATUS/HEALTH response array.
type ShardHealth struct {
	Shard   string `json:"shard"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// ClusterStatus is the RESULT payload for a successful STATUS request.
type ClusterStatus struct {
	Header
	Shards []ShardHealth `json:"shards"`
}

// ErrorPayload is the ERROR message payload.
type ErrorPayload struct {
	Header
	Code     string `json:"code"`
	Message  string `json:"message"`
	Shard    string `json:"shard,omitempty"`
	SQLState string `json:"sqlState,omitempty"`
}

// AckPayload is the ACK message payload: empty beyond the header.
type AckPayload struct {
	Header
}
