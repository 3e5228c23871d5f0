// Package rpcpb implements the wire protocol between vtgate, clients, and
// tablets: JSON over HTTP POST, a closed MessageType enum with stable
// byte values, and the byte-safe/arbitrary-precision-safe envelope types
// every request and response payload is built from.
package rpcpb

// MessageType is the closed set of wire message kinds. Values are
// STABLE — DO NOT RENUMBER; clients and tablets persist them.
type MessageType byte

const (
	Query   MessageType = 0x01
	Execute MessageType = 0x02
	Batch   MessageType = 0x03

	Begin    MessageType = 0x10
	Commit   MessageType = 0x11
	Rollback MessageType = 0x12

	Status  MessageType = 0x20
	Health  MessageType = 0x21
	Schema  MessageType = 0x22
	VSchema MessageType = 0x23

	ShardQuery   MessageType = 0x30
	ShardExecute MessageType = 0x31
	ShardBatch   MessageType = 0x32

	Result MessageType = 0x80
	Error  MessageType = 0x81
	Ack    MessageType = 0x82
)

// String renders the MessageType's symbolic name, for logging.
func (m MessageType) String() string {
	switch m {
	case Query:
		return "QUERY"
	case Execute:
		return "EXECUTE"
	case Batch:
		return "BATCH"
	case Begin:
		return "BEGIN"
	case Commit:
		return "COMMIT"
	case Rollback:
		return "ROLLBACK"
	case Status:
		return "STATUS"
	case Health:
		return "HEALTH"
	case Schema:
		return "SCHEMA"
	case VSchema:
		return "VSCHEMA"
	case ShardQuery:
		return "SHARD_QUERY"
	case ShardExecute:
		return "SHARD_EXECUTE"
	case ShardBatch:
		return "SHARD_BATCH"
	case Result:
		return "RESULT"
	case Error:
		return "ERROR"
	case Ack:
		return "ACK"
	default:
		return "UNKNOWN"
	}
}

// Header is the common envelope every request and response carries:
// a single top-level object with fields type, id, timestamp, plus a
// type-specific payload.
type Header struct {
	Type      MessageType `json:"type"`
	ID        string      `json:"id"`
	TimestampMs int64     `json:"timestamp"`
}
