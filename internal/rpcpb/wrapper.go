package rpcpb

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Bytes is a binary payload (bytea/blob column, byte-sequence parameter)
// carried byte-safe across the wire as
// {"__type":"bytes","data":"<base64>"}.
type Bytes []byte

type bytesWire struct {
	Type string `json:"__type"`
	Data string `json:"data"`
}

// MarshalJSON implements the base64 envelope.
func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(bytesWire{Type: "bytes", Data: base64.StdEncoding.EncodeToString(b)})
}

// UnmarshalJSON decodes the base64 envelope.
func (b *Bytes) UnmarshalJSON(data []byte) error {
	var w bytesWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("rpcpb: bytes: %w", err)
	}
	if w.Type != "bytes" {
		return fmt.Errorf("rpcpb: bytes: unexpected __type %q", w.Type)
	}
	decoded, err := base64.StdEncoding.DecodeString(w.Data)
	if err != nil {
		return fmt.Errorf("rpcpb: bytes: %w", err)
	}
	*b = decoded
	return nil
}

// BigInt is an arbitrary-precision integer or decimal value carried
// across the wire as its decimal string, backed in memory by
// shopspring/decimal (the same library internal/ksid and
// internal/aggregate already use for lossless NUMERIC handling).
type BigInt struct {
	decimal.Decimal
}

// NewBigInt wraps d as a BigInt.
func NewBigInt(d decimal.Decimal) BigInt { return BigInt{d} }

// MarshalJSON encodes the value as its decimal string.
func (b BigInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Decimal.String())
}

// UnmarshalJSON decodes a decimal string into the wrapped value.
func (b *BigInt) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("rpcpb: bigint: %w", err)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("rpcpb: bigint: %w", err)
	}
	b.Decimal = d
	return nil
}
