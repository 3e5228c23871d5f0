package rpcpb

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMessageTypeByteValuesAreStable(t *testing.T) {
	cases := map[MessageType]byte{
		Query: 0x01, Execute: 0x02, Batch: 0x03,
		Begin: 0x10, Commit: 0x11, Rollback: 0x12,
		Status: 0x20, Health: 0x21, Schema: 0x22, VSchema: 0x23,
		ShardQuery: 0x30, ShardExecute: 0x31, ShardBatch: 0x32,
		Result: 0x80, Error: 0x81, Ack: 0x82,
	}
	for mt, want := range cases {
		if byte(mt) != want {
			t.Errorf("%s = 0x%02x, want 0x%02x", mt, byte(mt), want)
		}
	}
}

func TestBytesRoundTripsThroughBase64Envelope(t *testing.T) {
	orig := Bytes{0x00, 0xFF, 0x10, 0x20}
	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatal(err)
	}
	var env map[string]any
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatal(err)
	}
	if env["__type"] != "bytes" {
		t.Fatalf("envelope = %v, want __type=bytes", env)
	}

	var rt Bytes
	if err := json.Unmarshal(data, &rt); err != nil {
		t.Fatal(err)
	}
	if string(rt) != string(orig) {
		t.Fatalf("round trip = %v, want %v", rt, orig)
	}
}

func TestBigIntRoundTripsAsDecimalString(t *testing.T) {
	orig := NewBigInt(decimal.RequireFromString("123456789012345678901234567890"))
	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"123456789012345678901234567890"` {
		t.Fatalf("wire form = %s", data)
	}
	var rt BigInt
	if err := json.Unmarshal(data, &rt); err != nil {
		t.Fatal(err)
	}
	if !rt.Decimal.Equal(orig.Decimal) {
		t.Fatalf("round trip = %s, want %s", rt.Decimal, orig.Decimal)
	}
}

func TestQueryRequestHeaderRoundTrips(t *testing.T) {
	req := QueryRequest{
		Header: Header{Type: Query, ID: "abc", TimestampMs: 1700000000000},
		SQL:    "SELECT 1",
	}
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	var rt QueryRequest
	if err := json.Unmarshal(data, &rt); err != nil {
		t.Fatal(err)
	}
	if rt.Type != Query || rt.ID != "abc" || rt.SQL != "SELECT 1" {
		t.Fatalf("round trip = %+v", rt)
	}
}
