package pgadapter

import (
	"context"
	"testing"

	"github.com/dreamware/vshard/internal/storage"
	"github.com/dreamware/vshard/internal/vterrors"
)

func TestOptionsConnString(t *testing.T) {
	opts := Options{Host: "localhost", Port: 5432, Database: "app", User: "app", Password: "secret"}
	got := opts.connString()
	want := "host=localhost port=5432 dbname=app user=app password=secret sslmode=disable"
	if got != want {
		t.Fatalf("connString = %q, want %q", got, want)
	}
}

func TestPortableTypeForOID(t *testing.T) {
	cases := map[uint32]string{
		oidInt4:    "integer",
		oidFloat8:  "double",
		oidText:    "string",
		oidBool:    "boolean",
		oidBytea:   "bytes",
		oidNumeric: "double",
	}
	for oid, want := range cases {
		if got := portableTypeForOID(oid); got != want {
			t.Errorf("portableTypeForOID(%d) = %q, want %q", oid, got, want)
		}
	}
}

func TestRequirePoolBeforeInit(t *testing.T) {
	a := New(Options{})
	if _, err := a.Query(context.Background(), "SELECT 1", nil); vterrors.CodeOf(err) != vterrors.CodeNotReady {
		t.Fatalf("expected NOT_READY before Init, got %v", err)
	}
}

func TestBeginRejectsReadUncommittedWithoutDowngrade(t *testing.T) {
	a := New(Options{})
	a.state = storage.StateReady // bypass a real connection for this unit-level check
	_, err := a.Begin(context.Background(), storage.TransactionOptions{Isolation: storage.ReadUncommitted})
	if vterrors.CodeOf(err) != vterrors.CodeUnsupportedSQL {
		t.Fatalf("expected UNSUPPORTED_SQL, got %v", err)
	}
}
