package storage

import (
	"testing"

	"github.com/dreamware/vshard/internal/vterrors"
)

func TestClassifyBySQLState(t *testing.T) {
	cases := map[string]vterrors.Code{
		"23505": vterrors.CodeConstraintViolation,
		"42601": vterrors.CodeSyntaxError,
		"42883": vterrors.CodeQueryError,
		"22001": vterrors.CodeTypeError,
		"HY000": vterrors.CodeQueryError,
		"":      vterrors.CodeQueryError,
	}
	for sqlState, want := range cases {
		if got := ClassifyBySQLState(sqlState); got != want {
			t.Errorf("ClassifyBySQLState(%q) = %v, want %v", sqlState, got, want)
		}
	}
}

func TestStateStringer(t *testing.T) {
	if StateReady.String() != "ready" {
		t.Fatalf("got %q", StateReady.String())
	}
	if TxTimedOut.String() != "timed_out" {
		t.Fatalf("got %q", TxTimedOut.String())
	}
}
