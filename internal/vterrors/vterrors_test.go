package vterrors

import (
	"errors"
	"testing"
)

func TestWithShardWrapsPlainError(t *testing.T) {
	err := WithShard("80-", errors.New("boom"))
	var ve *Error
	if !errors.As(err, &ve) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if ve.Shard != "80-" {
		t.Fatalf("shard = %q, want 80-", ve.Shard)
	}
	if ve.Code != CodeShardUnavailable {
		t.Fatalf("code = %v, want CodeShardUnavailable", ve.Code)
	}
}

func TestWithShardPreservesCode(t *testing.T) {
	inner := New(CodeConstraintViolation, "dup key")
	err := WithShard("-80", inner)
	if CodeOf(err) != CodeConstraintViolation {
		t.Fatalf("code = %v, want CodeConstraintViolation", CodeOf(err))
	}
}

func TestAggregateReturnsFirstError(t *testing.T) {
	e1 := errors.New("first")
	e2 := errors.New("second")
	if got := Aggregate([]error{nil, e1, e2}); got != e1 {
		t.Fatalf("Aggregate = %v, want %v", got, e1)
	}
	if got := Aggregate([]error{nil, nil}); got != nil {
		t.Fatalf("Aggregate = %v, want nil", got)
	}
}

func TestFatalVsRetryable(t *testing.T) {
	if !IsFatal(CodeUnsupportedSQL) {
		t.Error("UNSUPPORTED_SQL should be fatal")
	}
	if IsFatal(CodeConnectionError) {
		t.Error("CONNECTION_ERROR should not be fatal")
	}
	if !IsRetryable(CodeTimeout) {
		t.Error("TIMEOUT should be retryable")
	}
	if IsRetryable(CodeConstraintViolation) {
		t.Error("CONSTRAINT_VIOLATION should never be retried")
	}
}
