// Package vterrors implements the shared error taxonomy used across the
// router, storage adapters, tablets and client. The codes and their
// fatal/retryable classification are defined below.
package vterrors

import (
	"errors"
	"fmt"
)

// Code is the closed set of wire-level error codes from the RPC protocol.
// It is a tagged variant, not an open hierarchy: every error the system
// raises across process boundaries carries exactly one of these.
type Code string

// The canonical error codes, as specified on the wire.
const (
	CodeConnectionError       Code = "CONNECTION_ERROR"
	CodeQueryError            Code = "QUERY_ERROR"
	CodeTransactionError      Code = "TRANSACTION_ERROR"
	CodeTypeError             Code = "TYPE_ERROR"
	CodeConstraintViolation   Code = "CONSTRAINT_VIOLATION"
	CodeSyntaxError           Code = "SYNTAX_ERROR"
	CodeNotReady              Code = "NOT_READY"
	CodeAlreadyClosed         Code = "ALREADY_CLOSED"
	CodeShardingKeyRequired   Code = "SHARDING_KEY_REQUIRED"
	CodeUnsupportedSQL        Code = "UNSUPPORTED_SQL"
	CodeNoKeyspace            Code = "NO_KEYSPACE"
	CodeTableNotFound         Code = "TABLE_NOT_FOUND"
	CodeShardUnavailable      Code = "SHARD_UNAVAILABLE"
	CodeDeadlockDetected      Code = "DEADLOCK_DETECTED"
	CodeUniqueViolation       Code = "UNIQUE_VIOLATION"
	CodeForeignKeyViolation   Code = "FOREIGN_KEY_VIOLATION"
	CodeNotNullViolation      Code = "NOT_NULL_VIOLATION"
	CodeTimeout               Code = "TIMEOUT"
	CodeInvalidPlaceholder    Code = "INVALID_PLACEHOLDER"
	CodeMissingParam          Code = "MISSING_PARAM"
)

// fatalCodes are permanent for a given input: retrying the same request
// unchanged can never succeed.
var fatalCodes = map[Code]bool{
	CodeAlreadyClosed:       true,
	CodeUnsupportedSQL:      true,
	CodeShardingKeyRequired: true,
	CodeInvalidPlaceholder:  true,
	CodeNoKeyspace:          true,
	CodeTableNotFound:       true,
}

// IsFatal reports whether code is permanent for its input — retrying
// the same request would just fail the same way again.
func IsFatal(code Code) bool { return fatalCodes[code] }

// IsRetryable reports whether code is retryable at the client boundary.
func IsRetryable(code Code) bool {
	switch code {
	case CodeConnectionError, CodeTimeout:
		return true
	default:
		return false
	}
}

// Error is the concrete error type carried across every boundary in the
// system: storage adapters raise it, tablets pass it through unchanged,
// the router adds shard context, and the RPC layer serializes it as an
// ERROR message.
type Error struct {
	// Cause is the underlying error, if any (driver error, network fault).
	Cause error
	// Message is a human-readable description.
	Message string
	// SQLState is the engine-native SQLSTATE or error code, when known.
	SQLState string
	// Shard is set once a router wraps a per-shard failure with context.
	Shard string
	// Code is the canonical wire error code.
	Code Code
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that records cause as the underlying error.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Code) + ": " + e.Message
	if e.Shard != "" {
		msg = "shard " + e.Shard + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap allows errors.Is/errors.As to see through to Cause.
func (e *Error) Unwrap() error { return e.Cause }

// WithShard returns a copy of err tagged with the originating shard. If err
// is not an *Error it is wrapped as a CodeShardUnavailable error first.
func WithShard(shard string, err error) error {
	if err == nil {
		return nil
	}
	var ve *Error
	if errors.As(err, &ve) {
		cp := *ve
		cp.Shard = shard
		return &cp
	}
	return &Error{Code: CodeShardUnavailable, Message: err.Error(), Cause: err, Shard: shard}
}

// CodeOf extracts the Code from err, defaulting to CodeQueryError for
// errors that did not originate from this package.
func CodeOf(err error) Code {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Code
	}
	return CodeQueryError
}

// Aggregate combines multiple per-shard errors into one, surfacing the
// first non-nil failure — grounded on jayonlau-vitess's
// vterrors.Aggregate(errs) call in go/vt/vtgate/engine/route.go.
func Aggregate(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
