package storage

import (
	"strings"
	"time"

	"github.com/dreamware/vshard/internal/vterrors"
)

// ClassifyBySQLState maps a SQLSTATE-style 5-char code to a wire error
// code using the prefix rules below. pgadapter uses it; sqliteadapter
// classifies SQLite errors by their message text instead.
func ClassifyBySQLState(sqlState string) vterrors.Code {
	switch {
	case strings.HasPrefix(sqlState, "23"):
		return vterrors.CodeConstraintViolation
	case sqlState == "42601":
		return vterrors.CodeSyntaxError
	case strings.HasPrefix(sqlState, "42"):
		return vterrors.CodeQueryError
	case strings.HasPrefix(sqlState, "22"):
		return vterrors.CodeTypeError
	default:
		return vterrors.CodeQueryError
	}
}

// since returns the elapsed time since start in whole milliseconds, for
// populating DurationMs on QueryResult/ExecuteResult.
func since(start time.Time) int64 {
	return now().Sub(start).Milliseconds()
}
