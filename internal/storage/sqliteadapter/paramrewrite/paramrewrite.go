// Package paramrewrite implements the Param Rewriter of this package:
// rewriting Postgres-style "$n" (and named "$name") placeholders to
// SQLite's positional "?", scanning outside string literals and quoted
// identifiers via the shared internal/sqltext lexer.
package paramrewrite

import (
	"strconv"
	"strings"

	"github.com/dreamware/vshard/internal/sqltext"
	"github.com/dreamware/vshard/internal/vterrors"
)

// Rewrite scans sql outside string literals/quoted identifiers and
// replaces every "$n"/"$name" placeholder with "?", building the output
// parameter list by picking from params in left-to-right occurrence
// order. params may be a []any (positional, $n selects params[n-1]) or a
// map[string]any (named, $name resolves by key — positional $n is then
// an error since there is no ordinal params slice).
//
// $0 is a hard INVALID_PLACEHOLDER error. A $n with no corresponding
// params[n-1] is a hard MISSING_PARAM error. A repeated $n contributes
// its value again each time it occurs, in order. Literal "?" already
// present in sql passes through unchanged.
func Rewrite(sql string, params any) (string, []any, error) {
	positional, named, err := splitParams(params)
	if err != nil {
		return "", nil, err
	}

	var out strings.Builder
	var outParams []any
	for _, tok := range sqltext.Scan(sql) {
		if tok.Kind != sqltext.Code {
			out.WriteString(tok.Text)
			continue
		}
		rewritten, vals, err := rewriteCode(tok.Text, positional, named)
		if err != nil {
			return "", nil, err
		}
		out.WriteString(rewritten)
		outParams = append(outParams, vals...)
	}
	return out.String(), outParams, nil
}

func splitParams(params any) ([]any, map[string]any, error) {
	switch p := params.(type) {
	case nil:
		return nil, nil, nil
	case []any:
		return p, nil, nil
	case map[string]any:
		return nil, p, nil
	default:
		return nil, nil, vterrors.New(vterrors.CodeMissingParam, "paramrewrite: params must be a slice or a name->value map")
	}
}

func rewriteCode(s string, positional []any, named map[string]any) (string, []any, error) {
	var out strings.Builder
	var vals []any
	i := 0
	n := len(s)
	for i < n {
		if s[i] != '$' || i+1 >= n {
			out.WriteByte(s[i])
			i++
			continue
		}
		j := i + 1
		for j < n && (isDigit(s[j])) {
			j++
		}
		if j > i+1 {
			// $n numeric placeholder
			num, _ := strconv.Atoi(s[i+1 : j])
			if num == 0 {
				return "", nil, vterrors.New(vterrors.CodeInvalidPlaceholder, "paramrewrite: $0 is not a valid placeholder")
			}
			if named != nil {
				return "", nil, vterrors.New(vterrors.CodeInvalidPlaceholder, "paramrewrite: positional $n placeholder used with named params")
			}
			if num > len(positional) {
				return "", nil, vterrors.Newf(vterrors.CodeMissingParam, "paramrewrite: missing param for $%d", num)
			}
			out.WriteByte('?')
			vals = append(vals, positional[num-1])
			i = j
			continue
		}
		k := j
		for k < n && isIdentByte(s[k]) {
			k++
		}
		if k > j {
			name := s[j:k]
			if named == nil {
				return "", nil, vterrors.Newf(vterrors.CodeInvalidPlaceholder, "paramrewrite: named placeholder $%s used without a params map", name)
			}
			v, ok := named[name]
			if !ok {
				return "", nil, vterrors.Newf(vterrors.CodeMissingParam, "paramrewrite: missing param for $%s", name)
			}
			out.WriteByte('?')
			vals = append(vals, v)
			i = k
			continue
		}
		out.WriteByte(s[i])
		i++
	}
	return out.String(), vals, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
