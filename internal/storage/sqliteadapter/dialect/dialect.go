// Package dialect implements a Postgres→SQLite dialect translator: a
// string-literal-and-quoted-identifier-aware rewriter from a pragmatic
// subset of Postgres SQL to SQLite SQL. It shares its
// lexical primitives with internal/sqlparser via internal/sqltext, so
// string literals and quoted identifiers are never touched by the
// rewrite rules below.
package dialect

import (
	"regexp"
	"strings"

	"github.com/dreamware/vshard/internal/sqltext"
	"github.com/dreamware/vshard/internal/vterrors"
)

// Options configures a Translator.
type Options struct {
	// StrictRegex, when true, makes Translate reject `~` patterns that
	// use true regex metacharacters GLOB cannot express (anything
	// outside `*`, `?`, `[...]`), rather than silently under/over-
	// matching.
	StrictRegex bool
}

// regexMetacharsNotInGlob matches a regex metacharacter that GLOB has no
// equivalent for: anchors, quantifiers, alternation, groups, escapes.
var regexMetacharsNotInGlob = regexp.MustCompile(`[+^$|(){}\\]`)

// Translate rewrites sql from the Postgres-compatible subset this engine
// accepts into SQLite SQL. It is idempotent: translating already-translated
// SQL is a no-op.
func Translate(sql string, opts Options) (string, error) {
	tokens := sqltext.Scan(sql)
	var out strings.Builder
	afterTilde := false
	for _, tok := range tokens {
		if tok.Kind != sqltext.Code {
			if opts.StrictRegex && afterTilde && tok.Kind == sqltext.StringLiteral &&
				regexMetacharsNotInGlob.MatchString(sqltext.StripQuotes(tok.Text)) {
				return "", vterrors.New(vterrors.CodeUnsupportedSQL, "dialect: ~ pattern uses a regex feature GLOB cannot express (strict mode)")
			}
			out.WriteString(tok.Text)
			continue
		}
		afterTilde = strings.HasSuffix(strings.TrimSpace(tok.Text), "~")
		rewritten, err := translateCode(tok.Text, opts)
		if err != nil {
			return "", err
		}
		out.WriteString(rewritten)
	}
	return out.String(), nil
}

// translateCode applies every rewrite rule to a single Code span (text
// guaranteed to contain no string literals, quoted identifiers, or
// comments).
func translateCode(s string, opts Options) (string, error) {
	s = rewriteTypes(s)
	s = rewriteValuesAndOperators(s)
	s, err := rewriteTildeOperator(s, opts)
	if err != nil {
		return "", err
	}
	s = rewriteCastOperator(s)
	s = rewriteAnyArray(s)
	s = rewriteFetchFirst(s)
	s = rewriteAddColumnIfNotExists(s)
	return s, nil
}

var typeRewrites = []struct {
	pattern *regexp.Regexp
	replace string
}{
	{regexp.MustCompile(`(?i)\bVARCHAR\s*\([^)]*\)`), "TEXT"},
	{regexp.MustCompile(`(?i)\bCHAR\s*\([^)]*\)`), "TEXT"},
	{regexp.MustCompile(`(?i)\bBOOLEAN\b`), "INTEGER"},
	{regexp.MustCompile(`(?i)\bTIMESTAMP\s+WITH\s+TIME\s+ZONE\b`), "TEXT"},
	{regexp.MustCompile(`(?i)\bTIMESTAMPTZ\b`), "TEXT"},
	{regexp.MustCompile(`(?i)\bTIMESTAMP\b`), "TEXT"},
	{regexp.MustCompile(`(?i)\bTIMETZ\b`), "TEXT"},
	{regexp.MustCompile(`(?i)\bTIME\b`), "TEXT"},
	{regexp.MustCompile(`(?i)\bDATE\b`), "TEXT"},
	{regexp.MustCompile(`(?i)\bUUID\b`), "TEXT"},
	{regexp.MustCompile(`(?i)\bJSONB\b`), "TEXT"},
	{regexp.MustCompile(`(?i)\bJSON\b`), "TEXT"},
	{regexp.MustCompile(`(?i)\bBYTEA\b`), "BLOB"},
	{regexp.MustCompile(`(?i)\bDOUBLE\s+PRECISION\b`), "REAL"},
	{regexp.MustCompile(`(?i)\bNUMERIC\s*\([^)]*\)`), "REAL"},
	{regexp.MustCompile(`(?i)\bDECIMAL\s*\([^)]*\)`), "REAL"},
	{regexp.MustCompile(`(?i)\bNUMERIC\b`), "REAL"},
	{regexp.MustCompile(`(?i)\bDECIMAL\b`), "REAL"},
	{regexp.MustCompile(`(?i)\bBIGINT\b`), "INTEGER"},
	{regexp.MustCompile(`(?i)\bSMALLINT\b`), "INTEGER"},
}

var serialPattern = regexp.MustCompile(`(?i)\b(BIGSERIAL|SMALLSERIAL|SERIAL)\b`)
var primaryKeyPattern = regexp.MustCompile(`(?i)\bPRIMARY\s+KEY\b`)

// rewriteTypes applies the whole-word, case-insensitive type rewrites.
// SERIAL/BIGSERIAL/SMALLSERIAL need column-scoped context (is this
// column declared PRIMARY KEY?) so they're handled column by column,
// splitting on top-level commas; every other type rewrite is a
// context-free regex substitution.
func rewriteTypes(s string) string {
	s = rewriteSerialPerColumn(s)
	for _, r := range typeRewrites {
		s = r.pattern.ReplaceAllString(s, r.replace)
	}
	return s
}

// rewriteSerialPerColumn finds each SERIAL-family keyword and looks at
// the rest of its column definition (up to the next top-level comma or
// closing paren) for PRIMARY KEY. If found, the serial keyword becomes
// "INTEGER PRIMARY KEY AUTOINCREMENT" and the later explicit "PRIMARY
// KEY" is removed to avoid declaring it twice; otherwise the keyword
// becomes plain "INTEGER".
func rewriteSerialPerColumn(s string) string {
	for {
		loc := serialPattern.FindStringIndex(s)
		if loc == nil {
			return s
		}
		end := columnDefEnd(s, loc[1])
		rest := s[loc[1]:end]
		if pkLoc := primaryKeyPattern.FindStringIndex(rest); pkLoc != nil {
			rewritten := rest[:pkLoc[0]] + rest[pkLoc[1]:]
			s = s[:loc[0]] + "INTEGER PRIMARY KEY AUTOINCREMENT" + rewritten + s[end:]
		} else {
			s = s[:loc[0]] + "INTEGER" + s[loc[1]:]
		}
	}
}

// columnDefEnd returns the index of the next top-level (paren-depth 0
// relative to start) comma or the end of the string, starting from i.
func columnDefEnd(s string, i int) int {
	depth := 0
	for j := i; j < len(s); j++ {
		switch s[j] {
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return j
			}
			depth--
		case ',':
			if depth == 0 {
				return j
			}
		}
	}
	return len(s)
}

var (
	truePattern      = regexp.MustCompile(`(?i)\bTRUE\b`)
	falsePattern     = regexp.MustCompile(`(?i)\bFALSE\b`)
	nowPattern       = regexp.MustCompile(`(?i)\bNOW\s*\(\s*\)`)
	curTsPattern     = regexp.MustCompile(`(?i)\bCURRENT_TIMESTAMP\b`)
	extractEpoch     = regexp.MustCompile(`(?i)\bEXTRACT\s*\(\s*EPOCH\s+FROM\s+([^)]+)\)`)
	genRandomUUID    = regexp.MustCompile(`(?i)\bGEN_RANDOM_UUID\s*\(\s*\)`)
	ilikePattern     = regexp.MustCompile(`(?i)\bILIKE\b`)
)

func rewriteValuesAndOperators(s string) string {
	s = truePattern.ReplaceAllString(s, "1")
	s = falsePattern.ReplaceAllString(s, "0")
	s = nowPattern.ReplaceAllString(s, "datetime('now')")
	s = curTsPattern.ReplaceAllString(s, "datetime('now')")
	s = extractEpoch.ReplaceAllString(s, "strftime('%s', $1)")
	s = genRandomUUID.ReplaceAllString(s, "lower(hex(randomblob(16)))")
	s = ilikePattern.ReplaceAllString(s, "LIKE")
	return s
}

var tildePattern = regexp.MustCompile(`~`)

// rewriteTildeOperator translates the `~` regex-match operator to GLOB:
// GLOB's `*`/`?` wildcards are a closer semantic match to POSIX regex
// metacharacters than LIKE's `%`/`_`. When opts.StrictRegex is set, any
// occurrence followed later in the same comparison by a regex
// metacharacter GLOB cannot express is rejected rather than silently
// mistranslated.
func rewriteTildeOperator(s string, opts Options) (string, error) {
	if !strings.Contains(s, "~") {
		return s, nil
	}
	if opts.StrictRegex {
		idx := tildePattern.FindAllStringIndex(s, -1)
		for _, loc := range idx {
			rest := s[loc[1]:]
			end := strings.IndexAny(rest, ",)")
			if end < 0 {
				end = len(rest)
			}
			if regexMetacharsNotInGlob.MatchString(rest[:end]) {
				return "", vterrors.New(vterrors.CodeUnsupportedSQL, "dialect: ~ pattern uses a regex feature GLOB cannot express (strict mode)")
			}
		}
	}
	return tildePattern.ReplaceAllString(s, "GLOB"), nil
}

var castPattern = regexp.MustCompile(`([A-Za-z0-9_"'\).]+)\s*::\s*([A-Za-z0-9_]+)`)

func rewriteCastOperator(s string) string {
	return castPattern.ReplaceAllString(s, "CAST($1 AS $2)")
}

var anyArrayPattern = regexp.MustCompile(`(?i)=\s*ANY\s*\(\s*ARRAY\s*\[([^\]]*)\]\s*\)`)

func rewriteAnyArray(s string) string {
	return anyArrayPattern.ReplaceAllString(s, "IN ($1)")
}

var fetchFirstPattern = regexp.MustCompile(`(?i)\bFETCH\s+FIRST\s+(\d+)\s+ROWS?\s+ONLY\b`)

func rewriteFetchFirst(s string) string {
	return fetchFirstPattern.ReplaceAllString(s, "LIMIT $1")
}

var addColumnIfNotExists = regexp.MustCompile(`(?i)(\bADD\s+COLUMN\b)\s+IF\s+NOT\s+EXISTS\b`)

// rewriteAddColumnIfNotExists strips "IF NOT EXISTS" from ALTER TABLE ...
// ADD COLUMN, which SQLite does not support; a subsequent
// duplicate-column failure surfaces as a normal QUERY_ERROR.
func rewriteAddColumnIfNotExists(s string) string {
	return addColumnIfNotExists.ReplaceAllString(s, "$1")
}
