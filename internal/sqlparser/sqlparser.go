// Package sqlparser implements the "mini" SQL parser of this package: a
// pragmatic, comment/string/identifier-aware scanner sufficient for
// routing decisions. It is deliberately NOT a general SQL parser — see
// DESIGN.md for why a real grammar (e.g. vitess's own ANTLR-derived
// sqlparser) is out of proportion to this job.
package sqlparser

import (
	"strconv"
	"strings"

	"github.com/dreamware/vshard/internal/sqltext"
)

// StatementKind classifies the statement's top-level verb.
type StatementKind int

const (
	// Other is any statement this parser does not classify; the router
	// rejects it with an "unsupported SQL" error.
	Other StatementKind = iota
	Select
	Insert
	Update
	Delete
)

// Aggregate is one of the recognized SELECT aggregate functions.
type Aggregate string

const (
	AggCount Aggregate = "COUNT"
	AggSum   Aggregate = "SUM"
	AggAvg   Aggregate = "AVG"
	AggMin   Aggregate = "MIN"
	AggMax   Aggregate = "MAX"
)

// OrderTerm is one ORDER BY clause element.
type OrderTerm struct {
	Column string
	Desc   bool
}

// Equality is a single "<column> = <value>" test extracted from WHERE.
// Value is one of: a *Placeholder (for $n), a string, an int64, or nil if
// the equality's right-hand side could not be resolved to a literal.
type Equality struct {
	Column string
	Value  any
}

// Placeholder is a resolved "$n" parameter reference; the caller
// substitutes params[N-1] to obtain the bound value.
type Placeholder struct{ N int }

// InsertColumn pairs a column name from an INSERT's column list with its
// corresponding VALUES expression (same shape as Equality.Value).
type InsertColumn struct {
	Column string
	Value  any
}

// Statement is the parsed result: everything the router needs and
// nothing else. Fields not applicable to Kind are left zero.
type Statement struct {
	Kind StatementKind

	// Keyspace is the qualifier in "keyspace.table", empty if unqualified.
	Keyspace string
	// Table is the table name, quote-stripped, case preserved.
	Table string

	// Equalities are every top-level "<col> = <val>" test found in WHERE,
	// in source order; routing only requires the first, but the
	// router also consults secondary-vindex columns so all are kept.
	Equalities []Equality

	// Aggregates are the aggregate functions present in a SELECT list.
	Aggregates []Aggregate

	OrderBy []OrderTerm

	Limit      int64
	HasLimit   bool
	Offset     int64
	HasOffset  bool

	// InsertColumns holds the column/value pairs of an INSERT's column
	// list and VALUES tuple, in order, for INSERT statements only.
	InsertColumns []InsertColumn
}

// PrimaryEquality returns the first WHERE equality, or false if there
// is none.
func (s *Statement) PrimaryEquality() (Equality, bool) {
	if len(s.Equalities) == 0 {
		return Equality{}, false
	}
	return s.Equalities[0], true
}

// InsertValue returns the VALUES expression bound to column in an
// INSERT statement.
func (s *Statement) InsertValue(column string) (any, bool) {
	for _, ic := range s.InsertColumns {
		if strings.EqualFold(ic.Column, column) {
			return ic.Value, true
		}
	}
	return nil, false
}

// Parse extracts a Statement from sql. It never returns an error:
// anything it cannot classify comes back as Kind == Other.
func Parse(sql string) *Statement {
	toks := codeTokens(sql)
	p := &parser{toks: toks}
	return p.parseStatement()
}

// codeTokens scans sql and returns only the lexemes that matter to
// routing: whitespace-trimmed, non-empty code words, and whole string
// literals/quoted identifiers as single lexemes. Comments are dropped
// entirely.
func codeTokens(sql string) []lexeme {
	var out []lexeme
	for _, tok := range sqltext.Scan(sql) {
		switch tok.Kind {
		case sqltext.LineComment, sqltext.BlockComment:
			continue
		case sqltext.StringLiteral:
			out = append(out, lexeme{text: tok.Text, kind: lexString})
		case sqltext.QuotedIdent:
			out = append(out, lexeme{text: tok.Text, kind: lexQuotedIdent})
		case sqltext.Code:
			out = append(out, splitCode(tok.Text)...)
		}
	}
	return out
}

type lexKind int

const (
	lexWord lexKind = iota
	lexPunct
	lexString
	lexQuotedIdent
	lexPlaceholder
)

type lexeme struct {
	text string
	kind lexKind
}

// splitCode tokenizes a plain-code span into words, punctuation and "$n"
// placeholders, on whitespace and symbol boundaries.
func splitCode(s string) []lexeme {
	var out []lexeme
	i := 0
	n := len(s)
	isWordByte := func(c byte) bool {
		return c == '_' || c == '.' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
	}
	for i < n {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '$' && i+1 < n && s[i+1] >= '0' && s[i+1] <= '9':
			start := i + 1
			j := start
			for j < n && s[j] >= '0' && s[j] <= '9' {
				j++
			}
			out = append(out, lexeme{text: s[start:j], kind: lexPlaceholder})
			i = j
		case isWordByte(c):
			start := i
			for i < n && isWordByte(s[i]) {
				i++
			}
			out = append(out, lexeme{text: s[start:i], kind: lexWord})
		case c == '(' || c == ')' || c == ',' || c == '=' || c == '*':
			out = append(out, lexeme{text: string(c), kind: lexPunct})
			i++
		default:
			i++
		}
	}
	return out
}

// parser walks the lexeme stream with simple lookahead; it never errors,
// degrading to Kind == Other on anything it doesn't recognize.
type parser struct {
	toks []lexeme
	pos  int
}

func (p *parser) peek() (lexeme, bool) {
	if p.pos >= len(p.toks) {
		return lexeme{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) next() (lexeme, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

func (p *parser) peekWordIs(word string) bool {
	t, ok := p.peek()
	return ok && t.kind == lexWord && strings.EqualFold(t.text, word)
}

func (p *parser) consumeWord(word string) bool {
	if p.peekWordIs(word) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) consumePunct(punct string) bool {
	t, ok := p.peek()
	if ok && t.kind == lexPunct && t.text == punct {
		p.pos++
		return true
	}
	return false
}

func (p *parser) parseStatement() *Statement {
	first, ok := p.peek()
	if !ok || first.kind != lexWord {
		return &Statement{Kind: Other}
	}
	switch strings.ToUpper(first.text) {
	case "SELECT":
		p.pos++
		return p.parseSelect()
	case "INSERT":
		p.pos++
		return p.parseInsert()
	case "UPDATE":
		p.pos++
		return p.parseUpdate()
	case "DELETE":
		p.pos++
		return p.parseDelete()
	default:
		return &Statement{Kind: Other}
	}
}

func (p *parser) parseSelect() *Statement {
	stmt := &Statement{Kind: Select}
	stmt.Aggregates = p.scanAggregatesUntilFrom()
	if !p.consumeWord("FROM") {
		return stmt
	}
	stmt.Keyspace, stmt.Table = p.parseQualifiedName()
	if p.consumeWord("WHERE") {
		stmt.Equalities = p.parseEqualities()
	}
	if p.consumeWord("ORDER") {
		p.consumeWord("BY")
		stmt.OrderBy = p.parseOrderBy()
	}
	p.parseLimitOffset(stmt)
	return stmt
}

// scanAggregatesUntilFrom scans the SELECT list for aggregate function
// calls (case-insensitive name immediately followed by "("), stopping at
// the FROM keyword.
func (p *parser) scanAggregatesUntilFrom() []Aggregate {
	var aggs []Aggregate
	for {
		t, ok := p.peek()
		if !ok {
			return aggs
		}
		if t.kind == lexWord && strings.EqualFold(t.text, "FROM") {
			return aggs
		}
		if t.kind == lexWord {
			upper := strings.ToUpper(t.text)
			switch Aggregate(upper) {
			case AggCount, AggSum, AggAvg, AggMin, AggMax:
				if p.pos+1 < len(p.toks) && p.toks[p.pos+1].kind == lexPunct && p.toks[p.pos+1].text == "(" {
					aggs = append(aggs, Aggregate(upper))
				}
			}
		}
		p.pos++
	}
}

// parseQualifiedName parses a "keyspace.table" or bare "table" name,
// stripping quoting from each component but preserving case.
func (p *parser) parseQualifiedName() (keyspace, table string) {
	t, ok := p.next()
	if !ok {
		return "", ""
	}
	name := lexemeIdent(t)
	if !strings.Contains(name, ".") {
		return "", name
	}
	parts := strings.SplitN(name, ".", 2)
	return parts[0], parts[1]
}

func lexemeIdent(t lexeme) string {
	if t.kind == lexQuotedIdent {
		return sqltext.StripQuotes(t.text)
	}
	return t.text
}

// parseEqualities scans a WHERE clause for top-level "<word> = <value>"
// tests, joined implicitly by any boolean connective (AND/OR are not
// distinguished — routing only needs the set of equalities, not the
// clause's boolean structure).
func (p *parser) parseEqualities() []Equality {
	var out []Equality
	for {
		t, ok := p.peek()
		if !ok {
			return out
		}
		if t.kind == lexWord && (strings.EqualFold(t.text, "ORDER") || strings.EqualFold(t.text, "LIMIT") || strings.EqualFold(t.text, "OFFSET")) {
			return out
		}
		if (t.kind == lexWord || t.kind == lexQuotedIdent) && p.pos+1 < len(p.toks) {
			next := p.toks[p.pos+1]
			if next.kind == lexPunct && next.text == "=" && p.pos+2 < len(p.toks) {
				col := lexemeIdent(t)
				val := p.toks[p.pos+2]
				out = append(out, Equality{Column: col, Value: resolveValue(val)})
				p.pos += 3
				continue
			}
		}
		p.pos++
	}
}

func resolveValue(t lexeme) any {
	switch t.kind {
	case lexPlaceholder:
		n, _ := strconv.Atoi(t.text)
		return &Placeholder{N: n}
	case lexString:
		return sqltext.StripQuotes(t.text)
	case lexWord:
		if n, err := strconv.ParseInt(t.text, 10, 64); err == nil {
			return n
		}
		return t.text
	default:
		return nil
	}
}

func (p *parser) parseOrderBy() []OrderTerm {
	var terms []OrderTerm
	for {
		t, ok := p.peek()
		if !ok || t.kind != lexWord {
			return terms
		}
		if strings.EqualFold(t.text, "LIMIT") || strings.EqualFold(t.text, "OFFSET") {
			return terms
		}
		p.pos++
		term := OrderTerm{Column: lexemeIdent(t)}
		if p.consumeWord("DESC") {
			term.Desc = true
		} else {
			p.consumeWord("ASC")
		}
		terms = append(terms, term)
		if !p.consumePunct(",") {
			return terms
		}
	}
}

func (p *parser) parseLimitOffset(stmt *Statement) {
	for {
		if p.consumeWord("LIMIT") {
			if t, ok := p.next(); ok {
				if n, err := strconv.ParseInt(lexemeIdent(t), 10, 64); err == nil && n >= 0 {
					stmt.Limit, stmt.HasLimit = n, true
				}
			}
			continue
		}
		if p.consumeWord("OFFSET") {
			if t, ok := p.next(); ok {
				if n, err := strconv.ParseInt(lexemeIdent(t), 10, 64); err == nil && n >= 0 {
					stmt.Offset, stmt.HasOffset = n, true
				}
			}
			continue
		}
		return
	}
}

func (p *parser) parseInsert() *Statement {
	stmt := &Statement{Kind: Insert}
	if !p.consumeWord("INTO") {
		return stmt
	}
	stmt.Keyspace, stmt.Table = p.parseQualifiedName()
	var columns []string
	if p.consumePunct("(") {
		for {
			t, ok := p.next()
			if !ok {
				break
			}
			if t.kind == lexPunct && t.text == ")" {
				break
			}
			if t.kind == lexPunct && t.text == "," {
				continue
			}
			columns = append(columns, lexemeIdent(t))
		}
	}
	if !p.consumeWord("VALUES") {
		return stmt
	}
	if !p.consumePunct("(") {
		return stmt
	}
	var values []any
	for {
		t, ok := p.next()
		if !ok {
			break
		}
		if t.kind == lexPunct && t.text == ")" {
			break
		}
		if t.kind == lexPunct && t.text == "," {
			continue
		}
		values = append(values, resolveValue(t))
	}
	for i := 0; i < len(columns) && i < len(values); i++ {
		stmt.InsertColumns = append(stmt.InsertColumns, InsertColumn{Column: columns[i], Value: values[i]})
	}
	return stmt
}

func (p *parser) parseUpdate() *Statement {
	stmt := &Statement{Kind: Update}
	stmt.Keyspace, stmt.Table = p.parseQualifiedName()
	for {
		t, ok := p.peek()
		if !ok {
			return stmt
		}
		if t.kind == lexWord && strings.EqualFold(t.text, "WHERE") {
			p.pos++
			stmt.Equalities = p.parseEqualities()
			return stmt
		}
		p.pos++
	}
}

func (p *parser) parseDelete() *Statement {
	stmt := &Statement{Kind: Delete}
	if !p.consumeWord("FROM") {
		return stmt
	}
	stmt.Keyspace, stmt.Table = p.parseQualifiedName()
	if p.consumeWord("WHERE") {
		stmt.Equalities = p.parseEqualities()
	}
	return stmt
}
