package sqlparser

import "testing"

func TestParseSelectWithEqualityAndLimit(t *testing.T) {
	s := Parse(`SELECT * FROM users WHERE id = $1 LIMIT 10 OFFSET 5`)
	if s.Kind != Select {
		t.Fatalf("kind = %v, want Select", s.Kind)
	}
	if s.Table != "users" {
		t.Fatalf("table = %q", s.Table)
	}
	eq, ok := s.PrimaryEquality()
	if !ok || eq.Column != "id" {
		t.Fatalf("equality = %+v", eq)
	}
	ph, ok := eq.Value.(*Placeholder)
	if !ok || ph.N != 1 {
		t.Fatalf("value = %+v, want placeholder 1", eq.Value)
	}
	if !s.HasLimit || s.Limit != 10 {
		t.Fatalf("limit = %v/%v", s.HasLimit, s.Limit)
	}
	if !s.HasOffset || s.Offset != 5 {
		t.Fatalf("offset = %v/%v", s.HasOffset, s.Offset)
	}
}

func TestParseQualifiedTableAndQuotedIdent(t *testing.T) {
	s := Parse(`SELECT * FROM ks1.users`)
	if s.Keyspace != "ks1" || s.Table != "users" {
		t.Fatalf("keyspace/table = %q/%q", s.Keyspace, s.Table)
	}

	s2 := Parse("SELECT * FROM \"My Table\"")
	if s2.Table != "My Table" {
		t.Fatalf("table = %q, want quote-stripped", s2.Table)
	}
}

func TestParseIgnoresCommentsAndStringPlaceholders(t *testing.T) {
	s := Parse(`SELECT * FROM t -- $9 is not a placeholder here
WHERE name = '$1 literal' AND id = $2`)
	if len(s.Equalities) != 2 {
		t.Fatalf("expected 2 equalities, got %d: %+v", len(s.Equalities), s.Equalities)
	}
	if s.Equalities[0].Value != "$1 literal" {
		t.Fatalf("string equality value = %+v, want literal text", s.Equalities[0].Value)
	}
	ph, ok := s.Equalities[1].Value.(*Placeholder)
	if !ok || ph.N != 2 {
		t.Fatalf("second equality = %+v, want placeholder 2", s.Equalities[1].Value)
	}
}

func TestParseAggregates(t *testing.T) {
	s := Parse(`SELECT COUNT(*), SUM(amount), name FROM orders`)
	if len(s.Aggregates) != 2 || s.Aggregates[0] != AggCount || s.Aggregates[1] != AggSum {
		t.Fatalf("aggregates = %+v", s.Aggregates)
	}
}

func TestParseOrderBy(t *testing.T) {
	s := Parse(`SELECT * FROM t ORDER BY a ASC, b DESC`)
	want := []OrderTerm{{Column: "a", Desc: false}, {Column: "b", Desc: true}}
	if len(s.OrderBy) != 2 || s.OrderBy[0] != want[0] || s.OrderBy[1] != want[1] {
		t.Fatalf("orderBy = %+v, want %+v", s.OrderBy, want)
	}
}

func TestParseInsertValues(t *testing.T) {
	s := Parse(`INSERT INTO users (id, name) VALUES ($1, 'bob')`)
	if s.Kind != Insert || s.Table != "users" {
		t.Fatalf("kind/table = %v/%q", s.Kind, s.Table)
	}
	v, ok := s.InsertValue("id")
	if !ok {
		t.Fatal("expected to find id column")
	}
	ph, ok := v.(*Placeholder)
	if !ok || ph.N != 1 {
		t.Fatalf("id value = %+v", v)
	}
	nameVal, ok := s.InsertValue("name")
	if !ok || nameVal != "bob" {
		t.Fatalf("name value = %+v", nameVal)
	}
}

func TestParseUpdateAndDelete(t *testing.T) {
	u := Parse(`UPDATE users SET name = 'x' WHERE id = 5`)
	if u.Kind != Update || u.Table != "users" {
		t.Fatalf("update kind/table = %v/%q", u.Kind, u.Table)
	}
	eq, ok := u.PrimaryEquality()
	if !ok || eq.Column != "id" || eq.Value != int64(5) {
		t.Fatalf("update equality = %+v", eq)
	}

	d := Parse(`DELETE FROM users WHERE id = 7`)
	if d.Kind != Delete || d.Table != "users" {
		t.Fatalf("delete kind/table = %v/%q", d.Kind, d.Table)
	}
}

func TestParseUnrecognizedStatementIsOther(t *testing.T) {
	s := Parse(`EXPLAIN SELECT * FROM t`)
	if s.Kind != Other {
		t.Fatalf("kind = %v, want Other", s.Kind)
	}
}
