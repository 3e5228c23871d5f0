// Package vschema holds the VSchema configuration document that binds
// tables to vindexes and keyspaces to shards. It is pure data plus
// validation; the Router consults it but does not own it.
package vschema

import (
	"encoding/json"

	"github.com/dreamware/vshard/internal/shardrange"
	"github.com/dreamware/vshard/internal/vterrors"
)

// VindexDef configures one named vindex within a keyspace.
type VindexDef struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// ColumnVindex binds one or more columns to a named vindex, in the order
// a TableDef declares its bindings. The first binding for a table is its
// primary vindex. Column is used for a single-column binding; Columns
// for a composite one: {column | columns, name}.
type ColumnVindex struct {
	Column  string   `json:"column,omitempty"`
	Columns []string `json:"columns,omitempty"`
	Name    string   `json:"name"`
}

// ShardingColumn returns the column this binding routes on: Column if
// set, else the first of Columns.
func (c ColumnVindex) ShardingColumn() string {
	if c.Column != "" {
		return c.Column
	}
	if len(c.Columns) > 0 {
		return c.Columns[0]
	}
	return ""
}

// AutoIncrement configures a sequence-backed auto-increment column.
type AutoIncrement struct {
	Column   string `json:"column"`
	Sequence string `json:"sequence"`
}

// TableDef lists a table's column↔vindex bindings in order; the first
// entry is its primary vindex.
type TableDef struct {
	ColumnVindexes []ColumnVindex `json:"column_vindexes,omitempty"`
	AutoIncrement  *AutoIncrement `json:"auto_increment,omitempty"`
}

// PrimaryVindex returns the table's first column↔vindex binding, the one
// consulted for routing, or false if the table declares none.
func (t TableDef) PrimaryVindex() (ColumnVindex, bool) {
	if len(t.ColumnVindexes) == 0 {
		return ColumnVindex{}, false
	}
	return t.ColumnVindexes[0], true
}

// SecondaryVindexFor returns the column↔vindex binding (if any, other
// than the primary) for column, case-insensitively.
func (t TableDef) SecondaryVindexFor(column string) (ColumnVindex, bool) {
	for i, cv := range t.ColumnVindexes {
		if i == 0 {
			continue
		}
		if equalFold(cv.ShardingColumn(), column) {
			return cv, true
		}
	}
	return ColumnVindex{}, false
}

// Keyspace is one logical database: a sharding flag, its shard list (for
// sharded keyspaces), its named vindexes, and its tables.
type Keyspace struct {
	Sharded  bool                 `json:"sharded"`
	Shards   []string             `json:"shards,omitempty"`
	Vindexes map[string]VindexDef `json:"vindexes,omitempty"`
	Tables   map[string]TableDef  `json:"tables"`
}

// Document is the full VSchema configuration document, keyed by keyspace
// name.
type Document struct {
	Keyspaces map[string]Keyspace `json:"keyspaces"`
}

// Parse decodes a VSchema document from JSON and validates it.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, vterrors.Wrap(vterrors.CodeSyntaxError, err, "vschema: invalid JSON")
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks the invariants of this package: a sharded keyspace's
// shard list must partition the keyspace with no gaps or overlaps, and
// every table on a sharded keyspace must declare at least one
// column↔vindex binding whose referenced vindex is defined.
func (d *Document) Validate() error {
	for ksName, ks := range d.Keyspaces {
		if ks.Sharded {
			if err := d.validateShardList(ksName, ks); err != nil {
				return err
			}
		}
		for tableName, table := range ks.Tables {
			if !ks.Sharded {
				continue
			}
			if len(table.ColumnVindexes) == 0 {
				return vterrors.Newf(vterrors.CodeNoKeyspace, "vschema: sharded keyspace %q table %q declares no column_vindexes", ksName, tableName)
			}
			for _, cv := range table.ColumnVindexes {
				if _, ok := ks.Vindexes[cv.Name]; !ok {
					return vterrors.Newf(vterrors.CodeNoKeyspace, "vschema: keyspace %q table %q references undefined vindex %q", ksName, tableName, cv.Name)
				}
			}
		}
	}
	return nil
}

func (d *Document) validateShardList(ksName string, ks Keyspace) error {
	if len(ks.Shards) == 0 {
		return vterrors.Newf(vterrors.CodeNoKeyspace, "vschema: sharded keyspace %q declares no shards", ksName)
	}
	ranges := make([]shardrange.Range, 0, len(ks.Shards))
	for _, s := range ks.Shards {
		r, err := shardrange.Parse(s)
		if err != nil {
			return vterrors.Wrap(vterrors.CodeNoKeyspace, err, "vschema: keyspace "+ksName)
		}
		ranges = append(ranges, r)
	}
	if err := shardrange.Partition(ranges); err != nil {
		return vterrors.Wrap(vterrors.CodeNoKeyspace, err, "vschema: keyspace "+ksName)
	}
	return nil
}

// KeyspaceForTable resolves the target keyspace for a possibly-qualified
// table reference: explicit qualifier wins; else the one keyspace
// containing the table; else the sole configured keyspace; else
// NO_KEYSPACE (also when more than one keyspace contains the table).
func (d *Document) KeyspaceForTable(qualifier, table string) (name string, ks Keyspace, err error) {
	if qualifier != "" {
		k, ok := d.Keyspaces[qualifier]
		if !ok {
			return "", Keyspace{}, vterrors.Newf(vterrors.CodeNoKeyspace, "vschema: no keyspace %q", qualifier)
		}
		return qualifier, k, nil
	}
	var found []string
	for name, k := range d.Keyspaces {
		if _, ok := k.Tables[table]; ok {
			found = append(found, name)
		}
	}
	if len(found) == 1 {
		return found[0], d.Keyspaces[found[0]], nil
	}
	if len(found) == 0 && len(d.Keyspaces) == 1 {
		for name, k := range d.Keyspaces {
			return name, k, nil
		}
	}
	if len(found) == 0 {
		return "", Keyspace{}, vterrors.Newf(vterrors.CodeNoKeyspace, "vschema: no keyspace contains table %q", table)
	}
	return "", Keyspace{}, vterrors.Newf(vterrors.CodeNoKeyspace, "vschema: table %q is ambiguous across keyspaces %v", table, found)
}

// ResolveTableName does the case-insensitive table lookup,
// returning the VSchema's canonical spelling and its
// TableDef.
func (ks Keyspace) ResolveTableName(table string) (string, TableDef, bool) {
	if t, ok := ks.Tables[table]; ok {
		return table, t, true
	}
	for name, t := range ks.Tables {
		if equalFold(name, table) {
			return name, t, true
		}
	}
	return "", TableDef{}, false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
