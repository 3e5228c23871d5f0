// Package vtgate implements the Router/Planner of this package: given a
// SQL statement it produces a QueryPlan against the configured VSchema,
// then executes that plan by fanning out to Tablet stubs and merging
// their results.
package vtgate

import (
	"github.com/dreamware/vshard/internal/sqlparser"
	"github.com/dreamware/vshard/internal/vindex"
	"github.com/dreamware/vshard/internal/vschema"
	"github.com/dreamware/vshard/internal/vterrors"
)

// PlanKind is the tagged variant a QueryPlan carries.
type PlanKind int

const (
	PlanUnsharded PlanKind = iota
	PlanSingleShard
	PlanScatter
	PlanScatterAggregate
	PlanLookup
)

func (k PlanKind) String() string {
	switch k {
	case PlanUnsharded:
		return "unsharded"
	case PlanSingleShard:
		return "single_shard"
	case PlanScatter:
		return "scatter"
	case PlanScatterAggregate:
		return "scatter_aggregate"
	case PlanLookup:
		return "lookup"
	default:
		return "unknown"
	}
}

// QueryPlan is the Router's decision for one statement: which shards to
// visit and how to combine their results.
type QueryPlan struct {
	Kind     PlanKind
	Keyspace string
	// Shards is the target shard list. For PlanLookup this is the full
	// shard set until the lookup resolves; the resolved, narrowed set is
	// computed at execution time via LookupVindex/LookupColumn.
	Shards []string

	Statement *sqlparser.Statement

	// LookupVindex/LookupColumn are set only for PlanLookup: the
	// secondary vindex to resolve before narrowing the shard list, and
	// the WHERE-equality column bound to it.
	LookupVindex vindex.Lookup
	LookupColumn string
	LookupValue  any

	// ShardingVindex/ShardingColumn are set for PlanSingleShard: the
	// primary vindex to map the bound value through, and the column it
	// binds.
	ShardingVindex vindex.Vindex
	ShardingColumn string
	ShardingValue  any
}

// VindexCache resolves a named vindex within a keyspace to its live
// instance — a cache keyed by (keyspace, vindex-name), owned by the
// Router and consulted read-mostly by Plan.
type VindexCache interface {
	Vindex(keyspace, name string) (vindex.Vindex, error)
}

// Plan implements the routing rules of this package, in order, first
// match wins. defaultKeyspace, the RPC QueryRequest.Keyspace hint, is
// used as the keyspace qualifier whenever the SQL does not qualify its
// table.
func Plan(doc *vschema.Document, vindexes VindexCache, sql string, defaultKeyspace string) (*QueryPlan, error) {
	stmt := sqlparser.Parse(sql)

	// Rule 3: reject unclassifiable statements outright. This happens
	// before keyspace resolution since an OTHER statement has no
	// reliable table reference to resolve against.
	if stmt.Kind == sqlparser.Other {
		return nil, vterrors.New(vterrors.CodeUnsupportedSQL, "vtgate: statement is not a supported SQL form")
	}

	// Rule 1: determine target keyspace.
	qualifier := stmt.Keyspace
	if qualifier == "" {
		qualifier = defaultKeyspace
	}
	ksName, ks, err := doc.KeyspaceForTable(qualifier, stmt.Table)
	if err != nil {
		return nil, err
	}

	// Rule 2: case-insensitive table lookup; normalize to VSchema spelling.
	var table vschema.TableDef
	var hasTable bool
	if stmt.Table != "" {
		canonicalName, t, ok := ks.ResolveTableName(stmt.Table)
		if ok {
			stmt.Table = canonicalName
			table = t
			hasTable = true
		}
	}

	// Rule 4: unsharded keyspace targets its single shard.
	if !ks.Sharded {
		return &QueryPlan{Kind: PlanUnsharded, Keyspace: ksName, Shards: ks.Shards, Statement: stmt}, nil
	}

	// Rule 5: no table -> scatter over all shards.
	if !hasTable {
		return scatterPlan(ksName, ks, stmt), nil
	}

	// Rule 6: resolve the table's primary vindex and sharding column.
	primary, ok := table.PrimaryVindex()
	if !ok {
		return scatterPlan(ksName, ks, stmt), nil
	}
	shardingColumn := primary.ShardingColumn()

	// Rule 7: a WHERE equality on a secondary lookup* vindex plans a
	// lookup resolution first.
	for _, eq := range stmt.Equalities {
		sv, ok := table.SecondaryVindexFor(eq.Column)
		if !ok {
			continue
		}
		def, ok := ks.Vindexes[sv.Name]
		if !ok || !isLookupType(def.Type) {
			continue
		}
		lv, err := vindexes.Vindex(ksName, sv.Name)
		if err != nil {
			return nil, err
		}
		lookup, ok := lv.(vindex.Lookup)
		if !ok {
			continue
		}
		return &QueryPlan{
			Kind:         PlanLookup,
			Keyspace:     ksName,
			Shards:       ks.Shards,
			Statement:    stmt,
			LookupVindex: lookup,
			LookupColumn: eq.Column,
			LookupValue:  eq.Value,
		}, nil
	}

	// Rule 8: a WHERE equality on the sharding column routes to one shard.
	for _, eq := range stmt.Equalities {
		if !sameColumn(eq.Column, shardingColumn) {
			continue
		}
		v, err := vindexes.Vindex(ksName, primary.Name)
		if err != nil {
			return nil, err
		}
		return &QueryPlan{
			Kind:           PlanSingleShard,
			Keyspace:       ksName,
			Statement:      stmt,
			ShardingVindex: v,
			ShardingColumn: shardingColumn,
			ShardingValue:  eq.Value,
		}, nil
	}

	// Rule 9: INSERT on a sharded table must supply the sharding value.
	if stmt.Kind == sqlparser.Insert {
		val, ok := stmt.InsertValue(shardingColumn)
		if !ok {
			return nil, vterrors.New(vterrors.CodeShardingKeyRequired, "vtgate: insert on sharded table requires a value for the sharding column "+shardingColumn)
		}
		v, err := vindexes.Vindex(ksName, primary.Name)
		if err != nil {
			return nil, err
		}
		return &QueryPlan{
			Kind:           PlanSingleShard,
			Keyspace:       ksName,
			Statement:      stmt,
			ShardingVindex: v,
			ShardingColumn: shardingColumn,
			ShardingValue:  val,
		}, nil
	}

	// Rule 10: everything else scatters.
	return scatterPlan(ksName, ks, stmt), nil
}

func scatterPlan(ksName string, ks vschema.Keyspace, stmt *sqlparser.Statement) *QueryPlan {
	kind := PlanScatter
	if stmt.Kind == sqlparser.Select && len(stmt.Aggregates) > 0 {
		kind = PlanScatterAggregate
	}
	return &QueryPlan{Kind: kind, Keyspace: ksName, Shards: ks.Shards, Statement: stmt}
}

func isLookupType(t string) bool {
	switch t {
	case "lookup", "lookup_hash", "lookup_unique":
		return true
	default:
		return false
	}
}

func sameColumn(a, b string) bool {
	return len(a) == len(b) && equalFold(a, b)
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
