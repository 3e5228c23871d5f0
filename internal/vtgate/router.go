package vtgate

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/vshard/internal/aggregate"
	"github.com/dreamware/vshard/internal/ksid"
	"github.com/dreamware/vshard/internal/shardrange"
	"github.com/dreamware/vshard/internal/sqlparser"
	"github.com/dreamware/vshard/internal/storage"
	"github.com/dreamware/vshard/internal/vindex"
	"github.com/dreamware/vshard/internal/vschema"
	"github.com/dreamware/vshard/internal/vterrors"
)

// Router is the VTGate: it plans a statement against a VSchema and
// executes the resulting QueryPlan by fanning out to Tablet stubs,
// combining their results.
type Router struct {
	doc     *vschema.Document
	tablets TabletResolver
	vindex  VindexCache
}

// NewRouter constructs a Router over a validated VSchema document.
func NewRouter(doc *vschema.Document, tablets TabletResolver, tables LookupTableProvider) *Router {
	return &Router{doc: doc, tablets: tablets, vindex: NewVindexCache(doc, tables)}
}

// Query plans and executes a row-returning statement.
func (r *Router) Query(ctx context.Context, defaultKeyspace, sql string, params []any) (*storage.QueryResult, error) {
	plan, err := Plan(r.doc, r.vindex, sql, defaultKeyspace)
	if err != nil {
		return nil, err
	}
	shards, err := r.resolveShards(ctx, plan, params)
	if err != nil {
		return nil, err
	}
	results, err := scatterQuery(ctx, r.tablets, plan.Keyspace, shards, sql, params)
	if err != nil {
		return nil, err
	}
	return r.combine(plan, results)
}

// Execute plans and executes a non-row-returning statement (INSERT,
// UPDATE, DELETE).
func (r *Router) Execute(ctx context.Context, defaultKeyspace, sql string, params []any) (*storage.ExecuteResult, error) {
	plan, err := Plan(r.doc, r.vindex, sql, defaultKeyspace)
	if err != nil {
		return nil, err
	}
	shards, err := r.resolveShards(ctx, plan, params)
	if err != nil {
		return nil, err
	}
	results, err := scatterExecute(ctx, r.tablets, plan.Keyspace, shards, sql, params)
	if err != nil {
		return nil, err
	}
	total := &storage.ExecuteResult{}
	for _, res := range results {
		total.Affected += res.Affected
		if res.LastInsertID != nil {
			total.LastInsertID = res.LastInsertID
		}
	}
	return total, nil
}

// resolveShards narrows plan.Shards for the plans that route to fewer
// than the full shard set: PlanSingleShard vindex-maps its bound value
// and routes it to a shard; PlanLookup resolves its value through the
// lookup vindex to keyspace-ids first, then routes each the same way.
func (r *Router) resolveShards(ctx context.Context, plan *QueryPlan, params []any) ([]string, error) {
	switch plan.Kind {
	case PlanSingleShard:
		value, err := resolveParam(plan.ShardingValue, params)
		if err != nil {
			return nil, err
		}
		ids, err := plan.ShardingVindex.Map(value)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, vterrors.New(vterrors.CodeQueryError, "vtgate: vindex mapped no keyspace id")
		}
		shard, err := shardForID(r.doc, plan.Keyspace, plan.ShardingVindex, ids[0])
		if err != nil {
			return nil, err
		}
		return []string{shard}, nil
	case PlanLookup:
		value, err := resolveParam(plan.LookupValue, params)
		if err != nil {
			return nil, err
		}
		ids, err := plan.LookupVindex.Get(ctx, value)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			// No binding yet resolved; fall back to the full shard set
			// until the lookup resolves.
			return plan.Shards, nil
		}
		seen := make(map[string]bool, len(ids))
		var shards []string
		for _, id := range ids {
			shard, err := shardForID(r.doc, plan.Keyspace, plan.LookupVindex, id)
			if err != nil {
				return nil, err
			}
			if !seen[shard] {
				seen[shard] = true
				shards = append(shards, shard)
			}
		}
		return shards, nil
	default:
		return plan.Shards, nil
	}
}

// shardForID maps a keyspace-id to its target shard. A vindex that
// implements its own ShardFor (consistent_hash's ring, range's
// intervals) is consulted directly; otherwise the generic routeToShard
// binary search over the keyspace's ShardRange partition applies.
func shardForID(doc *vschema.Document, keyspace string, v vindex.Vindex, id ksid.KeyspaceId) (string, error) {
	if sf, ok := v.(interface {
		ShardFor(ksid.KeyspaceId) (string, error)
	}); ok {
		return sf.ShardFor(id)
	}
	ks, ok := doc.Keyspaces[keyspace]
	if !ok {
		return "", vterrors.Newf(vterrors.CodeNoKeyspace, "vtgate: no keyspace %q", keyspace)
	}
	ranges := make([]shardrange.Range, 0, len(ks.Shards))
	for _, s := range ks.Shards {
		rg, err := shardrange.Parse(s)
		if err != nil {
			return "", vterrors.Wrap(vterrors.CodeQueryError, err, "vtgate: bad shard range in VSchema")
		}
		ranges = append(ranges, rg)
	}
	rg, err := shardrange.RouteToShard(ranges, id)
	if err != nil {
		return "", vterrors.Wrap(vterrors.CodeQueryError, err, "vtgate: routeToShard")
	}
	return rg.Name(), nil
}

// scatterQuery fans a Query out to every shard in parallel, cancelling
// siblings on the first failure: parallel siblings are cancelled
// cooperatively rather than left to run to completion.
func scatterQuery(ctx context.Context, resolver TabletResolver, keyspace string, shards []string, sql string, params []any) ([]*storage.QueryResult, error) {
	results := make([]*storage.QueryResult, len(shards))
	g, gctx := errgroup.WithContext(ctx)
	for i, shard := range shards {
		i, shard := i, shard
		g.Go(func() error {
			t, err := resolver.Tablet(keyspace, shard)
			if err != nil {
				return vterrors.WithShard(shard, err)
			}
			res, err := t.Query(gctx, sql, params)
			if err != nil {
				return vterrors.WithShard(shard, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// scatterExecute is scatterQuery's Execute-call counterpart.
func scatterExecute(ctx context.Context, resolver TabletResolver, keyspace string, shards []string, sql string, params []any) ([]*storage.ExecuteResult, error) {
	results := make([]*storage.ExecuteResult, len(shards))
	g, gctx := errgroup.WithContext(ctx)
	for i, shard := range shards {
		i, shard := i, shard
		g.Go(func() error {
			t, err := resolver.Tablet(keyspace, shard)
			if err != nil {
				return vterrors.WithShard(shard, err)
			}
			res, err := t.Execute(gctx, sql, params)
			if err != nil {
				return vterrors.WithShard(shard, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Router) combine(plan *QueryPlan, results []*storage.QueryResult) (*storage.QueryResult, error) {
	if plan.Kind == PlanScatterAggregate {
		return combineAggregate(plan.Statement, results)
	}
	return concatOrMerge(plan.Statement, results)
}

// combineAggregate combines each shard's partial aggregate into a single
// result row. Each shard is expected to have returned exactly one row
// whose columns
// are named after the lowercased aggregate function (e.g. "count",
// "sum") — the pragmatic convention this mini planner uses in place of
// full SQL column-alias tracking.
func combineAggregate(stmt *sqlparser.Statement, results []*storage.QueryResult) (*storage.QueryResult, error) {
	row := storage.Row{}
	fields := make([]storage.Field, 0, len(stmt.Aggregates))
	for _, agg := range stmt.Aggregates {
		col := aggregateColumn(agg)
		value, err := combineOneAggregate(agg, col, results)
		if err != nil {
			return nil, err
		}
		row[col] = value
		fields = append(fields, storage.Field{Name: col, PortableType: "double"})
	}
	return &storage.QueryResult{Rows: []storage.Row{row}, RowCount: 1, Fields: fields}, nil
}

func aggregateColumn(agg sqlparser.Aggregate) string {
	switch agg {
	case sqlparser.AggCount:
		return "count"
	case sqlparser.AggSum:
		return "sum"
	case sqlparser.AggAvg:
		return "avg"
	case sqlparser.AggMin:
		return "min"
	case sqlparser.AggMax:
		return "max"
	default:
		return "value"
	}
}

func combineOneAggregate(agg sqlparser.Aggregate, col string, results []*storage.QueryResult) (any, error) {
	switch agg {
	case sqlparser.AggCount:
		counts := make([]int64, 0, len(results))
		for _, res := range results {
			counts = append(counts, perShardInt64(res, col))
		}
		return aggregate.CombineCount(counts), nil
	case sqlparser.AggSum:
		values := collectColumn(results, col)
		return aggregate.CombineSum(values)
	case sqlparser.AggMin:
		values := collectColumn(results, col)
		return aggregate.CombineMin(values, aggregate.Compare), nil
	case sqlparser.AggMax:
		values := collectColumn(results, col)
		return aggregate.CombineMax(values, aggregate.Compare), nil
	case sqlparser.AggAvg:
		return combineAvg(results)
	default:
		return nil, vterrors.Newf(vterrors.CodeUnsupportedSQL, "vtgate: unsupported aggregate %q", agg)
	}
}

// combineAvg prefers the exact Σsum/Σcount path when every shard result
// carries both a "sum" and a "count" column, falling back to the lossy
// concatenated-values path otherwise.
func combineAvg(results []*storage.QueryResult) (any, error) {
	haveExact := true
	for _, res := range results {
		if len(res.Rows) == 0 {
			haveExact = false
			break
		}
		if _, ok := res.Rows[0]["sum"]; !ok {
			haveExact = false
			break
		}
		if _, ok := res.Rows[0]["count"]; !ok {
			haveExact = false
			break
		}
	}
	if haveExact {
		sums := collectColumn(results, "sum")
		counts := make([]int64, 0, len(results))
		for _, res := range results {
			counts = append(counts, perShardInt64(res, "count"))
		}
		return aggregate.CombineAvg(sums, counts)
	}
	return aggregate.CombineAvgLossy(collectColumn(results, "avg"))
}

func perShardInt64(res *storage.QueryResult, col string) int64 {
	if len(res.Rows) == 0 {
		return 0
	}
	switch v := res.Rows[0][col].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func collectColumn(results []*storage.QueryResult, col string) []any {
	var out []any
	for _, res := range results {
		if len(res.Rows) == 0 {
			continue
		}
		out = append(out, res.Rows[0][col])
	}
	return out
}

func concatOrMerge(stmt *sqlparser.Statement, results []*storage.QueryResult) (*storage.QueryResult, error) {
	perShard := make([][]storage.Row, len(results))
	var fields []storage.Field
	for i, res := range results {
		perShard[i] = res.Rows
		if fields == nil {
			fields = res.Fields
		}
	}

	var rows []storage.Row
	if len(stmt.OrderBy) > 0 {
		merged := aggregate.Merge(toAggregateRows(perShard), toMergeOrder(stmt.OrderBy), offsetOf(stmt), limitOf(stmt))
		rows = fromAggregateRows(merged)
	} else {
		for _, rs := range perShard {
			rows = append(rows, rs...)
		}
		rows = applySlice(rows, offsetOf(stmt), limitOf(stmt))
	}
	return &storage.QueryResult{Rows: rows, RowCount: len(rows), Fields: fields}, nil
}

func toMergeOrder(terms []sqlparser.OrderTerm) []aggregate.OrderTerm {
	out := make([]aggregate.OrderTerm, len(terms))
	for i, t := range terms {
		out[i] = aggregate.OrderTerm{Column: t.Column, Desc: t.Desc}
	}
	return out
}

// toAggregateRows/fromAggregateRows bridge storage.Row (what tablets and
// the rest of the Router deal in) and aggregate.Row (what the merge
// package deals in) — the two are structurally identical maps, kept as
// distinct types so internal/aggregate stays free of a storage import.
func toAggregateRows(perShard [][]storage.Row) [][]aggregate.Row {
	out := make([][]aggregate.Row, len(perShard))
	for i, rows := range perShard {
		converted := make([]aggregate.Row, len(rows))
		for j, row := range rows {
			converted[j] = aggregate.Row(row)
		}
		out[i] = converted
	}
	return out
}

func fromAggregateRows(rows []aggregate.Row) []storage.Row {
	out := make([]storage.Row, len(rows))
	for i, row := range rows {
		out[i] = storage.Row(row)
	}
	return out
}

func offsetOf(stmt *sqlparser.Statement) int64 {
	if stmt.HasOffset {
		return stmt.Offset
	}
	return 0
}

func limitOf(stmt *sqlparser.Statement) int64 {
	if stmt.HasLimit {
		return stmt.Limit
	}
	return -1
}

func applySlice(rows []storage.Row, offset, limit int64) []storage.Row {
	if offset > 0 {
		if offset >= int64(len(rows)) {
			return nil
		}
		rows = rows[offset:]
	}
	if limit >= 0 && int64(len(rows)) > limit {
		rows = rows[:limit]
	}
	return rows
}

func resolveParam(v any, params []any) (any, error) {
	ph, ok := v.(*sqlparser.Placeholder)
	if !ok {
		return v, nil
	}
	if ph.N < 1 || ph.N > len(params) {
		return nil, vterrors.Newf(vterrors.CodeMissingParam, "vtgate: missing param for placeholder $%d", ph.N)
	}
	return params[ph.N-1], nil
}
