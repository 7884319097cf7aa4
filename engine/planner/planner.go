// Package planner turns a parsed select into a physical plan. All names are
// resolved and all parameters bound here, so the plan it returns can run
// without the catalog.
package planner

import (
	"context"
	"strings"

	"vellum/engine/plan"
	"vellum/lib/queryerr"
	"vellum/lib/schema"
	"vellum/lib/sql"
	"vellum/lib/timer"
	"vellum/lib/value"

	"github.com/samber/lo"
	"github.com/samber/mo"
)

type Planner struct {
	schema *schema.Schema
}

func New(s *schema.Schema) Planner {
	return Planner{schema: s}
}

// Plan builds the plan for sel with params bound to $1, $2, ... For the same
// statement, schema and parameters it always builds the same plan.
func (p Planner) Plan(ctx context.Context, sel sql.Select, params []value.Value) (plan.QueryPlan, error) {
	_, t := timer.Start(ctx, "planner.plan")
	defer t.Stop()
	b := &builder{schema: p.schema, params: params}
	return b.plan(sel)
}

type builder struct {
	schema *schema.Schema
	params []value.Value
}

func (b *builder) plan(sel sql.Select) (plan.QueryPlan, error) {
	if len(sel.CTEs) > 0 {
		return nil, queryerr.Unsupported("WITH must be expanded before planning")
	}
	table, ok := b.schema.Table(sel.Table)
	if !ok {
		return nil, queryerr.TableNotFound{Table: sel.Table}
	}
	limit, err := limitOf(sel.Limit)
	if err != nil {
		return nil, err
	}
	if len(sel.Having) > 0 && !sel.NeedsAggregate() {
		return nil, queryerr.Unsupported("HAVING without GROUP BY or aggregates")
	}
	if len(sel.CaseColumns) > 0 && sel.NeedsAggregate() {
		return nil, queryerr.Unsupported("CASE columns in an aggregate query")
	}
	if len(sel.Joins) > 0 {
		return b.planJoin(sel, table, limit)
	}

	sc := tableScope(table)
	terms, err := b.resolveTerms(sel.Predicates, sc)
	if err != nil {
		return nil, err
	}
	if sel.NeedsAggregate() {
		// aggregates address source columns by table position
		source, err := b.accessPath(table, terms, fullShape(table))
		if err != nil {
			return nil, err
		}
		return b.aggregate(sel, plan.MetadataOf(table), source, sc, limit)
	}
	if len(sel.CaseColumns) > 0 {
		source, err := b.accessPath(table, terms, fullShape(table))
		if err != nil {
			return nil, err
		}
		return b.materialize(sel, source, sc, nil, limit, false)
	}

	order, err := resolveOrder(sel.OrderBy, sc)
	if err != nil {
		return nil, err
	}
	cols, names, err := projection(sel.Columns, sc, false)
	if err != nil {
		return nil, err
	}
	p, err := b.accessPath(table, terms, scanShape{limit: limit, order: order, columns: cols, names: names})
	if err != nil {
		return nil, err
	}
	if _, ok := p.(*plan.PointLookup); ok && limit.OrElse(1) == 0 {
		return &plan.Materialize{Source: p, Limit: limit, Columns: lo.Range(len(cols)), ColumnNames: names}, nil
	}
	return p, nil
}

// aggregate wraps source, whose rows are laid out as sc, in an Aggregate.
// ORDER BY and LIMIT then apply to the aggregated rows.
func (b *builder) aggregate(sel sql.Select, meta plan.TableMetadata, source plan.QueryPlan, sc *scope, limit mo.Option[int]) (plan.QueryPlan, error) {
	groupBy := make([]int, 0, len(sel.GroupBy))
	for _, name := range sel.GroupBy {
		idx, err := sc.resolve(name)
		if err != nil {
			return nil, err
		}
		if !lo.Contains(groupBy, idx) {
			groupBy = append(groupBy, idx)
		}
	}
	if sel.Distinct {
		cols, _, err := projection(sel.Columns, sc, false)
		if err != nil {
			return nil, err
		}
		for _, idx := range cols {
			if !lo.Contains(groupBy, idx) {
				groupBy = append(groupBy, idx)
			}
		}
	}

	out := &scope{table: sc.table}
	groupNames := make([]string, len(groupBy))
	for i, idx := range groupBy {
		groupNames[i] = sc.columns[idx].name
		out.columns = append(out.columns, sc.columns[idx])
	}

	aggs := make([]plan.AggregateColumn, 0, len(sel.Aggregates))
	aggTypes := make([]value.DataType, 0, len(sel.Aggregates))
	for _, a := range sel.Aggregates {
		ac := plan.AggregateColumn{Func: a.Func, Column: -1, Name: a.Name()}
		resultType := value.BigIntType
		switch a.Func {
		case sql.CountStar:
		case sql.Count, sql.Sum, sql.Avg, sql.Min, sql.Max:
			idx, err := sc.resolve(a.Column)
			if err != nil {
				return nil, err
			}
			ac.Column = idx
			switch a.Func {
			case sql.Avg:
				resultType = value.RealType
			case sql.Sum, sql.Min, sql.Max:
				resultType = sc.columns[idx].dt
			}
		default:
			return nil, queryerr.Unsupported("aggregate function %q", a.Func)
		}
		aggs = append(aggs, ac)
		aggTypes = append(aggTypes, resultType)
		out.extend(ac.Name, resultType)
	}

	having := make([]plan.HavingCondition, 0, len(sel.Having))
	for _, h := range sel.Having {
		pos := -1
		for i, a := range sel.Aggregates {
			if a.Func == h.Aggregate.Func && (a.Func == sql.CountStar || strings.EqualFold(a.Column, h.Aggregate.Column)) {
				pos = i
				break
			}
		}
		if pos < 0 {
			return nil, queryerr.Unsupported("HAVING on %s, which is not selected", h.Aggregate.Name())
		}
		op, ok := comparisonOps[h.Op]
		if !ok {
			return nil, queryerr.Unsupported("HAVING operator %q", h.Op)
		}
		v, err := bindValue(h.Value, b.params)
		if err != nil {
			return nil, err
		}
		having = append(having, plan.HavingCondition{Aggregate: pos, Op: op, Value: coerce(v, aggTypes[pos])})
	}

	names := append(append([]string(nil), groupNames...), lo.Map(aggs, func(a plan.AggregateColumn, _ int) string { return a.Name })...)
	var ret plan.QueryPlan = &plan.Aggregate{
		Metadata:     meta,
		Source:       source,
		GroupBy:      groupBy,
		GroupByNames: groupNames,
		Aggregates:   aggs,
		ColumnNames:  names,
		Having:       having,
	}
	if len(sel.OrderBy) == 0 && limit.IsAbsent() {
		return ret, nil
	}
	order, err := resolveOrder(sel.OrderBy, out)
	if err != nil {
		return nil, err
	}
	return &plan.Materialize{
		Source:      ret,
		Order:       sortSpec(order),
		Limit:       limit,
		Columns:     lo.Range(len(names)),
		ColumnNames: names,
	}, nil
}

// materialize post-processes source rows laid out as sc: filter, CASE
// columns, ORDER BY, LIMIT and the select list.
func (b *builder) materialize(sel sql.Select, source plan.QueryPlan, sc *scope, filter plan.Filter, limit mo.Option[int], qualify bool) (plan.QueryPlan, error) {
	ext := &scope{table: sc.table, columns: append([]scopeColumn(nil), sc.columns...)}
	cases := make([]plan.CaseColumnDef, 0, len(sel.CaseColumns))
	for _, cc := range sel.CaseColumns {
		def := plan.CaseColumnDef{Alias: cc.Alias, Else: value.Nil}
		resultType := value.TextType
		typed := false
		for _, w := range cc.When {
			terms, err := b.resolveTerms(w.Conditions, sc)
			if err != nil {
				return nil, err
			}
			cond, err := filterOf(terms)
			if err != nil {
				return nil, err
			}
			result, err := bindValue(w.Result, b.params)
			if err != nil {
				return nil, err
			}
			if !typed && !value.IsNull(result) {
				resultType, typed = value.DataType{Kind: result.Kind()}, true
			}
			def.When = append(def.When, plan.CaseWhenArm{Condition: cond, Result: result})
		}
		if cc.Else != nil {
			v, err := bindValue(*cc.Else, b.params)
			if err != nil {
				return nil, err
			}
			def.Else = v
			if !typed && !value.IsNull(v) {
				resultType = value.DataType{Kind: v.Kind()}
			}
		}
		cases = append(cases, def)
		ext.extend(cc.Alias, resultType)
	}

	order, err := resolveOrder(sel.OrderBy, ext)
	if err != nil {
		return nil, err
	}
	cols, names, err := projection(sel.Columns, ext, qualify)
	if err != nil {
		return nil, err
	}
	return &plan.Materialize{
		Source:      source,
		Filter:      filter,
		CaseColumns: cases,
		Order:       sortSpec(order),
		Limit:       limit,
		Columns:     cols,
		ColumnNames: names,
	}, nil
}

// planJoin builds a left deep chain of nested loop joins. WHERE predicates
// that only read the base table are pushed into its access path, the rest
// run after the joins.
func (b *builder) planJoin(sel sql.Select, base schema.TableDef, limit mo.Option[int]) (plan.QueryPlan, error) {
	sc := tableScope(base)
	joined := make([]schema.TableDef, 0, len(sel.Joins))
	for _, j := range sel.Joins {
		t, ok := b.schema.Table(j.Table)
		if !ok {
			return nil, queryerr.TableNotFound{Table: j.Table}
		}
		switch j.Type {
		case sql.InnerJoin, sql.LeftJoin, "":
		default:
			return nil, queryerr.Unsupported("%s join", j.Type)
		}
		joined = append(joined, t)
		sc.add(t)
	}
	terms, err := b.resolveTerms(sel.Predicates, sc)
	if err != nil {
		return nil, err
	}
	width := len(base.Columns)
	pushed := make(map[int]bool)
	for i, t := range terms {
		if lo.Max(t.columns()) < width {
			pushed[i] = true
		}
	}
	baseTerms := lo.Filter(terms, func(_ term, i int) bool { return pushed[i] })
	current, err := b.accessPath(base, baseTerms, fullShape(base))
	if err != nil {
		return nil, err
	}
	qualified := sc.qualifiedNames()
	for n, j := range sel.Joins {
		t := joined[n]
		next := width + len(t.Columns)
		on := make([]plan.JoinCondition, 0, len(j.On))
		for _, p := range j.On {
			op, ok := comparisonOps[p.Op]
			if !ok || p.Value.Kind != sql.KindColumn {
				return nil, queryerr.Unsupported("join condition %s, only column comparisons are allowed", p)
			}
			left, err := sc.resolve(p.Column)
			if err != nil {
				return nil, err
			}
			right, err := sc.resolve(p.Value.Column)
			if err != nil {
				return nil, err
			}
			if left >= next || right >= next {
				return nil, queryerr.Unsupported("join condition %s reads a table joined later", p)
			}
			on = append(on, plan.JoinCondition{LeftIdx: left, RightIdx: right, Op: op})
		}
		current = &plan.Join{
			Type:        lo.Ternary(j.Type == sql.LeftJoin, sql.LeftJoin, sql.InnerJoin),
			Left:        current,
			Right:       &plan.TableScan{Metadata: plan.MetadataOf(t), Columns: lo.Range(len(t.Columns)), ColumnNames: t.ColumnNames()},
			On:          on,
			ColumnNames: qualified[:next],
		}
		width = next
	}

	filter, err := filterOf(lo.Filter(terms, func(_ term, i int) bool { return !pushed[i] }))
	if err != nil {
		return nil, err
	}
	if sel.NeedsAggregate() {
		source := current
		if filter != nil {
			source = &plan.Materialize{Source: current, Filter: filter, Columns: lo.Range(width), ColumnNames: qualified}
		}
		return b.aggregate(sel, plan.MetadataOf(base), source, sc, limit)
	}
	return b.materialize(sel, current, sc, filter, limit, true)
}

func limitOf(limit *int) (mo.Option[int], error) {
	if limit == nil {
		return mo.None[int](), nil
	}
	if *limit < 0 {
		return mo.None[int](), queryerr.Unsupported("negative LIMIT %d", *limit)
	}
	return mo.Some(*limit), nil
}

func resolveOrder(orderBy []sql.OrderBy, sc *scope) ([]sortKey, error) {
	ret := make([]sortKey, 0, len(orderBy))
	for _, o := range orderBy {
		idx, err := sc.resolve(o.Column)
		if err != nil {
			return nil, err
		}
		ret = append(ret, sortKey{column: idx, desc: o.Desc})
	}
	return ret, nil
}

// projection resolves the select list. An empty list or * selects every
// column. With qualify set, rows span several tables and * names columns
// table.column.
func projection(columns []string, sc *scope, qualify bool) ([]int, []string, error) {
	if len(columns) == 0 || (len(columns) == 1 && columns[0] == "*") {
		names := sc.names()
		if qualify {
			names = sc.qualifiedNames()
		}
		return lo.Range(len(sc.columns)), names, nil
	}
	cols := make([]int, 0, len(columns))
	names := make([]string, 0, len(columns))
	for _, c := range columns {
		idx, err := sc.resolve(c)
		if err != nil {
			return nil, nil, err
		}
		cols = append(cols, idx)
		if qualify && strings.Contains(c, ".") {
			names = append(names, c)
		} else {
			names = append(names, sc.columns[idx].name)
		}
	}
	return cols, names, nil
}
