package planner

import (
	"vellum/engine/plan"
	"vellum/lib/codex"
	"vellum/lib/schema"
	"vellum/lib/sql"
	"vellum/lib/value"

	"github.com/samber/lo"
	"github.com/samber/mo"
)

type sortKey struct {
	column int
	desc   bool
}

// scanShape is what a single-table plan must return besides the rows that
// match: how many, in which order and which columns.
type scanShape struct {
	limit   mo.Option[int]
	order   []sortKey
	columns []int
	names   []string
}

func fullShape(t schema.TableDef) scanShape {
	return scanShape{columns: lo.Range(len(t.Columns)), names: t.ColumnNames()}
}

// accessPath picks how to read a table: a point lookup when every primary
// key column has an equality, a range scan over a single column primary key,
// a secondary index scan, or a full table scan, in that order.
func (b *builder) accessPath(table schema.TableDef, terms []term, shape scanShape) (plan.QueryPlan, error) {
	meta := plan.MetadataOf(table)
	if len(table.PrimaryKey) == 0 {
		return tableScan(meta, terms, shape)
	}
	pk := lo.Map(table.PrimaryKey, func(name string, _ int) int {
		idx, _, _ := table.FindColumn(name)
		return idx
	})

	if key, used, ok := pointKey(table, pk, terms); ok {
		filter, err := filterOf(without(terms, used))
		if err != nil {
			return nil, err
		}
		return &plan.PointLookup{
			Metadata:    meta,
			Key:         key,
			Filter:      filter,
			Columns:     shape.columns,
			ColumnNames: shape.names,
		}, nil
	}

	if len(pk) == 1 {
		if start, end, used, ok := bounds(table, pk[0], terms); ok {
			filter, err := filterOf(without(terms, used))
			if err != nil {
				return nil, err
			}
			order, sortSpec := scanOrder(shape.order, pk[0], true)
			return &plan.RangeScan{
				Metadata:    meta,
				Start:       start,
				End:         end,
				Filter:      filter,
				Limit:       shape.limit,
				Order:       order,
				OrderBy:     sortSpec,
				Columns:     shape.columns,
				ColumnNames: shape.names,
			}, nil
		}
	}

	if c, ok := chooseIndex(table, terms); ok {
		filter, err := filterOf(without(terms, c.used))
		if err != nil {
			return nil, err
		}
		order, sortSpec := scanOrder(shape.order, c.first, false)
		return &plan.IndexScan{
			Metadata:    meta,
			IndexID:     c.index.ID,
			IndexName:   c.index.Name,
			Start:       c.start,
			End:         c.end,
			Filter:      filter,
			Limit:       shape.limit,
			Order:       order,
			OrderBy:     sortSpec,
			Columns:     shape.columns,
			ColumnNames: shape.names,
		}, nil
	}
	return tableScan(meta, terms, shape)
}

func tableScan(meta plan.TableMetadata, terms []term, shape scanShape) (plan.QueryPlan, error) {
	filter, err := filterOf(terms)
	if err != nil {
		return nil, err
	}
	return &plan.TableScan{
		Metadata:    meta,
		Filter:      filter,
		Limit:       shape.limit,
		Order:       sortSpec(shape.order),
		Columns:     shape.columns,
		ColumnNames: shape.names,
	}, nil
}

// scanOrder decides the iteration direction of a key ordered scan and
// whether rows still need sorting afterwards. keyed is the column the scan
// is ordered by. For a primary key scan the key is unique, so an ORDER BY
// naming only that column needs no sort; an index scan can only skip the
// sort when ORDER BY is exactly its leading column.
func scanOrder(order []sortKey, keyed int, unique bool) (plan.ScanOrder, *plan.SortSpec) {
	if len(order) == 0 {
		return plan.Asc, nil
	}
	direction := plan.Asc
	if order[0].column == keyed && order[0].desc {
		direction = plan.Desc
	}
	needSort := !unique && len(order) > 1
	for _, k := range order {
		if k.column != keyed {
			needSort = true
		}
	}
	if !needSort {
		return direction, nil
	}
	return direction, sortSpec(order)
}

func sortSpec(order []sortKey) *plan.SortSpec {
	if len(order) == 0 {
		return nil
	}
	return &plan.SortSpec{Columns: lo.Map(order, func(k sortKey, _ int) plan.SortColumn {
		if k.desc {
			return plan.SortColumn{Index: k.column, Order: plan.Desc}
		}
		return plan.SortColumn{Index: k.column, Order: plan.Asc}
	})}
}

// keyable reports whether v may be encoded into a key.
func keyable(v value.Value) bool {
	switch v.(type) {
	case nil, value.Null, value.Json, value.Placeholder:
		return false
	}
	return true
}

// pointKey encodes the primary key when every key column has an equality.
// When a column has several, the first one is used and the rest stay in the
// residual filter.
func pointKey(table schema.TableDef, pk []int, terms []term) (codex.Key, map[int]bool, bool) {
	used := make(map[int]bool, len(pk))
	vals := make([]value.Value, 0, len(pk))
	for _, col := range pk {
		found := false
		for i, t := range terms {
			if t.op == sql.OpEq && t.column == col && keyable(t.value) {
				used[i] = true
				vals = append(vals, t.value)
				found = true
				break
			}
		}
		if !found {
			return nil, nil, false
		}
	}
	return codex.Encode(vals), used, true
}

// boundable reports whether a comparison of col against v can become a key
// bound: the value must encode like the column's values do. Text and bytes
// keys order by length first, so only equality on them maps to an interval.
func boundable(t term, dt value.DataType) bool {
	if !t.op.IsComparison() || !keyable(t.value) || t.value.Kind() != dt.Kind {
		return false
	}
	if d, ok := t.value.(value.Decimal); ok && d.Scale != dt.Scale {
		return false
	}
	if t.op != sql.OpEq && (dt.Kind == value.KindText || dt.Kind == value.KindBytes) {
		return false
	}
	return true
}

type edge struct {
	v         value.Value
	inclusive bool
	set       bool
}

// bounds merges every boundable comparison on col into the tightest interval.
func bounds(table schema.TableDef, col int, terms []term) (plan.Bound, plan.Bound, map[int]bool, bool) {
	dt := table.Columns[col].Type
	var lower, upper edge
	used := make(map[int]bool)
	for i, t := range terms {
		if t.column != col || !boundable(t, dt) {
			continue
		}
		used[i] = true
		switch t.op {
		case sql.OpEq:
			lower = tighter(lower, edge{v: t.value, inclusive: true, set: true}, 1)
			upper = tighter(upper, edge{v: t.value, inclusive: true, set: true}, -1)
		case sql.OpGt:
			lower = tighter(lower, edge{v: t.value, set: true}, 1)
		case sql.OpGe:
			lower = tighter(lower, edge{v: t.value, inclusive: true, set: true}, 1)
		case sql.OpLt:
			upper = tighter(upper, edge{v: t.value, set: true}, -1)
		case sql.OpLe:
			upper = tighter(upper, edge{v: t.value, inclusive: true, set: true}, -1)
		}
	}
	if len(used) == 0 {
		return plan.Bound{}, plan.Bound{}, nil, false
	}
	return toBound(lower), toBound(upper), used, true
}

// tighter keeps the more restrictive of two edges. dir is 1 for lower
// edges, where greater is tighter, and -1 for upper edges.
func tighter(cur, next edge, dir int) edge {
	if !cur.set {
		return next
	}
	cmp, _ := value.Compare(next.v, cur.v)
	switch {
	case cmp*dir > 0:
		return next
	case cmp == 0 && !next.inclusive:
		return next
	}
	return cur
}

func toBound(e edge) plan.Bound {
	switch {
	case !e.set:
		return plan.UnboundedBound()
	case e.inclusive:
		return plan.IncludedBound(codex.Encode([]value.Value{e.v}))
	default:
		return plan.ExcludedBound(codex.Encode([]value.Value{e.v}))
	}
}

type indexCandidate struct {
	index      schema.IndexDef
	first      int
	start, end plan.Bound
	used       map[int]bool
	score      int
	remaining  int
}

// chooseIndex scores the indexes whose leading column has a boundable
// comparison. Each predicate on an index column adds 10 for an equality, 5
// for a range comparison and 1 otherwise. Ties go to the candidate leaving
// fewer predicates for the residual filter, then to the narrower index, then
// to the one declared first.
func chooseIndex(table schema.TableDef, terms []term) (indexCandidate, bool) {
	var best indexCandidate
	found := false
	for _, idx := range table.Indexes {
		cols := lo.Map(idx.Columns, func(name string, _ int) int {
			i, _, _ := table.FindColumn(name)
			return i
		})
		start, end, used, ok := bounds(table, cols[0], terms)
		if !ok {
			continue
		}
		c := indexCandidate{index: idx, first: cols[0], start: start, end: end, used: used, remaining: len(terms) - len(used)}
		for _, t := range terms {
			if t.op == sql.OpOr || !lo.Contains(cols, t.column) {
				continue
			}
			switch t.op {
			case sql.OpEq:
				c.score += 10
			case sql.OpLt, sql.OpLe, sql.OpGt, sql.OpGe:
				c.score += 5
			default:
				c.score++
			}
		}
		if !found || better(c, best) {
			best, found = c, true
		}
	}
	return best, found
}

func better(c, best indexCandidate) bool {
	if c.score != best.score {
		return c.score > best.score
	}
	if c.remaining != best.remaining {
		return c.remaining < best.remaining
	}
	return len(c.index.Columns) < len(best.index.Columns)
}

func without(terms []term, used map[int]bool) []term {
	ret := make([]term, 0, len(terms))
	for i, t := range terms {
		if !used[i] {
			ret = append(ret, t)
		}
	}
	return ret
}
