package executor

import (
	"fmt"
	"math"

	"vellum/engine/plan"
	"vellum/lib/queryerr"
	"vellum/lib/sql"
	"vellum/lib/value"
)

type group struct {
	values []value.Value
	count  int64
	accs   []accumulator
}

func (r *run) aggregate(p *plan.Aggregate) ([][]value.Value, error) {
	rows, err := r.exec(p.Source)
	if err != nil {
		return nil, err
	}
	set := newRowSet()
	var groups []*group
	if len(p.GroupBy) == 0 {
		// a query without GROUP BY always produces its single group
		groups = append(groups, newGroup(nil, p.Aggregates))
	}
	for _, row := range rows {
		var g *group
		if len(p.GroupBy) == 0 {
			g = groups[0]
		} else {
			values := project(row, p.GroupBy)
			i, isNew := set.add(values)
			if isNew {
				groups = append(groups, newGroup(values, p.Aggregates))
			}
			g = groups[i]
		}
		g.count++
		for i, agg := range p.Aggregates {
			if agg.Column < 0 {
				continue
			}
			if err := g.accs[i].add(agg.Func, row[agg.Column]); err != nil {
				return nil, err
			}
		}
	}

	ret := make([][]value.Value, 0, len(groups))
	for _, g := range groups {
		aggValues := make([]value.Value, len(p.Aggregates))
		for i, agg := range p.Aggregates {
			aggValues[i] = g.result(i, agg.Func)
		}
		if !having(p.Having, aggValues) {
			continue
		}
		out := make([]value.Value, 0, len(g.values)+len(aggValues))
		out = append(out, g.values...)
		ret = append(ret, append(out, aggValues...))
	}
	return ret, nil
}

func newGroup(values []value.Value, aggs []plan.AggregateColumn) *group {
	return &group{values: values, accs: make([]accumulator, len(aggs))}
}

func (g *group) result(i int, fn sql.AggregateFunc) value.Value {
	acc := g.accs[i]
	switch fn {
	case sql.CountStar, sql.Count:
		// COUNT(col) counts every row of the group, NULLs included
		return value.BigInt(g.count)
	case sql.Sum:
		return orNull(acc.sum)
	case sql.Avg:
		if value.IsNull(acc.sum) || g.count == 0 {
			return value.Nil
		}
		f, ok := toFloat(acc.sum)
		if !ok {
			return value.Nil
		}
		return value.Real(f / float64(g.count))
	case sql.Min:
		return orNull(acc.min)
	case sql.Max:
		return orNull(acc.max)
	}
	return value.Nil
}

func orNull(v value.Value) value.Value {
	if v == nil {
		return value.Nil
	}
	return v
}

func having(conds []plan.HavingCondition, aggValues []value.Value) bool {
	for _, h := range conds {
		if h.Aggregate < 0 || h.Aggregate >= len(aggValues) {
			return false
		}
		if !plan.Compare(h.Op, aggValues[h.Aggregate], h.Value) {
			return false
		}
	}
	return true
}

// accumulator folds the non-NULL values of one column. Fields are nil until
// the first non-NULL value arrives.
type accumulator struct {
	sum value.Value
	min value.Value
	max value.Value
}

func (a *accumulator) add(fn sql.AggregateFunc, v value.Value) error {
	if value.IsNull(v) {
		return nil
	}
	if fn == sql.Min || fn == sql.Max {
		if a.min == nil {
			a.min, a.max = v, v
			return nil
		}
		// incomparable values leave the current extremes in place
		if cmp, ok := value.Compare(v, a.min); ok && cmp < 0 {
			a.min = v
		}
		if cmp, ok := value.Compare(v, a.max); ok && cmp > 0 {
			a.max = v
		}
		return nil
	}
	if fn != sql.Sum && fn != sql.Avg {
		return nil
	}
	if a.sum == nil {
		if !summable(v) {
			return queryerr.TypeMismatch{Expected: "numeric", Actual: v.Kind().String()}
		}
		a.sum = v
		return nil
	}
	sum, err := addValues(a.sum, v)
	if err != nil {
		return err
	}
	a.sum = sum
	return nil
}

func summable(v value.Value) bool {
	switch v.(type) {
	case value.TinyInt, value.SmallInt, value.Integer, value.BigInt, value.Real, value.Decimal:
		return true
	}
	return false
}

// addValues adds two values of the same numeric type. Integer sums that leave
// the range of their type fail rather than wrap.
func addValues(a, b value.Value) (value.Value, error) {
	mismatch := queryerr.TypeMismatch{Expected: a.Kind().String(), Actual: b.Kind().String()}
	switch x := a.(type) {
	case value.TinyInt:
		y, ok := b.(value.TinyInt)
		if !ok {
			return nil, mismatch
		}
		s, err := addInt(int64(x), int64(y), math.MinInt8, math.MaxInt8, a)
		return value.TinyInt(s), err
	case value.SmallInt:
		y, ok := b.(value.SmallInt)
		if !ok {
			return nil, mismatch
		}
		s, err := addInt(int64(x), int64(y), math.MinInt16, math.MaxInt16, a)
		return value.SmallInt(s), err
	case value.Integer:
		y, ok := b.(value.Integer)
		if !ok {
			return nil, mismatch
		}
		s, err := addInt(int64(x), int64(y), math.MinInt32, math.MaxInt32, a)
		return value.Integer(s), err
	case value.BigInt:
		y, ok := b.(value.BigInt)
		if !ok {
			return nil, mismatch
		}
		s, err := addInt(int64(x), int64(y), math.MinInt64, math.MaxInt64, a)
		return value.BigInt(s), err
	case value.Real:
		y, ok := b.(value.Real)
		if !ok {
			return nil, mismatch
		}
		return x + y, nil
	case value.Decimal:
		y, ok := b.(value.Decimal)
		if !ok {
			return nil, mismatch
		}
		if x.Scale != y.Scale {
			return nil, queryerr.TypeMismatch{
				Expected: fmt.Sprintf("DECIMAL with scale %d", x.Scale),
				Actual:   fmt.Sprintf("DECIMAL with scale %d", y.Scale),
			}
		}
		sum := x.Mantissa.Add(y.Mantissa)
		if x.Mantissa.IsNeg() == y.Mantissa.IsNeg() && sum.IsNeg() != x.Mantissa.IsNeg() {
			return nil, queryerr.TypeMismatch{Expected: a.Kind().String(), Actual: "sum out of range"}
		}
		return value.Decimal{Mantissa: sum, Scale: x.Scale}, nil
	}
	return nil, mismatch
}

func addInt(x, y, min, max int64, kind value.Value) (int64, error) {
	if (y > 0 && x > max-y) || (y < 0 && x < min-y) {
		return 0, queryerr.TypeMismatch{Expected: kind.Kind().String(), Actual: "sum out of range"}
	}
	return x + y, nil
}

func toFloat(v value.Value) (float64, bool) {
	switch x := v.(type) {
	case value.Real:
		return float64(x), true
	case value.Decimal:
		return x.Float64(), true
	}
	i, ok := value.AsInt64(v)
	return float64(i), ok
}
