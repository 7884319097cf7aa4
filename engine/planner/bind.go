package planner

import (
	"math"
	"math/big"
	"strconv"
	"strings"

	"vellum/engine/plan"
	"vellum/lib/queryerr"
	"vellum/lib/sql"
	"vellum/lib/value"
)

// bindValue turns a statement value into a concrete Value, substituting
// 1-based parameters.
func bindValue(pv sql.PredicateValue, params []value.Value) (value.Value, error) {
	switch pv.Kind {
	case sql.KindInt:
		return value.BigInt(pv.Int), nil
	case sql.KindString:
		return value.Text(pv.Str), nil
	case sql.KindBool:
		return value.Boolean(pv.Bool), nil
	case sql.KindNull, "":
		return value.Nil, nil
	case sql.KindParam:
		return bindParam(pv.Param, params)
	case sql.KindLiteral:
		switch lit := pv.Literal.(type) {
		case nil:
			return value.Nil, nil
		case value.Placeholder:
			return bindParam(int(lit), params)
		default:
			return lit, nil
		}
	case sql.KindColumn:
		return nil, queryerr.Unsupported("column reference %s outside a join condition", pv.Column)
	}
	return nil, queryerr.Unsupported("value of kind %q", pv.Kind)
}

func bindParam(idx int, params []value.Value) (value.Value, error) {
	if idx < 1 || idx > len(params) {
		return nil, queryerr.ParameterNotFound{Index: idx}
	}
	switch v := params[idx-1].(type) {
	case nil:
		return value.Nil, nil
	case value.Placeholder:
		return nil, queryerr.ParameterNotFound{Index: idx}
	default:
		return v, nil
	}
}

// coerce converts a bound value to the column's type where the conversion
// is exact: integers to any integer width that holds them, to reals,
// decimals, timestamps, dates and times, reals to decimals, and text to
// uuids and decimals. Anything else is returned as is and simply never
// compares equal to the column.
func coerce(v value.Value, dt value.DataType) value.Value {
	if r, ok := v.(value.Real); ok {
		if dt.Kind == value.KindDecimal {
			if d, ok := realToDecimal(float64(r), dt.Scale); ok {
				return d
			}
		}
		return v
	}
	if text, ok := v.(value.Text); ok {
		switch dt.Kind {
		case value.KindUuid:
			if u, err := value.ParseUuid(string(text)); err == nil {
				return u
			}
		case value.KindDecimal:
			if d, err := value.ParseDecimal(string(text), dt.Scale); err == nil {
				return d
			}
		}
		return v
	}
	n, ok := value.AsInt64(v)
	if !ok {
		return v
	}
	switch dt.Kind {
	case value.KindTinyInt:
		if n >= math.MinInt8 && n <= math.MaxInt8 {
			return value.TinyInt(n)
		}
	case value.KindSmallInt:
		if n >= math.MinInt16 && n <= math.MaxInt16 {
			return value.SmallInt(n)
		}
	case value.KindInteger:
		if n >= math.MinInt32 && n <= math.MaxInt32 {
			return value.Integer(n)
		}
	case value.KindBigInt:
		return value.BigInt(n)
	case value.KindReal:
		return value.Real(float64(n))
	case value.KindTimestamp:
		if n >= 0 {
			return value.Timestamp(n)
		}
	case value.KindDate:
		if n >= math.MinInt32 && n <= math.MaxInt32 {
			return value.Date(n)
		}
	case value.KindTime:
		if n >= 0 && n < value.NanosPerDay {
			return value.Time(n)
		}
	case value.KindDecimal:
		scaled := new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(dt.Scale)), nil))
		if m, ok := value.Int128FromBig(scaled); ok {
			return value.Decimal{Mantissa: m, Scale: dt.Scale}
		}
	}
	return v
}

// realToDecimal converts f when its shortest decimal form has no more
// fractional digits than scale.
func realToDecimal(f float64, scale uint8) (value.Decimal, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return value.Decimal{}, false
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 && len(s)-i-1 > int(scale) {
		return value.Decimal{}, false
	}
	d, err := value.ParseDecimal(s, scale)
	if err != nil {
		return value.Decimal{}, false
	}
	return d, true
}

// term is a predicate with its column resolved to a row index and its
// values bound.
type term struct {
	column  int
	op      sql.Op
	value   value.Value
	values  []value.Value
	pattern string
	left    []term
	right   []term
}

var comparisonOps = map[sql.Op]plan.FilterOp{
	sql.OpEq: plan.OpEq,
	sql.OpLt: plan.OpLt,
	sql.OpLe: plan.OpLe,
	sql.OpGt: plan.OpGt,
	sql.OpGe: plan.OpGe,
}

func (b *builder) resolveTerms(preds []sql.Predicate, sc *scope) ([]term, error) {
	ret := make([]term, 0, len(preds))
	for _, p := range preds {
		t, err := b.resolveTerm(p, sc)
		if err != nil {
			return nil, err
		}
		ret = append(ret, t)
	}
	return ret, nil
}

func (b *builder) resolveTerm(p sql.Predicate, sc *scope) (term, error) {
	if p.Op == sql.OpOr {
		if len(p.Left) == 0 || len(p.Right) == 0 {
			return term{}, queryerr.Unsupported("OR with an empty side")
		}
		left, err := b.resolveTerms(p.Left, sc)
		if err != nil {
			return term{}, err
		}
		right, err := b.resolveTerms(p.Right, sc)
		if err != nil {
			return term{}, err
		}
		return term{column: -1, op: sql.OpOr, left: left, right: right}, nil
	}
	idx, err := sc.resolve(p.Column)
	if err != nil {
		return term{}, err
	}
	dt := sc.columns[idx].dt
	t := term{column: idx, op: p.Op}
	switch {
	case p.Op.IsComparison():
		v, err := bindValue(p.Value, b.params)
		if err != nil {
			return term{}, err
		}
		t.value = coerce(v, dt)
	case p.Op == sql.OpIn:
		t.values = make([]value.Value, 0, len(p.Values))
		for _, pv := range p.Values {
			v, err := bindValue(pv, b.params)
			if err != nil {
				return term{}, err
			}
			t.values = append(t.values, coerce(v, dt))
		}
	case p.Op == sql.OpLike:
		t.pattern = p.Pattern
	case p.Op == sql.OpIsNull, p.Op == sql.OpIsNotNull:
	default:
		return term{}, queryerr.Unsupported("predicate operator %q", p.Op)
	}
	return t, nil
}

// filterOf builds the filter for terms combined with AND. It is nil when
// there are no terms.
func filterOf(terms []term) (plan.Filter, error) {
	filters := make([]plan.Filter, 0, len(terms))
	for _, t := range terms {
		f, err := t.filter()
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return plan.NewAnd(filters...), nil
}

func (t term) filter() (plan.Filter, error) {
	if t.op == sql.OpOr {
		left, err := filterOf(t.left)
		if err != nil {
			return nil, err
		}
		right, err := filterOf(t.right)
		if err != nil {
			return nil, err
		}
		if left == nil || right == nil {
			return nil, queryerr.Unsupported("OR with an empty side")
		}
		return plan.NewOr(left, right), nil
	}
	return t.condition()
}

// condition builds a single flat condition; OR has no flat form.
func (t term) condition() (plan.Condition, error) {
	c := plan.Condition{Column: t.column}
	if op, ok := comparisonOps[t.op]; ok {
		c.Op = op
		c.Value = t.value
		return c, nil
	}
	switch t.op {
	case sql.OpIn:
		c.Op = plan.OpIn
		c.Values = t.values
	case sql.OpLike:
		c.Op = plan.OpLike
		c.Pattern = t.pattern
	case sql.OpIsNull:
		c.Op = plan.OpIsNull
	case sql.OpIsNotNull:
		c.Op = plan.OpIsNotNull
	default:
		return plan.Condition{}, queryerr.Unsupported("%q cannot be reduced to a single condition", t.op)
	}
	return c, nil
}

// columns lists every row index the term reads.
func (t term) columns() []int {
	if t.op != sql.OpOr {
		return []int{t.column}
	}
	var ret []int
	for _, side := range [][]term{t.left, t.right} {
		for _, s := range side {
			ret = append(ret, s.columns()...)
		}
	}
	return ret
}
