package plan

import (
	"fmt"
	"strings"

	"vellum/lib/value"
)

type FilterOp uint8

const (
	OpEq FilterOp = iota
	OpLt
	OpLe
	OpGt
	OpGe
	OpIn
	OpLike
	OpIsNull
	OpIsNotNull
)

var filterOpNames = []string{"=", "<", "<=", ">", ">=", "IN", "LIKE", "IS NULL", "IS NOT NULL"}

func (op FilterOp) String() string {
	if int(op) < len(filterOpNames) {
		return filterOpNames[op]
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// Filter is a Condition, an And or an Or.
type Filter interface {
	Matches(row []value.Value) bool
	String() string
	isFilter()
}

var _ Filter = Condition{}
var _ Filter = And{}
var _ Filter = Or{}

// Condition tests the value at Column. Comparisons use Value, In uses Values
// and Like uses Pattern.
type Condition struct {
	Column  int
	Op      FilterOp
	Value   value.Value
	Values  []value.Value
	Pattern string
}

func (Condition) isFilter() {}

func (c Condition) String() string {
	switch c.Op {
	case OpIsNull, OpIsNotNull:
		return fmt.Sprintf("#%d %s", c.Column, c.Op)
	case OpLike:
		return fmt.Sprintf("#%d LIKE '%s'", c.Column, c.Pattern)
	case OpIn:
		vals := make([]string, len(c.Values))
		for i, v := range c.Values {
			vals[i] = v.String()
		}
		return fmt.Sprintf("#%d IN (%s)", c.Column, strings.Join(vals, ", "))
	}
	return fmt.Sprintf("#%d %s %s", c.Column, c.Op, c.Value)
}

func (c Condition) Matches(row []value.Value) bool {
	if c.Column < 0 || c.Column >= len(row) {
		return false
	}
	v := row[c.Column]
	switch c.Op {
	case OpIsNull:
		return value.IsNull(v)
	case OpIsNotNull:
		return !value.IsNull(v)
	case OpEq:
		return matchEq(v, c.Value)
	case OpLt, OpLe, OpGt, OpGe:
		return Compare(c.Op, v, c.Value)
	case OpIn:
		for _, candidate := range c.Values {
			if matchEq(v, candidate) {
				return true
			}
		}
		return false
	case OpLike:
		text, ok := v.(value.Text)
		return ok && MatchLike(string(text), c.Pattern)
	}
	return false
}

// Compare applies a comparison operator. NULL on either side never matches,
// neither do values that have no order between them.
func Compare(op FilterOp, a, b value.Value) bool {
	if value.IsNull(a) || value.IsNull(b) {
		return false
	}
	if op == OpEq {
		return matchEq(a, b)
	}
	cmp, ok := value.Compare(a, b)
	if !ok {
		x, xok := value.AsInt64(a)
		y, yok := value.AsInt64(b)
		if !xok || !yok {
			return false
		}
		cmp = compareInt64(x, y)
	}
	switch op {
	case OpLt:
		return cmp < 0
	case OpLe:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGe:
		return cmp >= 0
	}
	return false
}

// matchEq is equality where integers of different widths compare by value.
func matchEq(a, b value.Value) bool {
	if value.IsNull(a) || value.IsNull(b) {
		return false
	}
	if value.Equal(a, b) {
		return true
	}
	x, xok := value.AsInt64(a)
	y, yok := value.AsInt64(b)
	return xok && yok && x == y
}

func compareInt64(x, y int64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

// And matches when every member matches. The empty And matches everything.
type And []Filter

func (And) isFilter() {}

func (a And) Matches(row []value.Value) bool {
	for _, f := range a {
		if !f.Matches(row) {
			return false
		}
	}
	return true
}

func (a And) String() string { return joinFilters(a, " AND ") }

// Or matches when any member matches. The empty Or matches nothing.
type Or []Filter

func (Or) isFilter() {}

func (o Or) Matches(row []value.Value) bool {
	for _, f := range o {
		if f.Matches(row) {
			return true
		}
	}
	return false
}

func (o Or) String() string { return joinFilters(o, " OR ") }

func joinFilters(filters []Filter, sep string) string {
	parts := make([]string, len(filters))
	for i, f := range filters {
		parts[i] = "(" + f.String() + ")"
	}
	return strings.Join(parts, sep)
}

// NewAnd combines filters, dropping nils. It returns nil for no filters and
// the filter itself for one.
func NewAnd(filters ...Filter) Filter {
	filters = compact(filters)
	switch len(filters) {
	case 0:
		return nil
	case 1:
		return filters[0]
	}
	return And(filters)
}

// NewOr is the disjunction of filters. A nil member always matches, which
// makes the whole Or match.
func NewOr(filters ...Filter) Filter {
	for _, f := range filters {
		if f == nil {
			return nil
		}
	}
	if len(filters) == 1 {
		return filters[0]
	}
	return Or(filters)
}

func compact(filters []Filter) []Filter {
	ret := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			ret = append(ret, f)
		}
	}
	return ret
}

// Matches evaluates a possibly nil filter; nil matches every row.
func Matches(f Filter, row []value.Value) bool {
	return f == nil || f.Matches(row)
}
