package sql

import (
	"encoding/json"
	"fmt"
	"strings"

	"vellum/lib/value"

	"github.com/samber/lo"
)

type Op string

const (
	OpEq        Op = "eq"
	OpLt        Op = "lt"
	OpLe        Op = "le"
	OpGt        Op = "gt"
	OpGe        Op = "ge"
	OpIn        Op = "in"
	OpLike      Op = "like"
	OpIsNull    Op = "is_null"
	OpIsNotNull Op = "is_not_null"
	OpOr        Op = "or"
)

// IsComparison reports whether op compares a column against a single value.
func (op Op) IsComparison() bool {
	switch op {
	case OpEq, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

// Predicate is one WHERE term. Which fields are set depends on Op: the
// comparisons use Value, In uses Values, Like uses Pattern and Or uses Left
// and Right, each side being an implicit AND of its predicates.
type Predicate struct {
	Op      Op               `json:"op"`
	Column  string           `json:"column,omitempty"`
	Value   PredicateValue   `json:"value,omitempty"`
	Values  []PredicateValue `json:"values,omitempty"`
	Pattern string           `json:"pattern,omitempty"`
	Left    []Predicate      `json:"left,omitempty"`
	Right   []Predicate      `json:"right,omitempty"`
}

func (p Predicate) String() string {
	switch p.Op {
	case OpIn:
		vals := make([]string, len(p.Values))
		for i, v := range p.Values {
			vals[i] = v.String()
		}
		return fmt.Sprintf("%s IN (%s)", p.Column, strings.Join(vals, ", "))
	case OpLike:
		return fmt.Sprintf("%s LIKE '%s'", p.Column, p.Pattern)
	case OpIsNull:
		return p.Column + " IS NULL"
	case OpIsNotNull:
		return p.Column + " IS NOT NULL"
	case OpOr:
		return fmt.Sprintf("(%s) OR (%s)", joinPredicates(p.Left), joinPredicates(p.Right))
	}
	return fmt.Sprintf("%s %s %s", p.Column, opSymbols[p.Op], p.Value)
}

var opSymbols = map[Op]string{OpEq: "=", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">="}

func joinPredicates(preds []Predicate) string {
	parts := make([]string, len(preds))
	for i, p := range preds {
		parts[i] = p.String()
	}
	return strings.Join(parts, " AND ")
}

func Eq(column string, v PredicateValue) Predicate {
	return Predicate{Op: OpEq, Column: column, Value: v}
}
func Lt(column string, v PredicateValue) Predicate {
	return Predicate{Op: OpLt, Column: column, Value: v}
}
func Le(column string, v PredicateValue) Predicate {
	return Predicate{Op: OpLe, Column: column, Value: v}
}
func Gt(column string, v PredicateValue) Predicate {
	return Predicate{Op: OpGt, Column: column, Value: v}
}
func Ge(column string, v PredicateValue) Predicate {
	return Predicate{Op: OpGe, Column: column, Value: v}
}

func In(column string, values ...PredicateValue) Predicate {
	return Predicate{Op: OpIn, Column: column, Values: values}
}

func Like(column, pattern string) Predicate {
	return Predicate{Op: OpLike, Column: column, Pattern: pattern}
}

func IsNull(column string) Predicate    { return Predicate{Op: OpIsNull, Column: column} }
func IsNotNull(column string) Predicate { return Predicate{Op: OpIsNotNull, Column: column} }

func Or(left, right []Predicate) Predicate {
	return Predicate{Op: OpOr, Left: left, Right: right}
}

type ValueKind string

const (
	KindInt     ValueKind = "int"
	KindString  ValueKind = "string"
	KindBool    ValueKind = "bool"
	KindNull    ValueKind = "null"
	KindLiteral ValueKind = "literal"
	KindParam   ValueKind = "param"
	KindColumn  ValueKind = "column"
)

// PredicateValue is the right hand side of a predicate: a literal, a
// 1-based parameter reference, or, in join conditions, a column reference.
type PredicateValue struct {
	Kind    ValueKind
	Int     int64
	Str     string
	Bool    bool
	Param   int
	Column  string
	Literal value.Value
}

func Int(v int64) PredicateValue       { return PredicateValue{Kind: KindInt, Int: v} }
func Str(v string) PredicateValue      { return PredicateValue{Kind: KindString, Str: v} }
func Bool(v bool) PredicateValue       { return PredicateValue{Kind: KindBool, Bool: v} }
func Null() PredicateValue             { return PredicateValue{Kind: KindNull} }
func Param(idx int) PredicateValue     { return PredicateValue{Kind: KindParam, Param: idx} }
func Column(ref string) PredicateValue { return PredicateValue{Kind: KindColumn, Column: ref} }

func Lit(v value.Value) PredicateValue {
	return PredicateValue{Kind: KindLiteral, Literal: v}
}

func (pv PredicateValue) String() string {
	switch pv.Kind {
	case KindInt:
		return fmt.Sprintf("%d", pv.Int)
	case KindString:
		return "'" + pv.Str + "'"
	case KindBool:
		return fmt.Sprintf("%t", pv.Bool)
	case KindNull:
		return "NULL"
	case KindParam:
		return fmt.Sprintf("$%d", pv.Param)
	case KindColumn:
		return pv.Column
	case KindLiteral:
		if pv.Literal == nil {
			return "NULL"
		}
		return pv.Literal.String()
	}
	return "?"
}

type predicateValueJson struct {
	Kind   ValueKind       `json:"kind"`
	Int    int64           `json:"int,omitempty"`
	Str    string          `json:"string,omitempty"`
	Bool   bool            `json:"bool,omitempty"`
	Param  int             `json:"param,omitempty"`
	Column string          `json:"column,omitempty"`
	Type   *value.DataType `json:"type,omitempty"`
	Value  json.RawMessage `json:"value,omitempty"`
}

// MarshalJSON writes literals as {"kind":"literal","type":T,"value":V} where V
// is the value in row document form.
func (pv PredicateValue) MarshalJSON() ([]byte, error) {
	out := predicateValueJson{Kind: pv.Kind, Int: pv.Int, Str: pv.Str, Bool: pv.Bool, Param: pv.Param, Column: pv.Column}
	if pv.Kind == KindLiteral {
		lit := pv.Literal
		switch v := lit.(type) {
		case nil, value.Null:
			return json.Marshal(predicateValueJson{Kind: KindNull})
		case value.Placeholder:
			return json.Marshal(predicateValueJson{Kind: KindParam, Param: int(v)})
		}
		raw, err := value.ToJson(lit)
		if err != nil {
			return nil, err
		}
		dt := value.DataType{Kind: lit.Kind()}
		if d, ok := lit.(value.Decimal); ok {
			dt = value.DecimalType(lo.Max([]uint8{38, d.Scale}), d.Scale)
		}
		out.Type = &dt
		out.Value = raw
	}
	return json.Marshal(out)
}

func (pv *PredicateValue) UnmarshalJSON(data []byte) error {
	var in predicateValueJson
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*pv = PredicateValue{Kind: in.Kind, Int: in.Int, Str: in.Str, Bool: in.Bool, Param: in.Param, Column: in.Column}
	switch in.Kind {
	case KindInt, KindString, KindBool, KindNull, KindParam, KindColumn:
	case KindLiteral:
		if in.Type == nil {
			return fmt.Errorf("literal value without a type")
		}
		if len(in.Value) == 0 {
			return fmt.Errorf("literal of type %s without a value", in.Type)
		}
		v, err := value.ParseJson(in.Value, *in.Type)
		if err != nil {
			return err
		}
		pv.Literal = v
	case "":
		// an absent value, as in predicates that do not use one
	default:
		return fmt.Errorf("unknown predicate value kind %q", in.Kind)
	}
	return nil
}
