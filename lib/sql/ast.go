// Package sql holds the parsed form of a query as handed to the planner.
// Statements are plain data and round trip through JSON, which is how the
// HTTP endpoint receives them.
package sql

import (
	"fmt"
	"strings"
)

type Statement struct {
	Select *Select `json:"select,omitempty"`
	Union  *Union  `json:"union,omitempty"`
}

// Union combines two selects. Without All, duplicate rows are removed.
type Union struct {
	Left  Select `json:"left"`
	Right Select `json:"right"`
	All   bool   `json:"all,omitempty"`
}

type Select struct {
	Table string `json:"table"`
	// Columns lists the selected columns; empty means every column.
	Columns     []string     `json:"columns,omitempty"`
	Joins       []Join       `json:"joins,omitempty"`
	Predicates  []Predicate  `json:"where,omitempty"`
	OrderBy     []OrderBy    `json:"order_by,omitempty"`
	Limit       *int         `json:"limit,omitempty"`
	Aggregates  []Aggregate  `json:"aggregates,omitempty"`
	GroupBy     []string     `json:"group_by,omitempty"`
	Distinct    bool         `json:"distinct,omitempty"`
	Having      []Having     `json:"having,omitempty"`
	CaseColumns []CaseColumn `json:"case_columns,omitempty"`
	CTEs        []CTE        `json:"with,omitempty"`
}

// NeedsAggregate reports whether the select groups its rows.
func (s Select) NeedsAggregate() bool {
	return len(s.Aggregates) > 0 || len(s.GroupBy) > 0 || s.Distinct
}

type OrderBy struct {
	Column string `json:"column"`
	Desc   bool   `json:"desc,omitempty"`
}

type CTE struct {
	Name  string `json:"name"`
	Query Select `json:"query"`
}

type JoinType string

const (
	InnerJoin JoinType = "inner"
	LeftJoin  JoinType = "left"
)

// Join adds a table to the select. On holds comparisons whose values are
// column references.
type Join struct {
	Type  JoinType    `json:"type"`
	Table string      `json:"table"`
	On    []Predicate `json:"on"`
}

type AggregateFunc string

const (
	CountStar AggregateFunc = "count_star"
	Count     AggregateFunc = "count"
	Sum       AggregateFunc = "sum"
	Avg       AggregateFunc = "avg"
	Min       AggregateFunc = "min"
	Max       AggregateFunc = "max"
)

type Aggregate struct {
	Func   AggregateFunc `json:"func"`
	Column string        `json:"column,omitempty"`
}

// Name is the result column name, e.g. COUNT(*) or SUM(amount).
func (a Aggregate) Name() string {
	if a.Func == CountStar {
		return "COUNT(*)"
	}
	return fmt.Sprintf("%s(%s)", strings.ToUpper(string(a.Func)), a.Column)
}

// Having compares the result of an aggregate after grouping.
type Having struct {
	Aggregate Aggregate      `json:"aggregate"`
	Op        Op             `json:"op"`
	Value     PredicateValue `json:"value"`
}

// CaseColumn is CASE WHEN ... THEN ... ELSE ... END AS Alias. Each WHEN
// holds predicates that must all match; the first matching arm wins.
type CaseColumn struct {
	Alias string          `json:"alias"`
	When  []CaseWhen      `json:"when"`
	Else  *PredicateValue `json:"else,omitempty"`
}

type CaseWhen struct {
	Conditions []Predicate    `json:"conditions"`
	Result     PredicateValue `json:"result"`
}
