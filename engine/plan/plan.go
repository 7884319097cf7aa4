// Package plan holds the physical plans the planner produces and the executor
// runs. A plan is built for one query, executed once and discarded.
//
// Single-table plans carry a copy of their table's metadata so a plan never
// needs the live catalog to decode rows, which keeps historical reads correct
// after the schema moves on.
package plan

import (
	"vellum/hangar"
	"vellum/lib/codex"
	"vellum/lib/schema"
	"vellum/lib/sql"
	"vellum/lib/value"

	"github.com/samber/lo"
	"github.com/samber/mo"
)

// QueryPlan is one of PointLookup, RangeScan, IndexScan, TableScan,
// Aggregate, Join or Materialize.
type QueryPlan interface {
	// Kind is a short stable name, used for metrics and logs.
	Kind() string
	isQueryPlan()
}

var _ QueryPlan = (*PointLookup)(nil)
var _ QueryPlan = (*RangeScan)(nil)
var _ QueryPlan = (*IndexScan)(nil)
var _ QueryPlan = (*TableScan)(nil)
var _ QueryPlan = (*Aggregate)(nil)
var _ QueryPlan = (*Join)(nil)
var _ QueryPlan = (*Materialize)(nil)

type TableMetadata struct {
	TableID    hangar.TableID
	TableName  string
	Columns    []schema.ColumnDef
	PrimaryKey []string
}

func MetadataOf(t schema.TableDef) TableMetadata {
	return TableMetadata{
		TableID:    t.ID,
		TableName:  t.Name,
		Columns:    append([]schema.ColumnDef(nil), t.Columns...),
		PrimaryKey: append([]string(nil), t.PrimaryKey...),
	}
}

func (m TableMetadata) ColumnNames() []string {
	return lo.Map(m.Columns, func(c schema.ColumnDef, _ int) string { return c.Name })
}

// AllColumns is the identity projection over the table's columns.
func (m TableMetadata) AllColumns() []int {
	return lo.Range(len(m.Columns))
}

type BoundKind uint8

const (
	Unbounded BoundKind = iota
	Included
	Excluded
)

// Bound is one end of a key interval.
type Bound struct {
	Kind BoundKind
	Key  codex.Key
}

func IncludedBound(k codex.Key) Bound { return Bound{Kind: Included, Key: k} }
func ExcludedBound(k codex.Key) Bound { return Bound{Kind: Excluded, Key: k} }
func UnboundedBound() Bound           { return Bound{Kind: Unbounded} }

// StartKey is the inclusive start of the half open range the bound opens.
func (b Bound) StartKey() codex.Key {
	switch b.Kind {
	case Included:
		return b.Key
	case Excluded:
		return codex.Successor(b.Key)
	}
	return codex.MinKey()
}

// EndKey is the exclusive end of the half open range the bound closes.
func (b Bound) EndKey() codex.Key {
	switch b.Kind {
	case Included:
		return codex.Successor(b.Key)
	case Excluded:
		return b.Key
	}
	return codex.MaxKey()
}

type ScanOrder uint8

const (
	Asc ScanOrder = iota
	Desc
)

func (o ScanOrder) String() string {
	if o == Desc {
		return "DESC"
	}
	return "ASC"
}

type SortColumn struct {
	Index int
	Order ScanOrder
}

type SortSpec struct {
	Columns []SortColumn
}

// PointLookup fetches at most one row by its full primary key. Filter holds
// the predicates the key does not already imply and may be nil.
type PointLookup struct {
	Metadata    TableMetadata
	Key         codex.Key
	Filter      Filter
	Columns     []int
	ColumnNames []string
}

func (*PointLookup) Kind() string { return "point_lookup" }
func (*PointLookup) isQueryPlan() {}

// RangeScan reads the primary key interval [Start, End] in Order. OrderBy is
// set when rows must be sorted after the fetch.
type RangeScan struct {
	Metadata    TableMetadata
	Start       Bound
	End         Bound
	Filter      Filter
	Limit       mo.Option[int]
	Order       ScanOrder
	OrderBy     *SortSpec
	Columns     []int
	ColumnNames []string
}

func (*RangeScan) Kind() string { return "range_scan" }
func (*RangeScan) isQueryPlan() {}

// IndexScan reads an interval of a secondary index. Bounds are over the
// encoded index key prefix; each entry resolves to a base table row.
type IndexScan struct {
	Metadata    TableMetadata
	IndexID     uint64
	IndexName   string
	Start       Bound
	End         Bound
	Filter      Filter
	Limit       mo.Option[int]
	Order       ScanOrder
	OrderBy     *SortSpec
	Columns     []int
	ColumnNames []string
}

func (*IndexScan) Kind() string { return "index_scan" }
func (*IndexScan) isQueryPlan() {}

type TableScan struct {
	Metadata    TableMetadata
	Filter      Filter
	Limit       mo.Option[int]
	Order       *SortSpec
	Columns     []int
	ColumnNames []string
}

func (*TableScan) Kind() string { return "table_scan" }
func (*TableScan) isQueryPlan() {}

// AggregateColumn is one aggregate function over a source column. Column is
// -1 for COUNT(*).
type AggregateColumn struct {
	Func   sql.AggregateFunc
	Column int
	Name   string
}

// HavingCondition compares the value of Aggregates[Aggregate] of a group.
type HavingCondition struct {
	Aggregate int
	Op        FilterOp
	Value     value.Value
}

// Aggregate groups the full rows of Source by the GroupBy columns. Its
// output rows are the group values followed by one value per aggregate.
type Aggregate struct {
	Metadata     TableMetadata
	Source       QueryPlan
	GroupBy      []int
	GroupByNames []string
	Aggregates   []AggregateColumn
	ColumnNames  []string
	Having       []HavingCondition
}

func (*Aggregate) Kind() string { return "aggregate" }
func (*Aggregate) isQueryPlan() {}

// JoinCondition compares two columns of the concatenated left and right row.
type JoinCondition struct {
	LeftIdx  int
	RightIdx int
	Op       FilterOp
}

// Join is a nested loop join; its rows are the left row followed by the
// right row, with the right side padded with NULLs for unmatched left rows
// of a LEFT join.
type Join struct {
	Type        sql.JoinType
	Left        QueryPlan
	Right       QueryPlan
	On          []JoinCondition
	ColumnNames []string
}

func (*Join) Kind() string { return "join" }
func (*Join) isQueryPlan() {}

type CaseWhenArm struct {
	Condition Filter
	Result    value.Value
}

// CaseColumnDef is a computed column. Rows matching no arm take Else, which
// is NULL unless declared.
type CaseColumnDef struct {
	Alias string
	When  []CaseWhenArm
	Else  value.Value
}

// Materialize post-processes the rows of Source: filter, then append the CASE
// columns, then sort, then limit, then project Columns. Order and Columns
// index the source row extended with the computed columns.
type Materialize struct {
	Source      QueryPlan
	Filter      Filter
	CaseColumns []CaseColumnDef
	Order       *SortSpec
	Limit       mo.Option[int]
	Columns     []int
	ColumnNames []string
}

func (*Materialize) Kind() string { return "materialize" }
func (*Materialize) isQueryPlan() {}

// ColumnNames returns the names of the columns the plan produces.
func ColumnNames(p QueryPlan) []string {
	switch p := p.(type) {
	case *PointLookup:
		return p.ColumnNames
	case *RangeScan:
		return p.ColumnNames
	case *IndexScan:
		return p.ColumnNames
	case *TableScan:
		return p.ColumnNames
	case *Aggregate:
		return p.ColumnNames
	case *Join:
		return p.ColumnNames
	case *Materialize:
		return p.ColumnNames
	}
	return nil
}

// Metadata returns the metadata of the table the plan reads. Joins report
// their left side.
func Metadata(p QueryPlan) TableMetadata {
	switch p := p.(type) {
	case *PointLookup:
		return p.Metadata
	case *RangeScan:
		return p.Metadata
	case *IndexScan:
		return p.Metadata
	case *TableScan:
		return p.Metadata
	case *Aggregate:
		return p.Metadata
	case *Join:
		return Metadata(p.Left)
	case *Materialize:
		return Metadata(p.Source)
	}
	return TableMetadata{}
}

func TableName(p QueryPlan) string {
	return Metadata(p).TableName
}
