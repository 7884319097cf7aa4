// Package executor runs a plan against a store reader and returns decoded
// rows.
//
// An execution reads the store strictly sequentially and runs to completion
// before returning. It either returns every row or an error, never both.
// Scans fetch a bounded number of entries: a full table scan without a LIMIT
// stops after tableScanLimit entries, so callers that need more must bound
// the work themselves.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"math"

	"vellum/engine/plan"
	"vellum/hangar"
	"vellum/lib/codex"
	"vellum/lib/schema"
	"vellum/lib/timer"
	"vellum/lib/value"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/mo"
)

const (
	// defaultScanLimit bounds range and index scans without a LIMIT.
	defaultScanLimit = 10_000
	// tableScanLimit bounds full table scans without a LIMIT.
	tableScanLimit = 100_000

	sortedScanFactor   = 10
	unsortedScanFactor = 2
)

var entriesScanned = promauto.NewSummaryVec(prometheus.SummaryOpts{
	Name: "executor_entries_scanned",
	Help: "Number of store entries read by one scan",
	Objectives: map[float64]float64{
		0.50: 0.05,
		0.90: 0.05,
		0.99: 0.01,
	},
}, []string{"plan"})

// Result is the output of one plan: column names and rows in order.
type Result struct {
	Columns []string
	Rows    [][]value.Value
}

// Execute runs p against the latest state of reader.
func Execute(ctx context.Context, reader hangar.Reader, p plan.QueryPlan) (Result, error) {
	return ExecuteAt(ctx, reader, p, hangar.CurrentPosition)
}

// ExecuteAt runs p against the state of reader as of pos.
func ExecuteAt(ctx context.Context, reader hangar.Reader, p plan.QueryPlan, pos hangar.Position) (Result, error) {
	ctx, t := timer.Start(ctx, "executor.execute")
	defer t.Stop()
	r := &run{ctx: ctx, reader: reader, pos: pos}
	rows, err := r.exec(p)
	if err != nil {
		return Result{}, err
	}
	return Result{Columns: plan.ColumnNames(p), Rows: rows}, nil
}

type run struct {
	ctx    context.Context
	reader hangar.Reader
	pos    hangar.Position
}

func (r *run) exec(p plan.QueryPlan) ([][]value.Value, error) {
	switch p := p.(type) {
	case *plan.PointLookup:
		return r.pointLookup(p)
	case *plan.RangeScan:
		return r.rangeScan(p)
	case *plan.IndexScan:
		return r.indexScan(p)
	case *plan.TableScan:
		return r.tableScan(p)
	case *plan.Aggregate:
		return r.aggregate(p)
	case *plan.Join:
		return r.join(p)
	case *plan.Materialize:
		return r.materialize(p)
	}
	return nil, fmt.Errorf("executor: unknown plan %T", p)
}

func (r *run) get(table hangar.TableID, key []byte) (mo.Option[[]byte], error) {
	if r.pos == hangar.CurrentPosition {
		return r.reader.Get(r.ctx, table, key)
	}
	return r.reader.GetAt(r.ctx, table, key, r.pos)
}

func (r *run) scan(kind string, req hangar.ScanRequest) ([]hangar.KV, error) {
	var kvs []hangar.KV
	var err error
	if r.pos == hangar.CurrentPosition {
		kvs, err = r.reader.Scan(r.ctx, req)
	} else {
		kvs, err = r.reader.ScanAt(r.ctx, req, r.pos)
	}
	if err != nil {
		return nil, err
	}
	entriesScanned.WithLabelValues(kind).Observe(float64(len(kvs)))
	return kvs, nil
}

func (r *run) pointLookup(p *plan.PointLookup) ([][]value.Value, error) {
	data, err := r.get(p.Metadata.TableID, p.Key)
	if err != nil {
		return nil, err
	}
	rows := make([][]value.Value, 0, 1)
	if data.IsAbsent() {
		return rows, nil
	}
	row, err := decodeRow(p.Metadata, data.MustGet())
	if err != nil {
		return nil, err
	}
	if !plan.Matches(p.Filter, row) {
		return rows, nil
	}
	return append(rows, project(row, p.Columns)), nil
}

// scanBudget is how many entries a key ordered scan fetches. Rows rejected by
// the residual filter are made up for by over-fetching; a scan that sorts
// afterwards fetches more since its LIMIT applies only after the sort.
func scanBudget(limit mo.Option[int], sorted bool) int {
	l, ok := limit.Get()
	if !ok {
		return defaultScanLimit
	}
	factor := unsortedScanFactor
	if sorted {
		factor = sortedScanFactor
	}
	if l > math.MaxInt32 {
		return 0
	}
	return l * factor
}

func (r *run) rangeScan(p *plan.RangeScan) ([][]value.Value, error) {
	start, end := p.Start.StartKey(), p.End.EndKey()
	if p.Limit.OrElse(1) == 0 || bytes.Compare(start, end) >= 0 {
		return [][]value.Value{}, nil
	}
	kvs, err := r.scan(p.Kind(), hangar.ScanRequest{
		Table:   p.Metadata.TableID,
		Start:   start,
		End:     end,
		Limit:   scanBudget(p.Limit, p.OrderBy != nil),
		Reverse: p.Order == plan.Desc,
	})
	if err != nil {
		return nil, err
	}
	c := newCollector(p.Metadata, p.Filter, p.Limit, p.OrderBy)
	for _, kv := range kvs {
		full, err := c.add(kv.Value)
		if err != nil {
			return nil, err
		}
		if full {
			break
		}
	}
	return c.finish(p.Columns), nil
}

func (r *run) indexScan(p *plan.IndexScan) ([][]value.Value, error) {
	start, end := p.Start.StartKey(), p.End.EndKey()
	if p.Limit.OrElse(1) == 0 || bytes.Compare(start, end) >= 0 {
		return [][]value.Value{}, nil
	}
	kvs, err := r.scan(p.Kind(), hangar.ScanRequest{
		Table:   schema.IndexTableID(p.Metadata.TableID, p.IndexID),
		Start:   start,
		End:     end,
		Limit:   scanBudget(p.Limit, p.OrderBy != nil),
		Reverse: p.Order == plan.Desc,
	})
	if err != nil {
		return nil, err
	}
	c := newCollector(p.Metadata, p.Filter, p.Limit, p.OrderBy)
	for _, kv := range kvs {
		data, err := r.get(p.Metadata.TableID, primaryKeyOf(kv.Key, len(p.Metadata.PrimaryKey)))
		if err != nil {
			return nil, err
		}
		// the row was deleted after its index entry was read
		if data.IsAbsent() {
			continue
		}
		full, err := c.add(data.MustGet())
		if err != nil {
			return nil, err
		}
		if full {
			break
		}
	}
	return c.finish(p.Columns), nil
}

// primaryKeyOf extracts the primary key from an index entry key, which holds
// the indexed values followed by the primary key values.
func primaryKeyOf(indexKey []byte, pkLen int) codex.Key {
	vals := codex.Decode(indexKey)
	if len(vals) < pkLen {
		panic(fmt.Sprintf("executor: index key %x holds %d values, primary key has %d", indexKey, len(vals), pkLen))
	}
	return codex.Encode(vals[len(vals)-pkLen:])
}

func (r *run) tableScan(p *plan.TableScan) ([][]value.Value, error) {
	if p.Limit.OrElse(1) == 0 {
		return [][]value.Value{}, nil
	}
	budget := tableScanLimit
	if l, ok := p.Limit.Get(); ok && l <= math.MaxInt32 {
		budget = l * sortedScanFactor
	}
	kvs, err := r.scan(p.Kind(), hangar.ScanRequest{Table: p.Metadata.TableID, Limit: budget})
	if err != nil {
		return nil, err
	}
	// the limit applies after the sort, and only once every entry is read
	c := newCollector(p.Metadata, p.Filter, p.Limit, p.Order)
	c.stopEarly = false
	for _, kv := range kvs {
		if _, err := c.add(kv.Value); err != nil {
			return nil, err
		}
	}
	return c.finish(p.Columns), nil
}

// collector decodes and filters full rows, then sorts, limits and projects
// them.
type collector struct {
	meta      plan.TableMetadata
	filter    plan.Filter
	limit     mo.Option[int]
	order     *plan.SortSpec
	stopEarly bool
	rows      [][]value.Value
}

func newCollector(meta plan.TableMetadata, filter plan.Filter, limit mo.Option[int], order *plan.SortSpec) *collector {
	return &collector{meta: meta, filter: filter, limit: limit, order: order, stopEarly: order == nil}
}

// add decodes one stored row. It reports true once enough rows are kept and
// the scan can stop.
func (c *collector) add(data []byte) (bool, error) {
	row, err := decodeRow(c.meta, data)
	if err != nil {
		return false, err
	}
	if !plan.Matches(c.filter, row) {
		return false, nil
	}
	c.rows = append(c.rows, row)
	l, ok := c.limit.Get()
	return c.stopEarly && ok && len(c.rows) >= l, nil
}

func (c *collector) finish(columns []int) [][]value.Value {
	plan.SortRows(c.rows, c.order)
	rows := truncate(c.rows, c.limit)
	ret := make([][]value.Value, len(rows))
	for i, row := range rows {
		ret[i] = project(row, columns)
	}
	return ret
}

func truncate(rows [][]value.Value, limit mo.Option[int]) [][]value.Value {
	if l, ok := limit.Get(); ok && len(rows) > l {
		return rows[:l]
	}
	return rows
}
