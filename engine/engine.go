// Package engine is the entry point of the query core. It plans statements
// against a schema catalog and runs them against a store reader, adding the
// statement level features the planner does not see: UNION and WITH.
package engine

import (
	"context"
	"errors"
	"time"

	"vellum/engine/executor"
	"vellum/engine/plan"
	"vellum/engine/planner"
	"vellum/hangar"
	"vellum/lib/queryerr"
	"vellum/lib/schema"
	"vellum/lib/sql"
	"vellum/lib/timer"
	"vellum/lib/value"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/raulk/clock"
	"go.uber.org/zap"
)

const defaultSlowQueryThreshold = time.Second

var queries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "engine_queries",
	Help: "Number of executed queries by plan kind and outcome",
}, []string{"plan", "outcome"})

type QueryEngine struct {
	schema    *schema.Schema
	reader    hangar.Reader
	clock     clock.Clock
	logger    *zap.Logger
	slowQuery time.Duration
}

type Option func(*QueryEngine)

func WithClock(c clock.Clock) Option {
	return func(e *QueryEngine) { e.clock = c }
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *QueryEngine) { e.logger = logger }
}

// WithSlowQueryThreshold sets the duration above which a query is logged as
// slow. Zero disables slow query logging.
func WithSlowQueryThreshold(d time.Duration) Option {
	return func(e *QueryEngine) { e.slowQuery = d }
}

// New returns an engine over s and reader. The engine never mutates s, so the
// caller may keep sharing it.
func New(s *schema.Schema, reader hangar.Reader, opts ...Option) *QueryEngine {
	e := &QueryEngine{
		schema:    s,
		reader:    reader,
		clock:     clock.New(),
		logger:    zap.L(),
		slowQuery: defaultSlowQueryThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *QueryEngine) Schema() *schema.Schema {
	return e.schema
}

// Query runs stmt against the latest state of the store.
func (e *QueryEngine) Query(ctx context.Context, stmt sql.Statement, params []value.Value) (executor.Result, error) {
	return e.QueryAt(ctx, stmt, params, hangar.CurrentPosition)
}

// QueryAt runs stmt against the state of the store as of pos. Every part of
// the statement, both sides of a UNION and every CTE included, reads at pos.
func (e *QueryEngine) QueryAt(ctx context.Context, stmt sql.Statement, params []value.Value, pos hangar.Position) (executor.Result, error) {
	ctx, t := timer.Start(ctx, "engine.query")
	defer t.Stop()
	start := e.clock.Now()
	var res executor.Result
	var kind string
	var err error
	switch {
	case stmt.Union != nil && stmt.Select != nil:
		err = queryerr.Unsupported("statement holds both a select and a union")
	case stmt.Union != nil:
		kind = "union"
		res, err = e.union(ctx, *stmt.Union, params, pos)
	case stmt.Select != nil:
		res, kind, err = e.selectAt(ctx, *stmt.Select, params, pos)
	default:
		err = queryerr.Unsupported("empty statement")
	}
	e.observe(kind, start, err)
	if err != nil {
		return executor.Result{}, err
	}
	return res, nil
}

// Prepare plans sel once so it can be executed any number of times, at any
// position. Statements with a WITH clause depend on the rows of their CTEs
// and cannot be prepared.
func (e *QueryEngine) Prepare(ctx context.Context, sel sql.Select, params []value.Value) (*PreparedQuery, error) {
	if len(sel.CTEs) > 0 {
		return nil, queryerr.Unsupported("WITH in a prepared query")
	}
	p, err := planner.New(e.schema).Plan(ctx, sel, params)
	if err != nil {
		return nil, err
	}
	return &PreparedQuery{engine: e, plan: p}, nil
}

func (e *QueryEngine) selectAt(ctx context.Context, sel sql.Select, params []value.Value, pos hangar.Position) (executor.Result, string, error) {
	s, reader := e.schema, e.reader
	if len(sel.CTEs) > 0 {
		ov, err := e.overlay(ctx, sel.CTEs, params, pos)
		if err != nil {
			return executor.Result{}, "", err
		}
		defer ov.close()
		s, reader = ov.schema, ov.reader
		sel.CTEs = nil
	}
	p, err := planner.New(s).Plan(ctx, sel, params)
	if err != nil {
		return executor.Result{}, "", err
	}
	res, err := executor.ExecuteAt(ctx, reader, p, pos)
	return res, p.Kind(), err
}

// union runs both sides at pos. The result takes its column names from the
// left side; without ALL, duplicate rows are dropped keeping the first.
func (e *QueryEngine) union(ctx context.Context, u sql.Union, params []value.Value, pos hangar.Position) (executor.Result, error) {
	left, _, err := e.selectAt(ctx, u.Left, params, pos)
	if err != nil {
		return executor.Result{}, err
	}
	right, _, err := e.selectAt(ctx, u.Right, params, pos)
	if err != nil {
		return executor.Result{}, err
	}
	if len(left.Columns) != len(right.Columns) {
		return executor.Result{}, queryerr.Unsupported("UNION of %d and %d columns", len(left.Columns), len(right.Columns))
	}
	rows := make([][]value.Value, 0, len(left.Rows)+len(right.Rows))
	rows = append(append(rows, left.Rows...), right.Rows...)
	if !u.All {
		rows = executor.Distinct(rows)
	}
	return executor.Result{Columns: left.Columns, Rows: rows}, nil
}

func (e *QueryEngine) observe(kind string, start time.Time, err error) {
	if kind == "" {
		kind = "none"
	}
	outcome := "ok"
	switch {
	case err == nil:
	case queryerr.IsQueryError(err):
		outcome = "query_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = "canceled"
	default:
		outcome = "error"
	}
	queries.WithLabelValues(kind, outcome).Inc()
	took := e.clock.Now().Sub(start)
	if e.slowQuery > 0 && took > e.slowQuery {
		e.logger.Warn("slow query",
			zap.String("plan", kind),
			zap.String("outcome", outcome),
			zap.Duration("took", took),
		)
	}
}

// PreparedQuery is a planned select bound to the engine that prepared it.
type PreparedQuery struct {
	engine *QueryEngine
	plan   plan.QueryPlan
}

func (q *PreparedQuery) Execute(ctx context.Context) (executor.Result, error) {
	return q.ExecuteAt(ctx, hangar.CurrentPosition)
}

func (q *PreparedQuery) ExecuteAt(ctx context.Context, pos hangar.Position) (executor.Result, error) {
	ctx, t := timer.Start(ctx, "engine.execute_prepared")
	defer t.Stop()
	start := q.engine.clock.Now()
	res, err := executor.ExecuteAt(ctx, q.engine.reader, q.plan, pos)
	q.engine.observe(q.plan.Kind(), start, err)
	return res, err
}

func (q *PreparedQuery) Columns() []string {
	return plan.ColumnNames(q.plan)
}

func (q *PreparedQuery) TableName() string {
	return plan.TableName(q.plan)
}

func (q *PreparedQuery) Plan() plan.QueryPlan {
	return q.plan
}
