package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"vellum/engine/executor"
	"vellum/engine/plan"
	"vellum/hangar"
	"vellum/hangar/mem"
	"vellum/lib/queryerr"
	"vellum/lib/schema"
	"vellum/lib/sql"
	"vellum/lib/value"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/raulk/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var (
	users = schema.NewTable(1, "users").
		Column("id", value.BigIntType, false).
		Column("name", value.TextType, true).
		PrimaryKey("id").
		MustBuild()
	orders = schema.NewTable(2, "orders").
		Column("id", value.BigIntType, false).
		Column("user_id", value.BigIntType, false).
		Column("status", value.TextType, false).
		Column("meta", value.JsonType, true).
		PrimaryKey("id").
		Index(1, "orders_user", "user_id").
		MustBuild()
)

func store(t *testing.T) (*schema.Schema, hangar.Store) {
	s, err := schema.New(users, orders)
	require.NoError(t, err)
	db := mem.NewHangar()
	t.Cleanup(func() { _ = db.Teardown() })

	var ms []hangar.Mutation
	add := func(table schema.TableDef, row ...value.Value) {
		m, err := table.RowMutations(row)
		require.NoError(t, err)
		ms = append(ms, m...)
	}
	add(users, value.BigInt(1), value.Text("alice"))
	add(users, value.BigInt(2), value.Text("bob"))
	add(users, value.BigInt(3), value.Nil)
	add(orders, value.BigInt(10), value.BigInt(1), value.Text("paid"), value.Json(`{"gift":true}`))
	add(orders, value.BigInt(11), value.BigInt(1), value.Text("open"), value.Nil)
	add(orders, value.BigInt(12), value.BigInt(2), value.Text("paid"), value.Json(`{"gift":true}`))
	add(orders, value.BigInt(13), value.BigInt(3), value.Text("paid"), value.Nil)
	require.NoError(t, db.Apply(context.Background(), hangar.Batch{Position: 1, Mutations: ms}))
	return s, db
}

func selectStmt(sel sql.Select) sql.Statement {
	return sql.Statement{Select: &sel}
}

func TestQuery(t *testing.T) {
	s, db := store(t)
	e := New(s, db)
	res, err := e.Query(context.Background(), selectStmt(sql.Select{
		Table:      "orders",
		Columns:    []string{"id"},
		Predicates: []sql.Predicate{sql.Eq("user_id", sql.Param(1))},
	}), []value.Value{value.BigInt(1)})
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, res.Columns)
	assert.Equal(t, [][]value.Value{{value.BigInt(10)}, {value.BigInt(11)}}, res.Rows)

	_, err = e.Query(context.Background(), selectStmt(sql.Select{Table: "nope"}), nil)
	assert.True(t, errors.Is(err, queryerr.ErrTableNotFound))

	_, err = e.Query(context.Background(), sql.Statement{}, nil)
	assert.True(t, errors.Is(err, queryerr.ErrUnsupportedFeature))
}

func TestQueryAt(t *testing.T) {
	s, db := store(t)
	ms, err := users.RowMutations([]value.Value{value.BigInt(4), value.Text("dan")})
	require.NoError(t, err)
	require.NoError(t, db.Apply(context.Background(), hangar.Batch{Position: 2, Mutations: ms}))

	e := New(s, db)
	stmt := selectStmt(sql.Select{Table: "users", Aggregates: []sql.Aggregate{{Func: sql.CountStar}}})
	res, err := e.QueryAt(context.Background(), stmt, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, [][]value.Value{{value.BigInt(3)}}, res.Rows)

	res, err = e.Query(context.Background(), stmt, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]value.Value{{value.BigInt(4)}}, res.Rows)
}

func TestUnion(t *testing.T) {
	s, db := store(t)
	e := New(s, db)
	left := sql.Select{Table: "orders", Columns: []string{"user_id", "meta"}, Predicates: []sql.Predicate{sql.Eq("status", sql.Str("paid"))}}
	right := sql.Select{Table: "orders", Columns: []string{"user_id", "meta"}, Predicates: []sql.Predicate{sql.Le("id", sql.Int(12))}}
	scenarios := []struct {
		name string
		all  bool
		rows [][]value.Value
	}{
		{
			name: "distinct",
			rows: [][]value.Value{
				{value.BigInt(1), value.Json(`{"gift":true}`)},
				{value.BigInt(2), value.Json(`{"gift":true}`)},
				{value.BigInt(3), value.Nil},
				{value.BigInt(1), value.Nil},
			},
		},
		{
			name: "all",
			all:  true,
			rows: [][]value.Value{
				{value.BigInt(1), value.Json(`{"gift":true}`)},
				{value.BigInt(2), value.Json(`{"gift":true}`)},
				{value.BigInt(3), value.Nil},
				{value.BigInt(1), value.Json(`{"gift":true}`)},
				{value.BigInt(1), value.Nil},
				{value.BigInt(2), value.Json(`{"gift":true}`)},
			},
		},
	}
	for _, scenario := range scenarios {
		t.Run(scenario.name, func(t *testing.T) {
			res, err := e.Query(context.Background(), sql.Statement{Union: &sql.Union{Left: left, Right: right, All: scenario.all}}, nil)
			require.NoError(t, err)
			assert.Equal(t, []string{"user_id", "meta"}, res.Columns)
			assert.Equal(t, scenario.rows, res.Rows)
		})
	}

	_, err := e.Query(context.Background(), sql.Statement{Union: &sql.Union{
		Left:  sql.Select{Table: "users"},
		Right: sql.Select{Table: "orders"},
	}}, nil)
	assert.True(t, errors.Is(err, queryerr.ErrUnsupportedFeature))
}

func TestCTE(t *testing.T) {
	s, db := store(t)
	e := New(s, db)
	paid := sql.CTE{Name: "paid", Query: sql.Select{
		Table:      "orders",
		Columns:    []string{"id", "user_id"},
		Predicates: []sql.Predicate{sql.Eq("status", sql.Str("paid"))},
	}}
	scenarios := []struct {
		name    string
		sel     sql.Select
		columns []string
		rows    [][]value.Value
	}{
		{
			name:    "filter",
			sel:     sql.Select{Table: "paid", Columns: []string{"user_id"}, Predicates: []sql.Predicate{sql.Gt("id", sql.Int(10))}},
			columns: []string{"user_id"},
			rows:    [][]value.Value{{value.BigInt(2)}, {value.BigInt(3)}},
		},
		{
			name: "join_base_table",
			sel: sql.Select{
				Table:   "users",
				Columns: []string{"name", "paid.id"},
				Joins:   []sql.Join{{Type: sql.InnerJoin, Table: "paid", On: []sql.Predicate{sql.Eq("users.id", sql.Column("paid.user_id"))}}},
			},
			columns: []string{"name", "paid.id"},
			rows: [][]value.Value{
				{value.Text("alice"), value.BigInt(10)},
				{value.Text("bob"), value.BigInt(12)},
				{value.Nil, value.BigInt(13)},
			},
		},
		{
			name: "chained",
			sel: sql.Select{
				Table: "per_user",
				CTEs: []sql.CTE{{Name: "per_user", Query: sql.Select{
					Table:      "paid",
					GroupBy:    []string{"user_id"},
					Aggregates: []sql.Aggregate{{Func: sql.CountStar}},
				}}},
			},
			columns: []string{"user_id", "COUNT(*)"},
			rows: [][]value.Value{
				{value.BigInt(1), value.BigInt(1)},
				{value.BigInt(2), value.BigInt(1)},
				{value.BigInt(3), value.BigInt(1)},
			},
		},
	}
	for _, scenario := range scenarios {
		t.Run(scenario.name, func(t *testing.T) {
			sel := scenario.sel
			sel.CTEs = append([]sql.CTE{paid}, sel.CTEs...)
			res, err := e.Query(context.Background(), selectStmt(sel), nil)
			require.NoError(t, err)
			assert.Equal(t, scenario.columns, res.Columns)
			assert.Equal(t, scenario.rows, res.Rows)
		})
	}
	// the catalog the engine was built with never sees CTE tables
	_, ok := s.Table("paid")
	assert.False(t, ok)
}

func TestCTE_EmptyResult(t *testing.T) {
	s, db := store(t)
	e := New(s, db)
	res, err := e.Query(context.Background(), selectStmt(sql.Select{
		Table: "none",
		CTEs: []sql.CTE{{Name: "none", Query: sql.Select{
			Table:      "users",
			Columns:    []string{"name"},
			Predicates: []sql.Predicate{sql.Gt("id", sql.Int(100))},
		}}},
		Predicates: []sql.Predicate{sql.Eq("name", sql.Str("x"))},
	}), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, res.Columns)
	assert.Empty(t, res.Rows)
}

func TestCTE_Errors(t *testing.T) {
	s, db := store(t)
	e := New(s, db)
	scenarios := []struct {
		name string
		cte  sql.CTE
		err  error
	}{
		{"shadows_table", sql.CTE{Name: "users", Query: sql.Select{Table: "orders"}}, queryerr.ErrUnsupportedFeature},
		{"nested_with", sql.CTE{Name: "x", Query: sql.Select{Table: "y", CTEs: []sql.CTE{{Name: "y", Query: sql.Select{Table: "users"}}}}}, queryerr.ErrUnsupportedFeature},
		{"unknown_table", sql.CTE{Name: "x", Query: sql.Select{Table: "nope"}}, queryerr.ErrTableNotFound},
	}
	for _, scenario := range scenarios {
		t.Run(scenario.name, func(t *testing.T) {
			_, err := e.Query(context.Background(), selectStmt(sql.Select{Table: "users", CTEs: []sql.CTE{scenario.cte}}), nil)
			assert.True(t, errors.Is(err, scenario.err), "got %v", err)
		})
	}
}

func TestCteTable(t *testing.T) {
	def, err := cteTable("t", executor.Result{Columns: []string{"users.id", "amount", "note"}, Rows: [][]value.Value{
		{value.BigInt(1), value.Nil, value.Nil},
		{value.BigInt(2), value.NewDecimal(150, 2), value.Nil},
	}})
	require.NoError(t, err)
	assert.Equal(t, []schema.ColumnDef{
		{Name: "id", Type: value.BigIntType, Nullable: true},
		{Name: "amount", Type: value.DecimalType(38, 2), Nullable: true},
		{Name: "note", Type: value.TextType, Nullable: true},
	}, def.Columns)
	assert.Empty(t, def.PrimaryKey)
	assert.Equal(t, cteTableID("T"), def.ID)

	_, err = cteTable("t", executor.Result{Columns: []string{"users.id", "orders.id"}})
	assert.True(t, errors.Is(err, queryerr.ErrUnsupportedFeature))
}

func TestPrepare(t *testing.T) {
	s, db := store(t)
	e := New(s, db)
	q, err := e.Prepare(context.Background(), sql.Select{
		Table:      "users",
		Columns:    []string{"name"},
		Predicates: []sql.Predicate{sql.Eq("id", sql.Param(1))},
	}, []value.Value{value.BigInt(2)})
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, q.Columns())
	assert.Equal(t, "users", q.TableName())
	assert.IsType(t, &plan.PointLookup{}, q.Plan())

	res, err := q.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]value.Value{{value.Text("bob")}}, res.Rows)

	res, err = q.ExecuteAt(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, res.Rows)

	_, err = e.Prepare(context.Background(), sql.Select{Table: "x", CTEs: []sql.CTE{{Name: "x", Query: sql.Select{Table: "users"}}}}, nil)
	assert.True(t, errors.Is(err, queryerr.ErrUnsupportedFeature))
	_, err = e.Prepare(context.Background(), sql.Select{Table: "users", Predicates: []sql.Predicate{sql.Eq("id", sql.Param(1))}}, nil)
	assert.True(t, errors.Is(err, queryerr.ErrParameterNotFound))
}

// slowReader advances a mock clock on every scan.
type slowReader struct {
	hangar.Reader
	clock *clock.Mock
	by    time.Duration
}

func (r slowReader) Scan(ctx context.Context, req hangar.ScanRequest) ([]hangar.KV, error) {
	r.clock.Add(r.by)
	return r.Reader.Scan(ctx, req)
}

func TestSlowQueryLog(t *testing.T) {
	s, db := store(t)
	ck := clock.NewMock()
	core, logs := observer.New(zapcore.WarnLevel)
	e := New(s, slowReader{Reader: db, clock: ck, by: 2 * time.Second},
		WithClock(ck),
		WithLogger(zap.New(core)),
		WithSlowQueryThreshold(time.Second),
	)

	// point lookups never scan
	_, err := e.Query(context.Background(), selectStmt(sql.Select{Table: "users", Predicates: []sql.Predicate{sql.Eq("id", sql.Int(1))}}), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, logs.Len())

	_, err = e.Query(context.Background(), selectStmt(sql.Select{Table: "users"}), nil)
	require.NoError(t, err)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "slow query", entry.Message)
	assert.Equal(t, "table_scan", entry.ContextMap()["plan"])
	assert.Equal(t, 2*time.Second, entry.ContextMap()["took"])

	e = New(s, slowReader{Reader: db, clock: ck, by: 2 * time.Second}, WithClock(ck), WithLogger(zap.New(core)), WithSlowQueryThreshold(0))
	_, err = e.Query(context.Background(), selectStmt(sql.Select{Table: "users"}), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, logs.Len())
}

func TestQueryMetrics(t *testing.T) {
	s, db := store(t)
	e := New(s, db)
	ok := queries.WithLabelValues("point_lookup", "ok")
	failed := queries.WithLabelValues("none", "query_error")
	before, beforeFailed := testutil.ToFloat64(ok), testutil.ToFloat64(failed)

	_, err := e.Query(context.Background(), selectStmt(sql.Select{Table: "users", Predicates: []sql.Predicate{sql.Eq("id", sql.Int(1))}}), nil)
	require.NoError(t, err)
	_, err = e.Query(context.Background(), selectStmt(sql.Select{Table: "nope"}), nil)
	require.Error(t, err)

	assert.Equal(t, before+1, testutil.ToFloat64(ok))
	assert.Equal(t, beforeFailed+1, testutil.ToFloat64(failed))
}
