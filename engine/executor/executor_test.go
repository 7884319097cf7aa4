package executor

import (
	"context"
	"errors"
	"testing"

	"vellum/engine/plan"
	"vellum/engine/planner"
	"vellum/hangar"
	"vellum/hangar/mem"
	"vellum/lib/codex"
	"vellum/lib/queryerr"
	"vellum/lib/schema"
	"vellum/lib/sql"
	"vellum/lib/value"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	users = schema.NewTable(1, "users").
		Column("id", value.BigIntType, false).
		Column("name", value.TextType, true).
		Column("age", value.TinyIntType, true).
		PrimaryKey("id").
		MustBuild()
	orders = schema.NewTable(2, "orders").
		Column("id", value.BigIntType, false).
		Column("user_id", value.BigIntType, false).
		Column("status", value.TextType, false).
		Column("amount", value.DecimalType(10, 2), false).
		PrimaryKey("id").
		Index(1, "orders_user", "user_id").
		Index(3, "orders_status", "status").
		MustBuild()
	logs = schema.NewTable(4, "logs").
		Column("msg", value.TextType, false).
		Column("level", value.IntegerType, true).
		MustBuild()
)

func user(id int64, name value.Value, age value.Value) []value.Value {
	return []value.Value{value.BigInt(id), name, age}
}

func order(id, userID int64, status string, cents int64) []value.Value {
	return []value.Value{value.BigInt(id), value.BigInt(userID), value.Text(status), value.NewDecimal(cents, 2)}
}

func rowMutations(t *testing.T, table schema.TableDef, rows ...[]value.Value) []hangar.Mutation {
	var ret []hangar.Mutation
	for _, row := range rows {
		ms, err := table.RowMutations(row)
		require.NoError(t, err)
		ret = append(ret, ms...)
	}
	return ret
}

func apply(t *testing.T, db hangar.Store, pos hangar.Position, mutations ...hangar.Mutation) {
	require.NoError(t, db.Apply(context.Background(), hangar.Batch{Position: pos, Mutations: mutations}))
}

// fixture loads users and orders at position 1 and heap rows into logs at
// position 2.
func fixture(t *testing.T) (*schema.Schema, hangar.Store) {
	s, err := schema.New(users, orders, logs)
	require.NoError(t, err)
	db := mem.NewHangar()
	t.Cleanup(func() { _ = db.Teardown() })

	ms := rowMutations(t, users,
		user(1, value.Text("alice"), value.TinyInt(30)),
		user(2, value.Text("bob"), value.TinyInt(17)),
		user(3, value.Nil, value.TinyInt(65)),
		user(4, value.Text("dave"), value.Nil),
		user(5, value.Text("erin"), value.TinyInt(41)),
	)
	ms = append(ms, rowMutations(t, orders,
		order(10, 1, "paid", 1050),
		order(11, 1, "open", 200),
		order(12, 2, "paid", 999),
		order(13, 3, "paid", 1),
		order(14, 1, "paid", 50),
	)...)
	apply(t, db, 1, ms...)

	var heap []hangar.Mutation
	for i, msg := range []string{"boot", "ready", "halt"} {
		hm, err := logs.HeapRowMutations(int64(i), []value.Value{value.Text(msg), value.Integer(int32(i))})
		require.NoError(t, err)
		heap = append(heap, hm...)
	}
	apply(t, db, 2, heap...)
	return s, db
}

func limit(n int) *int {
	return &n
}

func query(t *testing.T, s *schema.Schema, db hangar.Reader, sel sql.Select, params ...value.Value) (Result, error) {
	p, err := planner.New(s).Plan(context.Background(), sel, params)
	require.NoError(t, err)
	return Execute(context.Background(), db, p)
}

func TestExecute(t *testing.T) {
	s, db := fixture(t)
	scenarios := []struct {
		name    string
		sel     sql.Select
		columns []string
		rows    [][]value.Value
	}{
		{
			name:    "point_lookup",
			sel:     sql.Select{Table: "users", Columns: []string{"name"}, Predicates: []sql.Predicate{sql.Eq("id", sql.Int(2))}},
			columns: []string{"name"},
			rows:    [][]value.Value{{value.Text("bob")}},
		},
		{
			name:    "point_lookup_missing",
			sel:     sql.Select{Table: "users", Predicates: []sql.Predicate{sql.Eq("id", sql.Int(99))}},
			columns: []string{"id", "name", "age"},
			rows:    [][]value.Value{},
		},
		{
			name: "point_lookup_filtered_out",
			sel: sql.Select{Table: "users", Columns: []string{"id"}, Predicates: []sql.Predicate{
				sql.Eq("id", sql.Int(2)), sql.Gt("age", sql.Int(18)),
			}},
			columns: []string{"id"},
			rows:    [][]value.Value{},
		},
		{
			name:    "range",
			sel:     sql.Select{Table: "users", Columns: []string{"id"}, Predicates: []sql.Predicate{sql.Gt("id", sql.Int(1)), sql.Le("id", sql.Int(3))}},
			columns: []string{"id"},
			rows:    [][]value.Value{{value.BigInt(2)}, {value.BigInt(3)}},
		},
		{
			name: "range_desc_limit",
			sel: sql.Select{
				Table:      "orders",
				Columns:    []string{"id"},
				Predicates: []sql.Predicate{sql.Ge("id", sql.Int(10))},
				OrderBy:    []sql.OrderBy{{Column: "id", Desc: true}},
				Limit:      limit(2),
			},
			columns: []string{"id"},
			rows:    [][]value.Value{{value.BigInt(14)}, {value.BigInt(13)}},
		},
		{
			name: "or",
			sel: sql.Select{
				Table:   "users",
				Columns: []string{"id"},
				Predicates: []sql.Predicate{
					sql.Or([]sql.Predicate{sql.Lt("age", sql.Int(18))}, []sql.Predicate{sql.Gt("age", sql.Int(60))}),
				},
			},
			columns: []string{"id"},
			rows:    [][]value.Value{{value.BigInt(2)}, {value.BigInt(3)}},
		},
		{
			name:    "is_null",
			sel:     sql.Select{Table: "users", Columns: []string{"id", "age"}, Predicates: []sql.Predicate{sql.IsNull("age")}},
			columns: []string{"id", "age"},
			rows:    [][]value.Value{{value.BigInt(4), value.Nil}},
		},
		{
			name:    "like",
			sel:     sql.Select{Table: "users", Columns: []string{"name"}, Predicates: []sql.Predicate{sql.Like("name", "%e%")}},
			columns: []string{"name"},
			rows:    [][]value.Value{{value.Text("alice")}, {value.Text("dave")}, {value.Text("erin")}},
		},
		{
			name: "sort_before_limit",
			sel: sql.Select{
				Table:   "users",
				Columns: []string{"name"},
				OrderBy: []sql.OrderBy{{Column: "age", Desc: true}},
				Limit:   limit(2),
			},
			columns: []string{"name"},
			rows:    [][]value.Value{{value.Nil}, {value.Text("erin")}},
		},
		{
			name:    "index_scan",
			sel:     sql.Select{Table: "orders", Columns: []string{"id", "status"}, Predicates: []sql.Predicate{sql.Eq("user_id", sql.Int(1))}},
			columns: []string{"id", "status"},
			rows: [][]value.Value{
				{value.BigInt(10), value.Text("paid")},
				{value.BigInt(11), value.Text("open")},
				{value.BigInt(14), value.Text("paid")},
			},
		},
		{
			name: "index_scan_residual_filter",
			sel: sql.Select{Table: "orders", Columns: []string{"id"}, Predicates: []sql.Predicate{
				sql.Eq("status", sql.Str("paid")), sql.Gt("amount", sql.Int(5)),
			}},
			columns: []string{"id"},
			rows:    [][]value.Value{{value.BigInt(10)}, {value.BigInt(12)}},
		},
		{
			name:    "heap_table",
			sel:     sql.Select{Table: "logs", Columns: []string{"msg"}, Predicates: []sql.Predicate{sql.Ge("level", sql.Int(1))}},
			columns: []string{"msg"},
			rows:    [][]value.Value{{value.Text("ready")}, {value.Text("halt")}},
		},
		{
			name:    "limit_zero",
			sel:     sql.Select{Table: "users", Predicates: []sql.Predicate{sql.Gt("id", sql.Int(0))}, Limit: limit(0)},
			columns: []string{"id", "name", "age"},
			rows:    [][]value.Value{},
		},
		{
			name:    "empty_range",
			sel:     sql.Select{Table: "users", Predicates: []sql.Predicate{sql.Gt("id", sql.Int(3)), sql.Lt("id", sql.Int(2))}},
			columns: []string{"id", "name", "age"},
			rows:    [][]value.Value{},
		},
	}
	for _, scenario := range scenarios {
		t.Run(scenario.name, func(t *testing.T) {
			res, err := query(t, s, db, scenario.sel)
			require.NoError(t, err)
			assert.Equal(t, scenario.columns, res.Columns)
			assert.Equal(t, scenario.rows, res.Rows)
		})
	}
}

func TestExecute_Aggregate(t *testing.T) {
	s, db := fixture(t)
	scenarios := []struct {
		name    string
		sel     sql.Select
		columns []string
		rows    [][]value.Value
	}{
		{
			name: "group_by",
			sel: sql.Select{
				Table:      "orders",
				GroupBy:    []string{"user_id"},
				Aggregates: []sql.Aggregate{{Func: sql.CountStar}, {Func: sql.Sum, Column: "amount"}, {Func: sql.Max, Column: "status"}},
			},
			columns: []string{"user_id", "COUNT(*)", "SUM(amount)", "MAX(status)"},
			rows: [][]value.Value{
				{value.BigInt(1), value.BigInt(3), value.NewDecimal(1300, 2), value.Text("paid")},
				{value.BigInt(2), value.BigInt(1), value.NewDecimal(999, 2), value.Text("paid")},
				{value.BigInt(3), value.BigInt(1), value.NewDecimal(1, 2), value.Text("paid")},
			},
		},
		{
			name: "having",
			sel: sql.Select{
				Table:      "orders",
				GroupBy:    []string{"user_id"},
				Aggregates: []sql.Aggregate{{Func: sql.CountStar}},
				Having:     []sql.Having{{Aggregate: sql.Aggregate{Func: sql.CountStar}, Op: sql.OpGe, Value: sql.Int(2)}},
			},
			columns: []string{"user_id", "COUNT(*)"},
			rows:    [][]value.Value{{value.BigInt(1), value.BigInt(3)}},
		},
		{
			name: "order_by_aggregate",
			sel: sql.Select{
				Table:      "orders",
				GroupBy:    []string{"status"},
				Aggregates: []sql.Aggregate{{Func: sql.CountStar}},
				OrderBy:    []sql.OrderBy{{Column: "COUNT(*)"}},
				Limit:      limit(1),
			},
			columns: []string{"status", "COUNT(*)"},
			rows:    [][]value.Value{{value.Text("open"), value.BigInt(1)}},
		},
		{
			name: "count_column_counts_nulls",
			sel: sql.Select{
				Table:      "users",
				Aggregates: []sql.Aggregate{{Func: sql.Count, Column: "name"}, {Func: sql.CountStar}},
			},
			columns: []string{"COUNT(name)", "COUNT(*)"},
			rows:    [][]value.Value{{value.BigInt(5), value.BigInt(5)}},
		},
		{
			name: "avg_min_skip_nulls",
			sel: sql.Select{
				Table:      "users",
				Aggregates: []sql.Aggregate{{Func: sql.Min, Column: "age"}, {Func: sql.Sum, Column: "age"}, {Func: sql.Avg, Column: "age"}},
				Predicates: []sql.Predicate{sql.Ge("id", sql.Int(3))},
			},
			columns: []string{"MIN(age)", "SUM(age)", "AVG(age)"},
			// AVG divides by every row of the group
			rows: [][]value.Value{{value.TinyInt(41), value.TinyInt(106), value.Real(106.0 / 3)}},
		},
		{
			name: "empty_global_group",
			sel: sql.Select{
				Table:      "users",
				Aggregates: []sql.Aggregate{{Func: sql.CountStar}, {Func: sql.Sum, Column: "age"}, {Func: sql.Max, Column: "name"}},
				Predicates: []sql.Predicate{sql.Gt("id", sql.Int(100))},
			},
			columns: []string{"COUNT(*)", "SUM(age)", "MAX(name)"},
			rows:    [][]value.Value{{value.BigInt(0), value.Nil, value.Nil}},
		},
		{
			name:    "distinct",
			sel:     sql.Select{Table: "orders", Columns: []string{"status"}, Distinct: true},
			columns: []string{"status"},
			rows:    [][]value.Value{{value.Text("paid")}, {value.Text("open")}},
		},
	}
	for _, scenario := range scenarios {
		t.Run(scenario.name, func(t *testing.T) {
			res, err := query(t, s, db, scenario.sel)
			require.NoError(t, err)
			assert.Equal(t, scenario.columns, res.Columns)
			assert.Equal(t, scenario.rows, res.Rows)
		})
	}
}

func TestExecute_Coercion(t *testing.T) {
	ev := schema.NewTable(5, "ev").
		Column("id", value.BigIntType, false).
		Column("created_at", value.TimestampType, false).
		Column("day", value.DateType, false).
		Column("at", value.TimeType, false).
		Column("score", value.RealType, false).
		Column("price", value.DecimalType(10, 2), false).
		PrimaryKey("id").
		MustBuild()
	s, err := schema.New(ev)
	require.NoError(t, err)
	db := mem.NewHangar()
	t.Cleanup(func() { _ = db.Teardown() })
	var rows [][]value.Value
	for i := int64(0); i < 20; i++ {
		rows = append(rows, []value.Value{
			value.BigInt(i), value.Timestamp(1000 + i), value.Date(19000 + i), value.Time(i * 3_600_000_000_000), value.Real(i), value.NewDecimal(i*50, 2),
		})
	}
	apply(t, db, 1, rowMutations(t, ev, rows...)...)

	ids := func(ids ...int64) [][]value.Value {
		ret := make([][]value.Value, 0, len(ids))
		for _, id := range ids {
			ret = append(ret, []value.Value{value.BigInt(id)})
		}
		return ret
	}
	scenarios := []struct {
		name string
		sel  sql.Select
		rows [][]value.Value
	}{
		{"timestamp", sql.Select{Table: "ev", Columns: []string{"id"}, Predicates: []sql.Predicate{sql.Gt("created_at", sql.Int(1017))}},
			ids(18, 19)},
		{"date", sql.Select{Table: "ev", Columns: []string{"id"}, Predicates: []sql.Predicate{sql.Ge("day", sql.Int(19018))}},
			ids(18, 19)},
		{"time", sql.Select{Table: "ev", Columns: []string{"id"}, Predicates: []sql.Predicate{sql.Lt("at", sql.Int(7_200_000_000_000))}},
			ids(0, 1)},
		{"decimal_from_real", sql.Select{Table: "ev", Columns: []string{"id"}, Predicates: []sql.Predicate{sql.Eq("price", sql.Lit(value.Real(9.5)))}},
			ids(19)},
		{"having_avg", sql.Select{
			Table:      "ev",
			Aggregates: []sql.Aggregate{{Func: sql.Avg, Column: "score"}},
			Having:     []sql.Having{{Aggregate: sql.Aggregate{Func: sql.Avg, Column: "score"}, Op: sql.OpGt, Value: sql.Int(1)}},
		}, [][]value.Value{{value.Real(9.5)}}},
		{"having_avg_filters", sql.Select{
			Table:      "ev",
			Aggregates: []sql.Aggregate{{Func: sql.Avg, Column: "score"}},
			Having:     []sql.Having{{Aggregate: sql.Aggregate{Func: sql.Avg, Column: "score"}, Op: sql.OpGt, Value: sql.Int(10)}},
		}, [][]value.Value{}},
		{"having_sum_decimal", sql.Select{
			Table:      "ev",
			Aggregates: []sql.Aggregate{{Func: sql.Sum, Column: "price"}},
			Having:     []sql.Having{{Aggregate: sql.Aggregate{Func: sql.Sum, Column: "price"}, Op: sql.OpGt, Value: sql.Int(90)}},
		}, [][]value.Value{{value.NewDecimal(9500, 2)}}},
	}
	for _, scenario := range scenarios {
		t.Run(scenario.name, func(t *testing.T) {
			res, err := query(t, s, db, scenario.sel)
			require.NoError(t, err)
			assert.ElementsMatch(t, scenario.rows, res.Rows)
		})
	}
}

func TestExecute_SumTypeMismatch(t *testing.T) {
	s, db := fixture(t)
	res, err := query(t, s, db, sql.Select{Table: "users", Aggregates: []sql.Aggregate{{Func: sql.Sum, Column: "name"}}})
	assert.True(t, errors.Is(err, queryerr.ErrTypeMismatch), "got %v", err)
	assert.Empty(t, res.Rows)
}

func TestExecute_SumOverflow(t *testing.T) {
	s, db := fixture(t)
	_, err := query(t, s, db, sql.Select{
		Table:      "users",
		Aggregates: []sql.Aggregate{{Func: sql.Sum, Column: "age"}},
		Predicates: []sql.Predicate{sql.IsNotNull("age")},
	})
	// 30 + 17 + 65 + 41 does not fit a TINYINT
	var mismatch queryerr.TypeMismatch
	require.True(t, errors.As(err, &mismatch), "got %v", err)
	assert.Equal(t, "sum out of range", mismatch.Actual)
}

func TestExecute_Join(t *testing.T) {
	s, db := fixture(t)
	scenarios := []struct {
		name string
		typ  sql.JoinType
		rows [][]value.Value
	}{
		{
			name: "inner",
			typ:  sql.InnerJoin,
			rows: [][]value.Value{
				{value.Text("alice"), value.BigInt(10)},
				{value.Text("alice"), value.BigInt(11)},
				{value.Text("alice"), value.BigInt(14)},
				{value.Text("bob"), value.BigInt(12)},
				{value.Nil, value.BigInt(13)},
			},
		},
		{
			name: "left",
			typ:  sql.LeftJoin,
			rows: [][]value.Value{
				{value.Text("alice"), value.BigInt(10)},
				{value.Text("alice"), value.BigInt(11)},
				{value.Text("alice"), value.BigInt(14)},
				{value.Text("bob"), value.BigInt(12)},
				{value.Nil, value.BigInt(13)},
				{value.Text("dave"), value.Nil},
				{value.Text("erin"), value.Nil},
			},
		},
	}
	for _, scenario := range scenarios {
		t.Run(scenario.name, func(t *testing.T) {
			res, err := query(t, s, db, sql.Select{
				Table:   "users",
				Columns: []string{"name", "orders.id"},
				Joins: []sql.Join{{
					Type:  scenario.typ,
					Table: "orders",
					On:    []sql.Predicate{sql.Eq("users.id", sql.Column("orders.user_id"))},
				}},
			})
			require.NoError(t, err)
			assert.Equal(t, []string{"name", "orders.id"}, res.Columns)
			assert.Equal(t, scenario.rows, res.Rows)
		})
	}
}

func TestExecute_CaseColumns(t *testing.T) {
	s, db := fixture(t)
	other := sql.Str("adult")
	res, err := query(t, s, db, sql.Select{
		Table:   "users",
		Columns: []string{"id", "bracket"},
		CaseColumns: []sql.CaseColumn{{
			Alias: "bracket",
			When: []sql.CaseWhen{
				{Conditions: []sql.Predicate{sql.Lt("age", sql.Int(18))}, Result: sql.Str("minor")},
				{Conditions: []sql.Predicate{sql.Ge("age", sql.Int(65))}, Result: sql.Str("senior")},
			},
			Else: &other,
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "bracket"}, res.Columns)
	assert.Equal(t, [][]value.Value{
		{value.BigInt(1), value.Text("adult")},
		{value.BigInt(2), value.Text("minor")},
		{value.BigInt(3), value.Text("senior")},
		{value.BigInt(4), value.Text("adult")},
		{value.BigInt(5), value.Text("adult")},
	}, res.Rows)
}

func TestExecuteAt(t *testing.T) {
	s, db := fixture(t)
	update := rowMutations(t, users, user(1, value.Text("alicia"), value.TinyInt(31)))
	del, err := users.DeleteMutations(user(2, value.Text("bob"), value.TinyInt(17)))
	require.NoError(t, err)
	apply(t, db, 3, append(update, del...)...)

	p, err := planner.New(s).Plan(context.Background(), sql.Select{Table: "users", Columns: []string{"id", "name"}, Predicates: []sql.Predicate{sql.Le("id", sql.Int(2))}}, nil)
	require.NoError(t, err)

	res, err := ExecuteAt(context.Background(), db, p, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]value.Value{{value.BigInt(1), value.Text("alice")}, {value.BigInt(2), value.Text("bob")}}, res.Rows)

	res, err = Execute(context.Background(), db, p)
	require.NoError(t, err)
	assert.Equal(t, [][]value.Value{{value.BigInt(1), value.Text("alicia")}}, res.Rows)

	res, err = ExecuteAt(context.Background(), db, p, 0)
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
}

func TestExecute_IndexEntryWithoutRow(t *testing.T) {
	s, db := fixture(t)
	// an index entry whose base row is gone is skipped
	apply(t, db, 3, hangar.Mutation{
		Table: orders.IndexTableID(1),
		Key:   codex.Encode([]value.Value{value.BigInt(1), value.BigInt(99)}),
		Value: []byte{},
	})
	res, err := query(t, s, db, sql.Select{Table: "orders", Columns: []string{"id"}, Predicates: []sql.Predicate{sql.Eq("user_id", sql.Int(1))}})
	require.NoError(t, err)
	assert.Equal(t, [][]value.Value{{value.BigInt(10)}, {value.BigInt(11)}, {value.BigInt(14)}}, res.Rows)
}

func TestExecute_DecodeErrors(t *testing.T) {
	scenarios := []struct {
		name string
		doc  string
	}{
		{"not_an_object", `[1, 2]`},
		{"wrong_type", `{"id": 7, "name": 12}`},
		{"out_of_range", `{"id": 7, "age": 300}`},
	}
	for _, scenario := range scenarios {
		t.Run(scenario.name, func(t *testing.T) {
			s, db := fixture(t)
			apply(t, db, 3, hangar.Mutation{
				Table: users.ID,
				Key:   codex.Encode([]value.Value{value.BigInt(7)}),
				Value: []byte(scenario.doc),
			})
			_, err := query(t, s, db, sql.Select{Table: "users", Predicates: []sql.Predicate{sql.Eq("id", sql.Int(7))}})
			assert.True(t, errors.Is(err, queryerr.ErrTypeMismatch), "got %v", err)
		})
	}
}

func TestDecodeRow(t *testing.T) {
	meta := plan.MetadataOf(users)
	row, err := decodeRow(meta, []byte(`{"name": "zed", "extra": [1, 2], "id": 9}`))
	require.NoError(t, err)
	assert.Equal(t, []value.Value{value.BigInt(9), value.Text("zed"), value.Nil}, row)

	_, err = decodeRow(meta, []byte(`{"id": `))
	assert.Error(t, err)
}

func TestScanBudget(t *testing.T) {
	assert.Equal(t, defaultScanLimit, scanBudget(mo.None[int](), false))
	assert.Equal(t, defaultScanLimit, scanBudget(mo.None[int](), true))
	assert.Equal(t, 20, scanBudget(mo.Some(10), false))
	assert.Equal(t, 100, scanBudget(mo.Some(10), true))
}

func TestRowKey(t *testing.T) {
	assert.Equal(t, rowKey([]value.Value{value.Json(`{"a":1}`)}), rowKey([]value.Value{value.Json(`{"a":1}`)}))
	assert.NotEqual(t, rowKey([]value.Value{value.Json(`"x"`)}), rowKey([]value.Value{value.Text(`"x"`)}))
	assert.NotEqual(t, rowKey([]value.Value{value.BigInt(1), value.Nil}), rowKey([]value.Value{value.Nil, value.BigInt(1)}))

	set := newRowSet()
	i, isNew := set.add([]value.Value{value.Text("a")})
	assert.Equal(t, 0, i)
	assert.True(t, isNew)
	i, isNew = set.add([]value.Value{value.Text("b")})
	assert.Equal(t, 1, i)
	assert.True(t, isNew)
	i, isNew = set.add([]value.Value{value.Text("a")})
	assert.Equal(t, 0, i)
	assert.False(t, isNew)
}

func TestDistinct(t *testing.T) {
	rows := [][]value.Value{
		{value.BigInt(1), value.Json(`[1]`)},
		{value.BigInt(2), value.Nil},
		{value.BigInt(1), value.Json(`[1]`)},
		{value.BigInt(2), value.Nil},
		{value.BigInt(2), value.Text("x")},
	}
	assert.Equal(t, [][]value.Value{
		{value.BigInt(1), value.Json(`[1]`)},
		{value.BigInt(2), value.Nil},
		{value.BigInt(2), value.Text("x")},
	}, Distinct(rows))
	assert.Empty(t, Distinct(nil))
}
