package engine

import (
	"context"
	"fmt"
	"strings"

	"vellum/engine/executor"
	"vellum/engine/planner"
	"vellum/hangar"
	"vellum/hangar/layered"
	"vellum/hangar/mem"
	"vellum/lib/queryerr"
	"vellum/lib/schema"
	"vellum/lib/sql"
	"vellum/lib/value"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// overlay holds the materialized CTEs of one query: a schema that extends
// the engine's with one heap table per CTE, and a reader serving those
// tables from an in-memory store and everything else from the base store.
type overlay struct {
	schema *schema.Schema
	reader hangar.Reader
	store  *mem.MemDB
}

func (o *overlay) close() {
	if err := o.store.Close(); err != nil {
		zap.L().Warn("failed to close CTE overlay", zap.Error(err))
	}
}

// overlay runs the CTEs in order. Each CTE reads the base store at pos and
// every CTE defined before it.
func (e *QueryEngine) overlay(ctx context.Context, ctes []sql.CTE, params []value.Value, pos hangar.Position) (_ *overlay, err error) {
	o := &overlay{schema: e.schema.Clone(), reader: e.reader, store: mem.NewHangar()}
	defer func() {
		if err != nil {
			o.close()
		}
	}()
	tables := make([]hangar.TableID, 0, len(ctes))
	for i, cte := range ctes {
		if len(cte.Query.CTEs) > 0 {
			return nil, queryerr.Unsupported("WITH inside CTE %s", cte.Name)
		}
		if _, ok := o.schema.Table(cte.Name); ok {
			return nil, queryerr.Unsupported("CTE %s shadows an existing table", cte.Name)
		}
		p, err := planner.New(o.schema).Plan(ctx, cte.Query, params)
		if err != nil {
			return nil, err
		}
		res, err := executor.ExecuteAt(ctx, o.reader, p, pos)
		if err != nil {
			return nil, err
		}
		def, err := cteTable(cte.Name, res)
		if err != nil {
			return nil, err
		}
		if err := o.schema.AddTable(def); err != nil {
			return nil, fmt.Errorf("failed to register CTE %s: %w", cte.Name, err)
		}
		batch := hangar.Batch{Position: hangar.Position(i + 1)}
		for n, row := range res.Rows {
			ms, err := def.HeapRowMutations(int64(n), row)
			if err != nil {
				return nil, err
			}
			batch.Mutations = append(batch.Mutations, ms...)
		}
		if err := o.store.Apply(ctx, batch); err != nil {
			return nil, err
		}
		tables = append(tables, def.ID)
		o.reader = layered.NewReader(e.reader, o.store, tables...)
	}
	return o, nil
}

// cteTable describes the rows of a CTE as a heap table. Column names drop
// any table qualifier and every column is nullable. A column takes the type
// of its first non-NULL value; a column without one is TEXT.
func cteTable(name string, res executor.Result) (schema.TableDef, error) {
	b := schema.NewTable(cteTableID(name), name)
	seen := make(map[string]struct{}, len(res.Columns))
	for i, col := range res.Columns {
		if dot := strings.LastIndexByte(col, '.'); dot >= 0 {
			col = col[dot+1:]
		}
		if _, ok := seen[strings.ToLower(col)]; ok {
			return schema.TableDef{}, queryerr.Unsupported("CTE %s has two columns named %s", name, col)
		}
		seen[strings.ToLower(col)] = struct{}{}
		b.Column(col, columnType(res.Rows, i), true)
	}
	return b.Build()
}

func columnType(rows [][]value.Value, col int) value.DataType {
	for _, row := range rows {
		switch v := row[col].(type) {
		case value.Null:
		case value.Decimal:
			return value.DecimalType(38, v.Scale)
		default:
			if v != nil {
				return value.DataType{Kind: v.Kind()}
			}
		}
	}
	return value.TextType
}

func cteTableID(name string) hangar.TableID {
	return hangar.TableID(xxhash.Sum64String("cte/" + strings.ToLower(name)))
}
