package schema

import (
	"fmt"

	"vellum/hangar"
	"vellum/lib/codex"
	"vellum/lib/queryerr"
	"vellum/lib/value"
)

// CheckRow verifies that row holds one value of the declared type per column.
func (t TableDef) CheckRow(row []value.Value) error {
	if len(row) != len(t.Columns) {
		return fmt.Errorf("table %s: row has %d values for %d columns", t.Name, len(row), len(t.Columns))
	}
	for i, c := range t.Columns {
		v := row[i]
		if value.IsNull(v) {
			if !c.Nullable {
				return queryerr.TypeMismatch{Expected: "non-null " + c.Type.String(), Actual: "NULL"}
			}
			continue
		}
		if v.Kind() != c.Type.Kind {
			return queryerr.TypeMismatch{Expected: c.Type.String(), Actual: v.Kind().String()}
		}
		if d, ok := v.(value.Decimal); ok && d.Scale != c.Type.Scale {
			return queryerr.TypeMismatch{Expected: c.Type.String(), Actual: fmt.Sprintf("DECIMAL with scale %d", d.Scale)}
		}
	}
	return nil
}

// PrimaryKeyOf encodes the primary key of a row given in column order.
func (t TableDef) PrimaryKeyOf(row []value.Value) (codex.Key, error) {
	if len(t.PrimaryKey) == 0 {
		return nil, fmt.Errorf("table %s has no primary key", t.Name)
	}
	vals, err := t.pick(row, t.PrimaryKey)
	if err != nil {
		return nil, err
	}
	return codex.Encode(vals), nil
}

// RowMutations stores row under its primary key together with one entry per
// secondary index. Index entries have empty values.
func (t TableDef) RowMutations(row []value.Value) ([]hangar.Mutation, error) {
	key, err := t.PrimaryKeyOf(row)
	if err != nil {
		return nil, err
	}
	return t.mutations(key, row, false)
}

// HeapRowMutations stores a row of a table without a primary key under a
// caller chosen row id.
func (t TableDef) HeapRowMutations(rowID int64, row []value.Value) ([]hangar.Mutation, error) {
	if len(t.PrimaryKey) != 0 {
		return nil, fmt.Errorf("table %s has a primary key", t.Name)
	}
	return t.mutations(codex.Encode([]value.Value{value.BigInt(rowID)}), row, false)
}

// DeleteMutations tombstones a stored row and its index entries.
func (t TableDef) DeleteMutations(row []value.Value) ([]hangar.Mutation, error) {
	key, err := t.PrimaryKeyOf(row)
	if err != nil {
		return nil, err
	}
	return t.mutations(key, row, true)
}

func (t TableDef) mutations(key codex.Key, row []value.Value, del bool) ([]hangar.Mutation, error) {
	if err := t.CheckRow(row); err != nil {
		return nil, err
	}
	ret := make([]hangar.Mutation, 0, 1+len(t.Indexes))
	base := hangar.Mutation{Table: t.ID, Key: key, Delete: del}
	if !del {
		doc, err := value.ToJsonRow(t.ColumnNames(), row)
		if err != nil {
			return nil, err
		}
		base.Value = doc
	}
	ret = append(ret, base)
	if len(t.Indexes) == 0 {
		return ret, nil
	}
	pk, err := t.pick(row, t.PrimaryKey)
	if err != nil {
		return nil, err
	}
	for _, idx := range t.Indexes {
		vals, err := t.pick(row, idx.Columns)
		if err != nil {
			return nil, err
		}
		ret = append(ret, hangar.Mutation{
			Table:  t.IndexTableID(idx.ID),
			Key:    codex.Encode(append(vals, pk...)),
			Value:  []byte{},
			Delete: del,
		})
	}
	return ret, nil
}

func (t TableDef) pick(row []value.Value, columns []string) ([]value.Value, error) {
	if len(row) != len(t.Columns) {
		return nil, fmt.Errorf("table %s: row has %d values for %d columns", t.Name, len(row), len(t.Columns))
	}
	ret := make([]value.Value, len(columns))
	for i, name := range columns {
		pos, _, ok := t.FindColumn(name)
		if !ok {
			return nil, queryerr.ColumnNotFound{Table: t.Name, Column: name}
		}
		ret[i] = row[pos]
	}
	return ret, nil
}
