package executor

import (
	"fmt"

	"vellum/engine/plan"
	"vellum/lib/codex"
	"vellum/lib/queryerr"
	"vellum/lib/value"

	"github.com/buger/jsonparser"
	"github.com/cespare/xxhash/v2"
)

// decodeRow converts a stored JSON document into a row with one value per
// table column. Fields missing from the document decode as NULL and unknown
// fields are ignored.
func decodeRow(meta plan.TableMetadata, data []byte) ([]value.Value, error) {
	_, vtype, _, err := jsonparser.Get(data)
	if err != nil {
		return nil, fmt.Errorf("table %s: failed to parse stored row: %w", meta.TableName, err)
	}
	if vtype != jsonparser.Object {
		return nil, queryerr.TypeMismatch{Expected: "JSON object", Actual: vtype.String()}
	}
	row := make([]value.Value, len(meta.Columns))
	for i := range row {
		row[i] = value.Nil
	}
	positions := make(map[string]int, len(meta.Columns))
	for i, c := range meta.Columns {
		positions[c.Name] = i
	}
	var decodeErr error
	err = jsonparser.ObjectEach(data, func(key []byte, vdata []byte, vtype jsonparser.ValueType, _ int) error {
		name, err := jsonparser.ParseString(key)
		if err != nil {
			return err
		}
		i, ok := positions[name]
		if !ok {
			return nil
		}
		v, err := value.FromJson(vdata, vtype, meta.Columns[i].Type)
		if err != nil {
			decodeErr = err
			return err
		}
		row[i] = v
		return nil
	})
	if decodeErr != nil {
		return nil, decodeErr
	}
	if err != nil {
		return nil, fmt.Errorf("table %s: failed to parse stored row: %w", meta.TableName, err)
	}
	return row, nil
}

func project(row []value.Value, columns []int) []value.Value {
	ret := make([]value.Value, len(columns))
	for i, c := range columns {
		ret[i] = row[c]
	}
	return ret
}

func nullRow(n int) []value.Value {
	ret := make([]value.Value, n)
	for i := range ret {
		ret[i] = value.Nil
	}
	return ret
}

// rowKey is a byte encoding of a row such that two rows get the same key iff
// they are equal value by value. Json values, which have no key encoding, are
// keyed by their text.
func rowKey(row []value.Value) []byte {
	buf := make([]byte, 0, 16*len(row))
	for _, v := range row {
		if j, ok := v.(value.Json); ok {
			enc := codex.Append(nil, value.Text(j))
			enc[0] = byte(codex.TagJson)
			buf = append(buf, enc...)
			continue
		}
		buf = codex.Append(buf, v)
	}
	return buf
}

// rowSet groups rows by rowKey in first seen order.
type rowSet struct {
	buckets map[uint64][]int
	keys    [][]byte
}

func newRowSet() *rowSet {
	return &rowSet{buckets: make(map[uint64][]int)}
}

// add returns the ordinal of the group row belongs to and whether the group
// is new.
func (s *rowSet) add(row []value.Value) (int, bool) {
	key := rowKey(row)
	h := xxhash.Sum64(key)
	for _, i := range s.buckets[h] {
		if string(s.keys[i]) == string(key) {
			return i, false
		}
	}
	i := len(s.keys)
	s.keys = append(s.keys, key)
	s.buckets[h] = append(s.buckets[h], i)
	return i, true
}

// Distinct drops every row equal to an earlier one.
func Distinct(rows [][]value.Value) [][]value.Value {
	set := newRowSet()
	ret := make([][]value.Value, 0, len(rows))
	for _, row := range rows {
		if _, isNew := set.add(row); isNew {
			ret = append(ret, row)
		}
	}
	return ret
}
