// Package schema is the table catalog the planner resolves names against.
package schema

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"vellum/hangar"
	"vellum/lib/value"

	"github.com/cespare/xxhash/v2"
	"github.com/samber/lo"
)

type ColumnDef struct {
	Name     string
	Type     value.DataType
	Nullable bool
}

// IndexDef is a secondary index. Its entries live in their own table, keyed
// by the indexed column values followed by the primary key values.
type IndexDef struct {
	ID      uint64
	Name    string
	Columns []string
}

type TableDef struct {
	ID         hangar.TableID
	Name       string
	Columns    []ColumnDef
	PrimaryKey []string
	Indexes    []IndexDef
}

// FindColumn looks up a column by name, ignoring case, and returns its
// position in the table's column order.
func (t TableDef) FindColumn(name string) (int, ColumnDef, bool) {
	for i, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return i, c, true
		}
	}
	return -1, ColumnDef{}, false
}

func (t TableDef) IsPrimaryKey(name string) bool {
	return t.PrimaryKeyPosition(name) >= 0
}

// PrimaryKeyPosition is the position of the column inside the primary key,
// or -1.
func (t TableDef) PrimaryKeyPosition(name string) int {
	for i, pk := range t.PrimaryKey {
		if strings.EqualFold(pk, name) {
			return i
		}
	}
	return -1
}

func (t TableDef) ColumnNames() []string {
	return lo.Map(t.Columns, func(c ColumnDef, _ int) string { return c.Name })
}

// IndexTableID is the table holding the entries of the given index.
func (t TableDef) IndexTableID(indexID uint64) hangar.TableID {
	return IndexTableID(t.ID, indexID)
}

func IndexTableID(table hangar.TableID, indexID uint64) hangar.TableID {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(table))
	binary.BigEndian.PutUint64(buf[8:], indexID)
	return hangar.TableID(xxhash.Sum64(buf[:]))
}

func (t TableDef) validate() error {
	if t.Name == "" {
		return fmt.Errorf("table %d has no name", t.ID)
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %s has no columns", t.Name)
	}
	seen := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		name := strings.ToLower(c.Name)
		if name == "" {
			return fmt.Errorf("table %s has a column without a name", t.Name)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("table %s: duplicate column %s", t.Name, c.Name)
		}
		seen[name] = struct{}{}
	}
	for _, pk := range t.PrimaryKey {
		_, c, ok := t.FindColumn(pk)
		if !ok {
			return fmt.Errorf("table %s: primary key column %s does not exist", t.Name, pk)
		}
		if c.Type.Kind == value.KindJson {
			return fmt.Errorf("table %s: json column %s cannot be part of a key", t.Name, pk)
		}
	}
	if len(lo.Uniq(lo.Map(t.PrimaryKey, func(s string, _ int) string { return strings.ToLower(s) }))) != len(t.PrimaryKey) {
		return fmt.Errorf("table %s: primary key repeats a column", t.Name)
	}
	indexIDs := make(map[uint64]struct{}, len(t.Indexes))
	for _, idx := range t.Indexes {
		if len(idx.Columns) == 0 {
			return fmt.Errorf("table %s: index %s has no columns", t.Name, idx.Name)
		}
		if len(t.PrimaryKey) == 0 {
			return fmt.Errorf("table %s: index %s requires a primary key", t.Name, idx.Name)
		}
		if _, ok := indexIDs[idx.ID]; ok {
			return fmt.Errorf("table %s: duplicate index id %d", t.Name, idx.ID)
		}
		indexIDs[idx.ID] = struct{}{}
		for _, col := range idx.Columns {
			_, c, ok := t.FindColumn(col)
			if !ok {
				return fmt.Errorf("table %s: index %s column %s does not exist", t.Name, idx.Name, col)
			}
			if c.Type.Kind == value.KindJson {
				return fmt.Errorf("table %s: json column %s cannot be indexed", t.Name, col)
			}
		}
	}
	return nil
}

// Schema maps table names to definitions. Names are matched case-insensitively.
// A Schema is not safe for concurrent mutation; clone it before adding tables
// to a catalog that queries are reading.
type Schema struct {
	tables map[string]TableDef
}

func New(tables ...TableDef) (*Schema, error) {
	s := &Schema{tables: make(map[string]TableDef, len(tables))}
	for _, t := range tables {
		if err := s.AddTable(t); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Schema) AddTable(t TableDef) error {
	if err := t.validate(); err != nil {
		return err
	}
	name := strings.ToLower(t.Name)
	if _, ok := s.tables[name]; ok {
		return fmt.Errorf("table %s already exists", t.Name)
	}
	for _, other := range s.tables {
		if other.ID == t.ID {
			return fmt.Errorf("table id %d of %s already used by %s", t.ID, t.Name, other.Name)
		}
	}
	s.tables[name] = t
	return nil
}

func (s *Schema) Table(name string) (TableDef, bool) {
	t, ok := s.tables[strings.ToLower(name)]
	return t, ok
}

// Tables returns the table names in sorted order.
func (s *Schema) Tables() []string {
	names := lo.MapToSlice(s.tables, func(_ string, t TableDef) string { return t.Name })
	sort.Strings(names)
	return names
}

func (s *Schema) Clone() *Schema {
	ret := &Schema{tables: make(map[string]TableDef, len(s.tables))}
	for k, v := range s.tables {
		ret.tables[k] = v
	}
	return ret
}
