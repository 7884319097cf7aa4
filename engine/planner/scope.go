package planner

import (
	"strings"

	"vellum/lib/queryerr"
	"vellum/lib/schema"
	"vellum/lib/value"
)

type scopeColumn struct {
	table string
	name  string
	dt    value.DataType
}

// scope is the list of columns a row carries at some point of the plan,
// resolvable by bare name or as table.column.
type scope struct {
	// table names the scope in ColumnNotFound errors.
	table   string
	columns []scopeColumn
}

func tableScope(t schema.TableDef) *scope {
	sc := &scope{table: t.Name}
	sc.add(t)
	return sc
}

func (s *scope) add(t schema.TableDef) {
	for _, c := range t.Columns {
		s.columns = append(s.columns, scopeColumn{table: t.Name, name: c.Name, dt: c.Type})
	}
}

func (s *scope) resolve(ref string) (int, error) {
	qualifier, name := "", ref
	for i, c := range s.columns {
		// computed names such as SUM(t.amount) may themselves contain dots
		if c.table == "" && strings.EqualFold(c.name, ref) {
			return i, nil
		}
	}
	if dot := strings.LastIndexByte(ref, '.'); dot >= 0 {
		qualifier, name = ref[:dot], ref[dot+1:]
	}
	found := -1
	for i, c := range s.columns {
		if !strings.EqualFold(c.name, name) {
			continue
		}
		if qualifier != "" && !strings.EqualFold(c.table, qualifier) {
			continue
		}
		if found >= 0 {
			return -1, queryerr.Unsupported("ambiguous column reference %s", ref)
		}
		found = i
	}
	if found < 0 {
		table := s.table
		if qualifier != "" {
			table = qualifier
		}
		return -1, queryerr.ColumnNotFound{Table: table, Column: name}
	}
	return found, nil
}

// qualifiedNames names every column table.column, for rows that mix tables.
func (s *scope) qualifiedNames() []string {
	ret := make([]string, len(s.columns))
	for i, c := range s.columns {
		if c.table == "" {
			ret[i] = c.name
		} else {
			ret[i] = c.table + "." + c.name
		}
	}
	return ret
}

func (s *scope) names() []string {
	ret := make([]string, len(s.columns))
	for i, c := range s.columns {
		ret[i] = c.name
	}
	return ret
}

func (s *scope) extend(name string, dt value.DataType) {
	s.columns = append(s.columns, scopeColumn{name: name, dt: dt})
}
