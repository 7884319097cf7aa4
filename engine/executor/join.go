package executor

import (
	"vellum/engine/plan"
	"vellum/lib/sql"
	"vellum/lib/value"
)

// join is a nested loop over the fully executed sides. Conditions compare
// with SQL semantics, so NULL join keys never match.
func (r *run) join(p *plan.Join) ([][]value.Value, error) {
	left, err := r.exec(p.Left)
	if err != nil {
		return nil, err
	}
	right, err := r.exec(p.Right)
	if err != nil {
		return nil, err
	}
	width := len(plan.ColumnNames(p.Right))
	ret := make([][]value.Value, 0, len(left))
	for _, l := range left {
		matched := false
		for _, rr := range right {
			row := make([]value.Value, 0, len(l)+len(rr))
			row = append(append(row, l...), rr...)
			if !joinMatches(p.On, row) {
				continue
			}
			matched = true
			ret = append(ret, row)
		}
		if !matched && p.Type == sql.LeftJoin {
			row := make([]value.Value, 0, len(l)+width)
			ret = append(ret, append(append(row, l...), nullRow(width)...))
		}
	}
	return ret, nil
}

func joinMatches(on []plan.JoinCondition, row []value.Value) bool {
	for _, c := range on {
		if c.LeftIdx >= len(row) || c.RightIdx >= len(row) {
			return false
		}
		if !plan.Compare(c.Op, row[c.LeftIdx], row[c.RightIdx]) {
			return false
		}
	}
	return true
}

func (r *run) materialize(p *plan.Materialize) ([][]value.Value, error) {
	if p.Limit.OrElse(1) == 0 {
		return [][]value.Value{}, nil
	}
	rows, err := r.exec(p.Source)
	if err != nil {
		return nil, err
	}
	kept := make([][]value.Value, 0, len(rows))
	for _, row := range rows {
		if !plan.Matches(p.Filter, row) {
			continue
		}
		if len(p.CaseColumns) > 0 {
			row = appendCaseColumns(row, p.CaseColumns)
		}
		kept = append(kept, row)
	}
	plan.SortRows(kept, p.Order)
	kept = truncate(kept, p.Limit)
	ret := make([][]value.Value, len(kept))
	for i, row := range kept {
		ret[i] = project(row, p.Columns)
	}
	return ret, nil
}

// appendCaseColumns evaluates each CASE column against the source row. The
// first matching arm wins.
func appendCaseColumns(row []value.Value, cases []plan.CaseColumnDef) []value.Value {
	ret := make([]value.Value, len(row), len(row)+len(cases))
	copy(ret, row)
	for _, c := range cases {
		v := c.Else
		for _, arm := range c.When {
			if plan.Matches(arm.Condition, row) {
				v = arm.Result
				break
			}
		}
		if v == nil {
			v = value.Nil
		}
		ret = append(ret, v)
	}
	return ret
}
