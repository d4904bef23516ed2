package observation

import (
	"fmt"
	"maps"
	"slices"
)

// TargetID is a TESS Input Catalog identifier.
type TargetID uint64

// Table is a sparse (target x sector-cadence column) matrix of observations,
// only true cells are stored, everything else is false.
//
// Per-cadence totals are never stored, they are derived from the true cells
// on read so that they cannot drift from the observations they count.
type Table struct {
	columns map[ColumnKey]struct{}
	rows    map[TargetID]map[ColumnKey]struct{}
}

func NewTable() *Table {
	return &Table{
		columns: make(map[ColumnKey]struct{}),
		rows:    make(map[TargetID]map[ColumnKey]struct{}),
	}
}

// AddColumn registers a column without marking any target, a column that was
// merged with an empty manifest still counts as synchronized.
func (t *Table) AddColumn(column ColumnKey) {
	t.columns[column] = struct{}{}
}

// AddRow registers a target without marking any column.
func (t *Table) AddRow(id TargetID) {
	if _, ok := t.rows[id]; !ok {
		t.rows[id] = make(map[ColumnKey]struct{})
	}
}

// Set marks a single cell as observed, the column is added if not present.
func (t *Table) Set(id TargetID, column ColumnKey) {
	t.AddColumn(column)
	t.AddRow(id)
	t.rows[id][column] = struct{}{}
}

// Merge marks every given target as observed in the column. It is additive:
// cells that are already true stay true and other columns are untouched, so
// merging the same column twice yields the same table.
func (t *Table) Merge(column ColumnKey, ids []TargetID) {
	t.AddColumn(column)
	for _, id := range ids {
		t.Set(id, column)
	}
}

// Columns returns the real columns of the table in canonical order.
func (t *Table) Columns() []ColumnKey {
	out := slices.Collect(maps.Keys(t.columns))
	slices.SortFunc(out, ColumnKey.Compare)
	return out
}

// ColumnsOf returns the real columns of one cadence in canonical order.
func (t *Table) ColumnsOf(cadence Cadence) []ColumnKey {
	var out []ColumnKey
	for _, c := range t.Columns() {
		if c.Cadence == cadence {
			out = append(out, c)
		}
	}
	return out
}

func (t *Table) HasColumn(key ColumnKey) bool {
	_, ok := t.columns[key]
	return ok
}

func (t *Table) HasRow(id TargetID) bool {
	_, ok := t.rows[id]
	return ok
}

// Observed reports whether the target was observed in a column.
func (t *Table) Observed(id TargetID, column ColumnKey) bool {
	row, ok := t.rows[id]
	if !ok {
		return false
	}
	_, ok = row[column]
	return ok
}

// IDs returns every row of the table in ascending order.
func (t *Table) IDs() []TargetID {
	out := slices.Collect(maps.Keys(t.rows))
	slices.Sort(out)
	return out
}

func (t *Table) Len() int {
	return len(t.rows)
}

// Total counts the true cells of a cadence in a row.
func (t *Table) Total(id TargetID, cadence Cadence) int {
	count := 0
	for column := range t.rows[id] {
		if column.Cadence == cadence {
			count++
		}
	}
	return count
}

// TotalsFor returns the per-row totals of a cadence.
func (t *Table) TotalsFor(cadence Cadence) map[TargetID]int {
	out := make(map[TargetID]int, len(t.rows))
	for id := range t.rows {
		out[id] = t.Total(id, cadence)
	}
	return out
}

// Sectors returns the sectors a target was observed in for a cadence, ascending.
func (t *Table) Sectors(id TargetID, cadence Cadence) []int {
	var out []int
	for column := range t.rows[id] {
		if column.Cadence == cadence {
			out = append(out, column.Sector)
		}
	}
	slices.Sort(out)
	return out
}

// RowView returns a new table restricted to the given targets. Targets that
// are not in the table are materialized as all-false rows. The view keeps the
// full column set of the source and shares no state with it.
func (t *Table) RowView(ids []TargetID) *Table {
	view := NewTable()
	for c := range t.columns {
		view.AddColumn(c)
	}
	for _, id := range ids {
		view.AddRow(id)
		for c := range t.rows[id] {
			view.rows[id][c] = struct{}{}
		}
	}
	return view
}

func (t *Table) Clone() *Table {
	return t.RowView(t.IDs())
}

// Equal compares both the column sets and the true cells of two tables.
func (t *Table) Equal(other *Table) bool {
	if t == nil || other == nil {
		return t == other
	}
	if !maps.Equal(t.columns, other.columns) || len(t.rows) != len(other.rows) {
		return false
	}
	for id, row := range t.rows {
		otherRow, ok := other.rows[id]
		if !ok || !maps.Equal(row, otherRow) {
			return false
		}
	}
	return true
}

// CheckTotals verifies that every stored cell belongs to a known column,
// which is what keeps the derived totals equal to the count of true cells in
// the cadence's real columns.
func (t *Table) CheckTotals() error {
	for id, row := range t.rows {
		for c := range row {
			if _, ok := t.columns[c]; !ok {
				return fmt.Errorf("tic %d is marked in unknown column %s", id, c)
			}
		}
		for _, cadence := range Cadences {
			counted := 0
			for _, c := range t.ColumnsOf(cadence) {
				if t.Observed(id, c) {
					counted++
				}
			}
			if total := t.Total(id, cadence); total != counted {
				return fmt.Errorf("tic %d has %s %d but %d observed cells", id, cadence.TotalCode(), total, counted)
			}
		}
	}
	return nil
}
