package crossmatch

import (
	"fmt"
	"slices"
	"ticguide/internal/observation"
)

// Order is how the rows of a Result are laid out.
type Order int

const (
	// OrderRequested keeps the order in which targets were first requested.
	OrderRequested Order = iota
	// OrderTotals sorts by fast total descending, then short total
	// descending, then by target id.
	OrderTotals
)

func (o Order) String() string {
	switch o {
	case OrderTotals:
		return "totals"
	default:
		return "requested"
	}
}

func ParseOrder(name string) (Order, error) {
	switch name {
	case "requested", "":
		return OrderRequested, nil
	case "totals":
		return OrderTotals, nil
	default:
		return 0, fmt.Errorf("unknown order '%s', expected one of: requested, totals", name)
	}
}

// Result is the observation table restricted to a set of requested targets.
// Requested targets that were never observed are present as all-false rows.
type Result struct {
	ids   []observation.TargetID
	table *observation.Table
}

// Match cross-matches the requested targets against the table. Duplicated
// requests collapse into one row. The table is not modified.
func Match(table *observation.Table, requested []observation.TargetID, order Order) Result {
	ids := Dedupe(requested)
	view := table.RowView(ids)

	if order == OrderTotals {
		slices.SortStableFunc(ids, func(a, b observation.TargetID) int {
			if d := view.Total(b, observation.Fast) - view.Total(a, observation.Fast); d != 0 {
				return d
			}
			if d := view.Total(b, observation.Short) - view.Total(a, observation.Short); d != 0 {
				return d
			}
			if a < b {
				return -1
			}
			if a > b {
				return 1
			}
			return 0
		})
	}

	return Result{ids: ids, table: view}
}

// Dedupe drops repeated ids, keeping the first appearance of each.
func Dedupe(ids []observation.TargetID) []observation.TargetID {
	seen := make(map[observation.TargetID]struct{}, len(ids))
	out := make([]observation.TargetID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// IDs returns the rows of the result in output order.
func (r Result) IDs() []observation.TargetID {
	return slices.Clone(r.ids)
}

func (r Result) Len() int {
	return len(r.ids)
}

// Columns returns the real columns of the source table in canonical order.
func (r Result) Columns() []observation.ColumnKey {
	return r.table.Columns()
}

func (r Result) ColumnsOf(cadence observation.Cadence) []observation.ColumnKey {
	return r.table.ColumnsOf(cadence)
}

func (r Result) Observed(id observation.TargetID, column observation.ColumnKey) bool {
	return r.table.Observed(id, column)
}

// Total is recomputed on the subset, for targets present in the source
// table it equals the source total.
func (r Result) Total(id observation.TargetID, cadence observation.Cadence) int {
	return r.table.Total(id, cadence)
}

func (r Result) Sectors(id observation.TargetID, cadence observation.Cadence) []int {
	return r.table.Sectors(id, cadence)
}

// Table returns the subset as a table of its own.
func (r Result) Table() *observation.Table {
	return r.table.Clone()
}
