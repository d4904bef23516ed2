package crossmatch

import (
	"testing"
	"ticguide/internal/observation"

	"github.com/stretchr/testify/require"
)

var (
	s001 = observation.ColumnKey{Cadence: observation.Short, Sector: 1}
	s002 = observation.ColumnKey{Cadence: observation.Short, Sector: 2}
	f001 = observation.ColumnKey{Cadence: observation.Fast, Sector: 1}
)

func exampleTable() *observation.Table {
	table := observation.NewTable()
	table.Merge(s001, []observation.TargetID{42, 5, 6})
	table.Merge(s002, []observation.TargetID{5, 6})
	table.Merge(f001, []observation.TargetID{42, 6})
	return table
}

func TestMatchExample(t *testing.T) {
	table := observation.NewTable()
	table.Merge(s001, []observation.TargetID{42})
	table.AddColumn(s002)
	table.Merge(f001, []observation.TargetID{42})

	result := Match(table, []observation.TargetID{42, 99}, OrderRequested)
	require.Equal(t, []observation.TargetID{42, 99}, result.IDs())

	require.Equal(t, 1, result.Total(42, observation.Short))
	require.Equal(t, 1, result.Total(42, observation.Fast))
	require.True(t, result.Observed(42, s001))
	require.False(t, result.Observed(42, s002))
	require.True(t, result.Observed(42, f001))

	require.Equal(t, 0, result.Total(99, observation.Short))
	require.Equal(t, 0, result.Total(99, observation.Fast))
	for _, c := range result.Columns() {
		require.False(t, result.Observed(99, c))
	}

	// the source table never gains the placeholder row
	require.False(t, table.HasRow(99))
}

func TestMatchCompleteness(t *testing.T) {
	table := exampleTable()
	requests := [][]observation.TargetID{
		nil,
		{1},
		{42, 42, 42},
		{5, 6, 7, 5, 8, 42, 6},
	}

	for _, requested := range requests {
		result := Match(table, requested, OrderRequested)
		require.Equal(t, len(Dedupe(requested)), result.Len())
		require.NoError(t, result.Table().CheckTotals())
	}
}

func TestMatchTotalsAgreeWithSource(t *testing.T) {
	table := exampleTable()
	result := Match(table, []observation.TargetID{6, 5, 42, 1000}, OrderRequested)

	for _, id := range result.IDs() {
		if !table.HasRow(id) {
			continue
		}
		for _, cadence := range observation.Cadences {
			require.Equal(t, table.Total(id, cadence), result.Total(id, cadence))
		}
	}
}

func TestMatchOrders(t *testing.T) {
	table := exampleTable()
	requested := []observation.TargetID{1000, 5, 42, 6, 5}

	requestedOrder := Match(table, requested, OrderRequested)
	require.Equal(t, []observation.TargetID{1000, 5, 42, 6}, requestedOrder.IDs())

	// 6: F=1 S=2, 42: F=1 S=1, 5: F=0 S=2, 1000: F=0 S=0
	totalsOrder := Match(table, requested, OrderTotals)
	require.Equal(t, []observation.TargetID{6, 42, 5, 1000}, totalsOrder.IDs())
}

func TestParseOrder(t *testing.T) {
	order, err := ParseOrder("totals")
	require.NoError(t, err)
	require.Equal(t, OrderTotals, order)

	order, err = ParseOrder("")
	require.NoError(t, err)
	require.Equal(t, OrderRequested, order)

	_, err = ParseOrder("random")
	require.Error(t, err)
}
