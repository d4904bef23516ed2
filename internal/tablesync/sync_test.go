package tablesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"ticguide/internal/components/telemetry"
	"ticguide/internal/mast"
	"ticguide/internal/observation"
	"ticguide/internal/sectorindex"
	"ticguide/internal/tablestore"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	s001 = observation.ColumnKey{Cadence: observation.Short, Sector: 1}
	s002 = observation.ColumnKey{Cadence: observation.Short, Sector: 2}
	f001 = observation.ColumnKey{Cadence: observation.Fast, Sector: 1}
)

type fakeFetcher struct {
	mutex     sync.Mutex
	manifests map[string][]observation.TargetID
	broken    map[string]bool
	blocking  map[string]bool
	fetches   map[string]int
}

func newFakeFetcher(manifests map[observation.ColumnKey][]observation.TargetID) *fakeFetcher {
	f := &fakeFetcher{
		manifests: make(map[string][]observation.TargetID),
		broken:    make(map[string]bool),
		blocking:  make(map[string]bool),
		fetches:   make(map[string]int),
	}
	for column, ids := range manifests {
		f.manifests[resourceOf(column).URL] = ids
	}
	return f
}

func (f *fakeFetcher) FetchManifest(ctx context.Context, resource mast.Resource) (mast.Manifest, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.fetches[resource.URL]++
	if f.blocking[resource.URL] {
		f.mutex.Unlock()
		<-ctx.Done()
		f.mutex.Lock()
		return mast.Manifest{}, ctx.Err()
	}
	if f.broken[resource.URL] {
		return mast.Manifest{}, fmt.Errorf("%s returned 503 Service Unavailable", resource.URL)
	}
	ids, ok := f.manifests[resource.URL]
	if !ok {
		return mast.Manifest{}, fmt.Errorf("%s returned 404 Not Found", resource.URL)
	}

	manifest := mast.Manifest{Resource: resource}
	for _, id := range ids {
		manifest.Entries = append(manifest.Entries, mast.ManifestEntry{
			TargetID: id,
			Line:     fmt.Sprintf("curl -C - -L -o tess_%d.fits https://mast/%d", id, id),
		})
	}
	return manifest, nil
}

func (f *fakeFetcher) total() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	sum := 0
	for _, n := range f.fetches {
		sum += n
	}
	return sum
}

type memoryStore struct {
	table *observation.Table
	saves int
}

func (m *memoryStore) Load(ctx context.Context) (*observation.Table, error) {
	if m.table == nil {
		return nil, tablestore.ErrNotFound
	}
	return m.table.Clone(), nil
}

func (m *memoryStore) Save(ctx context.Context, table *observation.Table) error {
	m.table = table.Clone()
	m.saves++
	return nil
}

func resourceOf(column observation.ColumnKey) mast.Resource {
	name := fmt.Sprintf("tesscurl_sector_%d_lc.sh", column.Sector)
	if column.Cadence == observation.Fast {
		name = fmt.Sprintf("tesscurl_sector_%d_fast-lc.sh", column.Sector)
	}
	return mast.Resource{Name: name, URL: "https://archive.test/" + name}
}

func indexOf(columns ...observation.ColumnKey) sectorindex.Index {
	locators := make(map[observation.ColumnKey]mast.Resource)
	for _, c := range columns {
		locators[c] = resourceOf(c)
	}
	return sectorindex.New(locators)
}

func TestColdSync(t *testing.T) {
	fetcher := newFakeFetcher(map[observation.ColumnKey][]observation.TargetID{
		s001: {1, 2},
		f001: {2, 3},
	})
	store := &memoryStore{}
	tel := &telemetry.Recorder{}
	engine := NewEngine(fetcher, store, Config{}, tel)

	result, err := engine.Run(context.Background(), indexOf(s001, f001))
	require.NoError(t, err)
	require.False(t, result.UpToDate)
	require.Equal(t, []observation.ColumnKey{f001, s001}, result.Added)
	require.Empty(t, result.Failed)

	table := result.Table
	require.Equal(t, []observation.TargetID{1, 2, 3}, table.IDs())
	require.Equal(t, 0, table.Total(1, observation.Fast))
	require.Equal(t, 1, table.Total(1, observation.Short))
	require.Equal(t, 1, table.Total(2, observation.Fast))
	require.Equal(t, 1, table.Total(2, observation.Short))
	require.Equal(t, 1, table.Total(3, observation.Fast))
	require.Equal(t, 0, table.Total(3, observation.Short))
	require.NoError(t, table.CheckTotals())

	require.Equal(t, 1, store.saves)
	require.True(t, table.Equal(store.table))
	require.Len(t, tel.Reports("broken"), 0)
}

func TestNoOpSync(t *testing.T) {
	fetcher := newFakeFetcher(nil)
	existing := observation.NewTable()
	existing.Merge(s001, []observation.TargetID{1, 2})
	existing.Merge(f001, []observation.TargetID{2})
	store := &memoryStore{table: existing}
	engine := NewEngine(fetcher, store, Config{}, &telemetry.Recorder{})

	result, err := engine.Run(context.Background(), indexOf(s001, f001))
	require.NoError(t, err)
	require.True(t, result.UpToDate)
	require.Empty(t, result.Added)
	require.True(t, existing.Equal(result.Table))
	require.Equal(t, 0, fetcher.total())
	require.Equal(t, 0, store.saves)
}

func TestIncrementalSync(t *testing.T) {
	fetcher := newFakeFetcher(map[observation.ColumnKey][]observation.TargetID{
		s002: {2, 9},
	})
	existing := observation.NewTable()
	existing.Merge(s001, []observation.TargetID{1, 2})
	store := &memoryStore{table: existing}
	engine := NewEngine(fetcher, store, Config{}, &telemetry.Recorder{})

	result, err := engine.Run(context.Background(), indexOf(s001, s002))
	require.NoError(t, err)
	require.Equal(t, []observation.ColumnKey{s002}, result.Added)
	require.Equal(t, 1, fetcher.total())

	// old cells are kept
	require.True(t, result.Table.Observed(1, s001))
	require.True(t, result.Table.Observed(2, s001))
	require.True(t, result.Table.Observed(2, s002))
	require.True(t, result.Table.Observed(9, s002))
	require.False(t, result.Table.Observed(9, s001))
	require.Equal(t, 2, result.Table.Total(2, observation.Short))

	// the caller's table is not modified
	require.False(t, existing.HasColumn(s002))
}

func TestEmptyManifestCounts(t *testing.T) {
	fetcher := newFakeFetcher(map[observation.ColumnKey][]observation.TargetID{
		s001: {},
	})
	store := &memoryStore{}
	engine := NewEngine(fetcher, store, Config{}, &telemetry.Recorder{})

	result, err := engine.Run(context.Background(), indexOf(s001))
	require.NoError(t, err)
	require.True(t, result.Table.HasColumn(s001))
	require.Equal(t, 0, result.Table.Len())

	result, err = engine.Run(context.Background(), indexOf(s001))
	require.NoError(t, err)
	require.True(t, result.UpToDate)
	require.Equal(t, 1, fetcher.total())
}

func TestSkipFailedColumn(t *testing.T) {
	fetcher := newFakeFetcher(map[observation.ColumnKey][]observation.TargetID{
		s001: {1},
		s002: {1, 2},
	})
	fetcher.broken[resourceOf(s002).URL] = true
	store := &memoryStore{}
	tel := &telemetry.Recorder{}
	engine := NewEngine(fetcher, store, Config{Policy: PolicySkip}, tel)
	index := indexOf(s001, s002)

	result, err := engine.Run(context.Background(), index)
	require.NoError(t, err)
	require.Equal(t, []observation.ColumnKey{s001}, result.Added)
	require.Equal(t, []observation.ColumnKey{s002}, result.FailedColumns())
	require.True(t, errors.Is(result.Failed[0].Err, ErrManifestFetchFailed))
	require.False(t, store.table.HasColumn(s002))
	require.Len(t, tel.Reports("broken"), 1)

	// the failed column is retried on the next run, the merged one is not
	fetcher.broken[resourceOf(s002).URL] = false
	result, err = engine.Run(context.Background(), index)
	require.NoError(t, err)
	require.Equal(t, []observation.ColumnKey{s002}, result.Added)
	require.Equal(t, 1, fetcher.fetches[resourceOf(s001).URL])
	require.Equal(t, 2, fetcher.fetches[resourceOf(s002).URL])
	require.Equal(t, 2, store.table.Total(1, observation.Short))
}

func TestAbortPersistsNothing(t *testing.T) {
	fetcher := newFakeFetcher(map[observation.ColumnKey][]observation.TargetID{
		f001: {1},
		s001: {1},
	})
	fetcher.broken[resourceOf(s002).URL] = true
	store := &memoryStore{}
	engine := NewEngine(fetcher, store, Config{Policy: PolicyAbort}, &telemetry.Recorder{})

	_, err := engine.Run(context.Background(), indexOf(f001, s001, s002))
	require.ErrorIs(t, err, ErrManifestFetchFailed)
	require.Equal(t, 0, store.saves)
	require.Nil(t, store.table)
}

func TestFetchTimeout(t *testing.T) {
	manifests := map[observation.ColumnKey][]observation.TargetID{
		f001: {1},
		s001: {1},
	}
	index := indexOf(f001, s001)

	fetcher := newFakeFetcher(manifests)
	fetcher.blocking[resourceOf(s001).URL] = true
	store := &memoryStore{}
	engine := NewEngine(fetcher, store, Config{Timeout: 50 * time.Millisecond, Policy: PolicySkip}, &telemetry.Recorder{})

	result, err := engine.Run(context.Background(), index)
	require.NoError(t, err)
	require.Equal(t, []observation.ColumnKey{f001}, result.Added)
	require.Equal(t, []observation.ColumnKey{s001}, result.FailedColumns())
	require.ErrorIs(t, result.Failed[0].Err, ErrManifestFetchFailed)
	require.ErrorIs(t, result.Failed[0].Err, context.DeadlineExceeded)
	require.False(t, result.Table.HasColumn(s001))
	require.False(t, store.table.HasColumn(s001))
	require.True(t, store.table.Observed(1, f001))

	fetcher = newFakeFetcher(manifests)
	fetcher.blocking[resourceOf(s001).URL] = true
	store = &memoryStore{}
	engine = NewEngine(fetcher, store, Config{Timeout: 50 * time.Millisecond, Policy: PolicyAbort}, &telemetry.Recorder{})

	_, err = engine.Run(context.Background(), index)
	require.ErrorIs(t, err, ErrManifestFetchFailed)
	require.Equal(t, 0, store.saves)
}

func TestDryRun(t *testing.T) {
	fetcher := newFakeFetcher(map[observation.ColumnKey][]observation.TargetID{
		s001: {1},
	})
	store := &memoryStore{}
	engine := NewEngine(fetcher, store, Config{DryRun: true}, &telemetry.Recorder{})

	result, err := engine.Run(context.Background(), indexOf(s001))
	require.NoError(t, err)
	require.True(t, result.Table.Observed(1, s001))
	require.Equal(t, 0, store.saves)
}

func TestProgress(t *testing.T) {
	fetcher := newFakeFetcher(map[observation.ColumnKey][]observation.TargetID{
		s001: {1},
		s002: {1},
		f001: {1},
	})
	var seen []string
	engine := NewEngine(fetcher, &memoryStore{}, Config{
		Progress: func(done, total int, column observation.ColumnKey) {
			seen = append(seen, fmt.Sprintf("%d/%d %s", done, total, column))
		},
	}, &telemetry.Recorder{})

	_, err := engine.Run(context.Background(), indexOf(s001, s002, f001))
	require.NoError(t, err)
	require.Equal(t, []string{"1/3 F001", "2/3 S001", "3/3 S002"}, seen)
}

func TestParsePolicy(t *testing.T) {
	policy, err := ParsePolicy("abort")
	require.NoError(t, err)
	require.Equal(t, PolicyAbort, policy)

	policy, err = ParsePolicy("")
	require.NoError(t, err)
	require.Equal(t, PolicySkip, policy)

	_, err = ParsePolicy("retry")
	require.Error(t, err)
}
