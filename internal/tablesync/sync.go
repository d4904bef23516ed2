// Package tablesync brings a persisted observation table up to date with the
// sector index, fetching only manifests of columns the table does not have.
package tablesync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"ticguide/internal/components/telemetry"
	"ticguide/internal/mast"
	"ticguide/internal/observation"
	"ticguide/internal/sectorindex"
	"ticguide/internal/tablestore"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("ticguide.internal.tablesync")

const (
	report_engine_sync   = "engine.sync"
	report_engine_fetch  = "engine.fetch-column"
	report_engine_save   = "engine.save"
	report_engine_added  = "engine.added-columns"
	report_engine_failed = "engine.failed-columns"
)

// ErrManifestFetchFailed wraps the error of a manifest that could not be
// fetched or parsed.
var ErrManifestFetchFailed = errors.New("manifest fetch failed")

// FailurePolicy decides what happens to a sync when a column fails.
type FailurePolicy int

const (
	// PolicySkip leaves the failed column out of the table, it is missing
	// from the table's column set and will be retried on the next run.
	PolicySkip FailurePolicy = iota
	// PolicyAbort stops at the first failure and persists nothing.
	PolicyAbort
)

func (p FailurePolicy) String() string {
	switch p {
	case PolicyAbort:
		return "abort"
	default:
		return "skip"
	}
}

func ParsePolicy(name string) (FailurePolicy, error) {
	switch name {
	case "skip", "":
		return PolicySkip, nil
	case "abort":
		return PolicyAbort, nil
	default:
		return 0, fmt.Errorf("unknown failure policy '%s', expected one of: skip, abort", name)
	}
}

// Fetcher is the part of the archive catalog needed to synchronize.
type Fetcher interface {
	FetchManifest(ctx context.Context, resource mast.Resource) (mast.Manifest, error)
}

type Config struct {
	// Timeout bounds the fetch of a single manifest, zero means no bound
	// beyond the one of the context.
	Timeout time.Duration
	Policy  FailurePolicy
	// DryRun synchronizes without saving the result.
	DryRun bool
	// Progress is called after each column is processed, it may be nil.
	Progress func(done, total int, column observation.ColumnKey)
}

type ColumnFailure struct {
	Column observation.ColumnKey
	Err    error
}

type Result struct {
	Table *observation.Table
	// Added lists the columns merged by this run in canonical order.
	Added []observation.ColumnKey
	// Failed lists the columns that could not be fetched, they are not part
	// of Table.
	Failed []ColumnFailure
	// UpToDate is true when the table already had every indexed column,
	// nothing was fetched or saved.
	UpToDate bool
}

// Engine synchronizes an observation table against the archive.
type Engine struct {
	fetcher Fetcher
	store   tablestore.Store
	config  Config
	tel     telemetry.API
}

func NewEngine(fetcher Fetcher, store tablestore.Store, config Config, tel telemetry.API) Engine {
	return Engine{
		fetcher: fetcher,
		store:   store,
		config:  config,
		tel:     telemetry.NewScopedAPI("tablesync", tel),
	}
}

// Missing returns the columns of the index that the table does not have, in
// canonical order.
func Missing(index sectorindex.Index, existing *observation.Table) []observation.ColumnKey {
	var out []observation.ColumnKey
	for _, column := range index.Columns() {
		if existing != nil && existing.HasColumn(column) {
			continue
		}
		out = append(out, column)
	}
	return out
}

// Run loads the persisted table and synchronizes it, a store that has never
// been saved to is treated as an empty table.
func (e Engine) Run(ctx context.Context, index sectorindex.Index) (Result, error) {
	existing, err := e.store.Load(ctx)
	if errors.Is(err, tablestore.ErrNotFound) {
		existing = nil
	} else if err != nil {
		e.tel.ReportBroken(report_engine_sync, fmt.Errorf("load: %w", err))
		return Result{}, fmt.Errorf("load table: %w", err)
	}
	return e.Synchronize(ctx, index, existing)
}

// Synchronize merges every column the index has and the existing table
// lacks. Columns the table already has are never refetched. The existing
// table is not modified, a nil table is the same as an empty one.
//
// The returned table is saved to the store unless nothing was added.
func (e Engine) Synchronize(ctx context.Context, index sectorindex.Index, existing *observation.Table) (Result, error) {
	ctx, span := tracer.Start(ctx, "Synchronize")
	defer span.End()

	table := observation.NewTable()
	if existing != nil {
		table = existing.Clone()
	}

	missing := Missing(index, existing)
	span.SetAttributes(attribute.Int("missing", len(missing)))
	if len(missing) == 0 {
		e.tel.ReportDebug("table is up to date", index.Len())
		return Result{Table: table, UpToDate: true}, nil
	}

	result := Result{Table: table}
	for i, column := range missing {
		err := e.fetchColumn(ctx, index, table, column)
		if e.config.Progress != nil {
			e.config.Progress(i+1, len(missing), column)
		}
		if err == nil {
			result.Added = append(result.Added, column)
			continue
		}

		e.tel.ReportBroken(report_engine_fetch, err, column.String())
		if e.config.Policy == PolicyAbort || ctx.Err() != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "sync aborted")
			return Result{}, fmt.Errorf("column %s: %w", column, err)
		}
		result.Failed = append(result.Failed, ColumnFailure{Column: column, Err: err})
	}

	e.tel.ReportCount(report_engine_added, int64(len(result.Added)))
	e.tel.ReportCount(report_engine_failed, int64(len(result.Failed)))

	if len(result.Added) == 0 || e.config.DryRun {
		return result, nil
	}
	if err := e.store.Save(ctx, table); err != nil {
		e.tel.ReportBroken(report_engine_save, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save table")
		return Result{}, fmt.Errorf("save table: %w", err)
	}

	return result, nil
}

// fetchColumn merges a single column into the table, the table is left
// untouched if the manifest cannot be fetched.
func (e Engine) fetchColumn(ctx context.Context, index sectorindex.Index, table *observation.Table, column observation.ColumnKey) error {
	ctx, span := tracer.Start(ctx, "fetchColumn")
	defer span.End()
	span.SetAttributes(attribute.String("column", column.String()))

	resource, ok := index.Locator(column)
	if !ok {
		return fmt.Errorf("%w: no locator for %s", ErrManifestFetchFailed, column)
	}

	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	manifest, err := e.fetcher.FetchManifest(ctx, resource)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch manifest")
		return fmt.Errorf("%w: %w", ErrManifestFetchFailed, err)
	}

	ids := manifest.TargetIDs()
	table.Merge(column, ids)
	span.SetAttributes(attribute.Int("targets", len(ids)))
	return nil
}

// FailedColumns returns the columns of the failures in canonical order.
func (r Result) FailedColumns() []observation.ColumnKey {
	out := make([]observation.ColumnKey, len(r.Failed))
	for i, f := range r.Failed {
		out[i] = f.Column
	}
	slices.SortFunc(out, observation.ColumnKey.Compare)
	return out
}
