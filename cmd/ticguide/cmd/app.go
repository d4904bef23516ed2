package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"ticguide/internal/components/telemetry"
	"ticguide/internal/crossmatch"
	"ticguide/internal/mast"
	"ticguide/internal/observation"
	"ticguide/internal/report"
	"ticguide/internal/scripts"
	"ticguide/internal/sectorindex"
	"ticguide/internal/tablestore"
	"ticguide/internal/tablesync"
	"ticguide/internal/targets"
	tracing "ticguide/lib/telemetry"
	"ticguide/lib/util/serviceutil"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

func initSlog(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)
}

// setup resolves the settings of a command and creates its App, exiting on
// failure.
func setup(cmd *cobra.Command) *App {
	flags := cmd.Flags()
	if flags.Changed("progress") {
		values.noProgress = true
	}
	if flags.Changed("save") {
		values.noSave = true
	}

	initSlog(values.debug)

	config, err := LoadConfig(values.config)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	settings, err := resolveSettings(flags, values, config)
	if err != nil {
		serviceutil.Fatal("invalid arguments", err)
	}

	app, err := NewApp(cmd.Context(), settings, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		serviceutil.Fatal("failed to initialize", err)
	}
	return app
}

// App is a single invocation of ticguide.
type App struct {
	Settings Settings

	tel     telemetry.API
	catalog mast.Client
	store   tablestore.Store
	tracing tracing.Telemetry
	closers []func() error
	out     io.Writer
	errOut  io.Writer
}

func NewApp(ctx context.Context, settings Settings, out, errOut io.Writer) (*App, error) {
	tel := telemetry.NewSlogAPI(slog.Default())

	traces, err := tracing.SetupFromEnv(ctx, "ticguide")
	if err != nil {
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}

	catalog, err := mast.NewClient(settings.Client, tel)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := tablestore.Open(settings.Store, settings.TablePath())
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}

	return &App{
		Settings: settings,
		tel:      tel,
		catalog:  catalog,
		store:    store,
		tracing:  traces,
		closers: []func() error{
			closeStore,
			func() error { return traces.Shutdown(context.Background()) },
		},
		out:    out,
		errOut: errOut,
	}, nil
}

func (a *App) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.tel.ReportWarning("app.close", err)
		}
	}
}

// Scan lists the manifests of the archive for the selected cadences.
func (a *App) Scan(ctx context.Context) (sectorindex.Index, error) {
	index, err := sectorindex.Scan(ctx, a.catalog, a.tel)
	if err != nil {
		return sectorindex.Index{}, err
	}
	return index.Filter(a.Settings.Cadences...), nil
}

// Sync brings the table up to date with the index.
func (a *App) Sync(ctx context.Context, index sectorindex.Index) (tablesync.Result, error) {
	config := tablesync.Config{
		Timeout: a.Settings.Client.Timeout,
		Policy:  a.Settings.Policy,
		DryRun:  a.Settings.DryRun,
	}
	if !a.Settings.NoProgress && !a.Settings.Quiet {
		config.Progress = func(done, total int, column observation.ColumnKey) {
			fmt.Fprintf(a.errOut, "\rsynchronizing %d/%d (%s)", done, total, column)
			if done == total {
				fmt.Fprintln(a.errOut)
			}
		}
	}

	engine := tablesync.NewEngine(a.catalog, a.store, config, a.tel)
	result, err := engine.Run(ctx, index)
	if err != nil {
		return tablesync.Result{}, err
	}

	if result.UpToDate {
		slog.Info("no updates needed", "columns", index.Len())
	} else {
		slog.Info("table updated", "added", len(result.Added), "failed", len(result.Failed), "targets", result.Table.Len())
	}
	for _, f := range result.Failed {
		slog.Warn("sector will be retried on the next run", "column", f.Column.String(), "err", f.Err)
	}
	return result, nil
}

// Update scans the archive and synchronizes the table.
func (a *App) Update(ctx context.Context) (sectorindex.Index, tablesync.Result, error) {
	index, err := a.Scan(ctx)
	if err != nil {
		return sectorindex.Index{}, tablesync.Result{}, err
	}
	result, err := a.Sync(ctx, index)
	if err != nil {
		return sectorindex.Index{}, tablesync.Result{}, err
	}
	return index, result, nil
}

func (a *App) WriteTotals(table *observation.Table) error {
	path := a.Settings.TotalsPath()
	if err := tablestore.SaveTotals(path, table, a.Settings.Cadences); err != nil {
		return fmt.Errorf("save totals: %w", err)
	}
	slog.Info("saved totals", "path", path)
	return nil
}

// Guide is the default command: update the table, cross-match the requested
// targets against it and report.
func (a *App) Guide(ctx context.Context) error {
	ids, err := targets.Resolve(a.Settings.Stars, a.Settings.InputPath())
	if err != nil {
		return err
	}

	index, synced, err := a.Update(ctx)
	if err != nil {
		return err
	}

	result := crossmatch.Match(synced.Table, ids, a.Settings.Order)
	if !a.Settings.Quiet {
		fmt.Fprint(a.out, report.Render(result, a.Settings.Cadences, a.Settings.LineWidth))
	}
	if a.Settings.Table {
		report.Summary(a.out, result, a.Settings.Cadences)
	}

	if a.Settings.Total {
		if err := a.WriteTotals(synced.Table); err != nil {
			return err
		}
	}
	if a.Settings.NoSave {
		return nil
	}

	selected := crossmatch.Match(synced.Table, ids, crossmatch.OrderTotals)
	if err := tablestore.SaveSelected(a.Settings.SelectedPath(), selected); err != nil {
		return fmt.Errorf("save selected targets: %w", err)
	}

	builder := scripts.NewBuilder(a.catalog, index, a.tel)
	built, err := builder.Build(ctx, result, a.Settings.Cadences)
	if err != nil {
		return fmt.Errorf("build download scripts: %w", err)
	}
	paths, err := scripts.Write(a.Settings.Dir, built)
	if err != nil {
		return fmt.Errorf("save download scripts: %w", err)
	}
	slog.Info("saved download scripts", "count", len(paths))

	if !a.Settings.Download {
		return nil
	}
	return scripts.Run(ctx, paths, a.tel)
}

// fatalOn turns the error of a command into a clean exit.
func fatalOn(message string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		serviceutil.Fatal("interrupted", nil)
	}
	serviceutil.Fatal(message, err)
}
