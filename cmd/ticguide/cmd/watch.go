package cmd

import (
	"context"
	"log/slog"
	"ticguide/internal/components/chrono"
	tracing "ticguide/lib/telemetry"
	"ticguide/lib/util/serviceutil"
	"time"

	"github.com/spf13/cobra"
)

var (
	watchSpec string
	watchNow  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the observed table up to date on a schedule.",
	Long: `Keep the observed table up to date, synchronizing it every time the cron spec
fires. A sync that is still running when the next one is due makes the next
one be skipped. Stop with Ctrl+C.`,
	Example: `  ticguide watch --cron "0 6 * * *"
  ticguide watch --cron "@every 12h" --now --total`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := setup(cmd)
		defer app.Close()
		ctx := cmd.Context()

		if app.tracing.Enabled() {
			tracing.InstrumentPerfStats(ctx, time.Minute)
		}

		clock, err := chrono.NewStandardImpl(app.Settings.Timezone)
		if err != nil {
			serviceutil.Fatal("failed to load timezone", err)
		}
		cron := chrono.NewStandardCron(clock, app.tel)
		defer cron.Stop()

		run := func() {
			started := clock.Now()
			_, result, err := app.Update(ctx)
			if err != nil {
				app.tel.ReportBroken("watch.sync", err)
				return
			}
			if app.Settings.Total {
				if err := app.WriteTotals(result.Table); err != nil {
					app.tel.ReportBroken("watch.totals", err)
					return
				}
			}
			slog.Info("sync finished", "took", clock.Now().Sub(started).Round(time.Millisecond).String())
		}

		runNow, err := cron.Cron(watchSpec, run)
		if err != nil {
			serviceutil.Fatal("invalid cron spec", err)
		}
		slog.Info("watching", "cron", watchSpec, "location", clock.Location().String())

		if watchNow {
			runNow()
		}
		waitDone(ctx)
	},
}

func waitDone(ctx context.Context) {
	<-ctx.Done()
	slog.Info("stopping")
}

func init() {
	watchCmd.Flags().StringVar(&watchSpec, "cron", "0 6 * * *", "when to synchronize, in cron syntax")
	watchCmd.Flags().BoolVar(&watchNow, "now", false, "also synchronize right away")
}
