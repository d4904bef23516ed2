package cmd

import (
	"context"
	"fmt"
	"os"
	"ticguide/internal/tablesync"
	"ticguide/lib/util/serviceutil"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Version is set at build time with -ldflags "-X ticguide/cmd/ticguide/cmd.Version=..."
var Version = "dev"

var values flagValues

var rootCmd = &cobra.Command{
	Use:   "ticguide",
	Short: "ticguide tells you which TESS sectors and cadences your targets were observed in.",
	Long: `ticguide keeps a table of every target observed by TESS in short (2-minute) and
fast (20-second) cadence, built from the MAST bulk download scripts. Each run
only downloads the sectors the table does not have yet, then reports the
sectors each of the requested targets was observed in.

Runs against the same table must not overlap, the table is not locked and the
last run to finish wins.`,
	Args:    cobra.NoArgs,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		app := setup(cmd)
		err := app.Guide(cmd.Context())
		app.Close()
		fatalOn("failed to guide", err)
	},
}

// aliases maps the alternate names of flags to their canonical name.
var aliases = map[string]string{
	"file":  "input",
	"in":    "input",
	"tic":   "star",
	"stars": "star",
	"out":   "output",
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		if canonical, ok := aliases[name]; ok {
			name = canonical
		}
		return pflag.NormalizedName(name)
	})

	flags.StringVar(&values.input, "input", "todo.csv", "input list of targets (txt or csv), also --file or --in")
	flags.UintSliceVar(&values.stars, "star", nil, "TESS Input Catalog (TIC) ids, overrides the input list, also --tic")
	flags.StringVar(&values.output, "output", "all_observed.csv", "path to save the observed table for all targets, also --out")
	flags.StringVar(&values.path, "path", "", "directory relative paths are resolved in (default is the working directory)")
	flags.StringSliceVar(&values.cadences, "cadence", []string{"short", "fast"}, "cadences of interest, short and/or fast")
	flags.StringVar(&values.store, "store", "csv", "how the observed table is stored: csv or sqlite")
	flags.BoolVar(&values.noSave, "no-save", false, "do not save the selected targets file or download scripts")
	flags.BoolVar(&values.dryRun, "dry-run", false, "do not save the updated observed table")
	flags.BoolVar(&values.quiet, "quiet", false, "do not print the per-target report")
	flags.BoolVar(&values.noProgress, "no-progress", false, "do not print sync progress")
	flags.BoolVar(&values.download, "download", false, "run the download scripts of the targets once saved")
	flags.BoolVar(&values.table, "table", false, "print a summary table of the requested targets")
	flags.BoolVar(&values.total, "total", false, "save the number of sectors each target was observed in to "+TotalsFile)
	flags.StringVar(&values.order, "order", "requested", "order of the report: requested or totals")
	flags.IntVar(&values.lineWidth, "line-width", 50, "width of the report")
	flags.StringVar(&values.onError, "on-error", tablesync.PolicySkip.String(), "what to do when a sector cannot be fetched: skip (retry next run) or abort")
	flags.StringVar(&values.config, "config", "", "path to a json5 config (default is "+ConfigName+" in the working directory or above)")
	flags.BoolVar(&values.debug, "debug", false, "enable debug logging")

	// kept for the old short forms
	flags.BoolP("progress", "p", false, "same as --no-progress")
	flags.BoolP("save", "s", false, "same as --no-save")
	flags.MarkHidden("progress")
	flags.MarkHidden("save")

	rootCmd.AddCommand(syncCmd, totalsCmd, watchCmd, versionCmd)
}

func Execute() {
	ctx, cancel := serviceutil.SignalContext()
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ExecuteArgs runs the command line with the given arguments.
func ExecuteArgs(ctx context.Context, args []string) error {
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}
