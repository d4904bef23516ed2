package cmd

import (
	"github.com/spf13/cobra"
)

var totalsCmd = &cobra.Command{
	Use:   "totals",
	Short: "Update the observed table and save the number of sectors every target was observed in.",
	Long: `Update the observed table and save the number of sectors every target was
observed in, per cadence, to ` + TotalsFile + `. Targets are sorted by their
fast cadence total and then by their short cadence total, both descending.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := setup(cmd)
		_, result, err := app.Update(cmd.Context())
		if err == nil {
			err = app.WriteTotals(result.Table)
		}
		app.Close()
		fatalOn("failed to save totals", err)
	},
}
