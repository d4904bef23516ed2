package cmd

import (
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Update the observed table without reporting on any target.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := setup(cmd)
		_, result, err := app.Update(cmd.Context())
		if err == nil && app.Settings.Total {
			err = app.WriteTotals(result.Table)
		}
		app.Close()
		fatalOn("failed to sync", err)
	},
}
