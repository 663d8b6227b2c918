package cmd

import (
	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "checkmate",
	Short: "shared expense tracking for group trips",
	Long:  `checkmate tracks group trip expenses and settles who owes whom with a minimal set of transfers`,
}

func init() {
	RootCmd.AddCommand(settleCommand())
	RootCmd.AddCommand(serverCommand())
	RootCmd.AddCommand(migrateCommand())
}
