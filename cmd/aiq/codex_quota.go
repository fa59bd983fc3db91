package main

import (
	"github.com/spf13/cobra"
)

var codexQuotaCmd = &cobra.Command{
	Use:   "quota [label]",
	Short: "Show live usage for Codex accounts",
	Long: `Fetch the current usage windows for each Codex account from the vendor
usage endpoint. Accounts sharing a subscription collapse into one entry.

Examples:
  aiq codex quota           # All accounts
  aiq codex quota work      # One account
  aiq codex quota --json    # Machine-readable output`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var label string
		if len(args) > 0 {
			label = args[0]
		}
		showCodexQuotaCmd(cmd.Context(), label)
	},
}
