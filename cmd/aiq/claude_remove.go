package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/aiq-dev/aiq/pkg/loader"
	"github.com/aiq-dev/aiq/pkg/presenter"
)

var claudeRemoveCmd = &cobra.Command{
	Use:   "remove <label>",
	Short: "Remove a Claude account",
	Long: `Delete the account from the tool-owned store. If it was active, the active
label is cleared. The assistants' own tokens are not touched.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		removeClaudeAccountCmd(cmd.Context(), args[0])
	},
}

func removeClaudeAccountCmd(ctx context.Context, label string) {
	res := loader.LoadClaude(ctx, loadOpts())
	if res.File.Find(label) == nil {
		presenter.Error(errors.Errorf("account %q not found", label), "Unknown account")
		os.Exit(1)
	}

	wasActive := res.File.ActiveLabel() == label
	res.File.Remove(label)
	if wasActive {
		res.File.ClearActive()
	}
	if err := res.File.Save(); err != nil {
		presenter.Error(err, "Failed to save account file")
		os.Exit(1)
	}

	presenter.Success(fmt.Sprintf("Removed Claude account %q", label))
}
