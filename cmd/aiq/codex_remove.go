package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/aiq-dev/aiq/pkg/loader"
	"github.com/aiq-dev/aiq/pkg/presenter"
	"github.com/aiq-dev/aiq/pkg/syncer"
)

var codexRemoveCmd = &cobra.Command{
	Use:   "remove <label>",
	Short: "Remove a Codex account",
	Long: `Delete the account from the tool-owned store. If it was active, the active
label is cleared. Any quota-label markers still pointing at the account in
assistant auth files are removed; the assistants' own tokens are not touched.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		removeCodexAccountCmd(cmd.Context(), args[0])
	},
}

func removeCodexAccountCmd(ctx context.Context, label string) {
	res := loader.LoadCodex(ctx, loadOpts())
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

	// A stale marker may point at the label even when another account is
	// active, left behind by a switch in a different session.
	cleanup := syncer.New().RemoveCleanup(label)
	if cleanup.Errors != nil {
		presenter.Warning(fmt.Sprintf("Some markers were not cleared: %v", cleanup.Errors))
	}

	presenter.Success(fmt.Sprintf("Removed Codex account %q", label))
}
