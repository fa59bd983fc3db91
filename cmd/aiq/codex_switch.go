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

var codexSwitchCmd = &cobra.Command{
	Use:   "switch <label>",
	Short: "Make a Codex account active for every assistant",
	Long: `Point the active label at the given account and push its tokens into the
auth file of every installed assistant that uses Codex credentials.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		switchCodexAccountCmd(cmd.Context(), args[0])
	},
}

func switchCodexAccountCmd(ctx context.Context, label string) {
	res := loader.LoadCodex(ctx, loadOpts())
	acct := findCodexAccount(res, label)
	if acct == nil {
		presenter.Error(errors.Errorf("account %q not found", label), "Unknown account")
		presenter.Info("Use 'aiq codex list' to see available accounts.")
		os.Exit(1)
	}

	freshenCodex(ctx, acct, res.File)

	res.File.SetActive(label)
	res.File.Upsert(acct)
	if err := res.File.Save(); err != nil {
		presenter.Error(err, "Failed to save the active label")
		os.Exit(1)
	}

	syncRes := syncer.New().SyncCodex(acct, res.File, false, true)
	for _, path := range syncRes.UpdatedPaths {
		presenter.Info("Updated " + path)
	}
	if syncRes.Errors != nil {
		presenter.Warning(fmt.Sprintf("Some stores were not updated: %v", syncRes.Errors))
	}

	presenter.Success(fmt.Sprintf("Switched to Codex account %q", label))
}
