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

var claudeSwitchCmd = &cobra.Command{
	Use:   "switch <label>",
	Short: "Make a Claude account active for every assistant",
	Long: `Point the active label at the given account and push its tokens into the
auth file of every installed assistant that mirrors the same account.
Assistants holding a different account are left alone.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		switchClaudeAccountCmd(cmd.Context(), args[0])
	},
}

func switchClaudeAccountCmd(ctx context.Context, label string) {
	res := loader.LoadClaude(ctx, loadOpts())
	acct := findClaudeAccount(res, label)
	if acct == nil {
		presenter.Error(errors.Errorf("account %q not found", label), "Unknown account")
		presenter.Info("Use 'aiq claude list' to see available accounts.")
		os.Exit(1)
	}

	freshenClaude(ctx, acct, res.File)

	res.File.SetActive(label)
	res.File.Upsert(acct)
	if err := res.File.Save(); err != nil {
		presenter.Error(err, "Failed to save the active label")
		os.Exit(1)
	}

	if acct.SyncCapable() {
		syncRes := syncer.New().SyncClaude(acct, res.File, false)
		for _, path := range syncRes.UpdatedPaths {
			presenter.Info("Updated " + path)
		}
		if syncRes.Errors != nil {
			presenter.Warning(fmt.Sprintf("Some stores were not updated: %v", syncRes.Errors))
		}
	} else {
		presenter.Warning("Account has no OAuth refresh token; assistant stores were not updated.")
	}

	presenter.Success(fmt.Sprintf("Switched to Claude account %q", label))
}
