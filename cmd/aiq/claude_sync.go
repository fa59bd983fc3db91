package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/aiq-dev/aiq/pkg/loader"
	"github.com/aiq-dev/aiq/pkg/presenter"
	"github.com/aiq-dev/aiq/pkg/syncer"
)

var claudeSyncDryRun bool

var claudeSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the active Claude account with every assistant",
	Long: `Pull fresher tokens from any assistant that already refreshed them, then
push the active account's tokens into every assistant store mirroring the
same account. With --dry-run the plan is printed without writing anything.`,
	Run: func(cmd *cobra.Command, _ []string) {
		syncClaudeCmd(cmd.Context(), claudeSyncDryRun)
	},
}

func init() {
	claudeSyncCmd.Flags().BoolVar(&claudeSyncDryRun, "dry-run", false, "Show what would change without writing")
}

func syncClaudeCmd(ctx context.Context, dryRun bool) {
	res := loader.LoadClaude(ctx, loadOpts())
	acct, err := activeClaudeAccount(res)
	if err != nil {
		presenter.Error(err, "Cannot sync")
		os.Exit(1)
	}
	if !acct.SyncCapable() {
		presenter.Error(errors.Errorf("account %q has no OAuth refresh token", acct.Label), "Cannot sync")
		os.Exit(1)
	}

	if !dryRun {
		freshenClaude(ctx, acct, res.File)
	}

	syncRes := syncer.New().SyncClaude(acct, res.File, dryRun)
	printSyncResult(syncRes, dryRun)
}
