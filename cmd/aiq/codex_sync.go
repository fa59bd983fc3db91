package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aiq-dev/aiq/pkg/loader"
	"github.com/aiq-dev/aiq/pkg/presenter"
	"github.com/aiq-dev/aiq/pkg/syncer"
)

var codexSyncDryRun bool

var codexSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the active Codex account with every assistant",
	Long: `Pull fresher tokens from any assistant that already refreshed them, then
push the active account's tokens everywhere. With --dry-run the plan is
printed without writing anything.`,
	Run: func(cmd *cobra.Command, _ []string) {
		syncCodexCmd(cmd.Context(), codexSyncDryRun)
	},
}

func init() {
	codexSyncCmd.Flags().BoolVar(&codexSyncDryRun, "dry-run", false, "Show what would change without writing")
}

func syncCodexCmd(ctx context.Context, dryRun bool) {
	res := loader.LoadCodex(ctx, loadOpts())
	acct, err := activeCodexAccount(res)
	if err != nil {
		presenter.Error(err, "Cannot sync")
		os.Exit(1)
	}

	if !dryRun {
		freshenCodex(ctx, acct, res.File)
	}

	syncRes := syncer.New().SyncCodex(acct, res.File, dryRun, false)
	printSyncResult(syncRes, dryRun)
}

// printSyncResult renders a sync outcome for either vendor.
func printSyncResult(res *syncer.Result, dryRun bool) {
	if jsonOutput {
		outputJSON(map[string]any{
			"plan":         res.Plan,
			"pulled":       res.Pulled,
			"updatedPaths": res.UpdatedPaths,
			"dryRun":       dryRun,
		})
		return
	}

	if dryRun {
		if len(res.Plan) == 0 {
			presenter.Info("Everything is aligned; nothing to do.")
			return
		}
		presenter.Section("Sync plan")
		for _, entry := range res.Plan {
			presenter.Info(fmt.Sprintf("%-12s %-16s %s (%s)", entry.Store, entry.State, entry.Path, entry.Reason))
		}
		return
	}

	if res.Pulled {
		presenter.Info("Adopted fresher tokens from an assistant store.")
	}
	for _, path := range res.UpdatedPaths {
		presenter.Info("Updated " + path)
	}
	if res.Errors != nil {
		presenter.Warning(fmt.Sprintf("Some stores were not updated: %v", res.Errors))
	}
	if len(res.UpdatedPaths) == 0 && res.Errors == nil {
		presenter.Info("Everything is aligned; nothing to do.")
		return
	}
	presenter.Success("Sync complete")
}
