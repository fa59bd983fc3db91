package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aiq-dev/aiq/pkg/account"
	"github.com/aiq-dev/aiq/pkg/lifecycle"
	"github.com/aiq-dev/aiq/pkg/loader"
	"github.com/aiq-dev/aiq/pkg/presenter"
	"github.com/aiq-dev/aiq/pkg/usage"
)

var claudeCmd = &cobra.Command{
	Use:   "claude",
	Short: "Manage Anthropic Claude accounts",
	Long:  `List, add, switch, sync, and monitor Anthropic Claude OAuth and session accounts.`,
	Run: func(cmd *cobra.Command, _ []string) {
		showClaudeQuotaCmd(cmd.Context(), "")
	},
}

func init() {
	claudeCmd.AddCommand(claudeListCmd)
	claudeCmd.AddCommand(claudeAddCmd)
	claudeCmd.AddCommand(claudeReauthCmd)
	claudeCmd.AddCommand(claudeSwitchCmd)
	claudeCmd.AddCommand(claudeSyncCmd)
	claudeCmd.AddCommand(claudeRemoveCmd)
	claudeCmd.AddCommand(claudeQuotaCmd)
}

func findClaudeAccount(res *loader.ClaudeResult, label string) *account.ClaudeAccount {
	for _, acct := range res.Accounts {
		if acct.Label == label {
			return acct
		}
	}
	return nil
}

func activeClaudeAccount(res *loader.ClaudeResult) (*account.ClaudeAccount, error) {
	label := res.File.ActiveLabel()
	if label == "" {
		return nil, fmt.Errorf("no active account; run 'aiq claude switch <label>' first")
	}
	acct := findClaudeAccount(res, label)
	if acct == nil {
		return nil, fmt.Errorf("active account %q not found in any source", label)
	}
	return acct, nil
}

func freshenClaude(ctx context.Context, acct *account.ClaudeAccount, file *account.ClaudeFile) {
	if !acct.SyncCapable() {
		return
	}
	mgr := lifecycle.NewManager()
	report, ok := mgr.EnsureFreshClaude(ctx, acct, file)
	if !ok {
		presenter.Warning(fmt.Sprintf("Token for %q is stale and could not be refreshed; run 'aiq claude reauth %s' if requests fail.", acct.Label, acct.Label))
		return
	}
	if report.Errors != nil {
		presenter.Warning(fmt.Sprintf("Token refreshed but some stores were not updated: %v", report.Errors))
	}
}

func fetchClaudeQuota(ctx context.Context, label string) []*usage.Result {
	res := loader.LoadClaude(ctx, loadOpts())

	accounts := res.Accounts
	if label != "" {
		acct := findClaudeAccount(res, label)
		if acct == nil {
			return []*usage.Result{{Label: label, Error: "account not found"}}
		}
		accounts = []*account.ClaudeAccount{acct}
	}

	for _, acct := range accounts {
		freshenClaude(ctx, acct, res.File)
	}

	client := usage.NewClient()
	return usage.DedupeResults(client.FetchAllClaude(ctx, accounts))
}

func showClaudeQuotaCmd(ctx context.Context, label string) {
	results := fetchClaudeQuota(ctx, label)
	if jsonOutput {
		outputJSON(results)
		if anyFailed(results) {
			os.Exit(1)
		}
		return
	}
	if len(results) == 0 {
		presenter.Info("No Claude accounts found. Use 'aiq claude add <label>' to add one.")
		return
	}
	printUsageResults(results)
	if anyFailed(results) {
		os.Exit(1)
	}
}
