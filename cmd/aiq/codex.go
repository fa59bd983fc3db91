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

var codexCmd = &cobra.Command{
	Use:   "codex",
	Short: "Manage OpenAI Codex accounts",
	Long:  `List, add, switch, sync, and monitor OpenAI Codex (ChatGPT) OAuth accounts.`,
	Run: func(cmd *cobra.Command, _ []string) {
		showCodexQuotaCmd(cmd.Context(), "")
	},
}

func init() {
	codexCmd.AddCommand(codexListCmd)
	codexCmd.AddCommand(codexAddCmd)
	codexCmd.AddCommand(codexReauthCmd)
	codexCmd.AddCommand(codexSwitchCmd)
	codexCmd.AddCommand(codexSyncCmd)
	codexCmd.AddCommand(codexRemoveCmd)
	codexCmd.AddCommand(codexQuotaCmd)
}

// findCodexAccount resolves a label against the merged account list.
func findCodexAccount(res *loader.CodexResult, label string) *account.CodexAccount {
	for _, acct := range res.Accounts {
		if acct.Label == label {
			return acct
		}
	}
	return nil
}

// activeCodexAccount resolves the container's active label to an account.
func activeCodexAccount(res *loader.CodexResult) (*account.CodexAccount, error) {
	label := res.File.ActiveLabel()
	if label == "" {
		return nil, fmt.Errorf("no active account; run 'aiq codex switch <label>' first")
	}
	acct := findCodexAccount(res, label)
	if acct == nil {
		return nil, fmt.Errorf("active account %q not found in any source", label)
	}
	return acct, nil
}

// freshenCodex refreshes a stale account before a network operation. A
// failed refresh is a warning here; the stale token may still be accepted.
func freshenCodex(ctx context.Context, acct *account.CodexAccount, file *account.CodexFile) {
	mgr := lifecycle.NewManager()
	report, ok := mgr.EnsureFreshCodex(ctx, acct, file)
	if !ok {
		presenter.Warning(fmt.Sprintf("Token for %q is stale and could not be refreshed; run 'aiq codex reauth %s' if requests fail.", acct.Label, acct.Label))
		return
	}
	if report.Errors != nil {
		presenter.Warning(fmt.Sprintf("Token refreshed but some stores were not updated: %v", report.Errors))
	}
}

// fetchCodexQuota loads, refreshes, fetches, and dedupes usage for the
// namespace. An empty label means every account.
func fetchCodexQuota(ctx context.Context, label string) []*usage.Result {
	res := loader.LoadCodex(ctx, loadOpts())

	accounts := res.Accounts
	if label != "" {
		acct := findCodexAccount(res, label)
		if acct == nil {
			return []*usage.Result{{Label: label, Error: "account not found"}}
		}
		accounts = []*account.CodexAccount{acct}
	}

	for _, acct := range accounts {
		freshenCodex(ctx, acct, res.File)
	}

	client := usage.NewClient()
	return usage.DedupeResults(client.FetchAllCodex(ctx, accounts))
}

func showCodexQuotaCmd(ctx context.Context, label string) {
	results := fetchCodexQuota(ctx, label)
	if jsonOutput {
		outputJSON(results)
		if anyFailed(results) {
			os.Exit(1)
		}
		return
	}
	if len(results) == 0 {
		presenter.Info("No Codex accounts found. Use 'aiq codex add <label>' to add one.")
		return
	}
	printUsageResults(results)
	if anyFailed(results) {
		os.Exit(1)
	}
}
