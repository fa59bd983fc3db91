package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aiq-dev/aiq/pkg/account"
	"github.com/aiq-dev/aiq/pkg/loader"
	"github.com/aiq-dev/aiq/pkg/presenter"
)

var claudeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all Claude accounts",
	Long:  `Display every Claude account across all credential sources with its kind (OAuth or session cookie) and token status.`,
	Run: func(cmd *cobra.Command, _ []string) {
		listClaudeAccountsCmd(cmd.Context())
	},
}

type claudeAccountJSON struct {
	Label  string `json:"label"`
	Kind   string `json:"kind"`
	OrgID  string `json:"orgId,omitempty"`
	Source string `json:"source"`
	Status string `json:"status"`
	Active bool   `json:"active"`
}

func claudeKind(acct *account.ClaudeAccount) string {
	var kinds []string
	if acct.OAuthToken != "" {
		kinds = append(kinds, "oauth")
	}
	if acct.SessionKey != "" {
		kinds = append(kinds, "session")
	}
	return strings.Join(kinds, "+")
}

func claudeStatus(acct *account.ClaudeAccount) string {
	if acct.OAuthToken == "" {
		return "session only"
	}
	return tokenStatus(acct.OAuthExpiresAt)
}

func listClaudeAccountsCmd(ctx context.Context) {
	res := loader.LoadClaude(ctx, loadOpts())
	active := res.File.ActiveLabel()

	if jsonOutput {
		out := struct {
			Accounts    []claudeAccountJSON `json:"accounts"`
			ActiveLabel string              `json:"activeLabel,omitempty"`
		}{ActiveLabel: active}
		for _, acct := range res.Accounts {
			out.Accounts = append(out.Accounts, claudeAccountJSON{
				Label:  acct.Label,
				Kind:   claudeKind(acct),
				OrgID:  acct.OrgID,
				Source: acct.Source,
				Status: claudeStatus(acct),
				Active: acct.Label == active,
			})
		}
		outputJSON(out)
		return
	}

	if len(res.Accounts) == 0 {
		presenter.Info("No Claude accounts found. Use 'aiq claude add <label>' to add one.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LABEL\tKIND\tSTATUS")
	fmt.Fprintln(tw, "-----\t----\t------")
	for _, acct := range res.Accounts {
		label := "  " + acct.Label
		if acct.Label == active {
			label = "* " + acct.Label
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", label, claudeKind(acct), claudeStatus(acct))
	}
	tw.Flush() //nolint:errcheck

	presenter.Info("\n* indicates the active account")
}
