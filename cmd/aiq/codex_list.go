package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aiq-dev/aiq/pkg/account"
	"github.com/aiq-dev/aiq/pkg/foreign"
	"github.com/aiq-dev/aiq/pkg/jwtutil"
	"github.com/aiq-dev/aiq/pkg/loader"
	"github.com/aiq-dev/aiq/pkg/presenter"
	"github.com/aiq-dev/aiq/pkg/render"
	"github.com/aiq-dev/aiq/pkg/syncer"
)

var codexListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all Codex accounts",
	Long:  `Display every Codex account across all credential sources, the active account, and any divergence with the Codex CLI auth file.`,
	Run: func(cmd *cobra.Command, _ []string) {
		listCodexAccountsCmd(cmd.Context())
	},
}

type codexAccountJSON struct {
	Label     string `json:"label"`
	Email     string `json:"email,omitempty"`
	AccountID string `json:"accountId,omitempty"`
	Source    string `json:"source"`
	Status    string `json:"status"`
	Active    bool   `json:"active"`
}

func listCodexAccountsCmd(ctx context.Context) {
	res := loader.LoadCodex(ctx, loadOpts())
	active := res.File.ActiveLabel()

	var divergence *syncer.Divergence
	if activeAcct := findCodexAccount(res, active); activeAcct != nil {
		for _, store := range foreign.Stores(account.VendorCodex) {
			if store.Name == foreign.KindCodexCLI {
				divergence = syncer.DetectCodexDivergence(activeAcct, store)
			}
		}
	}

	if jsonOutput {
		out := struct {
			Accounts    []codexAccountJSON `json:"accounts"`
			ActiveLabel string             `json:"activeLabel,omitempty"`
			Divergence  *syncer.Divergence `json:"divergence,omitempty"`
		}{ActiveLabel: active, Divergence: divergence}
		for _, acct := range res.Accounts {
			out.Accounts = append(out.Accounts, codexAccountJSON{
				Label:     acct.Label,
				Email:     codexEmail(acct),
				AccountID: acct.AccountID,
				Source:    acct.Source,
				Status:    tokenStatus(acct.ExpiresAt),
				Active:    acct.Label == active,
			})
		}
		outputJSON(out)
		return
	}

	if len(res.Accounts) == 0 {
		presenter.Info("No Codex accounts found. Use 'aiq codex add <label>' to add one.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LABEL\tEMAIL\tACCOUNT\tSTATUS")
	fmt.Fprintln(tw, "-----\t-----\t-------\t------")
	for _, acct := range res.Accounts {
		label := "  " + acct.Label
		if acct.Label == active {
			label = "* " + acct.Label
		}
		accountID := ""
		if acct.AccountID != "" {
			accountID = render.MaskSecret(acct.AccountID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", label, codexEmail(acct), accountID, tokenStatus(acct.ExpiresAt))
	}
	tw.Flush() //nolint:errcheck

	presenter.Info("\n* indicates the active account")

	if divergence != nil && divergence.Diverged {
		switch divergence.Kind {
		case syncer.DivergedManaged:
			presenter.Warning(fmt.Sprintf("The Codex CLI was switched to %q by another session. Run 'aiq codex sync' to reconcile.", divergence.Marker))
		default:
			presenter.Warning("The Codex CLI holds a different account (logged in directly). Run 'aiq codex sync' to reconcile.")
		}
	}
}

func codexEmail(acct *account.CodexAccount) string {
	if payload := jwtutil.Decode(acct.AccessToken); payload != nil {
		return payload.Email
	}
	return ""
}
