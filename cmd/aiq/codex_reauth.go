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

var codexReauthCmd = &cobra.Command{
	Use:   "reauth <label>",
	Short: "Re-authenticate an existing Codex account",
	Long:  `Run the browser OAuth flow again for an existing account and replace its tokens in place. The label is kept.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reauthCodexAccountCmd(cmd.Context(), args[0])
	},
}

func reauthCodexAccountCmd(ctx context.Context, label string) {
	res := loader.LoadCodex(ctx, loadOpts())
	acct := res.File.Find(label)
	if acct == nil {
		presenter.Error(errors.Errorf("account %q not found", label), "Unknown account")
		presenter.Info("Use 'aiq codex list' to see available accounts.")
		os.Exit(1)
	}

	token, err := runCodexOAuth(ctx)
	if err != nil {
		presenter.Error(err, "Login failed")
		os.Exit(1)
	}

	acct.AccessToken = token.AccessToken
	acct.RefreshToken = token.RefreshToken
	acct.IDToken = token.IDToken
	acct.ExpiresAt = token.ExpiresAt
	if token.AccountID != "" {
		acct.AccountID = token.AccountID
	}

	res.File.Upsert(acct)
	if err := res.File.Save(); err != nil {
		presenter.Error(err, "Failed to save account")
		os.Exit(1)
	}

	presenter.Success(fmt.Sprintf("Re-authenticated Codex account %q", label))
	if res.File.ActiveLabel() == label {
		presenter.Info("This is the active account; run 'aiq codex sync' to push the new tokens to every assistant.")
	}
}
