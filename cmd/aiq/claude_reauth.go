package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/aiq-dev/aiq/pkg/loader"
	"github.com/aiq-dev/aiq/pkg/presenter"
)

var claudeReauthCmd = &cobra.Command{
	Use:   "reauth <label>",
	Short: "Re-authenticate an existing Claude account",
	Long:  `Run the OAuth flow again for an existing account and replace its tokens in place. The label and any session cookies are kept.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reauthClaudeAccountCmd(cmd.Context(), args[0])
	},
}

func reauthClaudeAccountCmd(ctx context.Context, label string) {
	res := loader.LoadClaude(ctx, loadOpts())
	acct := res.File.Find(label)
	if acct == nil {
		presenter.Error(errors.Errorf("account %q not found", label), "Unknown account")
		presenter.Info("Use 'aiq claude list' to see available accounts.")
		os.Exit(1)
	}

	token, err := runClaudeOAuth(ctx)
	if err != nil {
		presenter.Error(err, "Login failed")
		os.Exit(1)
	}

	acct.OAuthToken = token.AccessToken
	acct.OAuthRefreshToken = token.RefreshToken
	acct.OAuthExpiresAt = token.ExpiresAt
	if token.Scope != "" {
		acct.OAuthScopes = strings.Fields(token.Scope)
	}

	res.File.Upsert(acct)
	if err := res.File.Save(); err != nil {
		presenter.Error(err, "Failed to save account")
		os.Exit(1)
	}

	presenter.Success(fmt.Sprintf("Re-authenticated Claude account %q", label))
	if res.File.ActiveLabel() == label {
		presenter.Info("This is the active account; run 'aiq claude sync' to push the new tokens to every assistant.")
	}
}
