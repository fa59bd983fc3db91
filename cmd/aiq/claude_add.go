package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/aiq-dev/aiq/pkg/account"
	"github.com/aiq-dev/aiq/pkg/loader"
	"github.com/aiq-dev/aiq/pkg/oauth"
	"github.com/aiq-dev/aiq/pkg/presenter"
)

var (
	claudeAddOAuth  bool
	claudeAddManual bool
)

var claudeAddCmd = &cobra.Command{
	Use:   "add <label>",
	Short: "Add a Claude account",
	Long: `Add an Anthropic Claude account under the given label.

With --oauth (the default) the browser OAuth flow runs and the authorization
code is pasted back into the terminal. With --manual a session key
(sk-ant-...) is entered directly instead.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		addClaudeAccountCmd(cmd.Context(), args[0])
	},
}

func init() {
	claudeAddCmd.Flags().BoolVar(&claudeAddOAuth, "oauth", false, "Use the browser OAuth flow (default)")
	claudeAddCmd.Flags().BoolVar(&claudeAddManual, "manual", false, "Enter a session key manually")
	claudeAddCmd.MarkFlagsMutuallyExclusive("oauth", "manual")
}

func addClaudeAccountCmd(ctx context.Context, label string) {
	if !account.ValidLabel(label) {
		presenter.Error(errors.Errorf("label %q must match [A-Za-z0-9_-]+", label), "Invalid label")
		os.Exit(1)
	}

	res := loader.LoadClaude(ctx, loadOpts())
	if res.File.Find(label) != nil {
		presenter.Error(errors.Errorf("account %q already exists", label), "Duplicate label")
		presenter.Info(fmt.Sprintf("Use 'aiq claude reauth %s' to refresh its credentials.", label))
		os.Exit(1)
	}

	var acct *account.ClaudeAccount
	if claudeAddManual {
		var err error
		acct, err = manualClaudeAccount(label, res.File.Path)
		if err != nil {
			presenter.Error(err, "Invalid session key")
			os.Exit(1)
		}
	} else {
		token, err := runClaudeOAuth(ctx)
		if err != nil {
			presenter.Error(err, "Login failed")
			os.Exit(1)
		}
		acct = &account.ClaudeAccount{
			Label:             label,
			OAuthToken:        token.AccessToken,
			OAuthRefreshToken: token.RefreshToken,
			OAuthExpiresAt:    token.ExpiresAt,
			OAuthScopes:       strings.Fields(token.Scope),
			Source:            res.File.Path,
		}
		if token.Email != "" {
			presenter.Info("Email: " + token.Email)
		}
	}

	res.File.Upsert(acct)
	if err := res.File.Save(); err != nil {
		presenter.Error(err, "Failed to save account")
		os.Exit(1)
	}

	presenter.Success(fmt.Sprintf("Added Claude account %q", label))
	presenter.Info(fmt.Sprintf("Run 'aiq claude switch %s' to make it the active account.", label))
}

// runClaudeOAuth drives the paste-the-code authorization flow: there is no
// loopback redirect, the vendor-hosted callback page shows the code.
func runClaudeOAuth(ctx context.Context) (*oauth.Token, error) {
	pkce := oauth.GeneratePKCE()
	state := oauth.GenerateState()

	openOrPrint(oauth.ClaudeAuthURL(pkce, state))

	pasted := presenter.Prompt("Paste the authorization code shown after approving")
	code, err := oauth.ParsePastedCode(pasted, state)
	if err != nil {
		return nil, err
	}

	return oauth.NewClaudeExchanger().Exchange(ctx, code, pkce.Verifier, state)
}

// manualClaudeAccount builds a session-cookie account from pasted values.
func manualClaudeAccount(label, source string) (*account.ClaudeAccount, error) {
	sessionKey := strings.TrimSpace(presenter.Prompt("Session key (sk-ant-...)"))
	if !strings.HasPrefix(sessionKey, "sk-ant-") {
		return nil, errors.New("session keys start with sk-ant-")
	}
	orgID := strings.TrimSpace(presenter.Prompt("Organization id (optional)"))

	return &account.ClaudeAccount{
		Label:      label,
		SessionKey: sessionKey,
		OrgID:      orgID,
		Source:     source,
	}, nil
}
