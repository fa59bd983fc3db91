package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/aiq-dev/aiq/pkg/account"
	"github.com/aiq-dev/aiq/pkg/browser"
	"github.com/aiq-dev/aiq/pkg/loader"
	"github.com/aiq-dev/aiq/pkg/oauth"
	"github.com/aiq-dev/aiq/pkg/presenter"
	"github.com/aiq-dev/aiq/pkg/render"
)

var codexAddCmd = &cobra.Command{
	Use:   "add <label>",
	Short: "Add a Codex account via the browser OAuth flow",
	Long: `Log in to a ChatGPT account through the browser and store the resulting
tokens under the given label. The label must match [A-Za-z0-9_-]+ and must
not already exist.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		addCodexAccountCmd(cmd.Context(), args[0])
	},
}

func addCodexAccountCmd(ctx context.Context, label string) {
	if !account.ValidLabel(label) {
		presenter.Error(errors.Errorf("label %q must match [A-Za-z0-9_-]+", label), "Invalid label")
		os.Exit(1)
	}

	res := loader.LoadCodex(ctx, loadOpts())
	if res.File.Find(label) != nil {
		presenter.Error(errors.Errorf("account %q already exists", label), "Duplicate label")
		presenter.Info(fmt.Sprintf("Use 'aiq codex reauth %s' to refresh its credentials.", label))
		os.Exit(1)
	}

	token, err := runCodexOAuth(ctx)
	if err != nil {
		presenter.Error(err, "Login failed")
		os.Exit(1)
	}

	acct := &account.CodexAccount{
		Label:        label,
		AccountID:    token.AccountID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		IDToken:      token.IDToken,
		ExpiresAt:    token.ExpiresAt,
		Source:       res.File.Path,
	}
	res.File.Upsert(acct)
	if err := res.File.Save(); err != nil {
		presenter.Error(err, "Failed to save account")
		os.Exit(1)
	}

	presenter.Success(fmt.Sprintf("Added Codex account %q", label))
	if token.Email != "" {
		presenter.Info("Email: " + token.Email)
	}
	if token.AccountID != "" {
		presenter.Info("Account ID: " + render.MaskSecret(token.AccountID))
	}
	presenter.Info(fmt.Sprintf("Run 'aiq codex switch %s' to make it the active account.", label))
}

// runCodexOAuth drives the full loopback authorization-code flow: port
// probe, browser hand-off, one-shot callback, and the token exchange.
func runCodexOAuth(ctx context.Context) (*oauth.Token, error) {
	if err := oauth.ProbeCallbackPort(); err != nil {
		return nil, err
	}

	pkce := oauth.GeneratePKCE()
	state := oauth.GenerateState()
	authURL := oauth.CodexAuthURL(pkce, state)

	server, err := oauth.StartCallbackServer(state)
	if err != nil {
		return nil, err
	}
	defer server.Close() //nolint:errcheck

	openOrPrint(authURL)

	presenter.Info("Waiting for the browser callback...")
	code, err := server.AcceptOne(ctx)
	if err != nil {
		return nil, err
	}

	return oauth.NewCodexExchanger().Exchange(ctx, code, pkce.Verifier)
}

// openOrPrint launches the browser, or prints the URL when that cannot work.
func openOrPrint(url string) {
	if noBrowser || browser.Headless() {
		presenter.Info("Open this URL in your browser to continue:")
		fmt.Println(url)
		return
	}
	if err := browser.Open(url); err != nil {
		presenter.Warning("Could not open a browser. Open this URL manually:")
		fmt.Println(url)
	}
}
