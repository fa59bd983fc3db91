// Package lifecycle keeps access tokens fresh. EnsureFresh refreshes a
// near-expiry account, persists the result into the owning store, and
// propagates the new tokens into every foreign store that mirrors the same
// underlying account. Mirrors are identified by the account's previous
// token values, captured before mutation, never by label.
package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/aiq-dev/aiq/pkg/account"
	"github.com/aiq-dev/aiq/pkg/foreign"
	"github.com/aiq-dev/aiq/pkg/logger"
	"github.com/aiq-dev/aiq/pkg/oauth"
)

// Freshness windows. A token expiring within the window counts as stale.
const (
	CodexFreshWindow  = 60 * time.Second
	ClaudeFreshWindow = 5 * time.Minute
)

// RefreshFunc performs a refresh-token exchange.
type RefreshFunc func(ctx context.Context, refreshToken string) (*oauth.Token, error)

// Manager drives token refreshes for both vendors. The exchange functions
// are injected so tests can run against httptest endpoints.
type Manager struct {
	CodexRefresh  RefreshFunc
	ClaudeRefresh RefreshFunc

	// Stores overrides the foreign-store table; nil means the discovered
	// table for the vendor.
	Stores func(vendor account.Vendor) []foreign.Store

	// Now is overridable for tests.
	Now func() time.Time
}

// NewManager wires a manager against the production token endpoints.
func NewManager() *Manager {
	return &Manager{
		CodexRefresh:  oauth.NewCodexExchanger().Refresh,
		ClaudeRefresh: oauth.NewClaudeExchanger().Refresh,
	}
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Manager) stores(vendor account.Vendor) []foreign.Store {
	if m.Stores != nil {
		return m.Stores(vendor)
	}
	return foreign.Stores(vendor)
}

// Report describes what a refresh touched. Partial propagation is success
// with errors attached: the owning store was updated even if some foreign
// writes failed.
type Report struct {
	Refreshed    bool
	UpdatedPaths []string
	Errors       *multierror.Error
}

// EnsureFreshCodex guarantees the account's access token outlives the
// freshness window. Returns false when the token is stale and cannot be
// refreshed; the account is left untouched in that case.
func (m *Manager) EnsureFreshCodex(ctx context.Context, acct *account.CodexAccount, file *account.CodexFile) (*Report, bool) {
	report := &Report{}

	if acct.ExpiresAt > m.now().Add(CodexFreshWindow).UnixMilli() {
		return report, true
	}
	if acct.RefreshToken == "" {
		return report, false
	}

	token, err := m.CodexRefresh(ctx, acct.RefreshToken)
	if err != nil || token == nil {
		logger.G(ctx).WithField("label", acct.Label).WithError(err).Debug("token refresh failed")
		return report, false
	}
	report.Refreshed = true

	prevAccess, prevRefresh := acct.AccessToken, acct.RefreshToken

	acct.AccessToken = token.AccessToken
	acct.RefreshToken = token.RefreshToken
	acct.ExpiresAt = token.ExpiresAt
	acct.UpdatedAt = m.now().UnixMilli()
	if token.AccountID != "" {
		acct.AccountID = token.AccountID
	}
	if token.IDToken != "" {
		acct.IDToken = token.IDToken
	}

	m.persistCodex(acct, file, report)

	newTokens := &foreign.Tokens{
		Access:    acct.AccessToken,
		Refresh:   acct.RefreshToken,
		IDToken:   acct.IDToken,
		ExpiresAt: acct.ExpiresAt,
		AccountID: acct.AccountID,
	}
	m.propagate(account.VendorCodex, acct.Label, prevAccess, prevRefresh, newTokens, report)

	return report, true
}

// EnsureFreshClaude is the vendor-B counterpart of EnsureFreshCodex.
func (m *Manager) EnsureFreshClaude(ctx context.Context, acct *account.ClaudeAccount, file *account.ClaudeFile) (*Report, bool) {
	report := &Report{}

	if acct.OAuthExpiresAt > m.now().Add(ClaudeFreshWindow).UnixMilli() {
		return report, true
	}
	if !acct.SyncCapable() {
		return report, false
	}

	token, err := m.ClaudeRefresh(ctx, acct.OAuthRefreshToken)
	if err != nil || token == nil {
		logger.G(ctx).WithField("label", acct.Label).WithError(err).Debug("token refresh failed")
		return report, false
	}
	report.Refreshed = true

	prevAccess, prevRefresh := acct.OAuthToken, acct.OAuthRefreshToken

	acct.OAuthToken = token.AccessToken
	acct.OAuthRefreshToken = token.RefreshToken
	acct.OAuthExpiresAt = token.ExpiresAt
	if token.Scope != "" {
		acct.OAuthScopes = strings.Fields(token.Scope)
	}

	m.persistClaude(acct, file, report)

	newTokens := &foreign.Tokens{
		Access:    acct.OAuthToken,
		Refresh:   acct.OAuthRefreshToken,
		ExpiresAt: acct.OAuthExpiresAt,
		Scopes:    acct.OAuthScopes,
	}
	m.propagate(account.VendorClaude, acct.Label, prevAccess, prevRefresh, newTokens, report)

	return report, true
}

// persistCodex writes the refreshed record into the tool-owned container.
// Accounts owned by a foreign store (the synthesized codex-cli record) are
// not copied into the container; propagation updates their home file.
func (m *Manager) persistCodex(acct *account.CodexAccount, file *account.CodexFile, report *Report) {
	if file == nil || m.foreignOwned(account.VendorCodex, acct.Source) {
		return
	}
	file.Upsert(acct)
	if err := file.Save(); err != nil {
		report.Errors = multierror.Append(report.Errors, err)
		return
	}
	report.UpdatedPaths = append(report.UpdatedPaths, file.Path)
}

func (m *Manager) persistClaude(acct *account.ClaudeAccount, file *account.ClaudeFile, report *Report) {
	if file == nil || m.foreignOwned(account.VendorClaude, acct.Source) {
		return
	}
	file.Upsert(acct)
	if err := file.Save(); err != nil {
		report.Errors = multierror.Append(report.Errors, err)
		return
	}
	report.UpdatedPaths = append(report.UpdatedPaths, file.Path)
}

func (m *Manager) foreignOwned(vendor account.Vendor, source string) bool {
	for _, store := range m.stores(vendor) {
		if store.Path == source {
			return true
		}
	}
	return false
}

// propagate writes the new tokens into every foreign store holding the same
// underlying account. The matching predicate uses the previous token values:
// refresh-token equality, access-token equality when a refresh is missing on
// either side, or an empty codex-cli store whose label alias matches.
func (m *Manager) propagate(vendor account.Vendor, label, prevAccess, prevRefresh string, tokens *foreign.Tokens, report *Report) {
	for _, store := range m.stores(vendor) {
		current, exists, err := store.Read()
		if err != nil {
			report.Errors = multierror.Append(report.Errors, err)
			continue
		}
		if !exists {
			continue
		}
		if !mirrorsAccount(store, current, label, prevAccess, prevRefresh) {
			continue
		}

		res := store.Update(tokens, false)
		if res.Err != nil {
			report.Errors = multierror.Append(report.Errors, res.Err)
			continue
		}
		if res.Updated {
			report.UpdatedPaths = append(report.UpdatedPaths, res.Path)
		}
	}
}

func mirrorsAccount(store foreign.Store, current *foreign.Tokens, label, prevAccess, prevRefresh string) bool {
	if current.Refresh != "" && prevRefresh != "" {
		return current.Refresh == prevRefresh
	}
	if current.Access != "" && prevAccess != "" {
		return current.Access == prevAccess
	}
	// An empty store adopts the tokens only for the codex-cli alias.
	if current.Access == "" && current.Refresh == "" {
		return store.Name == foreign.KindCodexCLI && label == string(foreign.KindCodexCLI)
	}
	return false
}
