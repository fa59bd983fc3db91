// Package loader merges the credential sources of each vendor into one
// deduplicated account list. Sources are read in priority order; a record
// from a deeper source with a label already claimed by a shallower source
// is dropped, then vendor-specific dedup collapses same-identity accounts
// that slipped through under different labels. Loaders never mutate any
// source.
package loader

import (
	"context"

	"github.com/aiq-dev/aiq/pkg/account"
	"github.com/aiq-dev/aiq/pkg/config"
	"github.com/aiq-dev/aiq/pkg/cookiedb"
	"github.com/aiq-dev/aiq/pkg/foreign"
	"github.com/aiq-dev/aiq/pkg/logger"
)

// Options narrows which sources a load considers.
type Options struct {
	// LocalOnly restricts loading to the environment and the tool-owned
	// files, skipping every foreign store.
	LocalOnly bool
}

// CodexResult is the merged vendor-A account view plus the writable
// tool-owned container for this invocation.
type CodexResult struct {
	Accounts []*account.CodexAccount

	// File is the active tool-owned container: the primary path when it
	// exists, otherwise the legacy path, otherwise a new container at the
	// primary path. Writers reuse it for the rest of the invocation.
	File *account.CodexFile
}

// ClaudeResult mirrors CodexResult for vendor B.
type ClaudeResult struct {
	Accounts []*account.ClaudeAccount
	File     *account.ClaudeFile
}

// LoadCodex reads every vendor-A source in priority order.
func LoadCodex(ctx context.Context, opts Options) *CodexResult {
	log := logger.G(ctx)
	var merged []*account.CodexAccount
	labels := map[string]bool{}

	add := func(accounts []*account.CodexAccount) {
		for _, acct := range accounts {
			if labels[acct.Label] {
				continue
			}
			labels[acct.Label] = true
			merged = append(merged, acct)
		}
	}

	if blob := config.CodexAccountsEnv(); blob != "" {
		accounts, err := account.ParseCodexList([]byte(blob), account.SourceEnv)
		if err != nil {
			log.WithError(err).Warn("ignoring invalid CODEX_ACCOUNTS")
		} else {
			add(accounts)
		}
	}

	primary := loadCodexFile(ctx, config.CodexAccountsPath())
	add(primary.Accounts)

	legacy := loadCodexFile(ctx, config.CodexAccountsLegacyPath())
	add(legacy.Accounts)

	// The foreign CLI file only contributes a synthesized record when no
	// other source yielded anything.
	if len(merged) == 0 && !opts.LocalOnly {
		if acct := synthesizeCodexCLI(); acct != nil {
			add([]*account.CodexAccount{acct})
		}
	}

	res := &CodexResult{
		Accounts: account.DedupeCodex(merged),
		File:     primary,
	}
	if !primary.Exists && legacy.Exists {
		res.File = legacy
	}
	return res
}

// LoadClaude reads every vendor-B source in priority order.
func LoadClaude(ctx context.Context, opts Options) *ClaudeResult {
	log := logger.G(ctx)
	var merged []*account.ClaudeAccount
	labels := map[string]bool{}

	add := func(accounts []*account.ClaudeAccount) {
		for _, acct := range accounts {
			if labels[acct.Label] {
				continue
			}
			labels[acct.Label] = true
			merged = append(merged, acct)
		}
	}

	for _, env := range []struct {
		name string
		blob string
	}{
		{config.EnvClaudeAccounts, config.ClaudeAccountsEnv()},
		{config.EnvClaudeOAuthAccounts, config.ClaudeOAuthAccountsEnv()},
	} {
		if env.blob == "" {
			continue
		}
		accounts, err := account.ParseClaudeList([]byte(env.blob), account.SourceEnv)
		if err != nil {
			log.WithError(err).Warnf("ignoring invalid %s", env.name)
			continue
		}
		add(accounts)
	}

	primary := loadClaudeFile(ctx, config.ClaudeAccountsPath())
	add(primary.Accounts)

	legacy := loadClaudeFile(ctx, config.ClaudeAccountsLegacyPath())
	add(legacy.Accounts)

	if !opts.LocalOnly {
		if acct := claudeCodeAccount(); acct != nil {
			add([]*account.ClaudeAccount{acct})
		}
		if acct := openCodeClaudeAccount(); acct != nil {
			add([]*account.ClaudeAccount{acct})
		}
		if acct := browserAccount(); acct != nil {
			add([]*account.ClaudeAccount{acct})
		}
	}

	res := &ClaudeResult{
		Accounts: account.DedupeClaude(merged),
		File:     primary,
	}
	if !primary.Exists && legacy.Exists {
		res.File = legacy
	}
	return res
}

// loadCodexFile downgrades malformed JSON to a warning with an empty,
// writable container at the same path.
func loadCodexFile(ctx context.Context, path string) *account.CodexFile {
	f, err := account.LoadCodexFile(path)
	if err != nil {
		logger.G(ctx).WithError(err).Warnf("ignoring unreadable account file %s", path)
		return account.NewCodexFile(path)
	}
	return f
}

func loadClaudeFile(ctx context.Context, path string) *account.ClaudeFile {
	f, err := account.LoadClaudeFile(path)
	if err != nil {
		logger.G(ctx).WithError(err).Warnf("ignoring unreadable account file %s", path)
		return account.NewClaudeFile(path)
	}
	return f
}

// synthesizeCodexCLI turns the Codex CLI's own auth file into a fallback
// account labeled "codex-cli".
func synthesizeCodexCLI() *account.CodexAccount {
	store := foreign.Store{
		Name: foreign.KindCodexCLI, Path: config.CodexCLIAuthPath(),
		Vendor: account.VendorCodex,
	}
	tokens, exists, err := store.Read()
	if err != nil || !exists || tokens.Access == "" {
		return nil
	}
	return account.DecodeCodexEntry(map[string]any{
		"label":     string(foreign.KindCodexCLI),
		"accountId": tokens.AccountID,
		"access":    tokens.Access,
		"refresh":   tokens.Refresh,
		"expires":   tokens.ExpiresAt,
	}, store.Path)
}

func claudeCodeAccount() *account.ClaudeAccount {
	store := foreign.Store{
		Name: foreign.KindClaudeCode, Path: config.ClaudeCredentialsPath(),
		Vendor: account.VendorClaude,
	}
	tokens, exists, err := store.Read()
	if err != nil || !exists || tokens.Access == "" {
		return nil
	}
	return account.DecodeClaudeEntry(map[string]any{
		"label":             string(foreign.KindClaudeCode),
		"oauthToken":        tokens.Access,
		"oauthRefreshToken": tokens.Refresh,
		"oauthExpiresAt":    tokens.ExpiresAt,
		"oauthScopes":       tokens.Scopes,
	}, store.Path)
}

func openCodeClaudeAccount() *account.ClaudeAccount {
	store := foreign.Store{
		Name: foreign.KindOpenCode, Path: config.OpenCodeAuthPath(),
		Vendor: account.VendorClaude,
	}
	tokens, exists, err := store.Read()
	if err != nil || !exists || tokens.Access == "" {
		return nil
	}
	return account.DecodeClaudeEntry(map[string]any{
		"label":             string(foreign.KindOpenCode),
		"oauthToken":        tokens.Access,
		"oauthRefreshToken": tokens.Refresh,
		"oauthExpiresAt":    tokens.ExpiresAt,
	}, store.Path)
}

// browserAccount is the best-effort cookie-database source.
func browserAccount() *account.ClaudeAccount {
	session := cookiedb.Read(config.ClaudeCookieDBPath())
	if session == nil {
		return nil
	}
	entry := map[string]any{
		"label":      "browser",
		"sessionKey": session.SessionKey,
		"cookies":    session.Cookies,
	}
	if session.CFClearance != "" {
		entry["cfClearance"] = session.CFClearance
	}
	if session.OrgID != "" {
		entry["orgId"] = session.OrgID
	}
	return account.DecodeClaudeEntry(entry, config.ClaudeCookieDBPath())
}
