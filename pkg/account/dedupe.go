package account

import (
	"github.com/aiq-dev/aiq/pkg/jwtutil"
)

// claudeKeyLen is how much of a token identifies the session. Refresh tokens
// are long-lived and stable; access tokens rotate, so they are only a
// fallback key.
const claudeKeyLen = 50

// DedupeCodex collapses duplicate Codex accounts by the email claim of their
// access tokens; the first occurrence wins. A team account can share one
// accountId across many users and labels differ across stores, so email is
// the only stable user identity. Accounts whose token yields no email are
// always kept.
func DedupeCodex(accounts []*CodexAccount) []*CodexAccount {
	seen := make(map[string]bool)
	out := make([]*CodexAccount, 0, len(accounts))
	for _, acct := range accounts {
		email := ""
		if payload := jwtutil.Decode(acct.AccessToken); payload != nil {
			email = payload.Email
		}
		if email != "" {
			if seen[email] {
				continue
			}
			seen[email] = true
		}
		out = append(out, acct)
	}
	return out
}

// DedupeClaude collapses duplicate Claude accounts by a token prefix: the
// first 50 characters of the refresh token when present, otherwise of the
// access token. The first occurrence wins; accounts with neither token are
// kept as-is.
func DedupeClaude(accounts []*ClaudeAccount) []*ClaudeAccount {
	seen := make(map[string]bool)
	out := make([]*ClaudeAccount, 0, len(accounts))
	for _, acct := range accounts {
		key := claudeDedupeKey(acct)
		if key != "" {
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		out = append(out, acct)
	}
	return out
}

func claudeDedupeKey(acct *ClaudeAccount) string {
	token := acct.OAuthRefreshToken
	if token == "" {
		token = acct.OAuthToken
	}
	if token == "" {
		return ""
	}
	if len(token) > claudeKeyLen {
		token = token[:claudeKeyLen]
	}
	return token
}
