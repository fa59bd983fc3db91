// Package account defines the canonical in-memory credential records for
// both vendors and the tool-owned multi-account container files. Credential
// sources shape the same logical record with inconsistent field names
// (camelCase vs snake_case, alternate spellings); everything is translated
// into the canonical structs here at the load boundary and translated back
// on save, remembering which naming variant each entry used.
package account

import (
	"regexp"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Vendor identifies which provider an account belongs to.
type Vendor string

const (
	// VendorCodex is the OpenAI Codex / ChatGPT provider.
	VendorCodex Vendor = "codex"
	// VendorClaude is the Anthropic Claude provider.
	VendorClaude Vendor = "claude"
)

// SourceEnv tags accounts loaded from an environment variable.
const SourceEnv = "env"

var labelRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidLabel reports whether label is acceptable for a managed account.
func ValidLabel(label string) bool {
	return labelRe.MatchString(label)
}

// FieldCase records which naming variant an on-disk entry used so writes
// preserve it. Foreign consumers of these files can be strict about naming.
type FieldCase int

const (
	// FieldCaseCamel is the canonical naming (accessToken, oauthExpiresAt).
	FieldCaseCamel FieldCase = iota
	// FieldCaseSnake mirrors entries that used snake_case on disk.
	FieldCaseSnake
)

// CodexAccount is the canonical record for a Codex (vendor A) account.
// ExpiresAt and UpdatedAt are absolute millisecond timestamps.
type CodexAccount struct {
	Label        string
	AccountID    string
	AccessToken  string
	RefreshToken string
	IDToken      string
	ExpiresAt    int64
	UpdatedAt    int64

	// Source is the origin tag: SourceEnv or the file path the record
	// was loaded from. It doubles as the write-back destination.
	Source string

	// extra holds unrecognized fields from the source entry so they
	// survive a round-trip.
	extra map[string]any
}

// ClaudeAccount is the canonical record for a Claude (vendor B) account.
// At least one of SessionKey or OAuthToken is present on a valid record.
type ClaudeAccount struct {
	Label             string
	SessionKey        string
	OAuthToken        string
	OAuthRefreshToken string
	OAuthExpiresAt    int64
	OAuthScopes       []string
	CFClearance       string
	OrgID             string
	Cookies           map[string]string

	Case   FieldCase
	Source string

	extra map[string]any
}

// Valid reports whether the record satisfies the minimal-fields invariant.
func (a *CodexAccount) Valid() bool {
	return a.Label != "" && a.AccessToken != ""
}

// Valid reports whether the record satisfies the minimal-fields invariant.
func (a *ClaudeAccount) Valid() bool {
	return a.Label != "" && (a.SessionKey != "" || a.OAuthToken != "")
}

// SyncCapable reports whether the account can participate in token sync:
// both an OAuth access token and a refresh token are required.
func (a *ClaudeAccount) SyncCapable() bool {
	return a.OAuthToken != "" && a.OAuthRefreshToken != ""
}

// Field-name aliases accepted when reading entries. First alias is the
// canonical written name.
var (
	codexAliases = map[string][]string{
		"label":     {"label"},
		"accountId": {"accountId", "account_id"},
		"access":    {"access", "accessToken", "access_token"},
		"refresh":   {"refresh", "refreshToken", "refresh_token"},
		"idToken":   {"idToken", "id_token"},
		"expires":   {"expires", "expiresAt", "expires_at"},
		"updatedAt": {"updatedAt", "updated_at"},
	}

	claudeAliases = map[string][]string{
		"label":             {"label"},
		"sessionKey":        {"sessionKey", "session_key"},
		"oauthToken":        {"oauthToken", "oauth_token"},
		"oauthRefreshToken": {"oauthRefreshToken", "oauth_refresh_token"},
		"oauthExpiresAt":    {"oauthExpiresAt", "oauth_expires_at"},
		"oauthScopes":       {"oauthScopes", "oauth_scopes"},
		"cfClearance":       {"cfClearance", "cf_clearance"},
		"orgId":             {"orgId", "org_id"},
		"cookies":           {"cookies"},
	}

	claudeSnakeNames = map[string]string{
		"sessionKey":        "session_key",
		"oauthToken":        "oauth_token",
		"oauthRefreshToken": "oauth_refresh_token",
		"oauthExpiresAt":    "oauth_expires_at",
		"oauthScopes":       "oauth_scopes",
		"cfClearance":       "cf_clearance",
		"orgId":             "org_id",
	}
)

// normalizeEntry rewrites raw keys to their canonical names and splits out
// everything unrecognized. Returns the canonical map, the leftover fields,
// and whether any snake_case alias was seen.
func normalizeEntry(raw map[string]any, aliases map[string][]string) (map[string]any, map[string]any, bool) {
	normalized := make(map[string]any)
	extra := make(map[string]any)
	snake := false

	// Walk the alias lists rather than the raw map so that when an entry
	// carries both spellings of a field the earlier alias (camelCase) wins.
	claimed := make(map[string]bool)
	for canonical, names := range aliases {
		for _, name := range names {
			value, ok := raw[name]
			if !ok {
				continue
			}
			claimed[name] = true
			if name != canonical && name == snakeAlias(names) {
				snake = true
			}
			if _, dup := normalized[canonical]; !dup {
				normalized[canonical] = value
			}
		}
	}
	for key, value := range raw {
		if !claimed[key] {
			extra[key] = value
		}
	}
	return normalized, extra, snake
}

func snakeAlias(names []string) string {
	for _, name := range names {
		for _, c := range name {
			if c == '_' {
				return name
			}
		}
	}
	return ""
}

type codexEntry struct {
	Label     string `mapstructure:"label"`
	AccountID string `mapstructure:"accountId"`
	Access    string `mapstructure:"access"`
	Refresh   string `mapstructure:"refresh"`
	IDToken   string `mapstructure:"idToken"`
	Expires   int64  `mapstructure:"expires"`
	UpdatedAt int64  `mapstructure:"updatedAt"`
}

type claudeEntry struct {
	Label             string            `mapstructure:"label"`
	SessionKey        string            `mapstructure:"sessionKey"`
	OAuthToken        string            `mapstructure:"oauthToken"`
	OAuthRefreshToken string            `mapstructure:"oauthRefreshToken"`
	OAuthExpiresAt    int64             `mapstructure:"oauthExpiresAt"`
	OAuthScopes       []string          `mapstructure:"oauthScopes"`
	CFClearance       string            `mapstructure:"cfClearance"`
	OrgID             string            `mapstructure:"orgId"`
	Cookies           map[string]string `mapstructure:"cookies"`
}

func decodeLoose(input map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to build decoder")
	}
	return decoder.Decode(input)
}

// DecodeCodexEntry translates one loosely-typed source entry into a canonical
// CodexAccount. Returns nil when the entry cannot be decoded or fails the
// minimal-fields invariant.
func DecodeCodexEntry(raw map[string]any, source string) *CodexAccount {
	normalized, extra, _ := normalizeEntry(raw, codexAliases)

	var entry codexEntry
	if err := decodeLoose(normalized, &entry); err != nil {
		return nil
	}

	acct := &CodexAccount{
		Label:        entry.Label,
		AccountID:    entry.AccountID,
		AccessToken:  entry.Access,
		RefreshToken: entry.Refresh,
		IDToken:      entry.IDToken,
		ExpiresAt:    entry.Expires,
		UpdatedAt:    entry.UpdatedAt,
		Source:       source,
		extra:        extra,
	}
	if !acct.Valid() {
		return nil
	}
	return acct
}

// DecodeClaudeEntry translates one loosely-typed source entry into a
// canonical ClaudeAccount, remembering the naming variant the entry used.
// Returns nil when the entry fails the minimal-fields invariant.
func DecodeClaudeEntry(raw map[string]any, source string) *ClaudeAccount {
	normalized, extra, snake := normalizeEntry(raw, claudeAliases)

	var entry claudeEntry
	if err := decodeLoose(normalized, &entry); err != nil {
		return nil
	}

	fieldCase := FieldCaseCamel
	if snake {
		fieldCase = FieldCaseSnake
	}

	acct := &ClaudeAccount{
		Label:             entry.Label,
		SessionKey:        entry.SessionKey,
		OAuthToken:        entry.OAuthToken,
		OAuthRefreshToken: entry.OAuthRefreshToken,
		OAuthExpiresAt:    entry.OAuthExpiresAt,
		OAuthScopes:       entry.OAuthScopes,
		CFClearance:       entry.CFClearance,
		OrgID:             entry.OrgID,
		Cookies:           entry.Cookies,
		Case:              fieldCase,
		Source:            source,
		extra:             extra,
	}
	if !acct.Valid() {
		return nil
	}
	return acct
}

// Encode renders the account back to its persisted shape using canonical
// field names, merging any preserved unknown fields.
func (a *CodexAccount) Encode() map[string]any {
	out := make(map[string]any, len(a.extra)+7)
	for key, value := range a.extra {
		out[key] = value
	}
	out["label"] = a.Label
	if a.AccountID != "" {
		out["accountId"] = a.AccountID
	}
	out["access"] = a.AccessToken
	if a.RefreshToken != "" {
		out["refresh"] = a.RefreshToken
	}
	if a.IDToken != "" {
		out["idToken"] = a.IDToken
	}
	if a.ExpiresAt != 0 {
		out["expires"] = a.ExpiresAt
	}
	if a.UpdatedAt != 0 {
		out["updatedAt"] = a.UpdatedAt
	}
	return out
}

// Encode renders the account back to its persisted shape, writing each field
// under the naming variant the entry originally used.
func (a *ClaudeAccount) Encode() map[string]any {
	name := func(camel string) string {
		if a.Case == FieldCaseSnake {
			if snake, ok := claudeSnakeNames[camel]; ok {
				return snake
			}
		}
		return camel
	}

	out := make(map[string]any, len(a.extra)+9)
	for key, value := range a.extra {
		out[key] = value
	}
	out["label"] = a.Label
	if a.SessionKey != "" {
		out[name("sessionKey")] = a.SessionKey
	}
	if a.OAuthToken != "" {
		out[name("oauthToken")] = a.OAuthToken
	}
	if a.OAuthRefreshToken != "" {
		out[name("oauthRefreshToken")] = a.OAuthRefreshToken
	}
	if a.OAuthExpiresAt != 0 {
		out[name("oauthExpiresAt")] = a.OAuthExpiresAt
	}
	if len(a.OAuthScopes) > 0 {
		out[name("oauthScopes")] = a.OAuthScopes
	}
	if a.CFClearance != "" {
		out[name("cfClearance")] = a.CFClearance
	}
	if a.OrgID != "" {
		out[name("orgId")] = a.OrgID
	}
	if len(a.Cookies) > 0 {
		out["cookies"] = a.Cookies
	}
	return out
}
