// Package foreign adapts the auth files owned by other coding assistants.
// Each store keeps one provider slot inside a larger JSON object whose
// sibling keys belong to other providers; the adapters here replace exactly
// that slot and leave everything else byte-equivalent.
package foreign

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/aiq-dev/aiq/pkg/account"
	"github.com/aiq-dev/aiq/pkg/config"
	"github.com/aiq-dev/aiq/pkg/fsutil"
)

// Kind names a known foreign store type.
type Kind string

const (
	KindCodexCLI   Kind = "codex-cli"
	KindOpenCode   Kind = "opencode"
	KindPi         Kind = "pi"
	KindClaudeCode Kind = "claude-code"
)

// Store describes one external tool's auth file.
type Store struct {
	Name   Kind
	Path   string
	Vendor account.Vendor
}

// Tokens is the comparable token tuple extracted from or written into a
// provider slot. ExpiresAt is always absolute milliseconds here; the
// codex-cli adapter converts to epoch seconds on disk.
type Tokens struct {
	Access     string
	Refresh    string
	IDToken    string
	ExpiresAt  int64
	AccountID  string
	Scopes     []string
	QuotaLabel string
}

// UpdateResult reports the outcome of one store write. Errors never
// propagate out of the updater as panics or thrown failures.
type UpdateResult struct {
	Name    Kind
	Path    string
	Updated bool
	Skipped bool
	Err     error
}

// Stores returns the foreign stores holding credentials for the vendor.
func Stores(vendor account.Vendor) []Store {
	switch vendor {
	case account.VendorCodex:
		return []Store{
			{Name: KindCodexCLI, Path: config.CodexCLIAuthPath(), Vendor: account.VendorCodex},
			{Name: KindOpenCode, Path: config.OpenCodeAuthPath(), Vendor: account.VendorCodex},
		}
	case account.VendorClaude:
		return []Store{
			{Name: KindClaudeCode, Path: config.ClaudeCredentialsPath(), Vendor: account.VendorClaude},
			{Name: KindOpenCode, Path: config.OpenCodeAuthPath(), Vendor: account.VendorClaude},
			{Name: KindPi, Path: config.PiAuthPath(), Vendor: account.VendorClaude},
		}
	}
	return nil
}

// slotKey returns the provider slot's root key for this store and vendor.
func (s Store) slotKey() string {
	switch s.Name {
	case KindCodexCLI:
		return "tokens"
	case KindOpenCode:
		if s.Vendor == account.VendorCodex {
			return "openai"
		}
		return "anthropic"
	case KindPi:
		return "anthropic"
	case KindClaudeCode:
		return "claudeAiOauth"
	}
	return ""
}

// readRoot loads the store file as an object of raw values. A missing file
// yields (nil, false, nil); a root that is not a JSON object is an error.
func (s Store) readRoot() (map[string]json.RawMessage, bool, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "failed to read %s", s.Path)
	}

	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, false, errors.Wrapf(err, "%s is not a JSON object", s.Path)
	}
	return root, true, nil
}

// Read extracts the current token tuple from the store's provider slot.
// Returns (nil, false, nil) when the file or slot is absent.
func (s Store) Read() (*Tokens, bool, error) {
	root, exists, err := s.readRoot()
	if err != nil || !exists {
		return nil, false, err
	}

	raw, ok := root[s.slotKey()]
	if !ok {
		if s.Name == KindCodexCLI {
			// The quota label lives at the root even when tokens are gone.
			return &Tokens{QuotaLabel: stringField(root, "codex_quota_label")}, true, nil
		}
		return nil, false, nil
	}

	var slot map[string]json.RawMessage
	if err := json.Unmarshal(raw, &slot); err != nil {
		return nil, false, errors.Wrapf(err, "invalid provider slot in %s", s.Path)
	}

	tokens := &Tokens{}
	switch s.Name {
	case KindCodexCLI:
		tokens.Access = stringField(slot, "access_token")
		tokens.Refresh = stringField(slot, "refresh_token")
		tokens.IDToken = stringField(slot, "id_token")
		tokens.AccountID = stringField(slot, "account_id")
		if secs := int64Field(slot, "expires_at"); secs != 0 {
			tokens.ExpiresAt = secs * 1000
		}
		tokens.QuotaLabel = stringField(root, "codex_quota_label")
	case KindOpenCode, KindPi:
		tokens.Access = stringField(slot, "access")
		tokens.Refresh = stringField(slot, "refresh")
		tokens.ExpiresAt = int64Field(slot, "expires")
		tokens.AccountID = stringField(slot, "accountId")
	case KindClaudeCode:
		tokens.Access = firstString(slot, "accessToken", "access_token")
		tokens.Refresh = firstString(slot, "refreshToken", "refresh_token")
		tokens.ExpiresAt = firstInt64(slot, "expiresAt", "expires_at")
		tokens.Scopes = scopesField(slot, "scopes")
	}
	return tokens, true, nil
}

// Update replaces the provider slot with the given tokens, preserving every
// sibling root key and every slot field not explicitly replaced. A missing
// file is a skipped result unless create is set (the codex-cli store may be
// created on first switch).
func (s Store) Update(tokens *Tokens, create bool) UpdateResult {
	res := UpdateResult{Name: s.Name, Path: s.Path}

	root, exists, err := s.readRoot()
	if err != nil {
		res.Err = err
		return res
	}
	if !exists {
		if !create {
			res.Skipped = true
			return res
		}
		root = map[string]json.RawMessage{}
	}

	key := s.slotKey()
	slot := map[string]json.RawMessage{}
	if raw, ok := root[key]; ok {
		if err := json.Unmarshal(raw, &slot); err != nil {
			res.Err = errors.Wrapf(err, "invalid provider slot in %s", s.Path)
			return res
		}
	}

	switch s.Name {
	case KindCodexCLI:
		setString(slot, "access_token", tokens.Access)
		setString(slot, "refresh_token", tokens.Refresh)
		if tokens.IDToken != "" {
			setString(slot, "id_token", tokens.IDToken)
		}
		setString(slot, "account_id", tokens.AccountID)
		setInt64(slot, "expires_at", tokens.ExpiresAt/1000)
		setRaw(root, "last_refresh", time.Now().UTC().Format(time.RFC3339))
		if tokens.QuotaLabel != "" {
			setRaw(root, "codex_quota_label", tokens.QuotaLabel)
		}
	case KindOpenCode, KindPi:
		setRaw(slot, "type", "oauth")
		setString(slot, "access", tokens.Access)
		setString(slot, "refresh", tokens.Refresh)
		setInt64(slot, "expires", tokens.ExpiresAt)
		if s.Vendor == account.VendorCodex && tokens.AccountID != "" {
			setString(slot, "accountId", tokens.AccountID)
		}
	case KindClaudeCode:
		// Keep whichever naming the file already uses.
		setString(slot, pickName(slot, "accessToken", "access_token"), tokens.Access)
		setString(slot, pickName(slot, "refreshToken", "refresh_token"), tokens.Refresh)
		setInt64(slot, pickName(slot, "expiresAt", "expires_at"), tokens.ExpiresAt)
		scopes := tokens.Scopes
		if len(scopes) == 0 {
			// New tokens may omit scopes; the target entry's value stands.
			scopes = scopesField(slot, "scopes")
		}
		if len(scopes) > 0 {
			setRaw(slot, pickName(slot, "scopes"), scopes)
		}
	}

	encoded, err := json.Marshal(slot)
	if err != nil {
		res.Err = errors.Wrap(err, "failed to encode provider slot")
		return res
	}
	root[key] = encoded

	if err := fsutil.WriteJSONAtomic(s.Path, root, fsutil.PreserveMode(s.Path, fsutil.SecretMode)); err != nil {
		res.Err = err
		return res
	}
	res.Updated = true
	return res
}

// QuotaLabel reads the codex_quota_label marker from a codex-cli store.
func (s Store) QuotaLabel() string {
	root, exists, err := s.readRoot()
	if err != nil || !exists {
		return ""
	}
	return stringField(root, "codex_quota_label")
}

// SetQuotaLabel writes the codex_quota_label marker, leaving the rest of
// the file untouched. Only meaningful for the codex-cli store.
func (s Store) SetQuotaLabel(label string) UpdateResult {
	res := UpdateResult{Name: s.Name, Path: s.Path}
	root, exists, err := s.readRoot()
	if err != nil {
		res.Err = err
		return res
	}
	if !exists {
		res.Skipped = true
		return res
	}

	setRaw(root, "codex_quota_label", label)
	if err := fsutil.WriteJSONAtomic(s.Path, root, fsutil.PreserveMode(s.Path, fsutil.SecretMode)); err != nil {
		res.Err = err
		return res
	}
	res.Updated = true
	return res
}

// ClearQuotaLabel removes the codex_quota_label marker when it equals
// label. The rest of the file is preserved.
func (s Store) ClearQuotaLabel(label string) UpdateResult {
	res := UpdateResult{Name: s.Name, Path: s.Path}
	root, exists, err := s.readRoot()
	if err != nil {
		res.Err = err
		return res
	}
	if !exists || stringField(root, "codex_quota_label") != label {
		res.Skipped = true
		return res
	}

	delete(root, "codex_quota_label")
	if err := fsutil.WriteJSONAtomic(s.Path, root, fsutil.PreserveMode(s.Path, fsutil.SecretMode)); err != nil {
		res.Err = err
		return res
	}
	res.Updated = true
	return res
}

func stringField(m map[string]json.RawMessage, key string) string {
	raw, ok := m[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func firstString(m map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		if s := stringField(m, key); s != "" {
			return s
		}
	}
	return ""
}

func int64Field(m map[string]json.RawMessage, key string) int64 {
	raw, ok := m[key]
	if !ok {
		return 0
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return 0
		}
		return int64(f)
	}
	return n
}

func firstInt64(m map[string]json.RawMessage, keys ...string) int64 {
	for _, key := range keys {
		if n := int64Field(m, key); n != 0 {
			return n
		}
	}
	return 0
}

func scopesField(m map[string]json.RawMessage, key string) []string {
	raw, ok := m[key]
	if !ok {
		return nil
	}
	var scopes []string
	if err := json.Unmarshal(raw, &scopes); err == nil {
		return scopes
	}
	// Some writers store scopes as a single space-joined string.
	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil && joined != "" {
		return []string{joined}
	}
	return nil
}

// pickName returns the first candidate field name already present on the
// slot, falling back to the canonical (first) name.
func pickName(slot map[string]json.RawMessage, candidates ...string) string {
	for _, name := range candidates {
		if _, ok := slot[name]; ok {
			return name
		}
	}
	return candidates[0]
}

func setRaw(m map[string]json.RawMessage, key string, value any) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return
	}
	m[key] = encoded
}

func setString(m map[string]json.RawMessage, key, value string) {
	setRaw(m, key, value)
}

func setInt64(m map[string]json.RawMessage, key string, value int64) {
	setRaw(m, key, value)
}
