package account

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/aiq-dev/aiq/pkg/fsutil"
)

// parsedContainer is the shared decoded shape of a multi-account source:
// either a bare ordered list of entries or an object with accounts,
// activeLabel, and arbitrary extra root fields that must survive
// round-trips.
type parsedContainer struct {
	entries     []map[string]any
	activeLabel string
	activeSet   bool
	extras      map[string]json.RawMessage
	bare        bool
}

func parseContainer(data []byte) (*parsedContainer, error) {
	out := &parsedContainer{extras: map[string]json.RawMessage{}}

	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return out, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		out.bare = true
		if err := json.Unmarshal(data, &out.entries); err != nil {
			return nil, errors.Wrap(err, "failed to parse account list")
		}
		return out, nil
	}

	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, errors.Wrap(err, "failed to parse account container")
	}

	for key, raw := range root {
		switch key {
		case "accounts":
			if err := json.Unmarshal(raw, &out.entries); err != nil {
				return nil, errors.Wrap(err, "failed to parse accounts field")
			}
		case "activeLabel":
			out.activeSet = true
			if string(raw) != "null" {
				if err := json.Unmarshal(raw, &out.activeLabel); err != nil {
					return nil, errors.Wrap(err, "failed to parse activeLabel field")
				}
			}
		default:
			out.extras[key] = raw
		}
	}
	return out, nil
}

func (c *parsedContainer) encode(encoded []map[string]any) (map[string]any, bool) {
	if c.bare && !c.activeSet {
		return nil, true
	}

	root := make(map[string]any, len(c.extras)+2)
	for key, raw := range c.extras {
		root[key] = raw
	}
	root["accounts"] = encoded
	if c.activeSet {
		if c.activeLabel == "" {
			root["activeLabel"] = nil
		} else {
			root["activeLabel"] = c.activeLabel
		}
	}
	return root, false
}

// CodexFile is the tool-owned Codex multi-account container bound to a path.
type CodexFile struct {
	Path     string
	Exists   bool
	Accounts []*CodexAccount

	container *parsedContainer
}

// NewCodexFile returns an empty, writable container bound to path.
func NewCodexFile(path string) *CodexFile {
	return &CodexFile{Path: path, container: &parsedContainer{extras: map[string]json.RawMessage{}}}
}

// LoadCodexFile reads a tool-owned Codex container. A missing file yields an
// empty, writable container; malformed JSON is an error for the caller to
// downgrade per the loader policy.
func LoadCodexFile(path string) (*CodexFile, error) {
	f := NewCodexFile(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	f.Exists = true

	parsed, err := parseContainer(data)
	if err != nil {
		return nil, err
	}
	f.container = parsed

	for _, entry := range parsed.entries {
		if acct := DecodeCodexEntry(entry, path); acct != nil {
			f.Accounts = append(f.Accounts, acct)
		}
	}
	return f, nil
}

// ActiveLabel returns the container's active-label pointer, empty when unset.
func (f *CodexFile) ActiveLabel() string { return f.container.activeLabel }

// SetActive points the container's active label at label.
func (f *CodexFile) SetActive(label string) {
	f.container.activeSet = true
	f.container.activeLabel = label
}

// ClearActive nulls out the active label.
func (f *CodexFile) ClearActive() {
	f.container.activeSet = true
	f.container.activeLabel = ""
}

// Find returns the account with the given label, or nil.
func (f *CodexFile) Find(label string) *CodexAccount {
	for _, acct := range f.Accounts {
		if acct.Label == label {
			return acct
		}
	}
	return nil
}

// Upsert replaces the account with the same label or appends a new one.
func (f *CodexFile) Upsert(acct *CodexAccount) {
	for i, existing := range f.Accounts {
		if existing.Label == acct.Label {
			f.Accounts[i] = acct
			return
		}
	}
	f.Accounts = append(f.Accounts, acct)
}

// Remove drops the account with the given label. Returns false when absent.
func (f *CodexFile) Remove(label string) bool {
	for i, acct := range f.Accounts {
		if acct.Label == label {
			f.Accounts = append(f.Accounts[:i], f.Accounts[i+1:]...)
			return true
		}
	}
	return false
}

// Save writes the container back with mode 0600, preserving extra root
// fields and the bare-list layout when no active label was ever set.
func (f *CodexFile) Save() error {
	encoded := make([]map[string]any, 0, len(f.Accounts))
	for _, acct := range f.Accounts {
		encoded = append(encoded, acct.Encode())
	}

	root, bare := f.container.encode(encoded)
	var payload any = root
	if bare {
		payload = encoded
	}
	if err := fsutil.WriteJSONAtomic(f.Path, payload, fsutil.SecretMode); err != nil {
		return err
	}
	f.Exists = true
	return nil
}

// ClaudeFile is the tool-owned Claude multi-account container bound to a path.
type ClaudeFile struct {
	Path     string
	Exists   bool
	Accounts []*ClaudeAccount

	container *parsedContainer
}

// NewClaudeFile returns an empty, writable container bound to path.
func NewClaudeFile(path string) *ClaudeFile {
	return &ClaudeFile{Path: path, container: &parsedContainer{extras: map[string]json.RawMessage{}}}
}

// LoadClaudeFile reads a tool-owned Claude container, mirroring
// LoadCodexFile's missing-file and error behavior.
func LoadClaudeFile(path string) (*ClaudeFile, error) {
	f := NewClaudeFile(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	f.Exists = true

	parsed, err := parseContainer(data)
	if err != nil {
		return nil, err
	}
	f.container = parsed

	for _, entry := range parsed.entries {
		if acct := DecodeClaudeEntry(entry, path); acct != nil {
			f.Accounts = append(f.Accounts, acct)
		}
	}
	return f, nil
}

// ActiveLabel returns the container's active-label pointer, empty when unset.
func (f *ClaudeFile) ActiveLabel() string { return f.container.activeLabel }

// SetActive points the container's active label at label.
func (f *ClaudeFile) SetActive(label string) {
	f.container.activeSet = true
	f.container.activeLabel = label
}

// ClearActive nulls out the active label.
func (f *ClaudeFile) ClearActive() {
	f.container.activeSet = true
	f.container.activeLabel = ""
}

// Find returns the account with the given label, or nil.
func (f *ClaudeFile) Find(label string) *ClaudeAccount {
	for _, acct := range f.Accounts {
		if acct.Label == label {
			return acct
		}
	}
	return nil
}

// Upsert replaces the account with the same label or appends a new one.
func (f *ClaudeFile) Upsert(acct *ClaudeAccount) {
	for i, existing := range f.Accounts {
		if existing.Label == acct.Label {
			f.Accounts[i] = acct
			return
		}
	}
	f.Accounts = append(f.Accounts, acct)
}

// Remove drops the account with the given label. Returns false when absent.
func (f *ClaudeFile) Remove(label string) bool {
	for i, acct := range f.Accounts {
		if acct.Label == label {
			f.Accounts = append(f.Accounts[:i], f.Accounts[i+1:]...)
			return true
		}
	}
	return false
}

// Save writes the container back with mode 0600.
func (f *ClaudeFile) Save() error {
	encoded := make([]map[string]any, 0, len(f.Accounts))
	for _, acct := range f.Accounts {
		encoded = append(encoded, acct.Encode())
	}

	root, bare := f.container.encode(encoded)
	var payload any = root
	if bare {
		payload = encoded
	}
	if err := fsutil.WriteJSONAtomic(f.Path, payload, fsutil.SecretMode); err != nil {
		return err
	}
	f.Exists = true
	return nil
}

// ParseCodexList decodes a bare list or {accounts:[...]} JSON blob (the
// CODEX_ACCOUNTS environment variable shape) into canonical accounts.
func ParseCodexList(data []byte, source string) ([]*CodexAccount, error) {
	parsed, err := parseContainer(data)
	if err != nil {
		return nil, err
	}
	var out []*CodexAccount
	for _, entry := range parsed.entries {
		if acct := DecodeCodexEntry(entry, source); acct != nil {
			out = append(out, acct)
		}
	}
	return out, nil
}

// ParseClaudeList decodes a bare list or {accounts:[...]} JSON blob (the
// CLAUDE_ACCOUNTS / CLAUDE_OAUTH_ACCOUNTS shapes) into canonical accounts.
func ParseClaudeList(data []byte, source string) ([]*ClaudeAccount, error) {
	parsed, err := parseContainer(data)
	if err != nil {
		return nil, err
	}
	var out []*ClaudeAccount
	for _, entry := range parsed.entries {
		if acct := DecodeClaudeEntry(entry, source); acct != nil {
			out = append(out, acct)
		}
	}
	return out, nil
}
