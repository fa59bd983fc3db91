// Package syncer reconciles the tool-owned active account with what each
// foreign store currently holds. Detection classifies every store into a
// small state machine; sync executes pull-then-push so that a token
// refreshed by another tool is adopted before the active tokens are pushed
// out.
package syncer

import (
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/aiq-dev/aiq/pkg/account"
	"github.com/aiq-dev/aiq/pkg/foreign"
	"github.com/aiq-dev/aiq/pkg/jwtutil"
)

// StoreState classifies one foreign store relative to the active account.
type StoreState string

const (
	StateAbsent         StoreState = "absent"
	StateAligned        StoreState = "aligned"
	StatePullCandidate  StoreState = "pull-candidate"
	StatePushCandidate  StoreState = "push-candidate"
	StateForeignAccount StoreState = "foreign-account"
)

// PullThreshold is how much later a foreign store's expiry must be before
// its tokens are adopted. Prevents ping-ponging on clock skew.
const PullThreshold = 60 * time.Second

// Divergence is the vendor-A detection result for the foreign CLI store.
type Divergence struct {
	Diverged     bool   `json:"diverged"`
	Kind         string `json:"kind,omitempty"`
	CLIAccountID string `json:"cliAccountId,omitempty"`
	Marker       string `json:"marker,omitempty"`
}

const (
	// DivergedNative means the user logged in through the foreign tool
	// directly; there is no quota-label marker.
	DivergedNative = "diverged-native"
	// DivergedManaged means another session switched; the marker names a
	// different label.
	DivergedManaged = "diverged-managed"
)

// DetectCodexDivergence compares the active account's identity against the
// Codex CLI auth file.
func DetectCodexDivergence(active *account.CodexAccount, cli foreign.Store) *Divergence {
	div := &Divergence{}
	if active == nil {
		return div
	}

	tokens, exists, err := cli.Read()
	if err != nil || !exists || tokens.Access == "" {
		return div
	}

	cliAccountID := tokens.AccountID
	if payload := jwtutil.Decode(tokens.Access); payload != nil && payload.AccountID != "" {
		cliAccountID = payload.AccountID
	}
	div.CLIAccountID = cliAccountID
	div.Marker = tokens.QuotaLabel

	if cliAccountID == "" || cliAccountID == active.AccountID {
		return div
	}

	div.Diverged = true
	if tokens.QuotaLabel == "" {
		div.Kind = DivergedNative
	} else if tokens.QuotaLabel != active.Label {
		div.Kind = DivergedManaged
	} else {
		// Marker claims our label but the identity differs; treat like a
		// native login that clobbered the tokens.
		div.Kind = DivergedNative
	}
	return div
}

// PlanEntry is one store that would change, with a terse reason.
type PlanEntry struct {
	Store  foreign.Kind `json:"store"`
	Path   string       `json:"path"`
	State  StoreState   `json:"state"`
	Reason string       `json:"reason"`
}

// Result reports an executed (or planned) sync.
type Result struct {
	Plan         []PlanEntry
	Pulled       bool
	UpdatedPaths []string
	Errors       *multierror.Error
}

// Syncer executes pull-then-push reconciliation. Stores and Now are
// injectable for tests.
type Syncer struct {
	Stores func(vendor account.Vendor) []foreign.Store
	Now    func() time.Time
}

// New returns a syncer over the discovered foreign stores.
func New() *Syncer {
	return &Syncer{}
}

func (s *Syncer) stores(vendor account.Vendor) []foreign.Store {
	if s.Stores != nil {
		return s.Stores(vendor)
	}
	return foreign.Stores(vendor)
}

func (s *Syncer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// codexStoreState classifies one vendor-A store.
func (s *Syncer) codexStoreState(store foreign.Store, active *account.CodexAccount) (StoreState, *foreign.Tokens) {
	tokens, exists, err := store.Read()
	if err != nil || !exists {
		return StateAbsent, nil
	}
	if tokens.Access == "" && tokens.Refresh == "" {
		return StatePushCandidate, tokens
	}
	if tokens.Refresh != active.RefreshToken {
		if sameCodexIdentity(tokens, active) {
			return StatePushCandidate, tokens
		}
		return StateForeignAccount, tokens
	}
	if tokens.ExpiresAt >= active.ExpiresAt+PullThreshold.Milliseconds() {
		return StatePullCandidate, tokens
	}
	if tokens.Access != active.AccessToken {
		return StatePushCandidate, tokens
	}
	return StateAligned, tokens
}

func sameCodexIdentity(tokens *foreign.Tokens, active *account.CodexAccount) bool {
	id := tokens.AccountID
	if payload := jwtutil.Decode(tokens.Access); payload != nil && payload.AccountID != "" {
		id = payload.AccountID
	}
	return id != "" && id == active.AccountID
}

// SyncCodex reconciles every vendor-A store with the active account.
// With dryRun set the plan is computed and returned without side effects.
// createCLI lets a missing Codex CLI auth file be created; only the switch
// path sets it, a plain sync never brings a store into existence.
func (s *Syncer) SyncCodex(active *account.CodexAccount, file *account.CodexFile, dryRun, createCLI bool) *Result {
	res := &Result{}
	if active == nil {
		return res
	}
	stores := s.stores(account.VendorCodex)

	// Pull phase: adopt the freshest mirrored copy first so the push does
	// not clobber a token another tool already rotated.
	var pullFrom *foreign.Tokens
	states := make(map[string]StoreState, len(stores))
	for _, store := range stores {
		state, tokens := s.codexStoreState(store, active)
		states[store.Path] = state
		switch state {
		case StateAbsent:
			if createCLI && store.Name == foreign.KindCodexCLI {
				res.Plan = append(res.Plan, PlanEntry{Store: store.Name, Path: store.Path,
					State: state, Reason: "auth file will be created"})
			}
		case StatePullCandidate:
			res.Plan = append(res.Plan, PlanEntry{Store: store.Name, Path: store.Path,
				State: state, Reason: "foreign copy has a later expiry"})
			if pullFrom == nil || tokens.ExpiresAt > pullFrom.ExpiresAt {
				pullFrom = tokens
			}
		case StatePushCandidate:
			res.Plan = append(res.Plan, PlanEntry{Store: store.Name, Path: store.Path,
				State: state, Reason: "tokens differ from the active account"})
		case StateForeignAccount:
			res.Plan = append(res.Plan, PlanEntry{Store: store.Name, Path: store.Path,
				State: state, Reason: "store holds a different account"})
		}
	}
	if dryRun {
		return res
	}

	if pullFrom != nil {
		active.AccessToken = pullFrom.Access
		active.RefreshToken = pullFrom.Refresh
		active.ExpiresAt = pullFrom.ExpiresAt
		active.UpdatedAt = s.now().UnixMilli()
		res.Pulled = true

		if file != nil {
			file.Upsert(active)
			if err := file.Save(); err != nil {
				res.Errors = multierror.Append(res.Errors, err)
			} else {
				res.UpdatedPaths = append(res.UpdatedPaths, file.Path)
			}
		}
	}

	// Push phase: every store receives the active tokens plus the marker.
	// Only the codex-cli store may be created when missing, and only when
	// the caller allows it.
	tokens := &foreign.Tokens{
		Access:     active.AccessToken,
		Refresh:    active.RefreshToken,
		IDToken:    active.IDToken,
		ExpiresAt:  active.ExpiresAt,
		AccountID:  active.AccountID,
		QuotaLabel: active.Label,
	}
	for _, store := range stores {
		if states[store.Path] == StateAligned && !res.Pulled {
			continue
		}
		create := createCLI && store.Name == foreign.KindCodexCLI
		r := store.Update(tokens, create)
		if r.Err != nil {
			res.Errors = multierror.Append(res.Errors, r.Err)
			continue
		}
		if r.Updated {
			res.UpdatedPaths = append(res.UpdatedPaths, r.Path)
		}
	}
	return res
}

// claudeStoreState classifies one vendor-B store by refresh-token identity.
func (s *Syncer) claudeStoreState(store foreign.Store, active *account.ClaudeAccount) (StoreState, *foreign.Tokens) {
	tokens, exists, err := store.Read()
	if err != nil || !exists || (tokens.Access == "" && tokens.Refresh == "") {
		return StateAbsent, nil
	}
	if tokens.Refresh != active.OAuthRefreshToken {
		return StateForeignAccount, tokens
	}
	if tokens.ExpiresAt >= active.OAuthExpiresAt+PullThreshold.Milliseconds() {
		return StatePullCandidate, tokens
	}
	if tokens.Access != active.OAuthToken {
		return StatePushCandidate, tokens
	}
	return StateAligned, tokens
}

// SyncClaude reconciles every vendor-B store holding the active account.
// Stores holding a different account are reported, never overwritten: the
// user may deliberately run different accounts in different tools.
func (s *Syncer) SyncClaude(active *account.ClaudeAccount, file *account.ClaudeFile, dryRun bool) *Result {
	res := &Result{}
	if active == nil || !active.SyncCapable() {
		return res
	}
	stores := s.stores(account.VendorClaude)

	var pullFrom *foreign.Tokens
	states := make(map[string]StoreState, len(stores))
	for _, store := range stores {
		state, tokens := s.claudeStoreState(store, active)
		states[store.Path] = state
		switch state {
		case StatePullCandidate:
			res.Plan = append(res.Plan, PlanEntry{Store: store.Name, Path: store.Path,
				State: state, Reason: "foreign copy has a later expiry"})
			if pullFrom == nil || tokens.ExpiresAt > pullFrom.ExpiresAt {
				pullFrom = tokens
			}
		case StatePushCandidate:
			res.Plan = append(res.Plan, PlanEntry{Store: store.Name, Path: store.Path,
				State: state, Reason: "tokens differ from the active account"})
		case StateForeignAccount:
			res.Plan = append(res.Plan, PlanEntry{Store: store.Name, Path: store.Path,
				State: state, Reason: "store holds a different account"})
		}
	}
	if dryRun {
		return res
	}

	if pullFrom != nil {
		active.OAuthToken = pullFrom.Access
		active.OAuthRefreshToken = pullFrom.Refresh
		active.OAuthExpiresAt = pullFrom.ExpiresAt
		res.Pulled = true

		if file != nil {
			file.Upsert(active)
			if err := file.Save(); err != nil {
				res.Errors = multierror.Append(res.Errors, err)
			} else {
				res.UpdatedPaths = append(res.UpdatedPaths, file.Path)
			}
		}
	}

	tokens := &foreign.Tokens{
		Access:    active.OAuthToken,
		Refresh:   active.OAuthRefreshToken,
		ExpiresAt: active.OAuthExpiresAt,
		Scopes:    active.OAuthScopes,
	}
	for _, store := range stores {
		switch states[store.Path] {
		case StateAbsent, StateForeignAccount:
			continue
		case StateAligned:
			if !res.Pulled {
				continue
			}
		}
		r := store.Update(tokens, false)
		if r.Err != nil {
			res.Errors = multierror.Append(res.Errors, r.Err)
			continue
		}
		if r.Updated {
			res.UpdatedPaths = append(res.UpdatedPaths, r.Path)
		}
	}
	return res
}

// RemoveCleanup clears the quota-label markers a removed account left in
// vendor-A stores. Failures are warnings collected on the result.
func (s *Syncer) RemoveCleanup(label string) *Result {
	res := &Result{}
	for _, store := range s.stores(account.VendorCodex) {
		if store.Name != foreign.KindCodexCLI {
			continue
		}
		r := store.ClearQuotaLabel(label)
		if r.Err != nil {
			res.Errors = multierror.Append(res.Errors, r.Err)
			continue
		}
		if r.Updated {
			res.UpdatedPaths = append(res.UpdatedPaths, r.Path)
		}
	}
	return res
}
