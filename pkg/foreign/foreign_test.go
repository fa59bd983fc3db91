package foreign

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiq-dev/aiq/pkg/account"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func readJSON(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestCodexCLIStore(t *testing.T) {
	t.Run("read converts expiry to milliseconds", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "auth.json")
		writeFile(t, path, `{
			"tokens": {"access_token": "at", "refresh_token": "rt", "account_id": "acc_1", "expires_at": 1700000000},
			"OPENAI_API_KEY": "sk-xyz",
			"codex_quota_label": "work"
		}`)

		store := Store{Name: KindCodexCLI, Path: path, Vendor: account.VendorCodex}
		tokens, exists, err := store.Read()
		require.NoError(t, err)
		require.True(t, exists)
		assert.Equal(t, "at", tokens.Access)
		assert.Equal(t, "rt", tokens.Refresh)
		assert.Equal(t, "acc_1", tokens.AccountID)
		assert.Equal(t, int64(1700000000000), tokens.ExpiresAt)
		assert.Equal(t, "work", tokens.QuotaLabel)
	})

	t.Run("update preserves root siblings", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "auth.json")
		writeFile(t, path, `{
			"tokens": {"access_token": "old", "refresh_token": "r_old", "id_token": "keep_id"},
			"OPENAI_API_KEY": "sk-xyz"
		}`)

		store := Store{Name: KindCodexCLI, Path: path, Vendor: account.VendorCodex}
		res := store.Update(&Tokens{
			Access: "new", Refresh: "r_new", AccountID: "acc_2",
			ExpiresAt: 1700000000000, QuotaLabel: "work",
		}, false)
		require.NoError(t, res.Err)
		assert.True(t, res.Updated)

		root := readJSON(t, path)
		assert.Equal(t, "sk-xyz", root["OPENAI_API_KEY"])
		assert.Equal(t, "work", root["codex_quota_label"])
		assert.NotEmpty(t, root["last_refresh"])

		slot := root["tokens"].(map[string]any)
		assert.Equal(t, "new", slot["access_token"])
		assert.Equal(t, "r_new", slot["refresh_token"])
		assert.Equal(t, "acc_2", slot["account_id"])
		assert.Equal(t, float64(1700000000), slot["expires_at"], "written as epoch seconds")
		assert.Equal(t, "keep_id", slot["id_token"], "untouched slot fields survive")
	})

	t.Run("missing file skipped unless create", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "auth.json")
		store := Store{Name: KindCodexCLI, Path: path, Vendor: account.VendorCodex}

		res := store.Update(&Tokens{Access: "a", Refresh: "r"}, false)
		assert.True(t, res.Skipped)
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err))

		res = store.Update(&Tokens{Access: "a", Refresh: "r", ExpiresAt: 1000}, true)
		require.NoError(t, res.Err)
		assert.True(t, res.Updated)

		root := readJSON(t, path)
		assert.Equal(t, "a", root["tokens"].(map[string]any)["access_token"])
	})
}

func TestOpenCodeStore(t *testing.T) {
	t.Run("sibling providers preserved", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "auth.json")
		writeFile(t, path, `{
			"openai": {"type": "oauth", "access": "old"},
			"anthropic": {"type": "api", "key": "k1"},
			"openrouter": {"type": "api", "key": "k2"}
		}`)

		store := Store{Name: KindOpenCode, Path: path, Vendor: account.VendorCodex}
		res := store.Update(&Tokens{Access: "new", Refresh: "r1", ExpiresAt: 1700000000000, AccountID: "acc_X"}, false)
		require.NoError(t, res.Err)
		require.True(t, res.Updated)

		root := readJSON(t, path)
		slot := root["openai"].(map[string]any)
		assert.Equal(t, "oauth", slot["type"])
		assert.Equal(t, "new", slot["access"])
		assert.Equal(t, "acc_X", slot["accountId"])
		assert.Equal(t, float64(1700000000000), slot["expires"])

		assert.Equal(t, map[string]any{"type": "api", "key": "k1"}, root["anthropic"])
		assert.Equal(t, map[string]any{"type": "api", "key": "k2"}, root["openrouter"])
	})

	t.Run("vendor B slot has no accountId", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "auth.json")
		writeFile(t, path, `{"anthropic": {"type": "oauth", "access": "old"}}`)

		store := Store{Name: KindOpenCode, Path: path, Vendor: account.VendorClaude}
		res := store.Update(&Tokens{Access: "new", Refresh: "r1", ExpiresAt: 5, AccountID: "ignored"}, false)
		require.NoError(t, res.Err)

		slot := readJSON(t, path)["anthropic"].(map[string]any)
		assert.Equal(t, "new", slot["access"])
		_, hasAccountID := slot["accountId"]
		assert.False(t, hasAccountID)
	})

	t.Run("symlinked store writes through", func(t *testing.T) {
		dir := t.TempDir()
		real := filepath.Join(dir, "real.json")
		link := filepath.Join(dir, "auth.json")
		writeFile(t, real, `{"openai": {"type": "oauth", "access": "old"}}`)
		require.NoError(t, os.Symlink(real, link))

		store := Store{Name: KindOpenCode, Path: link, Vendor: account.VendorCodex}
		res := store.Update(&Tokens{Access: "new", Refresh: "r1", ExpiresAt: 5}, false)
		require.NoError(t, res.Err)

		// Link still in place; target updated.
		info, err := os.Lstat(link)
		require.NoError(t, err)
		assert.NotZero(t, info.Mode()&os.ModeSymlink)
		assert.Equal(t, "new", readJSON(t, real)["openai"].(map[string]any)["access"])
	})

	t.Run("non-object root rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "auth.json")
		writeFile(t, path, `["not", "an", "object"]`)

		store := Store{Name: KindOpenCode, Path: path, Vendor: account.VendorCodex}
		res := store.Update(&Tokens{Access: "a"}, false)
		assert.Error(t, res.Err)
		assert.False(t, res.Updated)
	})
}

func TestClaudeCodeStore(t *testing.T) {
	t.Run("camelCase slot", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".credentials.json")
		writeFile(t, path, `{
			"claudeAiOauth": {
				"accessToken": "old", "refreshToken": "r_old",
				"expiresAt": 1, "scopes": ["user:inference"],
				"subscriptionType": "max"
			}
		}`)

		store := Store{Name: KindClaudeCode, Path: path, Vendor: account.VendorClaude}

		tokens, exists, err := store.Read()
		require.NoError(t, err)
		require.True(t, exists)
		assert.Equal(t, "old", tokens.Access)
		assert.Equal(t, []string{"user:inference"}, tokens.Scopes)

		res := store.Update(&Tokens{Access: "new", Refresh: "r_new", ExpiresAt: 1700000000000}, false)
		require.NoError(t, res.Err)

		slot := readJSON(t, path)["claudeAiOauth"].(map[string]any)
		assert.Equal(t, "new", slot["accessToken"])
		assert.Equal(t, "r_new", slot["refreshToken"])
		assert.Equal(t, float64(1700000000000), slot["expiresAt"])
		assert.Equal(t, []any{"user:inference"}, slot["scopes"], "scopes kept when new tokens omit them")
		assert.Equal(t, "max", slot["subscriptionType"])
	})

	t.Run("snake_case slot written back snake", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".credentials.json")
		writeFile(t, path, `{
			"claudeAiOauth": {"access_token": "old", "refresh_token": "r_old", "expires_at": 1}
		}`)

		store := Store{Name: KindClaudeCode, Path: path, Vendor: account.VendorClaude}
		res := store.Update(&Tokens{Access: "new", Refresh: "r_new", ExpiresAt: 9}, false)
		require.NoError(t, res.Err)

		slot := readJSON(t, path)["claudeAiOauth"].(map[string]any)
		assert.Equal(t, "new", slot["access_token"])
		assert.Equal(t, "r_new", slot["refresh_token"])
		assert.Equal(t, float64(9), slot["expires_at"])
		_, hasCamel := slot["accessToken"]
		assert.False(t, hasCamel)
	})
}

func TestQuotaLabelMarker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	writeFile(t, path, `{"tokens": {"access_token": "at"}, "codex_quota_label": "work", "OPENAI_API_KEY": "k"}`)
	store := Store{Name: KindCodexCLI, Path: path, Vendor: account.VendorCodex}

	assert.Equal(t, "work", store.QuotaLabel())

	t.Run("clear with non-matching label is a no-op", func(t *testing.T) {
		res := store.ClearQuotaLabel("other")
		assert.True(t, res.Skipped)
		assert.Equal(t, "work", store.QuotaLabel())
	})

	t.Run("clear removes only the marker", func(t *testing.T) {
		res := store.ClearQuotaLabel("work")
		require.NoError(t, res.Err)
		assert.True(t, res.Updated)

		root := readJSON(t, path)
		_, hasMarker := root["codex_quota_label"]
		assert.False(t, hasMarker)
		assert.Equal(t, "k", root["OPENAI_API_KEY"])
		assert.NotNil(t, root["tokens"])
	})

	t.Run("set writes the marker", func(t *testing.T) {
		res := store.SetQuotaLabel("personal")
		require.NoError(t, res.Err)
		assert.Equal(t, "personal", store.QuotaLabel())
	})
}

func TestUpdateFileMode(t *testing.T) {
	t.Run("existing permissions are preserved", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "auth.json")
		writeFile(t, path, `{"tokens": {"access_token": "old"}}`)
		require.NoError(t, os.Chmod(path, 0o644))

		store := Store{Name: KindCodexCLI, Path: path, Vendor: account.VendorCodex}
		res := store.Update(&Tokens{Access: "new", Refresh: "rt"}, false)
		require.NoError(t, res.Err)
		require.True(t, res.Updated)

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
	})

	t.Run("created files default to 0600", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "auth.json")

		store := Store{Name: KindCodexCLI, Path: path, Vendor: account.VendorCodex}
		res := store.Update(&Tokens{Access: "new", Refresh: "rt"}, true)
		require.NoError(t, res.Err)
		require.True(t, res.Updated)

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})
}

func TestStoresTable(t *testing.T) {
	codex := Stores(account.VendorCodex)
	require.Len(t, codex, 2)
	assert.Equal(t, KindCodexCLI, codex[0].Name)

	claude := Stores(account.VendorClaude)
	require.Len(t, claude, 3)
	for _, s := range claude {
		assert.Equal(t, account.VendorClaude, s.Vendor)
	}
}
