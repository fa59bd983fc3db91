// Package config resolves the credential file locations and environment
// overrides used across aiq. All of the documented environment variables are
// bound through viper so that an optional ~/.aiq/config.yaml can supply the
// same keys.
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Environment variables consumed by aiq. The names are part of the external
// interface and interoperate with other tools, so they are never renamed.
const (
	EnvCodexAccounts       = "CODEX_ACCOUNTS"
	EnvClaudeAccounts      = "CLAUDE_ACCOUNTS"
	EnvClaudeOAuthAccounts = "CLAUDE_OAUTH_ACCOUNTS"
	EnvCodexAuthPath       = "CODEX_AUTH_PATH"
	EnvClaudeCredsPath     = "CLAUDE_CREDENTIALS_PATH"
	EnvClaudeCookieDBPath  = "CLAUDE_COOKIE_DB_PATH"
	EnvXDGDataHome         = "XDG_DATA_HOME"
	EnvCodexHome           = "CODEX_HOME"
)

// Init wires viper up: explicit env bindings plus an optional config file at
// ~/.aiq/config.yaml. Missing config files are fine.
func Init() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.aiq")
	_ = viper.ReadInConfig()

	for key, env := range map[string]string{
		"codex_accounts":        EnvCodexAccounts,
		"claude_accounts":       EnvClaudeAccounts,
		"claude_oauth_accounts": EnvClaudeOAuthAccounts,
		"codex_auth_path":       EnvCodexAuthPath,
		"claude_creds_path":     EnvClaudeCredsPath,
		"claude_cookie_db_path": EnvClaudeCookieDBPath,
	} {
		_ = viper.BindEnv(key, env)
	}
}

func home() string {
	h, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return h
}

// CodexAccountsPath is the primary tool-owned Codex multi-account file.
func CodexAccountsPath() string {
	return filepath.Join(home(), ".aiq", "codex-accounts.json")
}

// CodexAccountsLegacyPath is the older home-rooted layout still read at load time.
func CodexAccountsLegacyPath() string {
	return filepath.Join(home(), ".codex-accounts.json")
}

// ClaudeAccountsPath is the primary tool-owned Claude multi-account file.
func ClaudeAccountsPath() string {
	return filepath.Join(home(), ".aiq", "claude-accounts.json")
}

// ClaudeAccountsLegacyPath is the older home-rooted layout still read at load time.
func ClaudeAccountsLegacyPath() string {
	return filepath.Join(home(), ".claude-accounts.json")
}

// CodexCLIAuthPath locates the Codex CLI auth file. Resolution order:
// CODEX_AUTH_PATH, $CODEX_HOME/auth.json, ~/.codex/auth.json.
func CodexCLIAuthPath() string {
	if p := viper.GetString("codex_auth_path"); p != "" {
		return p
	}
	if codexHome := os.Getenv(EnvCodexHome); codexHome != "" {
		return filepath.Join(codexHome, "auth.json")
	}
	return filepath.Join(home(), ".codex", "auth.json")
}

// OpenCodeAuthPath locates the opencode auth file under XDG data.
func OpenCodeAuthPath() string {
	if xdg := os.Getenv(EnvXDGDataHome); xdg != "" {
		return filepath.Join(xdg, "opencode", "auth.json")
	}
	return filepath.Join(home(), ".local", "share", "opencode", "auth.json")
}

// PiAuthPath locates the pi agent auth file.
func PiAuthPath() string {
	return filepath.Join(home(), ".pi", "agent", "auth.json")
}

// ClaudeCredentialsPath locates the Claude Code credentials file.
func ClaudeCredentialsPath() string {
	if p := viper.GetString("claude_creds_path"); p != "" {
		return p
	}
	return filepath.Join(home(), ".claude", ".credentials.json")
}

// ClaudeCookieDBPath returns the optional browser cookie database path.
// Empty when the legacy source is not configured.
func ClaudeCookieDBPath() string {
	return viper.GetString("claude_cookie_db_path")
}

// CodexAccountsEnv returns the raw CODEX_ACCOUNTS JSON, if set.
func CodexAccountsEnv() string {
	return viper.GetString("codex_accounts")
}

// ClaudeAccountsEnv returns the raw CLAUDE_ACCOUNTS JSON, if set.
func ClaudeAccountsEnv() string {
	return viper.GetString("claude_accounts")
}

// ClaudeOAuthAccountsEnv returns the raw CLAUDE_OAUTH_ACCOUNTS JSON, if set.
func ClaudeOAuthAccountsEnv() string {
	return viper.GetString("claude_oauth_accounts")
}
