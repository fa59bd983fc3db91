package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2/authhandler"
)

const (
	claudeClientID     = "9d1c250a-e61b-44d9-88ed-5944d1962f5e"
	claudeAuthorizeURL = "https://claude.ai/oauth/authorize"
	claudeTokenURL     = "https://console.anthropic.com/v1/oauth/token"
	claudeRedirectURI  = "https://console.anthropic.com/oauth/code/callback"
	claudeScope        = "org:create_api_key user:profile user:inference"
)

// ClaudeAuthURL builds the authorization URL for the paste flow. There is
// no loopback redirect; the vendor-hosted callback page displays the code
// for the user to paste back.
func ClaudeAuthURL(pkce *authhandler.PKCEParams, state string) string {
	query := url.Values{
		"response_type":         {"code"},
		"client_id":             {claudeClientID},
		"redirect_uri":          {claudeRedirectURI},
		"scope":                 {claudeScope},
		"code_challenge":        {pkce.Challenge},
		"code_challenge_method": {pkce.ChallengeMethod},
		"state":                 {state},
		"code":                  {"true"},
	}
	return claudeAuthorizeURL + "?" + encodeQuery(query)
}

// ParsePastedCode accepts the value the user pastes after authorizing:
// a bare code, "code#state", or the full callback URL. When a state is
// present it must match expectedState.
func ParsePastedCode(input, expectedState string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("empty authorization code")
	}

	var code, state string
	switch {
	case strings.Contains(input, "://"):
		u, err := url.Parse(input)
		if err != nil {
			return "", errors.Wrap(err, "failed to parse callback URL")
		}
		code = u.Query().Get("code")
		state = u.Query().Get("state")
		// Some callback pages put code#state in the code parameter.
		if i := strings.Index(code, "#"); i >= 0 {
			if state == "" {
				state = code[i+1:]
			}
			code = code[:i]
		}
	case strings.Contains(input, "#"):
		parts := strings.SplitN(input, "#", 2)
		code, state = parts[0], parts[1]
	default:
		code = input
	}

	if code == "" {
		return "", errors.New("no authorization code found in pasted value")
	}
	if state != "" && state != expectedState {
		return "", ErrStateMismatch
	}
	return code, nil
}

type claudeTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	Account      struct {
		EmailAddress string `json:"email_address"`
	} `json:"account"`
}

// ClaudeExchanger performs code and refresh exchanges against the Claude
// token endpoint. The endpoint takes JSON bodies, not form encoding.
type ClaudeExchanger struct {
	TokenURL string
	Client   *http.Client
}

// NewClaudeExchanger returns an exchanger bound to the production endpoint.
func NewClaudeExchanger() *ClaudeExchanger {
	return &ClaudeExchanger{TokenURL: claudeTokenURL, Client: http.DefaultClient}
}

// Exchange trades an authorization code for tokens.
func (e *ClaudeExchanger) Exchange(ctx context.Context, code, verifier, state string) (*Token, error) {
	payload := map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     claudeClientID,
		"code":          code,
		"state":         state,
		"redirect_uri":  claudeRedirectURI,
		"code_verifier": verifier,
	}
	return e.post(ctx, payload)
}

// Refresh trades a refresh token for a new token set. A response missing
// any of access_token, refresh_token, or expires_in is a failure.
func (e *ClaudeExchanger) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	payload := map[string]string{
		"grant_type":    "refresh_token",
		"client_id":     claudeClientID,
		"refresh_token": refreshToken,
	}
	return e.post(ctx, payload)
}

func (e *ClaudeExchanger) post(ctx context.Context, payload map[string]string) (*Token, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal token request")
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.TokenURL, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create token request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send token request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read token response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var tokenResp claudeTokenResponse
	if err := json.Unmarshal(respBody, &tokenResp); err != nil {
		return nil, errors.Wrap(err, "failed to parse token response")
	}
	if tokenResp.AccessToken == "" || tokenResp.RefreshToken == "" || tokenResp.ExpiresIn == 0 {
		return nil, errors.New("token response missing required fields")
	}

	return &Token{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		ExpiresAt:    time.Now().UnixMilli() + tokenResp.ExpiresIn*1000,
		Email:        tokenResp.Account.EmailAddress,
		Scope:        tokenResp.Scope,
	}, nil
}
