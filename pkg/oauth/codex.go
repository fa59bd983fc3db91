package oauth

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	"golang.org/x/oauth2/authhandler"

	"github.com/aiq-dev/aiq/pkg/jwtutil"
)

const (
	codexClientID     = "app_EMoamEEZ73f0CkXaXp7hrann"
	codexAuthorizeURL = "https://auth.openai.com/oauth/authorize"
	codexTokenURL     = "https://auth.openai.com/oauth/token"
	codexRedirectURI  = "http://localhost:1455/auth/callback"
	codexScope        = "openid profile email offline_access"

	// CodexOriginator identifies the client on authorize and usage calls.
	// Kept bit-exact for compatibility with the Codex CLI backend.
	CodexOriginator = "codex_cli_rs"

	codexCallbackAddr = "127.0.0.1:1455"
	codexCallbackPath = "/auth/callback"

	// CallbackDeadline bounds the whole browser round-trip.
	CallbackDeadline = 120 * time.Second

	exchangeAttempts = 3
)

// CodexAuthURL builds the authorization URL for the given PKCE pair and
// state. Spaces in the scope are percent-encoded.
func CodexAuthURL(pkce *authhandler.PKCEParams, state string) string {
	query := url.Values{
		"response_type":              {"code"},
		"client_id":                  {codexClientID},
		"redirect_uri":               {codexRedirectURI},
		"scope":                      {codexScope},
		"code_challenge":             {pkce.Challenge},
		"code_challenge_method":      {pkce.ChallengeMethod},
		"state":                      {state},
		"id_token_add_organizations": {"true"},
		"codex_cli_simplified_flow":  {"true"},
		"originator":                 {CodexOriginator},
	}
	return codexAuthorizeURL + "?" + encodeQuery(query)
}

// ProbeCallbackPort checks that the loopback port can be bound before the
// browser is opened, so the user is not sent through a login that can never
// complete.
func ProbeCallbackPort() error {
	ln, err := net.Listen("tcp", codexCallbackAddr)
	if err != nil {
		return errors.Wrap(ErrPortBusy, err.Error())
	}
	return ln.Close()
}

type callbackResult struct {
	code string
	err  error
}

// CallbackServer is a one-shot loopback HTTP server that resolves a single
// authorization callback.
type CallbackServer struct {
	expectedState string
	server        *http.Server
	listener      net.Listener

	once sync.Once
	done chan callbackResult
}

// StartCallbackServer binds 127.0.0.1:1455 and begins serving. The caller
// must call Close when done.
func StartCallbackServer(expectedState string) (*CallbackServer, error) {
	ln, err := net.Listen("tcp", codexCallbackAddr)
	if err != nil {
		return nil, errors.Wrap(ErrPortBusy, err.Error())
	}

	s := &CallbackServer{
		expectedState: expectedState,
		listener:      ln,
		done:          make(chan callbackResult, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(codexCallbackPath, s.handleCallback)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go s.server.Serve(ln) //nolint:errcheck

	return s, nil
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if errParam := query.Get("error"); errParam != "" {
		desc := query.Get("error_description")
		writeHTML(w, http.StatusBadRequest, errorPage(errParam, desc))
		s.resolve(callbackResult{err: errors.Wrapf(ErrAuthDenied, "%s: %s", errParam, desc)})
		return
	}

	code := query.Get("code")
	if code == "" {
		writeHTML(w, http.StatusBadRequest, errorPage("missing_code", "no authorization code in callback"))
		s.resolve(callbackResult{err: errors.New("callback missing authorization code")})
		return
	}

	state := query.Get("state")
	if state == "" {
		writeHTML(w, http.StatusBadRequest, errorPage("missing_state", "no state in callback"))
		s.resolve(callbackResult{err: errors.New("callback missing state")})
		return
	}
	if state != s.expectedState {
		writeHTML(w, http.StatusBadRequest, errorPage("state_mismatch", "state does not match this login attempt"))
		s.resolve(callbackResult{err: ErrStateMismatch})
		return
	}

	writeHTML(w, http.StatusOK, successPage)
	s.resolve(callbackResult{code: code})
}

func (s *CallbackServer) resolve(res callbackResult) {
	s.once.Do(func() { s.done <- res })
}

// AcceptOne waits for the single callback. It enforces the 120-second
// deadline and treats context cancellation (SIGINT) as a clean abort.
func (s *CallbackServer) AcceptOne(ctx context.Context) (string, error) {
	timer := time.NewTimer(CallbackDeadline)
	defer timer.Stop()

	select {
	case res := <-s.done:
		return res.code, res.err
	case <-timer.C:
		return "", errors.New("timed out waiting for the authorization callback")
	case <-ctx.Done():
		return "", ErrCancelled
	}
}

// Close shuts the server down.
func (s *CallbackServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body)) //nolint:errcheck
}

const successPage = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Authentication successful</title>
</head>
<body onload="setTimeout(function(){window.close()},1500)">
  <p>Authentication successful. Return to your terminal to continue.</p>
</body>
</html>`

func errorPage(code, desc string) string {
	var b strings.Builder
	b.WriteString(`<!doctype html><html lang="en"><head><meta charset="utf-8" /><title>Authentication failed</title></head><body><p>Authentication failed: `)
	b.WriteString(htmlEscape(code))
	if desc != "" {
		b.WriteString(" (")
		b.WriteString(htmlEscape(desc))
		b.WriteString(")")
	}
	b.WriteString(`</p></body></html>`)
	return b.String()
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}

type codexTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// CodexExchanger performs code and refresh exchanges against the Codex
// token endpoint. TokenURL is overridable for tests.
type CodexExchanger struct {
	TokenURL string
	Client   *http.Client
}

// NewCodexExchanger returns an exchanger bound to the production endpoint.
func NewCodexExchanger() *CodexExchanger {
	return &CodexExchanger{TokenURL: codexTokenURL, Client: http.DefaultClient}
}

// Exchange trades an authorization code for tokens. Transient network
// failures are retried; HTTP errors and incomplete payloads are not.
func (e *CodexExchanger) Exchange(ctx context.Context, code, verifier string) (*Token, error) {
	data := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {codexClientID},
		"code":          {code},
		"code_verifier": {verifier},
		"redirect_uri":  {codexRedirectURI},
	}

	var token *Token
	err := retry.Do(
		func() error {
			var err error
			token, err = e.post(ctx, data)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(exchangeAttempts),
		retry.Delay(500*time.Millisecond),
		retry.RetryIf(isNetworkError),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return token, nil
}

// Refresh trades a refresh token for a new token set. A response missing
// any of access_token, refresh_token, or expires_in is a failure. Never
// retried.
func (e *CodexExchanger) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {codexClientID},
	}
	return e.post(ctx, data)
}

func (e *CodexExchanger) post(ctx context.Context, data url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", e.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send token request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read token response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp codexTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, errors.Wrap(err, "failed to parse token response")
	}
	if tokenResp.AccessToken == "" || tokenResp.RefreshToken == "" || tokenResp.ExpiresIn == 0 {
		return nil, errors.New("token response missing required fields")
	}

	token := &Token{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		IDToken:      tokenResp.IDToken,
		ExpiresAt:    time.Now().UnixMilli() + tokenResp.ExpiresIn*1000,
	}
	if payload := jwtutil.Decode(tokenResp.AccessToken); payload != nil {
		token.AccountID = payload.AccountID
		token.Email = payload.Email
	}
	if token.Email == "" {
		if payload := jwtutil.Decode(tokenResp.IDToken); payload != nil {
			token.Email = payload.Email
		}
	}
	return token, nil
}
