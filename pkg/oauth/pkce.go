// Package oauth implements the authorization-code + PKCE flows for both
// vendors: PKCE material, authorize-URL construction, the one-shot loopback
// callback server (Codex), the paste-the-code variant (Claude), and the
// code and refresh token exchanges.
package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"net/url"
	"strings"

	"golang.org/x/oauth2/authhandler"
)

// GeneratePKCE produces a fresh RFC 7636 verifier/challenge pair. The
// verifier is 32 random bytes base64url-encoded without padding (43 chars),
// the challenge its S256 digest in the same encoding.
func GeneratePKCE() *authhandler.PKCEParams {
	verifier := randomURLSafe(32)
	sum := sha256.Sum256([]byte(verifier))
	return &authhandler.PKCEParams{
		Verifier:        verifier,
		Challenge:       base64.RawURLEncoding.EncodeToString(sum[:]),
		ChallengeMethod: "S256",
	}
}

// GenerateState produces the CSRF state value: 32 random bytes hex-encoded.
func GenerateState() string {
	data := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, data); err != nil {
		panic(err)
	}
	return hex.EncodeToString(data)
}

func randomURLSafe(n int) string {
	data := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, data); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// encodeQuery renders query values with spaces as %20 rather than +. The
// authorize endpoints of both vendors expect percent encoding in the scope
// parameter.
func encodeQuery(values url.Values) string {
	return strings.ReplaceAll(values.Encode(), "+", "%20")
}
