package oauth

import (
	"errors"
	"net"
	"net/url"
)

// Token is the normalized result of a code or refresh exchange for either
// vendor. ExpiresAt is an absolute millisecond timestamp.
type Token struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	ExpiresAt    int64
	AccountID    string
	Email        string
	Scope        string
}

// Sentinel errors the command layer matches on for user-facing messaging.
var (
	// ErrPortBusy means the loopback callback port could not be bound.
	ErrPortBusy = errors.New("callback port 1455 is already in use")
	// ErrCancelled means the user interrupted the flow before the callback.
	ErrCancelled = errors.New("authentication cancelled")
	// ErrStateMismatch means the callback carried a state value that does
	// not match the one sent to the authorize endpoint.
	ErrStateMismatch = errors.New("state mismatch, possible CSRF")
	// ErrAuthDenied means the provider returned an error on the callback.
	ErrAuthDenied = errors.New("authorization denied by provider")
)

// isNetworkError reports whether err is a transport-level failure worth
// retrying, as opposed to an HTTP status or payload problem.
func isNetworkError(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
