package usage

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/pkg/errors"

	"github.com/aiq-dev/aiq/pkg/account"
)

// RateLimitStats holds the unified rate-limit windows reported by the
// Anthropic API response headers.
type RateLimitStats struct {
	Status5h      string
	Utilization5h float64
	Reset5h       time.Time

	Status7d      string
	Utilization7d float64
	Reset7d       time.Time
}

// ProbeRateLimits issues a minimal one-token Messages request with the
// account's OAuth token and reads the Anthropic-Ratelimit-Unified-* headers.
// Used when the OAuth usage endpoint is unavailable for an account.
func ProbeRateLimits(ctx context.Context, acct *account.ClaudeAccount, extraOpts ...option.RequestOption) (*RateLimitStats, error) {
	if acct.OAuthToken == "" {
		return nil, errors.New("account has no OAuth token")
	}

	var captured http.Header
	mw := func(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
		resp, err := next(req)
		if resp != nil {
			captured = resp.Header.Clone()
		}
		return resp, err
	}

	opts := []option.RequestOption{
		option.WithAuthToken(acct.OAuthToken),
		option.WithHeader("anthropic-beta", anthropicBetaHeader),
		option.WithHeaderDel("X-Api-Key"),
		option.WithMiddleware(mw),
	}
	opts = append(opts, extraOpts...)
	client := anthropic.NewClient(opts...)

	_, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.ModelClaudeHaiku4_5_20251001,
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("hi")),
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "rate limit probe request failed")
	}

	stats := &RateLimitStats{
		Status5h: captured.Get("Anthropic-Ratelimit-Unified-5h-Status"),
		Status7d: captured.Get("Anthropic-Ratelimit-Unified-7d-Status"),
	}
	if v := captured.Get("Anthropic-Ratelimit-Unified-5h-Utilization"); v != "" {
		stats.Utilization5h, _ = strconv.ParseFloat(v, 64)
	}
	if v := captured.Get("Anthropic-Ratelimit-Unified-7d-Utilization"); v != "" {
		stats.Utilization7d, _ = strconv.ParseFloat(v, 64)
	}
	if v := captured.Get("Anthropic-Ratelimit-Unified-5h-Reset"); v != "" {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			stats.Reset5h = time.Unix(ts, 0)
		}
	}
	if v := captured.Get("Anthropic-Ratelimit-Unified-7d-Reset"); v != "" {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			stats.Reset7d = time.Unix(ts, 0)
		}
	}
	return stats, nil
}
