package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/aiq-dev/aiq/pkg/presenter"
	"github.com/aiq-dev/aiq/pkg/render"
	"github.com/aiq-dev/aiq/pkg/usage"
)

func outputJSON(v any) {
	if err := render.JSON(os.Stdout, v); err != nil {
		presenter.Error(err, "Failed to encode JSON output")
		os.Exit(1)
	}
}

func outputJSONError(message string) {
	outputJSON(map[string]string{"error": message})
}

// anyFailed reports whether any usage result carries an error. Failed
// results exit non-zero in both output modes.
func anyFailed(results []*usage.Result) bool {
	for _, res := range results {
		if !res.OK {
			return true
		}
	}
	return false
}

// tokenStatus classifies an absolute-millisecond expiry the way the list
// commands display it.
func tokenStatus(expiresAtMS int64) string {
	if expiresAtMS == 0 {
		return "unknown"
	}
	now := time.Now().UnixMilli()
	if expiresAtMS > now+(10*time.Minute).Milliseconds() {
		return "valid"
	}
	if expiresAtMS > now {
		return "needs refresh"
	}
	return "expired"
}

// The Claude usage payload reports four rolling windows.
var usageWindows = []struct {
	key   string
	title string
}{
	{"five_hour", "5h"},
	{"seven_day", "7d"},
	{"seven_day_opus", "7d opus"},
	{"seven_day_oauth_apps", "7d apps"},
}

func printUsageResults(results []*usage.Result) {
	for _, res := range results {
		fmt.Print(renderUsageResult(res))
	}
}

func renderUsageResult(res *usage.Result) string {
	var lines []string
	if res.Source != "" {
		lines = append(lines, "source: "+res.Source)
	}
	if !res.OK {
		lines = append(lines, "error: "+res.Error)
		return render.Box(res.Label, lines)
	}
	lines = append(lines, usageLines(res.Payload)...)
	for name, msg := range res.SubErrors {
		lines = append(lines, fmt.Sprintf("%s: %s", name, msg))
	}
	return render.Box(res.Label, lines)
}

func usageLines(payload map[string]any) []string {
	var lines []string

	if plan, ok := payload["plan_type"].(string); ok && plan != "" {
		lines = append(lines, "plan: "+plan)
	}

	for _, w := range usageWindows {
		window, ok := payload[w.key].(map[string]any)
		if !ok {
			continue
		}
		u, ok := window["utilization"].(float64)
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("%-8s %s", w.title, render.Bar(asFraction(u), render.DefaultBarWidth)))
	}

	// Codex reports named rate-limit windows with a used percentage.
	if rateLimits, ok := payload["rate_limits"].(map[string]any); ok {
		keys := make([]string, 0, len(rateLimits))
		for key := range rateLimits {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			window, ok := rateLimits[key].(map[string]any)
			if !ok {
				continue
			}
			pct, ok := window["used_percent"].(float64)
			if !ok {
				continue
			}
			lines = append(lines, fmt.Sprintf("%-10s %s", key, render.Bar(pct/100, render.DefaultBarWidth)))
		}
	}

	if len(lines) == 0 {
		lines = append(lines, "no utilization windows reported")
	}
	return lines
}

// asFraction accepts utilization reported as either a 0..1 fraction or a
// 0..100 percentage.
func asFraction(u float64) float64 {
	if u > 1 {
		return u / 100
	}
	return u
}
