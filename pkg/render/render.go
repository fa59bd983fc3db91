// Package render formats quota data for terminal display: utilization bars,
// boxed account summaries, masked secrets, and JSON output.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"
)

// DefaultBarWidth is the number of cells in a utilization bar.
const DefaultBarWidth = 20

// MaskSecret masks a token or account id, showing only the first and last
// 4 characters.
func MaskSecret(s string) string {
	if len(s) <= 12 {
		return "****"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Bar renders a utilization bar of the given width. Utilization is a 0..1
// fraction; values outside the range are clamped. Coloring follows the
// usual traffic-light thresholds.
func Bar(utilization float64, width int) string {
	if width <= 0 {
		width = DefaultBarWidth
	}
	u := utilization
	if math.IsNaN(u) || u < 0 {
		u = 0
	}
	if u > 1 {
		u = 1
	}

	filled := int(math.Round(u * float64(width)))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	var c *color.Color
	switch {
	case u >= 0.9:
		c = color.New(color.FgRed)
	case u >= 0.7:
		c = color.New(color.FgYellow)
	default:
		c = color.New(color.FgGreen)
	}
	return fmt.Sprintf("%s %5.1f%%", c.Sprint(bar), u*100)
}

// Box draws a titled box around the given lines. Lines are expected to be
// plain text; ANSI sequences inside a line would skew the padding.
func Box(title string, lines []string) string {
	width := utf8.RuneCountInString(title)
	for _, line := range lines {
		if w := utf8.RuneCountInString(line); w > width {
			width = w
		}
	}

	var b strings.Builder
	b.WriteString("┌─ " + title + " " + strings.Repeat("─", width-utf8.RuneCountInString(title)) + "┐\n")
	for _, line := range lines {
		pad := width - utf8.RuneCountInString(line)
		b.WriteString("│ " + line + strings.Repeat(" ", pad) + "  │\n")
	}
	b.WriteString("└" + strings.Repeat("─", width+3) + "┘\n")
	return b.String()
}

// JSON writes v as 2-space indented JSON. Map keys are emitted in sorted
// order by the encoder, which keeps output stable across runs.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// FormatStatus decorates a vendor rate-limit status string.
func FormatStatus(status string) string {
	switch status {
	case "allowed":
		return "✓ allowed"
	case "limited":
		return "⚠ limited"
	default:
		return status
	}
}

// FormatReset renders a window reset time with the remaining duration.
func FormatReset(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	remaining := time.Until(t)
	if remaining < 0 {
		return t.Local().Format("2006-01-02 15:04:05") + " (passed)"
	}

	days := int(remaining.Hours()) / 24
	hours := int(remaining.Hours()) % 24
	minutes := int(remaining.Minutes()) % 60

	var duration string
	if days > 0 {
		duration = fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	} else {
		duration = fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%s (in %s)", t.Local().Format("2006-01-02 15:04:05"), duration)
}
