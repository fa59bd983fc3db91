package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/aiq-dev/aiq/pkg/loader"
	"github.com/aiq-dev/aiq/pkg/presenter"
	"github.com/aiq-dev/aiq/pkg/render"
	"github.com/aiq-dev/aiq/pkg/usage"
)

var claudeQuotaProbe bool

var claudeQuotaCmd = &cobra.Command{
	Use:   "quota [label]",
	Short: "Show live usage for Claude accounts",
	Long: `Fetch the current usage windows for each Claude account. OAuth accounts use
the vendor usage endpoint; session-cookie accounts fall back to the web API.
Accounts sharing a subscription collapse into one entry.

With --probe a minimal one-token request is issued instead and the unified
rate-limit headers are reported. Useful when the usage endpoint is
unavailable for an account.

Examples:
  aiq claude quota                 # All accounts
  aiq claude quota personal        # One account
  aiq claude quota --probe work    # Rate-limit headers for one account`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var label string
		if len(args) > 0 {
			label = args[0]
		}
		if claudeQuotaProbe {
			probeClaudeRateLimitsCmd(cmd.Context(), label)
			return
		}
		showClaudeQuotaCmd(cmd.Context(), label)
	},
}

func init() {
	claudeQuotaCmd.Flags().BoolVar(&claudeQuotaProbe, "probe", false, "Probe rate-limit headers with a minimal request")
}

type probeWindowJSON struct {
	Status      string  `json:"status"`
	Utilization float64 `json:"utilization"`
	ResetTime   string  `json:"reset_time"`
	ResetUnix   int64   `json:"reset_unix"`
}

func probeClaudeRateLimitsCmd(ctx context.Context, label string) {
	res := loader.LoadClaude(ctx, loadOpts())

	acct, err := activeClaudeAccount(res)
	if label != "" {
		acct = findClaudeAccount(res, label)
		if acct == nil {
			err = errors.Errorf("account %q not found", label)
		} else {
			err = nil
		}
	}
	if err != nil {
		if jsonOutput {
			outputJSONError(err.Error())
		} else {
			presenter.Error(err, "Cannot probe")
		}
		os.Exit(1)
	}

	freshenClaude(ctx, acct, res.File)

	if !jsonOutput {
		presenter.Info(fmt.Sprintf("Probing rate limits for account: %s...", acct.Label))
	}

	stats, err := usage.ProbeRateLimits(ctx, acct)
	if err != nil {
		if jsonOutput {
			outputJSONError(err.Error())
		} else {
			presenter.Error(err, "Probe failed")
		}
		os.Exit(1)
	}

	if jsonOutput {
		outputJSON(struct {
			Account  string          `json:"account"`
			Window5h probeWindowJSON `json:"window_5h"`
			Window7d probeWindowJSON `json:"window_7d"`
		}{
			Account: acct.Label,
			Window5h: probeWindowJSON{
				Status:      stats.Status5h,
				Utilization: stats.Utilization5h,
				ResetTime:   stats.Reset5h.Format(time.RFC3339),
				ResetUnix:   stats.Reset5h.Unix(),
			},
			Window7d: probeWindowJSON{
				Status:      stats.Status7d,
				Utilization: stats.Utilization7d,
				ResetTime:   stats.Reset7d.Format(time.RFC3339),
				ResetUnix:   stats.Reset7d.Unix(),
			},
		})
		return
	}

	fmt.Println()
	presenter.Section("5-Hour Window")
	fmt.Printf("  Status:      %s\n", render.FormatStatus(stats.Status5h))
	fmt.Printf("  Utilization: %.2f%%\n", stats.Utilization5h*100)
	fmt.Printf("  Resets:      %s\n", render.FormatReset(stats.Reset5h))

	fmt.Println()
	presenter.Section("7-Day Window")
	fmt.Printf("  Status:      %s\n", render.FormatStatus(stats.Status7d))
	fmt.Printf("  Utilization: %.2f%%\n", stats.Utilization7d*100)
	fmt.Printf("  Resets:      %s\n", render.FormatReset(stats.Reset7d))
}
