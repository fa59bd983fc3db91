package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aiq-dev/aiq/pkg/config"
	"github.com/aiq-dev/aiq/pkg/loader"
	"github.com/aiq-dev/aiq/pkg/presenter"
)

var (
	jsonOutput bool
	noColor    bool
	noBrowser  bool
	localOnly  bool
)

// Subcommand names recognized inside the codex and claude namespaces. A bare
// form like "aiq list" predates the namespaces and is rejected with a hint.
var namespacedSubcommands = map[string]bool{
	"list": true, "add": true, "reauth": true, "switch": true,
	"sync": true, "remove": true, "quota": true,
}

var rootCmd = &cobra.Command{
	Use:   "aiq",
	Short: "Manage OAuth accounts and quota across AI coding assistants",
	Long: `aiq manages multiple OAuth accounts for OpenAI Codex and Anthropic Claude
across co-installed coding assistants (Codex CLI, opencode, pi, Claude Code).

It lists accounts, adds accounts via an in-browser OAuth flow, switches the
active account for every installed assistant, synchronizes credential drift,
and prints live usage across both vendors.

Running aiq with no arguments shows quota for all accounts in both namespaces.`,
	Args: cobra.ArbitraryArgs,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if noColor {
			presenter.DisableColor()
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) > 0 {
			if namespacedSubcommands[args[0]] {
				presenter.Error(fmt.Errorf("unknown command %q", args[0]), "Invalid usage")
				presenter.Info(fmt.Sprintf("Subcommands moved under a namespace. Try 'aiq codex %s' or 'aiq claude %s'.", args[0], args[0]))
			} else {
				presenter.Error(fmt.Errorf("unknown command %q", args[0]), "Invalid usage")
				cmd.Usage() //nolint:errcheck
			}
			os.Exit(1)
		}
		showAllQuota(cmd.Context())
	},
}

func init() {
	config.Init()

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&noBrowser, "no-browser", false, "Print the login URL instead of opening a browser")
	rootCmd.PersistentFlags().BoolVar(&localOnly, "local", false, "Only read the tool-owned account files")

	rootCmd.AddCommand(codexCmd)
	rootCmd.AddCommand(claudeCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadOpts() loader.Options {
	return loader.Options{LocalOnly: localOnly}
}

// showAllQuota is the default command: quota for both namespaces.
func showAllQuota(ctx context.Context) {
	codexResults := fetchCodexQuota(ctx, "")
	claudeResults := fetchClaudeQuota(ctx, "")

	if jsonOutput {
		outputJSON(map[string]any{
			"codex":  codexResults,
			"claude": claudeResults,
		})
		if anyFailed(codexResults) || anyFailed(claudeResults) {
			os.Exit(1)
		}
		return
	}

	if len(codexResults) == 0 && len(claudeResults) == 0 {
		presenter.Info("No accounts found. Use 'aiq codex add <label>' or 'aiq claude add <label>' to get started.")
		return
	}

	if len(codexResults) > 0 {
		presenter.Section("Codex")
		printUsageResults(codexResults)
	}
	if len(claudeResults) > 0 {
		presenter.Section("Claude")
		printUsageResults(claudeResults)
	}
	if anyFailed(codexResults) || anyFailed(claudeResults) {
		os.Exit(1)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
