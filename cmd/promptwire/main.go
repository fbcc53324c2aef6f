// Package main provides the promptwire CLI.
//
// The CLI exercises a Promptwire project from the command line: resolve
// prompts and experiment assignments, validate templates, stream entity
// changes, and pull experiment analytics.
//
// # Basic Usage
//
// Resolve a prompt:
//
//	promptwire prompt get greeting --var name=Ada
//
// Resolve an experiment assignment:
//
//	promptwire experiment resolve checkout-copy --session user-42
//
// # Environment Variables
//
//   - PROMPTWIRE_CONFIG: Path to configuration file (default: promptwire.yaml)
//   - PROMPTWIRE_API_KEY: API key, typically referenced from the config file
//     as ${PROMPTWIRE_API_KEY}
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := buildRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "promptwire",
		Short: "Promptwire - prompt management and A/B experiment client",
		Long: `Promptwire resolves managed prompt templates and experiment variant
assignments against a Promptwire project.

Documentation: https://github.com/haasonsaas/promptwire`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildPromptCmd(),
		buildExperimentCmd(),
		buildFeedbackCmd(),
		buildTemplateCmd(),
		buildListenCmd(),
	)
	return rootCmd
}
