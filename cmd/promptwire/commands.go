// Package main provides the promptwire CLI.
//
// commands.go contains all cobra command definitions and their flag
// configurations. Each command builder creates a command and wires it to its
// handler in handlers.go.
package main

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "promptwire.yaml"

// configFlag attaches the shared --config flag.
func configFlag(cmd *cobra.Command, configPath *string) {
	cmd.Flags().StringVarP(configPath, "config", "c", configPathDefault(),
		"Path to YAML or JSON5 configuration file")
}

// =============================================================================
// Prompt Commands
// =============================================================================

func buildPromptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Resolve managed prompts",
	}
	cmd.AddCommand(buildPromptGetCmd())
	return cmd
}

func buildPromptGetCmd() *cobra.Command {
	var (
		configPath string
		vars       []string
		sessionID  string
		userID     string
	)

	cmd := &cobra.Command{
		Use:   "get [name-or-id]",
		Short: "Resolve and render a prompt",
		Long: `Resolve a prompt by name or id, render it with the supplied variables,
and print the result. Placeholders without a value are left verbatim.`,
		Example: `  # Resolve by name with one variable
  promptwire prompt get greeting --var name=Ada

  # Values parse as JSON when possible
  promptwire prompt get pricing --var 'plans=["free","pro"]'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPromptGet(cmd, configPath, args[0], vars, sessionID, userID)
		},
	}

	configFlag(cmd, &configPath)
	cmd.Flags().StringArrayVar(&vars, "var", nil, "Template variable as key=value (repeatable)")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id attached to telemetry")
	cmd.Flags().StringVar(&userID, "user", "", "User id attached to telemetry")
	return cmd
}

// =============================================================================
// Experiment Commands
// =============================================================================

func buildExperimentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "experiment",
		Aliases: []string{"ab-test"},
		Short:   "Resolve experiments and inspect their results",
	}
	cmd.AddCommand(buildExperimentResolveCmd(), buildExperimentAnalyticsCmd())
	return cmd
}

func buildExperimentResolveCmd() *cobra.Command {
	var (
		configPath string
		vars       []string
		sessionID  string
		userID     string
	)

	cmd := &cobra.Command{
		Use:   "resolve [name]",
		Short: "Assign a session to a variant and render its prompt",
		Long: `Resolve a running experiment: deterministically assign the session to a
variant, render the variant's prompt, and print the assignment.

The same --session always lands on the same variant for an unchanged variant
list. Without --session a random one-off session is generated.`,
		Example: `  promptwire experiment resolve checkout-copy --session user-42 --var name=Ada`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExperimentResolve(cmd, configPath, args[0], vars, sessionID, userID)
		},
	}

	configFlag(cmd, &configPath)
	cmd.Flags().StringArrayVar(&vars, "var", nil, "Template variable as key=value (repeatable)")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id keying variant assignment")
	cmd.Flags().StringVar(&userID, "user", "", "User id attached to telemetry")
	return cmd
}

func buildExperimentAnalyticsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "analytics [experiment-id]",
		Short: "Show per-variant success rates and latency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExperimentAnalytics(cmd, configPath, args[0])
		},
	}

	configFlag(cmd, &configPath)
	return cmd
}

// =============================================================================
// Feedback Command
// =============================================================================

func buildFeedbackCmd() *cobra.Command {
	var (
		configPath string
		sessionID  string
		failed     bool
		feedback   []string
	)

	cmd := &cobra.Command{
		Use:   "feedback [experiment-id] [variant-id]",
		Short: "Record a delayed outcome for an assigned variant",
		Example: `  # Mark the assignment a success with a rating
  promptwire feedback x_123 control --session user-42 --fb rating=5

  # Mark it a failure
  promptwire feedback x_123 control --session user-42 --failed`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeedback(cmd, configPath, args[0], args[1], !failed, feedback, sessionID)
		},
	}

	configFlag(cmd, &configPath)
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id the assignment was made under")
	cmd.Flags().BoolVar(&failed, "failed", false, "Record the outcome as a failure")
	cmd.Flags().StringArrayVar(&feedback, "fb", nil, "Feedback field as key=value (repeatable)")
	return cmd
}

// =============================================================================
// Template Commands
// =============================================================================

func buildTemplateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Inspect and validate prompt templates locally",
	}
	cmd.AddCommand(buildTemplateVarsCmd(), buildTemplateValidateCmd(), buildTemplateRenderCmd())
	return cmd
}

func buildTemplateVarsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vars [template-or-file]",
		Short: "List the distinct placeholders in a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTemplateVars(cmd, args[0])
		},
	}
}

func buildTemplateValidateCmd() *cobra.Command {
	var vars []string
	cmd := &cobra.Command{
		Use:   "validate [template-or-file]",
		Short: "Check that the supplied variables cover every placeholder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTemplateValidate(cmd, args[0], vars)
		},
	}
	cmd.Flags().StringArrayVar(&vars, "var", nil, "Template variable as key=value (repeatable)")
	return cmd
}

func buildTemplateRenderCmd() *cobra.Command {
	var vars []string
	cmd := &cobra.Command{
		Use:   "render [template-or-file]",
		Short: "Render a template without contacting the service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTemplateRender(cmd, args[0], vars)
		},
	}
	cmd.Flags().StringArrayVar(&vars, "var", nil, "Template variable as key=value (repeatable)")
	return cmd
}

// =============================================================================
// Listen Command
// =============================================================================

func buildListenCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Stream entity-change events for the project",
		Long: `Join the project's realtime channel and print every prompt and
experiment change as a JSON line until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(cmd, configPath)
		},
	}

	configFlag(cmd, &configPath)
	return cmd
}
