// Package main provides the promptwire CLI.
//
// handlers.go contains the run* implementations behind each command.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/promptwire/internal/config"
	"github.com/haasonsaas/promptwire/internal/observability"
	"github.com/haasonsaas/promptwire/pkg/models"
	"github.com/haasonsaas/promptwire/pkg/promptwire"
	"github.com/spf13/cobra"
)

// configPathDefault resolves the config path from PROMPTWIRE_CONFIG, falling
// back to promptwire.yaml in the working directory.
func configPathDefault() string {
	if p := os.Getenv("PROMPTWIRE_CONFIG"); p != "" {
		return p
	}
	return defaultConfigPath
}

// buildClient wires a promptwire.Client from the config file: logger,
// optional metrics endpoint, optional tracing. The returned cleanup tears all
// of it down and must be called even when the handler fails.
func buildClient(ctx context.Context, configPath string) (*promptwire.Client, func(context.Context) error, error) {
	fileCfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  fileCfg.Log.Level,
		Format: fileCfg.Log.Format,
	})

	var cleanups []func(context.Context) error
	cleanup := func(ctx context.Context) error {
		var firstErr error
		for i := len(cleanups) - 1; i >= 0; i-- {
			if err := cleanups[i](ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	cfg := promptwire.Config{
		APIURL:         fileCfg.APIURL,
		APIKey:         fileCfg.APIKey,
		ProjectID:      fileCfg.ProjectID,
		EnableRealtime: fileCfg.EnableRealtime,
		CachePrompts:   fileCfg.CachePrompts,
		StrictVariants: fileCfg.StrictVariants,
		Logger:         logger,
	}
	if ttl, err := fileCfg.CacheTTLDuration(); err == nil {
		cfg.CacheTTL = ttl
	}

	if fileCfg.Metrics.Addr != "" {
		metrics, registry := observability.NewRegisteredMetrics()
		cfg.Metrics = metrics

		srv := &http.Server{
			Addr:              fileCfg.Metrics.Addr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "addr", fileCfg.Metrics.Addr, "error", err)
			}
		}()
		cleanups = append(cleanups, srv.Shutdown)
	}

	if fileCfg.Tracing.Endpoint != "" {
		tracer, shutdown := observability.NewTracer(observability.TraceConfig{
			ServiceName:    "promptwire-cli",
			ServiceVersion: version,
			Endpoint:       fileCfg.Tracing.Endpoint,
			Insecure:       fileCfg.Tracing.Insecure,
			SamplingRate:   fileCfg.Tracing.SamplingRate,
		})
		cfg.Tracer = tracer
		cleanups = append(cleanups, shutdown)
	}

	client, err := promptwire.New(cfg)
	if err != nil {
		_ = cleanup(ctx)
		return nil, nil, err
	}
	cleanups = append(cleanups, client.Close)

	if err := client.Initialize(ctx); err != nil {
		_ = cleanup(ctx)
		return nil, nil, err
	}
	return client, cleanup, nil
}

// parseVars turns repeated key=value flags into a variable map. Values that
// parse as JSON keep their JSON type; everything else stays a string.
func parseVars(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	vars := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid variable %q: want key=value", pair)
		}
		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err == nil {
			vars[key] = parsed
		} else {
			vars[key] = value
		}
	}
	return vars, nil
}

// templateInput treats the argument as a file path when one exists,
// otherwise as the template text itself.
func templateInput(arg string) (string, error) {
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		data, err := os.ReadFile(arg)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return arg, nil
}

func runPromptGet(cmd *cobra.Command, configPath, nameOrID string, varPairs []string, sessionID, userID string) error {
	vars, err := parseVars(varPairs)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	client, cleanup, err := buildClient(ctx, configPath)
	if err != nil {
		return err
	}
	defer closeQuietly(cleanup)

	rendered, err := client.GetPrompt(ctx, nameOrID, &promptwire.ResolveOptions{
		Variables: vars,
		SessionID: sessionID,
		UserID:    userID,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return nil
}

func runExperimentResolve(cmd *cobra.Command, configPath, name string, varPairs []string, sessionID, userID string) error {
	vars, err := parseVars(varPairs)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	client, cleanup, err := buildClient(ctx, configPath)
	if err != nil {
		return err
	}
	defer closeQuietly(cleanup)

	result, err := client.GetExperimentPrompt(ctx, name, &promptwire.ResolveOptions{
		Variables: vars,
		SessionID: sessionID,
		UserID:    userID,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "variant: %s\n\n", result.VariantID)
	fmt.Fprintln(out, result.Content)
	return nil
}

func runExperimentAnalytics(cmd *cobra.Command, configPath, experimentID string) error {
	ctx := cmd.Context()
	client, cleanup, err := buildClient(ctx, configPath)
	if err != nil {
		return err
	}
	defer closeQuietly(cleanup)

	analytics, err := client.ExperimentAnalytics(ctx, experimentID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VARIANT\tPROMPT\tRESULTS\tSUCCESS RATE\tAVG LATENCY")
	for _, v := range analytics {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.1f%%\t%.0fms\n",
			v.VariantName, v.PromptName, v.TotalResults, v.SuccessRate*100, v.AvgLatency)
	}
	return w.Flush()
}

func runFeedback(cmd *cobra.Command, configPath, experimentID, variantID string, success bool, feedbackPairs []string, sessionID string) error {
	feedback, err := parseVars(feedbackPairs)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	client, cleanup, err := buildClient(ctx, configPath)
	if err != nil {
		return err
	}

	client.RecordFeedback(experimentID, variantID, success, feedback, sessionID)

	// Feedback is fire-and-forget; the drain on close is what actually
	// delivers it before the process exits.
	return cleanup(ctx)
}

func runTemplateVars(cmd *cobra.Command, arg string) error {
	template, err := templateInput(arg)
	if err != nil {
		return err
	}
	for _, name := range promptwire.ExtractTemplateVariables(template) {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}

func runTemplateValidate(cmd *cobra.Command, arg string, varPairs []string) error {
	template, err := templateInput(arg)
	if err != nil {
		return err
	}
	vars, err := parseVars(varPairs)
	if err != nil {
		return err
	}

	validation := promptwire.ValidateTemplate(template, vars)
	if validation.Valid {
		fmt.Fprintln(cmd.OutOrStdout(), "ok: all placeholders covered")
		return nil
	}
	return fmt.Errorf("missing variables: %s", strings.Join(validation.Missing, ", "))
}

func runTemplateRender(cmd *cobra.Command, arg string, varPairs []string) error {
	template, err := templateInput(arg)
	if err != nil {
		return err
	}
	vars, err := parseVars(varPairs)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), promptwire.RenderTemplate(template, vars))
	return nil
}

func runListen(cmd *cobra.Command, configPath string) error {
	ctx := cmd.Context()
	client, cleanup, err := buildClient(ctx, configPath)
	if err != nil {
		return err
	}
	defer closeQuietly(cleanup)

	enc := json.NewEncoder(cmd.OutOrStdout())
	kinds := []models.ChangeKind{
		models.ChangePromptCreated, models.ChangePromptUpdated, models.ChangePromptDeleted,
		models.ChangeExperimentCreated, models.ChangeExperimentUpdated, models.ChangeExperimentDeleted,
	}
	for _, kind := range kinds {
		sub, err := client.On(kind, func(ev models.ChangeEvent) {
			_ = enc.Encode(ev)
		})
		if err != nil {
			return err
		}
		defer client.Off(sub)
	}

	fmt.Fprintln(cmd.ErrOrStderr(), "listening for changes, Ctrl-C to stop")
	<-ctx.Done()
	return nil
}

// closeQuietly runs a cleanup with a fresh deadline so teardown still drains
// after the command context is cancelled.
func closeQuietly(cleanup func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = cleanup(ctx)
}
