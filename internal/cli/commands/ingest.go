package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pypydance/roomlog/internal/app"
	"github.com/pypydance/roomlog/internal/logging"
	"github.com/pypydance/roomlog/pkg/config"
	"github.com/pypydance/roomlog/pkg/output"
	"github.com/pypydance/roomlog/pkg/webhook"
)

// IngestOptions holds command-line options for the ingest command.
type IngestOptions struct {
	ReportOptions

	// Webhook options
	WebhookURL     string
	WebhookToken   string
	WebhookTrigger string
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand() *cobra.Command {
	opts := &IngestOptions{}

	cmd := &cobra.Command{
		Use:   "ingest <config-file>",
		Short: "Process new log lines and save the records",
		Long: `Process the lines appended to each log file since the previous run,
save the attendance and music records to the database and advance each
file's progress marker.

Files are processed oldest first. A file whose records cannot be saved
keeps its marker, so the next run retries the same lines; inserts are
idempotent.

After the run the report is posted to every webhook whose trigger fires,
and metrics are written to metrics_file when configured.

Exit codes:
  0 - Run completed
  2 - Configuration or runtime error`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args, opts)
		},
	}

	opts.addFlags(cmd)

	// Webhook flags
	cmd.Flags().StringVar(&opts.WebhookURL, "webhook-url", "", "Webhook endpoint URL")
	cmd.Flags().StringVar(&opts.WebhookToken, "webhook-token", "", "Bearer token for webhook auth")
	cmd.Flags().StringVar(&opts.WebhookTrigger, "webhook-trigger", string(config.WebhookTriggerOnRecords),
		"When to fire webhook (on_records|always|never)")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string, opts *IngestOptions) error {
	configPath := args[0]
	ctx := commandContext(cmd)

	formatter, err := createFormatter(&opts.ReportOptions)
	if err != nil {
		return err
	}

	switch config.WebhookTrigger(opts.WebhookTrigger) {
	case config.WebhookTriggerOnRecords, config.WebhookTriggerAlways, config.WebhookTriggerNever:
	default:
		return fmt.Errorf("invalid --webhook-trigger %q (use on_records, always, or never)", opts.WebhookTrigger)
	}

	cfg, err := loadConfig(ctx, configPath)
	if err != nil {
		return err
	}

	a := app.New(ctx, cfg, app.Options{FromLine: -1})
	defer a.Close()

	runner, err := a.Runner()
	if err != nil {
		return fmt.Errorf("creating runner: %w", err)
	}

	run, runErr := runner.Run(ctx)

	// Files processed before a failure are already saved, so report them.
	report := output.NewReport(run, configPath, cfg.RoomName)
	if err := formatter.Format(ctx, report, cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}

	writeMetrics(cfg, a)

	if runErr != nil {
		return fmt.Errorf("ingest failed: %w", runErr)
	}

	// Send webhooks (errors logged but don't fail the run)
	sendWebhooks(ctx, cfg, opts, report)

	return nil
}

func writeMetrics(cfg *config.Config, a *app.App) {
	if cfg.MetricsFile == "" {
		return
	}
	if err := a.Metrics().WriteTextfile(cfg.MetricsFile); err != nil {
		logging.Warn().Err(err).Str("path", cfg.MetricsFile).Msg("Failed to write metrics")
	}
}

// sendWebhooks sends the report to all configured webhooks.
func sendWebhooks(ctx context.Context, cfg *config.Config, opts *IngestOptions, report *output.Report) {
	webhooks := collectWebhooks(cfg, opts)
	if len(webhooks) == 0 {
		return
	}
	webhook.NewClient().Dispatch(ctx, webhooks, report)
}

// collectWebhooks merges config file webhooks with CLI webhook.
func collectWebhooks(cfg *config.Config, opts *IngestOptions) []config.WebhookConfig {
	webhooks := make([]config.WebhookConfig, 0, len(cfg.Webhooks)+1)

	// Add config file webhooks
	webhooks = append(webhooks, cfg.Webhooks...)

	// Add CLI webhook if specified
	if opts.WebhookURL != "" {
		trigger := config.WebhookTrigger(opts.WebhookTrigger)
		if trigger == "" {
			trigger = config.WebhookTriggerOnRecords
		}

		webhooks = append(webhooks, config.WebhookConfig{
			Name:    "cli",
			URL:     opts.WebhookURL,
			Token:   opts.WebhookToken,
			Trigger: trigger,
			Timeout: config.DefaultWebhookTimeout,
		})
	}

	return webhooks
}
