package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pypydance/roomlog/internal/logging"
	"github.com/pypydance/roomlog/pkg/config"
	"github.com/pypydance/roomlog/pkg/output"
)

// LogLevel overrides the configured log level when set.
var LogLevel string

// commandContext returns the command's context, or a background one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// loadConfig loads a config file and applies its logging section.
func loadConfig(ctx context.Context, path string) (*config.Config, error) {
	cfg, err := config.Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	level := cfg.Logging.Level
	if LogLevel != "" {
		level = LogLevel
	}
	logging.Init(logging.Config{Level: level, Format: cfg.Logging.Format})

	return cfg, nil
}

// ReportOptions holds the output flags shared by analyze and ingest.
type ReportOptions struct {
	Output  string
	Verbose bool
	Quiet   bool
}

func (o *ReportOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.Output, "output", "o", "text", "Output format (text|json)")
	cmd.Flags().BoolVarP(&o.Verbose, "verbose", "v", false, "Show URLs, drop counts and run details")
	cmd.Flags().BoolVarP(&o.Quiet, "quiet", "q", false, "Summary only, no details")
}

func createFormatter(opts *ReportOptions) (output.Formatter, error) {
	formatOpts := output.FormatOptions{
		Verbose: opts.Verbose,
		Quiet:   opts.Quiet,
	}

	switch opts.Output {
	case "text":
		return output.NewTextFormatter(formatOpts), nil
	case "json":
		return output.NewJSONFormatter(formatOpts), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (use text or json)", opts.Output)
	}
}
