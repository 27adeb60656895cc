package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pypydance/roomlog/internal/app"
	"github.com/pypydance/roomlog/pkg/ingest"
	"github.com/pypydance/roomlog/pkg/output"
)

// AnalyzeOptions holds command-line options for the analyze command.
type AnalyzeOptions struct {
	ReportOptions

	Files    []string
	FromLine int
}

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand() *cobra.Command {
	opts := &AnalyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze <config-file>",
		Short: "Analyze logs without saving anything",
		Long: `Analyze log files and print the attendance and music records found,
without writing records or progress to the database.

By default every log file in log_dir is analyzed from its first line.
Use --file to analyze specific files and --from-line to skip a prefix.

Titles resolved from the YouTube API are still written to the title cache.

Exit codes:
  0 - Analysis completed
  2 - Configuration or runtime error`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args, opts)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringSliceVarP(&opts.Files, "file", "f", nil, "Analyze this log file instead of log_dir (can be repeated)")
	cmd.Flags().IntVar(&opts.FromLine, "from-line", 0, "Start every file at this line (0-based)")

	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string, opts *AnalyzeOptions) error {
	configPath := args[0]
	ctx := commandContext(cmd)

	if opts.FromLine < 0 {
		return errors.New("--from-line must be >= 0")
	}

	formatter, err := createFormatter(&opts.ReportOptions)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(ctx, configPath)
	if err != nil {
		return err
	}

	a := app.New(ctx, cfg, app.Options{DryRun: true, FromLine: opts.FromLine})
	defer a.Close()

	runner, err := a.Runner()
	if err != nil {
		return fmt.Errorf("creating runner: %w", err)
	}

	var run *ingest.RunResult
	if len(opts.Files) > 0 {
		run, err = runner.RunFiles(ctx, opts.Files)
	} else {
		run, err = runner.Run(ctx)
	}
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	report := output.NewReport(run, configPath, cfg.RoomName)
	if err := formatter.Format(ctx, report, cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}

	return nil
}
