package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pypydance/roomlog/pkg/parser"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file",
		Long: `Validate a roomlog configuration file without running analysis.

Checks:
  - YAML syntax
  - Required fields and value ranges
  - Time zone, title cache backend and database driver
  - Webhook URLs and triggers
  - Log file existence in log_dir (warning only)`,
		Args: cobra.ExactArgs(1),
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	configPath := args[0]
	ctx := commandContext(cmd)
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Validating %s...\n", configPath)

	// Load and validate config
	cfg, err := loadConfig(ctx, configPath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	apiKey := "not set (titles come from log metadata)"
	if cfg.YouTube.APIKey != "" {
		apiKey = "set"
	}

	// Report what we found
	fmt.Fprintf(w, "\nConfiguration valid!\n")
	fmt.Fprintf(w, "  Room:          %s\n", cfg.RoomName)
	fmt.Fprintf(w, "  Min minutes:   %d\n", cfg.MinMinutes)
	fmt.Fprintf(w, "  Time zone:     %s\n", cfg.Location())
	fmt.Fprintf(w, "  Consent names: %d (from store: %v)\n", len(cfg.Consent.Names), cfg.Consent.FromStore)
	fmt.Fprintf(w, "  Banned songs:  %d\n", len(cfg.BannedSongs))
	fmt.Fprintf(w, "  YouTube key:   %s\n", apiKey)
	fmt.Fprintf(w, "  Title cache:   %s %s\n", cfg.TitleCache.Backend, cfg.TitleCache.Path)
	fmt.Fprintf(w, "  Database:      %s\n", cfg.Database.Driver)
	fmt.Fprintf(w, "  Webhooks:      %d\n", len(cfg.Webhooks))

	// Check if log files exist (warnings only)
	files, err := parser.ListLogFiles(cfg.LogDir, cfg.LogPrefix, cfg.LogSuffix)
	if err != nil {
		fmt.Fprintf(w, "\nWarning: Cannot list log_dir %s: %v\n", cfg.LogDir, err)
	} else if len(files) == 0 {
		fmt.Fprintf(w, "\nWarning: No %s*%s files in %s\n", cfg.LogPrefix, cfg.LogSuffix, cfg.LogDir)
	} else {
		fmt.Fprintf(w, "\nLog files matched: %d\n", len(files))
		for _, f := range files {
			fmt.Fprintf(w, "  - %s\n", f.Name)
		}
	}

	return nil
}
