// Package cli provides the command-line interface for roomlog.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pypydance/roomlog/internal/cli/commands"
)

// Execute runs the root command and returns the exit code.
func Execute() int {
	rootCmd := NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		// Print error to stderr (SilenceErrors prevents Cobra from doing this)
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2 // Configuration or runtime error
	}
	return 0
}

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "roomlog",
		Short: "Reconstruct room attendance and music plays from VR client logs",
		Long: `roomlog reads the session logs written by a social VR client and
reconstructs, for one configured room:

  - Who attended and for how long
  - Which videos were played, and by whom

Logs are processed incrementally: each run picks up from the last line
recorded for every log file, so it is safe to run on a schedule.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&commands.LogLevel, "log-level", "",
		"Log level (trace|debug|info|warn|error), overrides the config file")

	// Add subcommands
	rootCmd.AddCommand(commands.NewAnalyzeCommand())
	rootCmd.AddCommand(commands.NewIngestCommand())
	rootCmd.AddCommand(commands.NewDetectCommand())
	rootCmd.AddCommand(commands.NewDiagnoseCommand())
	rootCmd.AddCommand(commands.NewValidateCommand())
	rootCmd.AddCommand(commands.NewUsersCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	return rootCmd
}
