package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/pypydance/roomlog/pkg/detector"
)

// DetectOptions holds command-line options for the detect command.
type DetectOptions struct {
	Output      string
	SampleSize  int
	ShowAll     bool
	Room        string
	WriteConfig string
}

// NewDetectCommand creates the detect command.
func NewDetectCommand() *cobra.Command {
	opts := &DetectOptions{}

	cmd := &cobra.Command{
		Use:   "detect <log-file>",
		Short: "List the rooms visited in a log file",
		Long: `Scan a log file for rooms that were entered or had videos played,
and report the most visited one with a ready-to-use room_name setting.

Optionally generates a starter config file with --write-config, scoped to
the most visited room or to the one named with --room.

Example:
  roomlog detect output_log_2025-01-01_20-00-00.txt
  roomlog detect --all output_log.txt
  roomlog detect -w roomlog.yaml --room PyPyDance output_log.txt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "text", "Output format (text|json)")
	cmd.Flags().IntVarP(&opts.SampleSize, "sample", "n", 0, "Number of lines to scan (0 scans the whole file)")
	cmd.Flags().BoolVar(&opts.ShowAll, "all", false, "Show all rooms, not just the most visited")
	cmd.Flags().StringVar(&opts.Room, "room", "", "Room to write the starter config for (default: most visited)")
	cmd.Flags().StringVarP(&opts.WriteConfig, "write-config", "w", "", "Write starter config to file (will not overwrite)")

	return cmd
}

func runDetect(cmd *cobra.Command, args []string, opts *DetectOptions) error {
	logFile := args[0]
	ctx := commandContext(cmd)
	w := cmd.OutOrStdout()

	// Check file exists
	if _, err := os.Stat(logFile); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("log file not found: %s", logFile)
	}

	d := detector.New(detector.WithSampleSize(opts.SampleSize))

	result, err := d.DetectFromFile(ctx, logFile)
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}

	// Write config file if requested
	if opts.WriteConfig != "" {
		if err := writeStarterConfig(w, result, logFile, opts); err != nil {
			return err
		}
	}

	switch opts.Output {
	case "json":
		return outputDetectJSON(w, result, logFile, opts)
	default:
		return outputDetectText(w, result, logFile, opts)
	}
}

func outputDetectText(w io.Writer, result *detector.DetectionResult, logFile string, opts *DetectOptions) error {
	fmt.Fprintln(w, "=== Room Detection ===")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "File: %s\n", logFile)
	fmt.Fprintf(w, "Lines scanned: %d\n", result.SampledLines)
	fmt.Fprintf(w, "Lines with timestamps: %d\n", result.TimestampedLines)
	fmt.Fprintln(w)

	if !result.HasMatch() {
		fmt.Fprintln(w, "No rooms found.")
		fmt.Fprintln(w)
		if result.TimestampedLines == 0 {
			fmt.Fprintln(w, "Tip: No line starts with a YYYY.MM.DD HH:MM:SS timestamp;")
			fmt.Fprintln(w, "this may not be a client session log.")
		} else {
			fmt.Fprintln(w, "Tip: The log may end before any room was entered.")
		}
		return nil
	}

	best := result.BestMatch()
	fmt.Fprintf(w, "Most visited room: %s\n", best.Name)
	printRoom(w, best)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "--- Configuration snippet (copy to your config file) ---")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "room_name: '%s'\n", best.Name)
	fmt.Fprintln(w)

	// Show alternatives if requested
	if opts.ShowAll && len(result.Rooms) > 1 {
		fmt.Fprintln(w, "--- Other rooms ---")
		for i := range result.Rooms[1:] {
			room := &result.Rooms[i+1]
			fmt.Fprintf(w, "%d. %s\n", i+2, room.Name)
			printRoom(w, room)
		}
		fmt.Fprintln(w)
	}

	return nil
}

func printRoom(w io.Writer, room *detector.RoomMatch) {
	fmt.Fprintf(w, "   Enters: %d, video plays: %d, players: %d\n", room.Enters, room.VideoPlays, room.Players)
	if !room.FirstSeen.IsZero() {
		fmt.Fprintf(w, "   Seen: %s to %s\n",
			room.FirstSeen.Format("2006-01-02 15:04:05"),
			room.LastSeen.Format("2006-01-02 15:04:05"))
	}
}

// JSONOutput represents the full JSON output.
type JSONOutput struct {
	File             string               `json:"file"`
	Rooms            []detector.RoomMatch `json:"rooms"`
	SampledLines     int                  `json:"sampled_lines"`
	TimestampedLines int                  `json:"timestamped_lines"`
}

func outputDetectJSON(w io.Writer, result *detector.DetectionResult, logFile string, opts *DetectOptions) error {
	out := JSONOutput{
		File:             logFile,
		SampledLines:     result.SampledLines,
		TimestampedLines: result.TimestampedLines,
		Rooms:            make([]detector.RoomMatch, 0, len(result.Rooms)),
	}

	rooms := result.Rooms
	if !opts.ShowAll && len(rooms) > 1 {
		rooms = rooms[:1] // Only show best match
	}
	out.Rooms = append(out.Rooms, rooms...)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

// writeStarterConfig generates a starter config file for the chosen room.
func writeStarterConfig(w io.Writer, result *detector.DetectionResult, logFile string, opts *DetectOptions) error {
	match, err := chooseRoom(result, opts.Room)
	if err != nil {
		return err
	}

	if err := detector.WriteStarterConfig(opts.WriteConfig, detector.StarterConfig(match, logFile)); err != nil {
		return err
	}

	fmt.Fprintf(w, "Wrote starter config to: %s\n\n", opts.WriteConfig)
	return nil
}

// chooseRoom picks the named room, or the most visited one.
func chooseRoom(result *detector.DetectionResult, name string) (*detector.RoomMatch, error) {
	if name == "" {
		if !result.HasMatch() {
			return nil, errors.New("cannot generate config: no room detected (use --room to name one)")
		}
		return result.BestMatch(), nil
	}

	for i := range result.Rooms {
		if result.Rooms[i].Name == name {
			return &result.Rooms[i], nil
		}
	}
	// A room never seen in this log is still a valid choice.
	return &detector.RoomMatch{Name: name}, nil
}
