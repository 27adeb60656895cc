package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pypydance/roomlog/pkg/config"
	"github.com/pypydance/roomlog/pkg/detector"
	"github.com/pypydance/roomlog/pkg/parser"
	"github.com/pypydance/roomlog/pkg/store"
	"github.com/pypydance/roomlog/pkg/titles"
)

const diagnoseStoreTimeout = 10 * time.Second

// DiagnoseOptions holds options for the diagnose command
type DiagnoseOptions struct {
	Verbose bool
}

// DiagnosticResult represents the result of a single diagnostic check
type DiagnosticResult struct {
	Check    string
	Status   string // "ok", "warning", "error"
	Message  string
	Details  []string
	Suggests []string
}

// NewDiagnoseCommand creates the diagnose command
func NewDiagnoseCommand() *cobra.Command {
	opts := &DiagnoseOptions{}

	cmd := &cobra.Command{
		Use:   "diagnose <config-file>",
		Short: "Diagnose common configuration issues",
		Long: `Diagnose common configuration issues.

This command checks your configuration file for common problems:
- Config file syntax and structure
- Log directory existence and matching log files
- Whether the configured room appears in the newest log
- Title cache and YouTube API key
- Database connectivity and stored progress
- Webhook configuration

Example:
  roomlog diagnose roomlog.yaml
  roomlog diagnose -v roomlog.yaml  # verbose output`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagnose(commandContext(cmd), cmd.OutOrStdout(), args[0], opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Show detailed diagnostic output")

	return cmd
}

func runDiagnose(ctx context.Context, w io.Writer, configPath string, opts *DiagnoseOptions) error {
	results := []DiagnosticResult{}

	// 1. Check config file existence
	result := checkConfigExists(configPath)
	results = append(results, result)
	if result.Status == "error" {
		printDiagnostics(w, results, opts)
		return nil
	}

	// 2. Parse config file
	cfg, result := checkConfigParseable(ctx, configPath)
	results = append(results, result)
	if result.Status == "error" {
		printDiagnostics(w, results, opts)
		return nil
	}

	// 3. Check log directory
	files, result := checkLogDir(cfg, opts)
	results = append(results, result)

	// 4. Check the room appears in the newest log
	if len(files) > 0 {
		results = append(results, checkRoomActivity(ctx, cfg, files[len(files)-1]))
	}

	// 5. Check title resolution
	results = append(results, checkTitleResolution(cfg)...)

	// 6. Check database
	results = append(results, checkDatabase(ctx, cfg, opts))

	// 7. Check webhooks configuration
	results = append(results, checkWebhooks(ctx, cfg, opts)...)

	printDiagnostics(w, results, opts)
	return nil
}

func checkConfigExists(path string) DiagnosticResult {
	result := DiagnosticResult{
		Check: "Config File",
	}

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		result.Status = "error"
		result.Message = fmt.Sprintf("Config file not found: %s", path)
		result.Suggests = []string{
			"Check the file path is correct",
			"Use 'roomlog detect <log-file> --write-config roomlog.yaml' to generate a starter config",
		}
		return result
	}
	if err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("Cannot access config file: %v", err)
		result.Suggests = []string{"Check file permissions"}
		return result
	}
	if info.IsDir() {
		result.Status = "error"
		result.Message = "Path is a directory, not a file"
		return result
	}
	if info.Size() == 0 {
		result.Status = "error"
		result.Message = "Config file is empty"
		result.Suggests = []string{
			"Use 'roomlog detect <log-file> --write-config roomlog.yaml' to generate a starter config",
		}
		return result
	}

	result.Status = "ok"
	result.Message = fmt.Sprintf("Found: %s (%d bytes)", path, info.Size())
	return result
}

func checkConfigParseable(ctx context.Context, path string) (*config.Config, DiagnosticResult) {
	result := DiagnosticResult{
		Check: "Config Syntax",
	}

	cfg, err := config.Load(ctx, path)
	if err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("Failed to parse config: %v", err)
		if strings.Contains(err.Error(), "yaml") {
			result.Suggests = []string{
				"Check YAML syntax - ensure proper indentation (use spaces, not tabs)",
			}
		}
		if strings.Contains(err.Error(), "timezone") {
			result.Suggests = append(result.Suggests,
				"Use an IANA zone name such as Asia/Tokyo, or Local")
		}
		return nil, result
	}

	result.Status = "ok"
	result.Message = "Config file parsed successfully"
	result.Details = []string{
		fmt.Sprintf("Room: %s", cfg.RoomName),
		fmt.Sprintf("Min minutes: %d", cfg.MinMinutes),
		fmt.Sprintf("Time zone: %s", cfg.Location()),
	}
	return cfg, result
}

func checkLogDir(cfg *config.Config, opts *DiagnoseOptions) ([]parser.LogFile, DiagnosticResult) {
	result := DiagnosticResult{
		Check: fmt.Sprintf("Log Directory: %s", cfg.LogDir),
	}

	info, err := os.Stat(cfg.LogDir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		result.Status = "error"
		result.Message = "Directory does not exist"
		result.Suggests = []string{"Set log_dir to the folder holding the client's output_log files"}
		return nil, result
	case err != nil:
		result.Status = "error"
		result.Message = fmt.Sprintf("Cannot access directory: %v", err)
		result.Suggests = []string{"Check directory permissions"}
		return nil, result
	case !info.IsDir():
		result.Status = "error"
		result.Message = "Path is a file, not a directory"
		result.Suggests = []string{"Set log_dir to the directory containing the log file"}
		return nil, result
	}

	files, err := parser.ListLogFiles(cfg.LogDir, cfg.LogPrefix, cfg.LogSuffix)
	if err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("Cannot list directory: %v", err)
		return nil, result
	}

	if len(files) == 0 {
		result.Status = "warning"
		result.Message = fmt.Sprintf("No %s*%s files found", cfg.LogPrefix, cfg.LogSuffix)
		result.Suggests = []string{
			"Check log_prefix and log_suffix match the log file names",
		}
		return nil, result
	}

	result.Status = "ok"
	result.Message = fmt.Sprintf("Matches %d file(s)", len(files))
	if opts.Verbose {
		for _, f := range files {
			result.Details = append(result.Details, f.Name)
		}
	}
	return files, result
}

func checkRoomActivity(ctx context.Context, cfg *config.Config, newest parser.LogFile) DiagnosticResult {
	result := DiagnosticResult{
		Check: fmt.Sprintf("Room Activity: %s", newest.Name),
	}

	d := detector.New(detector.WithLocation(cfg.Location()))
	detected, err := d.DetectFromFile(ctx, newest.Path)
	if err != nil {
		result.Status = "warning"
		result.Message = fmt.Sprintf("Cannot read file: %v", err)
		return result
	}

	if detected.TimestampedLines == 0 {
		result.Status = "warning"
		result.Message = "No line starts with a YYYY.MM.DD HH:MM:SS timestamp"
		result.Suggests = []string{"Check log_dir points at the client's session logs"}
		return result
	}

	for _, room := range detected.Rooms {
		if room.Name == cfg.RoomName {
			result.Status = "ok"
			result.Message = fmt.Sprintf("Room %q entered %d time(s), %d video play(s)",
				room.Name, room.Enters, room.VideoPlays)
			return result
		}
	}

	result.Status = "warning"
	result.Message = fmt.Sprintf("Room %q does not appear in the newest log", cfg.RoomName)
	result.Suggests = []string{"room_name must match the room name in the log exactly"}
	for i, room := range detected.Rooms {
		if i == 5 {
			break
		}
		result.Details = append(result.Details,
			fmt.Sprintf("Seen: %s (%d enters, %d plays)", truncate(room.Name, 60), room.Enters, room.VideoPlays))
	}
	return result
}

func checkTitleResolution(cfg *config.Config) []DiagnosticResult {
	results := []DiagnosticResult{}

	key := DiagnosticResult{Check: "YouTube API Key"}
	if cfg.YouTube.APIKey == "" {
		key.Status = "warning"
		key.Message = "No API key; titles come from log metadata"
		key.Suggests = []string{"Set youtube.api_key or ROOMLOG_YOUTUBE_API_KEY to resolve titles"}
	} else {
		key.Status = "ok"
		key.Message = fmt.Sprintf("Configured (timeout %s, %.1f req/s)", cfg.YouTube.Timeout, cfg.YouTube.RatePerSecond)
	}
	results = append(results, key)

	tc := cfg.TitleCache
	cache := DiagnosticResult{Check: fmt.Sprintf("Title Cache: %s", tc.Backend)}

	if tc.Backend == config.CacheBackendMemory {
		cache.Status = "warning"
		cache.Message = "Titles are not kept between runs"
		results = append(results, cache)
		return results
	}

	if _, err := os.Stat(tc.Path); errors.Is(err, os.ErrNotExist) {
		cache.Status = "ok"
		cache.Message = fmt.Sprintf("%s will be created on first lookup", tc.Path)
		results = append(results, cache)
		return results
	}

	c, err := titles.OpenCache(tc)
	if err != nil {
		cache.Status = "error"
		cache.Message = fmt.Sprintf("Cannot open %s: %v", tc.Path, err)
		if tc.Backend == config.CacheBackendBadger {
			cache.Suggests = []string{"Another roomlog process may hold the cache directory lock"}
		}
		results = append(results, cache)
		return results
	}
	defer c.Close()

	cache.Status = "ok"
	cache.Message = fmt.Sprintf("%s holds %d title(s)", tc.Path, c.Len())
	results = append(results, cache)
	return results
}

func checkDatabase(ctx context.Context, cfg *config.Config, opts *DiagnoseOptions) DiagnosticResult {
	result := DiagnosticResult{
		Check: fmt.Sprintf("Database: %s", cfg.Database.Driver),
	}

	// Diagnose never creates a database file.
	if cfg.Database.Driver == config.DriverSQLite && cfg.Database.DSN != ":memory:" {
		if _, err := os.Stat(cfg.Database.DSN); errors.Is(err, os.ErrNotExist) {
			result.Status = "warning"
			result.Message = fmt.Sprintf("%s does not exist yet; it is created on first use", cfg.Database.DSN)
			result.Suggests = []string{"Register users with 'roomlog users add <config-file> <nickname>'"}
			return result
		}
	}

	ctx, cancel := context.WithTimeout(ctx, diagnoseStoreTimeout)
	defer cancel()

	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("Cannot open database: %v", err)
		result.Suggests = []string{"Check database.dsn and that the server is reachable"}
		return result
	}
	defer st.Close()

	users, err := st.Users(ctx)
	if err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("Cannot query users: %v", err)
		return result
	}
	progress, err := st.Progress(ctx)
	if err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("Cannot query progress: %v", err)
		return result
	}

	result.Status = "ok"
	result.Message = fmt.Sprintf("%d registered user(s), %d tracked log file(s)", len(users), len(progress))
	if len(users) == 0 {
		result.Status = "warning"
		result.Suggests = []string{
			"No records are saved until users are registered",
			"Register users with 'roomlog users add <config-file> <nickname>'",
		}
	}
	if opts.Verbose {
		for _, p := range progress {
			result.Details = append(result.Details, fmt.Sprintf("%s: %d line(s)", p.File, p.Lines))
		}
	}
	return result
}

func printDiagnostics(w io.Writer, results []DiagnosticResult, opts *DiagnoseOptions) {
	fmt.Fprintln(w, "=== roomlog Configuration Diagnostics ===")
	fmt.Fprintln(w)

	okCount := 0
	warnCount := 0
	errCount := 0

	for _, r := range results {
		// Status icon
		var icon string
		switch r.Status {
		case "ok":
			icon = "PASS"
			okCount++
		case "warning":
			icon = "WARN"
			warnCount++
		case "error":
			icon = "FAIL"
			errCount++
		}

		fmt.Fprintf(w, "[%s] %s\n", icon, r.Check)
		fmt.Fprintf(w, "    %s\n", r.Message)

		if opts.Verbose || r.Status != "ok" {
			for _, d := range r.Details {
				fmt.Fprintf(w, "      - %s\n", d)
			}
		}

		for _, s := range r.Suggests {
			fmt.Fprintf(w, "      Hint: %s\n", s)
		}

		fmt.Fprintln(w)
	}

	// Summary
	fmt.Fprintln(w, "---")
	fmt.Fprintf(w, "Summary: %d passed, %d warnings, %d errors\n", okCount, warnCount, errCount)

	if errCount > 0 {
		fmt.Fprintln(w, "\nFix the errors above before running ingest.")
	} else if warnCount > 0 {
		fmt.Fprintln(w, "\nConfiguration is usable but has warnings.")
	} else {
		fmt.Fprintln(w, "\nConfiguration looks good!")
	}
}

func checkWebhooks(ctx context.Context, cfg *config.Config, opts *DiagnoseOptions) []DiagnosticResult {
	results := []DiagnosticResult{}

	if len(cfg.Webhooks) == 0 {
		// Webhooks are optional, just note they're not configured
		if opts.Verbose {
			results = append(results, DiagnosticResult{
				Check:   "Webhooks",
				Status:  "ok",
				Message: "No webhooks configured (optional)",
			})
		}
		return results
	}

	for _, wh := range cfg.Webhooks {
		name := webhookName(wh)

		result := DiagnosticResult{
			Check: fmt.Sprintf("Webhook: %s", name),
		}

		issues := []string{}
		warnings := []string{}

		// Check URL
		if wh.URL == "" {
			issues = append(issues, "Missing url")
		} else {
			u, err := url.Parse(wh.URL)
			if err != nil {
				issues = append(issues, fmt.Sprintf("Invalid URL: %v", err))
			} else if u.Scheme != "http" && u.Scheme != "https" {
				issues = append(issues, fmt.Sprintf("URL scheme must be http or https, got %q", u.Scheme))
			} else if u.Host == "" {
				issues = append(issues, "URL must have a host")
			}
		}

		// Check trigger
		if wh.Trigger != "" {
			switch wh.Trigger {
			case config.WebhookTriggerOnRecords, config.WebhookTriggerAlways, config.WebhookTriggerNever:
				// Valid
			default:
				issues = append(issues, fmt.Sprintf("Invalid trigger %q (use on_records, always, or never)", wh.Trigger))
			}
		}

		// Check if token looks like an unexpanded env var
		if strings.HasPrefix(wh.Token, "${") || strings.HasPrefix(wh.Token, "$") {
			warnings = append(warnings, fmt.Sprintf("Token appears to be an unresolved env var: %s", wh.Token))
		}

		if len(issues) > 0 {
			result.Status = "error"
			result.Message = fmt.Sprintf("%d configuration issue(s)", len(issues))
			result.Details = issues
		} else if len(warnings) > 0 {
			result.Status = "warning"
			result.Message = fmt.Sprintf("%d warning(s)", len(warnings))
			result.Details = warnings
		} else {
			result.Status = "ok"
			result.Message = fmt.Sprintf("Trigger: %s", wh.Trigger)
			if opts.Verbose {
				result.Details = []string{
					fmt.Sprintf("URL: %s", wh.URL),
					fmt.Sprintf("Timeout: %s", wh.Timeout),
				}
				if wh.Token != "" {
					result.Details = append(result.Details, "Token: configured")
				}
			}
		}

		results = append(results, result)
	}

	// Optionally test webhook connectivity
	if opts.Verbose {
		for _, wh := range cfg.Webhooks {
			if wh.URL == "" {
				continue
			}

			result := checkWebhookConnectivity(ctx, wh)
			result.Check = fmt.Sprintf("Webhook Connectivity: %s", webhookName(wh))
			results = append(results, result)
		}
	}

	return results
}

func checkWebhookConnectivity(ctx context.Context, wh config.WebhookConfig) DiagnosticResult {
	result := DiagnosticResult{}

	// Just do a HEAD request to check if the endpoint is reachable
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, wh.URL, nil)
	if err != nil {
		result.Status = "warning"
		result.Message = fmt.Sprintf("Cannot create request: %v", err)
		return result
	}

	if wh.Token != "" {
		req.Header.Set("Authorization", "Bearer "+wh.Token)
	}

	resp, err := client.Do(req)
	if err != nil {
		result.Status = "warning"
		result.Message = fmt.Sprintf("Cannot connect: %v", err)
		result.Suggests = []string{
			"Check if the webhook URL is correct",
			"Verify network connectivity",
		}
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		result.Status = "ok"
		result.Message = fmt.Sprintf("Reachable (status %d)", resp.StatusCode)
	} else {
		result.Status = "warning"
		result.Message = fmt.Sprintf("Reachable but returned status %d", resp.StatusCode)
		result.Suggests = []string{
			"The endpoint may require POST method (will work during actual webhook send)",
			"Check authentication if using a token",
		}
	}

	return result
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func webhookName(wh config.WebhookConfig) string {
	if wh.Name != "" {
		return wh.Name
	}
	return wh.URL
}
