package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/sgchris/greq-sub000/packages/core/config"
	"github.com/sgchris/greq-sub000/packages/core/env"
	"github.com/sgchris/greq-sub000/packages/core/graph"
	"github.com/sgchris/greq-sub000/packages/core/parser"
	"github.com/sgchris/greq-sub000/packages/core/runner"
	"github.com/sgchris/greq-sub000/packages/output"
)

var runCmd = &cobra.Command{
	Use:   "run <file|directory> [file|directory...]",
	Short: "Execute requests from greq files",
	Long: `Execute the requests described in .greq files and check the
responses against the expectations in each file's footer.

Examples:
  greq run api.greq
  greq run ./requests/
  greq run api.greq --env-file .env.staging
  greq run ./requests/ --output json --output-file report.json
  greq run api.greq --watch`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	envFileFlag     string
	configFlag      string
	verboseFlag     bool
	quietFlag       bool
	noColorFlag     bool
	outputFlag      string
	outputFileFlag  string
	concurrencyFlag int
	rateFlag        float64
	watchFlag       bool
	insecureFlag    bool
	proxyFlag       string
	timeoutFlag     string
	markerFlag      string
)

func init() {
	runCmd.Flags().StringVar(&envFileFlag, "env-file", getEnvString("GREQ_ENV_FILE", ""), "Path to .env file loaded before interpolation (env: GREQ_ENV_FILE)")
	runCmd.Flags().StringVar(&configFlag, "config", getEnvString("GREQ_CONFIG", ""), "Path to config file (env: GREQ_CONFIG)")

	runCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", getEnvBool("GREQ_VERBOSE", false), "Show response status and latency per file (env: GREQ_VERBOSE)")
	runCmd.Flags().BoolVarP(&quietFlag, "quiet", "q", getEnvBool("GREQ_QUIET", false), "Suppress all output except errors (env: GREQ_QUIET)")
	runCmd.Flags().BoolVar(&noColorFlag, "no-color", getEnvBool("GREQ_NO_COLOR", false), "Disable colored output (env: GREQ_NO_COLOR)")
	runCmd.Flags().StringVarP(&outputFlag, "output", "o", getEnvString("GREQ_OUTPUT", ""), "Output format: console, json (env: GREQ_OUTPUT)")
	runCmd.Flags().StringVar(&outputFileFlag, "output-file", getEnvString("GREQ_OUTPUT_FILE", ""), "Write output to file instead of stdout (env: GREQ_OUTPUT_FILE)")

	runCmd.Flags().IntVar(&concurrencyFlag, "concurrency", getEnvInt("GREQ_CONCURRENCY", 0), "Number of files executed concurrently (env: GREQ_CONCURRENCY)")
	runCmd.Flags().Float64VarP(&rateFlag, "rate", "r", getEnvFloat("GREQ_RATE", 0), "Cap on requests per second across the batch, 0 = unlimited (env: GREQ_RATE)")
	runCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch files for changes and re-run")
	runCmd.Flags().StringVar(&timeoutFlag, "timeout", getEnvString("GREQ_TIMEOUT", ""), "Request timeout override (e.g. 30s, 500ms) (env: GREQ_TIMEOUT)")
	runCmd.Flags().StringVar(&markerFlag, "comment-marker", "", "Comment marker character, default #")

	runCmd.Flags().StringVar(&proxyFlag, "proxy", getEnvString("GREQ_PROXY", ""), "Proxy URL for outgoing requests (env: GREQ_PROXY)")
	runCmd.Flags().BoolVarP(&insecureFlag, "insecure", "k", getEnvBool("GREQ_INSECURE", false), "Disable SSL certificate validation (env: GREQ_INSECURE)")
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// Flushable is implemented by formatters that accumulate results and
// write them out at the end of the run.
type Flushable interface {
	Flush(totalDuration time.Duration) error
}

func newFormatter(outWriter *os.File, format string) output.Formatter {
	switch strings.ToLower(format) {
	case "json":
		opts := []output.JSONOption{output.JSONWithVerbose(verboseFlag)}
		if outWriter != nil {
			opts = append(opts, output.JSONWithWriter(outWriter))
		}
		return output.NewJSONFormatter(opts...)
	default: // "console"
		opts := []output.ConsoleOption{
			output.WithVerbose(verboseFlag),
			output.WithNoColor(noColorFlag || quietFlag),
		}
		if outWriter != nil {
			opts = append(opts, output.WithWriter(outWriter))
		}
		return output.NewConsoleFormatter(opts...)
	}
}

func runCommand(cmd *cobra.Command, args []string) error {
	fileConfig, err := config.LoadConfig(configFlag)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if noColorFlag || fileConfig.GetNoColor() {
		noColorFlag = true
	}
	if fileConfig.GetVerbose() {
		verboseFlag = true
	}

	format := outputFlag
	if format == "" {
		format = fileConfig.Output
	}

	var outWriter *os.File
	if outputFileFlag != "" {
		outWriter, err = os.Create(outputFileFlag)
		if err != nil {
			return fmt.Errorf("cannot create output file: %w", err)
		}
		defer outWriter.Close()
	}

	formatter := newFormatter(outWriter, format)
	if !quietFlag {
		formatter.FormatHeader(version)
	}

	if envFileFlag != "" {
		if _, err := env.LoadAndExport(envFileFlag); err != nil {
			formatter.FormatError(fmt.Errorf("loading env file: %w", err))
			os.Exit(ExitConfigError)
		}
	}

	files, err := collectFiles(args)
	if err != nil {
		formatter.FormatError(err)
		return err
	}
	if len(files) == 0 {
		err := fmt.Errorf("no .greq files found")
		formatter.FormatError(err)
		return err
	}

	cfg, err := buildRunnerConfig(fileConfig)
	if err != nil {
		formatter.FormatError(err)
		os.Exit(ExitConfigError)
	}

	r := runner.NewRunner(cfg)
	if !quietFlag {
		warner, ok := formatter.(interface{ FormatWarning(string) })
		if ok {
			r.SetWarnFunc(func(format string, args ...any) {
				warner.FormatWarning(fmt.Sprintf(format, args...))
			})
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runAll := func(f output.Formatter) ([]*runner.ExecutionResult, time.Duration) {
		start := time.Now()
		results := r.ExecuteAll(ctx, files)
		for _, result := range results {
			f.FormatResult(result)
		}
		f.FormatSummary(results)
		return results, time.Since(start)
	}

	results, totalDuration := runAll(formatter)
	if flushable, ok := formatter.(Flushable); ok {
		if err := flushable.Flush(totalDuration); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
	}

	if !watchFlag {
		if code := exitCodeFor(results); code != ExitSuccess {
			os.Exit(code)
		}
		return nil
	}

	return watchLoop(ctx, cmd, args, files, outWriter, format, runAll)
}

func buildRunnerConfig(fileConfig *config.Config) (*runner.Config, error) {
	timeout := time.Duration(fileConfig.Timeout) * time.Millisecond
	if timeoutFlag != "" {
		d, err := time.ParseDuration(timeoutFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout value %q: %w (use format like 30s, 500ms)", timeoutFlag, err)
		}
		timeout = d
	}

	proxy := fileConfig.Proxy
	if proxyFlag != "" {
		proxy = proxyFlag
	}

	validateSSL := fileConfig.GetValidateSSL()
	if insecureFlag {
		validateSSL = false
	}

	marker := fileConfig.CommentMarker
	if markerFlag != "" {
		marker = markerFlag
	}

	concurrency := fileConfig.Concurrency
	if concurrencyFlag > 0 {
		concurrency = concurrencyFlag
	}

	rateCap := fileConfig.Rate
	if rateFlag > 0 {
		rateCap = rateFlag
	}

	return &runner.Config{
		Timeout:        timeout,
		FollowRedirect: fileConfig.GetFollowRedirects(),
		ValidateSSL:    validateSSL,
		Proxy:          proxy,
		DefaultHeaders: fileConfig.Headers,
		CommentMarker:  marker,
		Concurrency:    concurrency,
		Rate:           rateCap,
	}, nil
}

// exitCodeFor classifies a batch outcome: parse errors outrank network
// errors, which outrank failed conditions.
func exitCodeFor(results []*runner.ExecutionResult) int {
	code := ExitSuccess
	for _, result := range results {
		if result.Success {
			continue
		}
		var parseErr *parser.ParseError
		var cycleErr *graph.CycleError
		var netErr *url.Error
		switch {
		case errors.As(result.Err, &parseErr), errors.As(result.Err, &cycleErr):
			return ExitParseError
		case errors.As(result.Err, &netErr):
			code = ExitNetworkError
		default:
			if code == ExitSuccess {
				code = ExitFailure
			}
		}
	}
	return code
}

func watchLoop(
	ctx context.Context,
	cmd *cobra.Command,
	args, files []string,
	outWriter *os.File,
	format string,
	runAll func(output.Formatter) ([]*runner.ExecutionResult, time.Duration),
) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	watchedDirs := make(map[string]bool)
	for _, file := range files {
		dir := filepath.Dir(file)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to watch %s: %v\n", dir, err)
			}
			watchedDirs[dir] = true
		}
	}

	// Watch directory args recursively so new files are picked up.
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err == nil && info.IsDir() {
			_ = filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if info.IsDir() && !watchedDirs[path] {
					_ = watcher.Add(path)
					watchedDirs[path] = true
				}
				return nil
			})
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	var debounceTimer *time.Timer
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) && isGreqFile(event.Name) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
					fmt.Fprintf(cmd.OutOrStdout(), "\nFile changed: %s\nRe-running...\n\n", event.Name)

					// fresh formatter so accumulating outputs start clean
					formatter := newFormatter(outWriter, format)
					_, duration := runAll(formatter)
					if flushable, ok := formatter.(Flushable); ok {
						_ = flushable.Flush(duration)
					}

					fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n")
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watcher error: %v\n", err)
		}
	}
}

func collectFiles(args []string) ([]string, error) {
	var files []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if info.IsDir() {
			err := filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !info.IsDir() && isGreqFile(path) {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		} else {
			files = append(files, arg)
		}
	}

	return files, nil
}

func isGreqFile(path string) bool {
	return filepath.Ext(path) == ".greq"
}
