package output

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/sgchris/greq-sub000/packages/core/runner"
)

// ConsoleFormatter renders execution results for humans.
type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{writer: os.Stdout}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) FormatResult(result *runner.ExecutionResult) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	if result.Err != nil {
		fmt.Fprintf(f.writer, "  %s %s %s\n", red("x"), result.Path, red(fmt.Sprintf("(%v)", result.Err)))
		return
	}

	symbol := green("✓")
	if !result.Success {
		symbol = red("✗")
	}
	fmt.Fprintf(f.writer, "  %s %s %s\n", symbol, result.Path, cyan(fmt.Sprintf("(%dms)", result.Duration.Milliseconds())))

	if f.verbose && result.Response != nil {
		fmt.Fprintf(f.writer, "    Status:  %d %s\n", result.Response.StatusCode, result.Response.ReasonPhrase)
		fmt.Fprintf(f.writer, "    Latency: %dms\n", result.Response.DurationMs())
	}

	for _, failure := range result.FailedConditions {
		fmt.Fprintf(f.writer, "    %s %s\n", red("→"), failure)
	}
}

// FormatSummary prints the batch totals line.
func (f *ConsoleFormatter) FormatSummary(results []*runner.ExecutionResult) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	passed, failed := 0, 0
	for _, r := range results {
		if r.Success {
			passed++
		} else {
			failed++
		}
	}

	fmt.Fprintf(f.writer, "\nFiles: ")
	if passed > 0 {
		fmt.Fprintf(f.writer, "%s, ", green(fmt.Sprintf("%d passed", passed)))
	}
	if failed > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d failed", failed)))
	}
	fmt.Fprintf(f.writer, "%d total\n", len(results))
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n\n", bold("greq"), version)
}

func (f *ConsoleFormatter) FormatWarning(message string) {
	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n", yellow("warning:"), message)
}
