package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/sgchris/greq-sub000/packages/core/runner"
)

// JSONOutput is the complete machine-readable run report.
type JSONOutput struct {
	Summary    JSONSummary     `json:"summary"`
	Executions []JSONExecution `json:"executions"`
	Duration   float64         `json:"duration"`
	Time       string          `json:"time"`
}

type JSONSummary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// JSONExecution is one file's outcome.
type JSONExecution struct {
	ID               string        `json:"id"`
	File             string        `json:"file"`
	Success          bool          `json:"success"`
	StatusCode       int           `json:"statusCode,omitempty"`
	Latency          int64         `json:"latency,omitempty"`
	Duration         float64       `json:"duration"`
	FailedConditions []string      `json:"failedConditions,omitempty"`
	FailedDependency string        `json:"failedDependency,omitempty"`
	Error            string        `json:"error,omitempty"`
	Response         *JSONResponse `json:"response,omitempty"`
}

type JSONResponse struct {
	StatusCode   int               `json:"statusCode"`
	ReasonPhrase string            `json:"reasonPhrase"`
	Headers      map[string]string `json:"headers,omitempty"`
	Body         string            `json:"body,omitempty"`
}

// JSONFormatter accumulates results and writes one document on Flush.
type JSONFormatter struct {
	writer     io.Writer
	executions []JSONExecution
	verbose    bool
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer:     os.Stdout,
		executions: make([]JSONExecution, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

// JSONWithVerbose includes full responses in the report.
func JSONWithVerbose(v bool) JSONOption {
	return func(f *JSONFormatter) {
		f.verbose = v
	}
}

func (f *JSONFormatter) FormatResult(result *runner.ExecutionResult) {
	exec := JSONExecution{
		ID:               result.ID,
		File:             result.Path,
		Success:          result.Success,
		Duration:         float64(result.Duration.Milliseconds()),
		FailedConditions: result.FailedConditions,
		FailedDependency: result.FailedDependency,
	}
	if result.Err != nil {
		exec.Error = result.Err.Error()
	}
	if result.Response != nil {
		exec.StatusCode = result.Response.StatusCode
		exec.Latency = result.Response.DurationMs()
		if f.verbose {
			exec.Response = &JSONResponse{
				StatusCode:   result.Response.StatusCode,
				ReasonPhrase: result.Response.ReasonPhrase,
				Headers:      result.Response.Headers,
				Body:         result.Response.BodyString(),
			}
		}
	}
	f.executions = append(f.executions, exec)
}

// FormatSummary is a no-op; totals are part of the Flush document.
func (f *JSONFormatter) FormatSummary(results []*runner.ExecutionResult) {}

func (f *JSONFormatter) FormatError(err error) {
	f.executions = append(f.executions, JSONExecution{Error: err.Error()})
}

func (f *JSONFormatter) FormatHeader(version string) {
	// the JSON document carries no banner
}

// Flush writes the accumulated report.
func (f *JSONFormatter) Flush(totalDuration time.Duration) error {
	out := JSONOutput{
		Executions: f.executions,
		Duration:   float64(totalDuration.Milliseconds()),
		Time:       time.Now().Format(time.RFC3339),
	}
	for _, e := range f.executions {
		out.Summary.Total++
		if e.Success {
			out.Summary.Passed++
		} else {
			out.Summary.Failed++
		}
	}

	enc := json.NewEncoder(f.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
