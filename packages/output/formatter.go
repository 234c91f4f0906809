package output

import (
	"github.com/sgchris/greq-sub000/packages/core/runner"
)

// Formatter renders execution results to some destination.
type Formatter interface {
	FormatHeader(version string)
	FormatResult(result *runner.ExecutionResult)
	FormatSummary(results []*runner.ExecutionResult)
	FormatError(err error)
}
