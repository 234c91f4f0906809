// Package output formats execution results for the terminal or as a
// JSON report.
package output
