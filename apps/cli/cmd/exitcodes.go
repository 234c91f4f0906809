package cmd

// Exit codes for the greq CLI
const (
	// ExitSuccess indicates every file passed its conditions
	ExitSuccess = 0

	// ExitFailure indicates one or more files failed
	ExitFailure = 1

	// ExitParseError indicates a file could not be parsed
	ExitParseError = 2

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitNetworkError indicates a network/connection error
	ExitNetworkError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)
