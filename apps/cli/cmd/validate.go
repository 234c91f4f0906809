package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sgchris/greq-sub000/packages/core/graph"
	"github.com/sgchris/greq-sub000/packages/core/parser"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file|directory> [file|directory...]",
	Short: "Check greq files for errors without sending requests",
	Long: `Parse greq files, resolve their extends and depends-on references,
and report any errors without executing requests.

Examples:
  greq validate api.greq
  greq validate ./requests/`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateCommand,
}

func validateCommand(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no .greq files found")
	}

	marker := markerFlag
	if marker == "" {
		marker = parser.DefaultCommentMarker
	}
	loader := graph.NewLoader(parser.New(parser.WithCommentMarker(marker)))

	hasErrors := false
	for _, file := range files {
		if _, err := loader.ResolveOrder(file); err != nil {
			fmt.Fprintf(cmd.OutOrStderr(), "Error in %s: %v\n", file, err)
			hasErrors = true
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s\n", file)
	}

	if hasErrors {
		return fmt.Errorf("validation failed")
	}
	return nil
}

func init() {
	validateCmd.Flags().StringVar(&markerFlag, "comment-marker", "", "Comment marker character, default #")
}
