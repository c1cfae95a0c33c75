package cmd

import (
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/tally/packages/core/suite"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file|directory>...",
	Short: "Validate suite files without running them",
	Long: `Check suite files against the suite schema without executing them.

Examples:
  tally validate suite.yaml
  tally validate ./suites/`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateCommand,
}

func validateCommand(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return exitWith(ExitUsageError, err)
	}

	if len(files) == 0 {
		return exitWith(ExitUsageError, fmt.Errorf("no suite files found"))
	}

	hasErrors := false
	for _, file := range files {
		_, err := suite.Load(file)
		if err == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s\n", file)
			continue
		}
		hasErrors = true

		var verr *suite.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintf(cmd.ErrOrStderr(), "Invalid: %s\n", verr.Path)
			for _, e := range verr.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", e)
			}
			continue
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Error in %s: %v\n", file, err)
	}

	if hasErrors {
		return exitWith(ExitParseError, fmt.Errorf("validation failed"))
	}

	return nil
}
