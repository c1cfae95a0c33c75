package cmd

import (
	"fmt"

	"github.com/abdul-hamid-achik/tally/packages/core/suite"
	"github.com/spf13/cobra"
)

var listFilterFlag string

var listCmd = &cobra.Command{
	Use:   "list <file|directory>...",
	Short: "List the tests in suite files",
	Long: `List the tests defined in suite files, with the IDs they are reported
under.

Examples:
  tally list suite.yaml
  tally list ./suites/ -k login`,
	Args: cobra.MinimumNArgs(1),
	RunE: listCommand,
}

func init() {
	listCmd.Flags().StringVarP(&listFilterFlag, "filter", "k", "", "List only tests whose name matches the pattern")
}

func listCommand(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return exitWith(ExitUsageError, err)
	}

	if len(files) == 0 {
		return exitWith(ExitUsageError, fmt.Errorf("no suite files found"))
	}

	out := cmd.OutOrStdout()
	failed := false
	for _, file := range files {
		s, err := suite.Load(file)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error parsing %s: %v\n", file, err)
			failed = true
			continue
		}
		tests, err := s.Filter(listFilterFlag)
		if err != nil {
			return exitWith(ExitUsageError, err)
		}

		fmt.Fprintf(out, "\n%s (%s):\n", s.DisplayName(), file)
		for _, t := range tests {
			fmt.Fprintf(out, "  - %s::%s\n", s.DisplayName(), t.Name)
			if t.Description != "" {
				fmt.Fprintf(out, "    %s\n", t.Description)
			}
			switch {
			case t.Blocked != "":
				fmt.Fprintf(out, "    blocked: %s\n", t.Blocked)
			case t.Skip != "":
				fmt.Fprintf(out, "    skip: %s\n", t.Skip)
			}
		}
	}

	if failed {
		return exitWith(ExitParseError, nil)
	}
	return nil
}
