package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/abdul-hamid-achik/tally/packages/core/config"
	"github.com/spf13/cobra"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new tally project",
	Long: `Initialize a new tally project in the current directory.

This creates:
  - .tally.yaml         - Configuration file with the defaults spelled out
  - example.suite.yaml  - Example suite

Examples:
  tally init
  tally init --force`,
	Args: cobra.NoArgs,
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
}

const exampleSuite = `name: example
description: A few commands showing what tally reports
env:
  GREETING: hello

tests:
  - name: greets
    description: Prints a greeting
    command: echo "$GREETING, world"
    expect:
      exitCode: 0
      output: hello, world

  - name: reports-json
    command: 'echo ''{"status": "ok", "items": [1, 2, 3]}'''
    expect:
      json:
        status: ok
        items.#: 3
    record:
      status: json.status

  - name: uses-recorded-value
    command: test "{{reports-json.status}}" = ok

  - name: not-ready
    command: ./deploy.sh
    category: todo

  - name: later
    command: "true"
    skip: waiting on the staging database
`

func initCommand(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	configFile := filepath.Join(cwd, config.ConfigFilenames[0])
	exampleFile := filepath.Join(cwd, "example.suite.yaml")

	if !forceInit {
		for _, f := range []string{configFile, exampleFile} {
			if _, err := os.Stat(f); err == nil {
				return exitWith(ExitUsageError, fmt.Errorf("file already exists: %s (use --force to overwrite)", f))
			}
		}
	}

	if err := config.DefaultConfig().SaveConfig(configFile); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)

	if err := os.WriteFile(exampleFile, []byte(exampleSuite), 0644); err != nil {
		return fmt.Errorf("failed to create example file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", exampleFile)

	fmt.Fprintf(cmd.OutOrStdout(), "\ntally project initialized!\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Run 'tally run example.suite.yaml' to execute the example suite.\n")

	return nil
}
