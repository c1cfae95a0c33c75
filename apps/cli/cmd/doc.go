// Package cmd implements the tally CLI commands using Cobra.
//
// Available commands:
//   - run: Run suite files and report every command as a test
//   - validate: Check suite files against the schema without running them
//   - list: Display the tests a suite defines
//   - history: Show previous runs recorded in the history database
//   - init: Create a config file and an example suite
//   - completion: Generate shell completion scripts
//   - version: Show tally version information
//
// Output capture, verbosity, structured reports, notifications, metrics
// and run history are all driven by flags of the run command, with
// defaults from .tally.yaml and TALLY_* environment variables.
package cmd
