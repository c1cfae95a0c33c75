package cmd

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/tally/packages/core/config"
	"github.com/abdul-hamid-achik/tally/packages/history"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var (
	historyPathFlag  string
	historyLimitFlag int
	historyPruneFlag int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded runs",
	Long: `Show the runs recorded by "tally run --history", newest first.

Examples:
  tally history --db .tally.db
  tally history --db .tally.db -n 50
  tally history --db .tally.db --prune 100`,
	Args: cobra.NoArgs,
	RunE: historyCommand,
}

func init() {
	historyCmd.Flags().StringVar(&historyPathFlag, "db", getEnvString("TALLY_HISTORY", ""), "History database (default: history from the config file) (env: TALLY_HISTORY)")
	historyCmd.Flags().IntVarP(&historyLimitFlag, "limit", "n", 20, "Number of runs to show (0 shows all)")
	historyCmd.Flags().IntVar(&historyPruneFlag, "prune", -1, "Delete all but the newest N runs")
	historyCmd.Flags().StringVar(&configFlag, "config", getEnvString("TALLY_CONFIG", ""), "Path to config file (env: TALLY_CONFIG)")
}

func historyCommand(cmd *cobra.Command, args []string) error {
	path := historyPathFlag
	if path == "" {
		cfg, err := config.LoadConfig(configFlag)
		if err != nil {
			return exitWith(ExitConfigError, err)
		}
		path = cfg.History
	}
	if path == "" {
		return exitWith(ExitUsageError, errors.New("no history database: pass --db or set history in the config file"))
	}

	store, err := history.Open(path)
	if err != nil {
		return exitWith(ExitConfigError, err)
	}
	defer store.Close()

	ctx := cmd.Context()
	if historyPruneFlag >= 0 {
		n, err := store.Prune(ctx, historyPruneFlag)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d run(s)\n", n)
		return nil
	}

	runs, err := store.List(ctx, historyLimitFlag)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetTitle(fmt.Sprintf("Run history (%s)", path))
	t.AppendHeader(table.Row{"Run", "Started", "Duration", "Tests", "Summary", "Status"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Summary", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
	})

	failed := 0
	for _, r := range runs {
		status := "OK"
		if !r.Successful {
			status = "FAILED"
			failed++
		}
		t.AppendRow(table.Row{
			shortID(r.ID),
			r.Started.Local().Format(time.DateTime),
			r.Duration().Round(time.Millisecond),
			r.TestsRun,
			formatSummary(r.Summary),
			status,
		})
	}

	t.SetStyle(table.StyleLight)
	t.AppendFooter(table.Row{"TOTAL", "", "", len(runs), "", fmt.Sprintf("%d failed", failed)})
	t.Render()
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatSummary renders label counts the way the summary line does.
func formatSummary(summary map[string]int) string {
	labels := make([]string, 0, len(summary))
	for label := range summary {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	parts := make([]string, 0, len(labels))
	for _, label := range labels {
		parts = append(parts, fmt.Sprintf("%s=%d", label, summary[label]))
	}
	return strings.Join(parts, ", ")
}
