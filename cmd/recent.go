package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/hours-tracker/internal/model"
	"github.com/Tiliavir/hours-tracker/internal/summary"
	"github.com/Tiliavir/hours-tracker/internal/timecalc"
)

var recentCount int

var recentCmd = &cobra.Command{
	Use:     "recent",
	Aliases: []string{"list"},
	Short:   "List the most recently logged entries",
	Args:    cobra.NoArgs,
	RunE:    runRecent,
}

func init() {
	recentCmd.Flags().IntVarP(&recentCount, "count", "n", 10, "Number of entries to show")
}

func runRecent(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	entries := a.store.ListRecent(recentCount)
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "No entries yet. Log some with: hours log <workplace> <hours>")
		return nil
	}
	printEntries(a.out, entries, a.store.Workplaces())
	return nil
}

// printEntries prints a markdown table of entries.
func printEntries(w io.Writer, entries []model.TimeEntry, workplaces []model.Workplace) {
	fmt.Fprintln(w, "| ID | Date | Workplace | Hours | Earnings | Notes |")
	fmt.Fprintln(w, "|----|------|-----------|-------|----------|-------|")
	for _, e := range entries {
		fmt.Fprintf(w, "| %s | %s | %s | %s | %s | %s |\n",
			shortID(e.ID),
			e.Date,
			e.Workplace,
			timecalc.FormatHours(e.Hours),
			timecalc.FormatMoney(summary.Earnings(e, workplaces)),
			e.Notes,
		)
	}
}

// shortID abbreviates a UUID to its first block. remove accepts it as a prefix.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
