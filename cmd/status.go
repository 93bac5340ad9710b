package cmd

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Tiliavir/hours-tracker/internal/summary"
	"github.com/Tiliavir/hours-tracker/internal/timecalc"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show today's and this month's totals and the sync target",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	now := a.now()
	entries := a.store.Entries()
	workplaces := a.store.Workplaces()

	today := timecalc.Today(now)
	todayHours := decimal.Zero
	for _, e := range entries {
		if e.Date == today {
			todayHours = todayHours.Add(e.Hours)
		}
	}

	fmt.Fprintf(a.out, "Data: %s\n", a.base)
	fmt.Fprintf(a.out, "Workplaces: %d, entries: %d\n", len(workplaces), len(entries))
	fmt.Fprintf(a.out, "Today: %s logged.\n", timecalc.FormatHours(todayHours))

	month := timecalc.CurrentMonth(now)
	s, err := summary.Monthly(entries, workplaces, month)
	switch {
	case errors.Is(err, summary.ErrNoEntries):
		fmt.Fprintf(a.out, "%s: nothing logged yet.\n", timecalc.FormatMonth(month))
	case err != nil:
		return err
	default:
		fmt.Fprintf(a.out, "%s: %s, %s\n", timecalc.FormatMonth(month), timecalc.FormatHours(s.TotalHours), timecalc.FormatMoney(s.TotalEarnings))
	}

	if id := a.store.SpreadsheetID(); id != "" {
		fmt.Fprintf(a.out, "Sync: %s target %s\n", a.cfg.Sheets.Target, id)
	} else {
		fmt.Fprintln(a.out, "Sync: not connected (run: hours sheets connect)")
	}
	return nil
}
