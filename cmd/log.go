package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Tiliavir/hours-tracker/internal/store"
	"github.com/Tiliavir/hours-tracker/internal/summary"
	"github.com/Tiliavir/hours-tracker/internal/timecalc"
)

var (
	logDate    string
	logNotes   string
	logReplace bool
)

var logCmd = &cobra.Command{
	Use:   "log <workplace> <hours>",
	Short: "Log hours worked at a workplace",
	Long: `Log hours worked at a workplace on a day (default today).
Only one entry per workplace and day is kept: logging again asks whether to
replace the existing entry.`,
	Args: cobra.ExactArgs(2),
	RunE: runLog,
}

func init() {
	logCmd.Flags().StringVar(&logDate, "date", "", "Date worked (YYYY-MM-DD, default today)")
	logCmd.Flags().StringVar(&logNotes, "notes", "", "Optional notes")
	logCmd.Flags().BoolVar(&logReplace, "replace", false, "Replace an existing entry without asking")
}

func runLog(cmd *cobra.Command, args []string) error {
	hours, err := decimal.NewFromString(strings.TrimSuffix(args[1], "h"))
	if err != nil {
		return userError(fmt.Errorf("invalid hours %q", args[1]))
	}

	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	date := logDate
	if date == "" {
		date = timecalc.Today(a.now())
	}
	in := store.EntryInput{Date: date, Workplace: args[0], Hours: hours, Notes: logNotes}
	if w, ok := a.store.WorkplaceByName(args[0]); ok {
		in.Workplace = w.Name
	}

	e, err := a.store.LogEntry(in, logReplace)
	var conflict *store.ConflictError
	if errors.As(err, &conflict) {
		question := fmt.Sprintf("An entry for %s on %s already exists (%s). Replace it?",
			conflict.Existing.Workplace, timecalc.FormatDate(conflict.Existing.Date), timecalc.FormatHours(conflict.Existing.Hours))
		if !a.confirm(question) {
			fmt.Fprintln(a.out, "Kept the existing entry.")
			return nil
		}
		e, err = a.store.LogEntry(in, true)
	}
	if err := a.checkStore(err); err != nil {
		return userError(err)
	}

	earnings := summary.Earnings(e, a.store.Workplaces())
	fmt.Fprintf(a.out, "Logged %s at %s on %s (%s)\n",
		timecalc.FormatHours(e.Hours), e.Workplace, timecalc.FormatDate(e.Date), timecalc.FormatMoney(earnings))
	a.autoSync(cmd.Context())
	return nil
}
