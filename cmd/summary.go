package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/hours-tracker/internal/summary"
	"github.com/Tiliavir/hours-tracker/internal/timecalc"
)

var (
	summaryMonth  string
	summaryAll    bool
	summaryFormat string
)

var summaryCmd = &cobra.Command{
	Use:     "summary",
	Aliases: []string{"report"},
	Short:   "Show hours and earnings per workplace for a month",
	Args:    cobra.NoArgs,
	RunE:    runSummary,
}

func init() {
	summaryCmd.Flags().StringVar(&summaryMonth, "month", "", "Month to summarise (YYYY-MM, default current month)")
	summaryCmd.Flags().BoolVar(&summaryAll, "all", false, "Summarise every month, newest first")
	summaryCmd.Flags().StringVar(&summaryFormat, "format", "md", "Output format: md, csv, json")
}

func runSummary(cmd *cobra.Command, args []string) error {
	switch summaryFormat {
	case "md", "csv", "json":
	default:
		return userError(fmt.Errorf("unknown format %q (want md, csv or json)", summaryFormat))
	}

	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	var sums []summary.Summary
	if summaryAll {
		sums = summary.Breakdown(a.store.Entries(), a.store.Workplaces())
	} else {
		month := summaryMonth
		if month == "" {
			month = timecalc.CurrentMonth(a.now())
		}
		s, err := summary.Monthly(a.store.Entries(), a.store.Workplaces(), month)
		if errors.Is(err, summary.ErrNoEntries) {
			fmt.Fprintf(a.out, "No entries for %s.\n", timecalc.FormatMonth(month))
			return nil
		}
		if err != nil {
			return userError(err)
		}
		sums = []summary.Summary{s}
	}

	switch summaryFormat {
	case "json":
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		if summaryAll {
			return enc.Encode(sums)
		}
		return enc.Encode(sums[0])
	case "csv":
		printSummaryCSV(a.out, sums)
	default:
		if len(sums) == 0 {
			fmt.Fprintln(a.out, "No entries yet.")
		}
		for i, s := range sums {
			if i > 0 {
				fmt.Fprintln(a.out)
			}
			printSummary(a.out, s)
		}
	}
	return nil
}

func printSummary(w io.Writer, s summary.Summary) {
	fmt.Fprintln(w, timecalc.FormatMonth(s.Month))
	fmt.Fprintln(w, "------------------------------------------------")
	for _, l := range s.Lines {
		fmt.Fprintf(w, "%-20s%10s %8s/h %12s\n",
			l.Workplace, timecalc.FormatHours(l.Hours), timecalc.FormatMoney(l.Rate), timecalc.FormatMoney(l.Earnings))
	}
	fmt.Fprintln(w, "------------------------------------------------")
	fmt.Fprintf(w, "%-20s%10s %10s %12s\n", "Total", timecalc.FormatHours(s.TotalHours), "", timecalc.FormatMoney(s.TotalEarnings))
}

func printSummaryCSV(w io.Writer, sums []summary.Summary) {
	fmt.Fprintln(w, "month,workplace,hours,rate,earnings")
	for _, s := range sums {
		for _, l := range s.Lines {
			fmt.Fprintf(w, "%s,%s,%s,%s,%s\n",
				s.Month, csvEscape(l.Workplace), l.Hours.String(), l.Rate.StringFixed(2), l.Earnings.StringFixed(2))
		}
	}
}
