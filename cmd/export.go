package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/hours-tracker/internal/model"
	"github.com/Tiliavir/hours-tracker/internal/server"
	"github.com/Tiliavir/hours-tracker/internal/summary"
	"github.com/Tiliavir/hours-tracker/internal/timecalc"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all workplaces and entries",
	Long: `Export all workplaces and entries. JSON exports are written to
hours-tracker-export-YYYY-MM-DD.json unless --output is given; CSV exports of
the entries go to stdout. Use --output - for stdout.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format: json, csv")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file, - for stdout")
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportFormat != "json" && exportFormat != "csv" {
		return userError(fmt.Errorf("unknown format %q (want json or csv)", exportFormat))
	}

	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	now := a.now()
	doc := a.store.Export(now)

	output := exportOutput
	if output == "" && exportFormat == "json" {
		output = server.ExportFileName(now)
	}

	var w io.Writer = a.out
	if output != "" && output != "-" {
		f, err := os.Create(output)
		if err != nil {
			return storageError(fmt.Errorf("creating export file: %w", err))
		}
		defer f.Close()
		w = f
	}

	switch exportFormat {
	case "csv":
		printCSV(w, doc)
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return storageError(fmt.Errorf("writing export: %w", err))
		}
	}

	if w != a.out {
		fmt.Fprintf(a.out, "Exported %d entries and %d workplaces to %s\n", len(doc.Entries), len(doc.Workplaces), output)
	}
	return nil
}

func printCSV(w io.Writer, doc model.Export) {
	fmt.Fprintln(w, "date,workplace,hours,notes,timestamp,earnings")
	for _, e := range doc.Entries {
		fmt.Fprintf(w, "%s,%s,%s,%s,%s,%s\n",
			csvEscape(e.Date),
			csvEscape(e.Workplace),
			e.Hours.String(),
			csvEscape(e.Notes),
			csvEscape(timecalc.FormatTimestamp(e.Timestamp)),
			summary.Earnings(e, doc.Workplaces).StringFixed(2),
		)
	}
}

// csvEscape wraps a field in quotes if it contains a comma, quote, or newline.
func csvEscape(s string) string {
	if !strings.ContainsAny(s, ",\"\n\r") {
		return s
	}
	// Escape internal double quotes by doubling them.
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
