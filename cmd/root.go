package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	dataDir string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "hours",
	Short: "hours – an offline-first tracker for hours worked per workplace",
	Long: `hours records the hours you work at each workplace, summarises them
per month with earnings, and mirrors everything into a spreadsheet.
All data is stored as JSON files in ~/.hours/.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitError carries the process exit code for an error: 1 for user errors,
// 2 for storage errors.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func userError(err error) error { return &exitError{code: 1, err: err} }

func storageError(err error) error { return &exitError{code: 2, err: err} }

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

// Execute is the entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

func init() {
	// Hours and rates are written as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default ~/.hours)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log informational messages to stderr")

	rootCmd.AddCommand(workplaceCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(recentCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sheetsCmd)
	rootCmd.AddCommand(serveCmd)
}
