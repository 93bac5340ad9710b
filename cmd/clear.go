package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/hours-tracker/internal/store"
)

var (
	clearYes       bool
	clearYesReally bool
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all workplaces and entries",
	Long: `Delete all workplaces, entries and the connected spreadsheet id.
This cannot be undone: you are asked twice unless both --yes and --yes-really
are given. The spreadsheet itself is left untouched.`,
	Args: cobra.NoArgs,
	RunE: runClear,
}

func init() {
	clearCmd.Flags().BoolVar(&clearYes, "yes", false, "Answer the first confirmation")
	clearCmd.Flags().BoolVar(&clearYesReally, "yes-really", false, "Answer the second confirmation")
}

func runClear(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	c := store.ClearConfirmation{Confirmed: clearYes, Reconfirmed: clearYesReally}
	if !c.Confirmed {
		c.Confirmed = a.confirm("Delete ALL workplaces and entries?")
	}
	if c.Confirmed && !c.Reconfirmed {
		c.Reconfirmed = a.confirm("This cannot be undone. Are you really sure?")
	}

	err = a.store.ClearAll(c)
	if errors.Is(err, store.ErrConfirmationRequired) {
		fmt.Fprintln(a.out, "Cancelled.")
		return nil
	}
	if store.IsStorageWarning(err) {
		// Data that could not be removed from disk comes back on the next run.
		return storageError(err)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "All data cleared.")
	return nil
}
