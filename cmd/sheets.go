package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/hours-tracker/internal/sheets"
	"github.com/Tiliavir/hours-tracker/internal/syncer"
	"github.com/Tiliavir/hours-tracker/internal/tabular"
)

var sheetsSignOut bool

var sheetsCmd = &cobra.Command{
	Use:   "sheets",
	Short: "Mirror your data into Google Sheets or a local Excel workbook",
}

var sheetsConnectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Sign in and create (or reopen) the spreadsheet, then sync",
	Args:  cobra.NoArgs,
	RunE:  runSheetsConnect,
}

var sheetsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push all entries, workplaces and monthly summaries to the spreadsheet",
	Args:  cobra.NoArgs,
	RunE:  runSheetsSync,
}

var sheetsDisconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Forget the connected spreadsheet",
	Args:  cobra.NoArgs,
	RunE:  runSheetsDisconnect,
}

func init() {
	sheetsDisconnectCmd.Flags().BoolVar(&sheetsSignOut, "sign-out", false, "Also delete the stored Google token")
	sheetsCmd.AddCommand(sheetsConnectCmd, sheetsSyncCmd, sheetsDisconnectCmd)
}

func runSheetsConnect(cmd *cobra.Command, args []string) error {
	return sheetsPush(cmd, true)
}

func runSheetsSync(cmd *cobra.Command, args []string) error {
	return sheetsPush(cmd, false)
}

func sheetsPush(cmd *cobra.Command, interactive bool) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	target, err := a.connect(ctx, interactive, nil)
	if err != nil {
		return userError(err)
	}
	if interactive {
		fmt.Fprintf(a.out, "Connected to %s\n", targetLocation(target))
	}

	fmt.Fprintln(a.out, "Syncing...")
	if err := a.push(ctx); err != nil {
		var se *syncer.SyncError
		if errors.As(err, &se) {
			return fmt.Errorf("sync failed while trying to %s: %w", se.Step, se.Err)
		}
		return userError(err)
	}
	last, _ := a.sync.LastAttempt()
	fmt.Fprintf(a.out, "Synced %d entries and %d workplaces to %s at %s\n",
		len(a.store.Entries()), len(a.store.Workplaces()), targetLocation(target), last.At.Format("15:04:05"))
	return nil
}

func runSheetsDisconnect(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.SetSpreadsheetID(""); err != nil {
		return storageError(err)
	}
	if sheetsSignOut {
		if err := os.Remove(sheets.TokenFilePath(a.base)); err != nil && !os.IsNotExist(err) {
			return storageError(fmt.Errorf("removing token: %w", err))
		}
	}
	fmt.Fprintln(a.out, "Disconnected. The spreadsheet itself was not deleted.")
	return nil
}

// targetLocation is where a user can open the target.
func targetLocation(t tabular.Target) string {
	if u, ok := t.(interface{ URL() string }); ok {
		return u.URL()
	}
	return t.ID()
}
