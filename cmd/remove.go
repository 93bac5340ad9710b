package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/hours-tracker/internal/model"
	"github.com/Tiliavir/hours-tracker/internal/store"
	"github.com/Tiliavir/hours-tracker/internal/timecalc"
)

var removeYes bool

var removeCmd = &cobra.Command{
	Use:   "remove <entry-id>",
	Short: "Remove a time entry (the id may be abbreviated as shown by recent)",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

func init() {
	removeCmd.Flags().BoolVarP(&removeYes, "yes", "y", false, "Do not ask for confirmation")
}

func runRemove(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	e, err := findEntry(a.store.Entries(), args[0])
	if err != nil {
		return userError(err)
	}
	question := fmt.Sprintf("Remove %s at %s on %s?", timecalc.FormatHours(e.Hours), e.Workplace, timecalc.FormatDate(e.Date))
	confirmed := removeYes || a.confirm(question)
	err = a.store.RemoveEntry(e.ID, confirmed)
	if errors.Is(err, store.ErrConfirmationRequired) {
		fmt.Fprintln(a.out, "Cancelled.")
		return nil
	}
	if err := a.checkStore(err); err != nil {
		return userError(err)
	}
	fmt.Fprintln(a.out, "Entry removed.")
	a.autoSync(cmd.Context())
	return nil
}

// findEntry resolves a full id or a unique id prefix.
func findEntry(entries []model.TimeEntry, id string) (model.TimeEntry, error) {
	if id == "" {
		return model.TimeEntry{}, errors.New("entry id is required")
	}
	var matches []model.TimeEntry
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
		if strings.HasPrefix(e.ID, id) {
			matches = append(matches, e)
		}
	}
	switch len(matches) {
	case 0:
		return model.TimeEntry{}, fmt.Errorf("entry %q: %w", id, store.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return model.TimeEntry{}, fmt.Errorf("entry id %q is ambiguous (%d matches)", id, len(matches))
	}
}
