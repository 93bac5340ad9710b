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

var workplaceYes bool

var workplaceCmd = &cobra.Command{
	Use:     "workplace",
	Aliases: []string{"wp"},
	Short:   "Manage workplaces and their hourly rates",
}

var workplaceAddCmd = &cobra.Command{
	Use:   "add <name> <hourly-rate>",
	Short: "Add a workplace",
	Args:  cobra.ExactArgs(2),
	RunE:  runWorkplaceAdd,
}

var workplaceRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a workplace; its logged entries are kept",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkplaceRemove,
}

var workplaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workplaces with their total hours",
	Args:  cobra.NoArgs,
	RunE:  runWorkplaceList,
}

func init() {
	workplaceRemoveCmd.Flags().BoolVarP(&workplaceYes, "yes", "y", false, "Do not ask for confirmation")
	workplaceCmd.AddCommand(workplaceAddCmd, workplaceRemoveCmd, workplaceListCmd)
}

func runWorkplaceAdd(cmd *cobra.Command, args []string) error {
	rate, err := decimal.NewFromString(strings.TrimPrefix(args[1], "$"))
	if err != nil {
		return userError(fmt.Errorf("invalid hourly rate %q", args[1]))
	}

	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	w, err := a.store.AddWorkplace(args[0], rate)
	if err := a.checkStore(err); err != nil {
		return userError(err)
	}
	fmt.Fprintf(a.out, "Added workplace %s (%s/h)\n", w.Name, timecalc.FormatMoney(w.HourlyRate))
	a.autoSync(cmd.Context())
	return nil
}

func runWorkplaceRemove(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	w, ok := a.store.WorkplaceByName(args[0])
	if !ok {
		return userError(fmt.Errorf("workplace %q: %w", args[0], store.ErrNotFound))
	}
	confirmed := workplaceYes || a.confirm(fmt.Sprintf("Remove workplace %s? Logged entries are kept.", w.Name))
	err = a.store.RemoveWorkplace(w.ID, confirmed)
	if errors.Is(err, store.ErrConfirmationRequired) {
		fmt.Fprintln(a.out, "Cancelled.")
		return nil
	}
	if err := a.checkStore(err); err != nil {
		return userError(err)
	}
	fmt.Fprintf(a.out, "Removed workplace %s\n", w.Name)
	a.autoSync(cmd.Context())
	return nil
}

func runWorkplaceList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	totals := summary.WorkplaceTotals(a.store.Entries(), a.store.Workplaces())
	if len(totals) == 0 {
		fmt.Fprintln(a.out, "No workplaces yet. Add one with: hours workplace add <name> <rate>")
		return nil
	}
	fmt.Fprintf(a.out, "%-20s %10s %10s\n", "Workplace", "Rate", "Total")
	fmt.Fprintln(a.out, strings.Repeat("-", 42))
	for _, t := range totals {
		fmt.Fprintf(a.out, "%-20s %10s %10s\n", t.Workplace.Name, timecalc.FormatMoney(t.Workplace.HourlyRate), timecalc.FormatHours(t.Hours))
	}
	return nil
}
