package tabular_test

import (
	"testing"

	"github.com/Tiliavir/hours-tracker/internal/tabular"
)

func TestColumnName(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{1, "A"},
		{5, "E"},
		{26, "Z"},
		{27, "AA"},
		{52, "AZ"},
		{703, "AAA"},
	}
	for _, tt := range tests {
		if got := tabular.ColumnName(tt.n); got != tt.want {
			t.Errorf("ColumnName(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestRangeA1(t *testing.T) {
	tests := []struct {
		rng  tabular.Range
		want string
	}{
		{tabular.From(tabular.TimeEntries, 2), "Time Entries!A2:F"},
		{tabular.From(tabular.Workplaces, 2), "Workplaces!A2:C"},
		{tabular.From(tabular.MonthlySummary, 1), "Monthly Summary!A:E"},
		{tabular.From(tabular.TimeEntries, 2).Bounded(3), "Time Entries!A2:F4"},
		{tabular.From(tabular.MonthlySummary, 1).Bounded(12), "Monthly Summary!A1:E12"},
	}
	for _, tt := range tests {
		if got := tt.rng.A1(); got != tt.want {
			t.Errorf("A1() = %q, want %q", got, tt.want)
		}
	}
}
