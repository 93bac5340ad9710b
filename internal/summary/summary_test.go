package summary_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/hours-tracker/internal/model"
	"github.com/Tiliavir/hours-tracker/internal/summary"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func entry(date, workplace, hours string) model.TimeEntry {
	return model.TimeEntry{ID: date + workplace, Date: date, Workplace: workplace, Hours: d(hours)}
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(d(want)), "got %s, want %s", got, want)
}

func TestMonthlyScenario(t *testing.T) {
	workplaces := []model.Workplace{{ID: "w1", Name: "Acme", HourlyRate: d("20.00")}}
	entries := []model.TimeEntry{entry("2024-03-01", "Acme", "8")}

	s, err := summary.Monthly(entries, workplaces, "2024-03")
	require.NoError(t, err)
	require.Len(t, s.Lines, 1)
	assert.Equal(t, "Acme", s.Lines[0].Workplace)
	assertDecimal(t, "8", s.Lines[0].Hours)
	assertDecimal(t, "160.00", s.Lines[0].Earnings)
	assertDecimal(t, "8", s.TotalHours)
	assertDecimal(t, "160", s.TotalEarnings)
}

func TestMonthlyFiltersAndOrders(t *testing.T) {
	workplaces := []model.Workplace{
		{Name: "Zeta", HourlyRate: d("10")},
		{Name: "Acme", HourlyRate: d("20")},
	}
	entries := []model.TimeEntry{
		entry("2024-03-09", "Zeta", "2"),
		entry("2024-02-28", "Acme", "9"),
		entry("2024-03-02", "Acme", "4"),
		entry("2024-03-01", "Zeta", "1.5"),
	}

	s, err := summary.Monthly(entries, workplaces, "2024-03")
	require.NoError(t, err)
	require.Len(t, s.Lines, 2)
	// First-occurrence order, not alphabetical.
	assert.Equal(t, "Zeta", s.Lines[0].Workplace)
	assert.Equal(t, "Acme", s.Lines[1].Workplace)
	assertDecimal(t, "3.5", s.Lines[0].Hours)
	assertDecimal(t, "35", s.Lines[0].Earnings)
	assertDecimal(t, "4", s.Lines[1].Hours)
	assertDecimal(t, "80", s.Lines[1].Earnings)
	assertDecimal(t, "7.5", s.TotalHours)
	assertDecimal(t, "115", s.TotalEarnings)
}

func TestMonthlyNoEntries(t *testing.T) {
	entries := []model.TimeEntry{entry("2024-02-01", "Acme", "8")}
	_, err := summary.Monthly(entries, nil, "2024-03")
	assert.ErrorIs(t, err, summary.ErrNoEntries)

	_, err = summary.Monthly(entries, nil, "March")
	assert.ErrorIs(t, err, summary.ErrInvalidMonth)
}

func TestMonthlyIsIdempotent(t *testing.T) {
	workplaces := []model.Workplace{{Name: "Acme", HourlyRate: d("20")}}
	entries := []model.TimeEntry{entry("2024-03-01", "Acme", "8"), entry("2024-03-02", "Acme", "2")}

	first, err := summary.Monthly(entries, workplaces, "2024-03")
	require.NoError(t, err)
	second, err := summary.Monthly(entries, workplaces, "2024-03")
	require.NoError(t, err)

	assert.Equal(t, first.Month, second.Month)
	require.Len(t, second.Lines, len(first.Lines))
	assertDecimal(t, first.TotalEarnings.String(), second.TotalEarnings)
	assertDecimal(t, first.Lines[0].Hours.String(), second.Lines[0].Hours)
	// Inputs are untouched.
	assertDecimal(t, "8", entries[0].Hours)
	assertDecimal(t, "20", workplaces[0].HourlyRate)
}

func TestMonthlyFollowsCurrentRate(t *testing.T) {
	workplaces := []model.Workplace{{Name: "Acme", HourlyRate: d("20")}}
	entries := []model.TimeEntry{entry("2024-03-01", "Acme", "8")}

	before, err := summary.Monthly(entries, workplaces, "2024-03")
	require.NoError(t, err)
	assertDecimal(t, "160", before.TotalEarnings)

	workplaces[0].HourlyRate = d("25")
	after, err := summary.Monthly(entries, workplaces, "2024-03")
	require.NoError(t, err)
	assertDecimal(t, "200", after.TotalEarnings)
}

func TestMonthlyRemovedWorkplaceEarnsNothing(t *testing.T) {
	entries := []model.TimeEntry{entry("2024-03-01", "Acme", "5")}

	s, err := summary.Monthly(entries, nil, "2024-03")
	require.NoError(t, err)
	require.Len(t, s.Lines, 1)
	assertDecimal(t, "5", s.Lines[0].Hours)
	assertDecimal(t, "0", s.Lines[0].Earnings)
	assertDecimal(t, "0.00", s.TotalEarnings)
}

func TestBreakdown(t *testing.T) {
	workplaces := []model.Workplace{{Name: "Acme", HourlyRate: d("10")}}
	entries := []model.TimeEntry{
		entry("2024-01-15", "Acme", "1"),
		entry("2024-03-01", "Acme", "2"),
		entry("2023-12-31", "Gone", "3"),
		entry("2024-03-02", "Acme", "4"),
	}

	months := summary.Breakdown(entries, workplaces)
	require.Len(t, months, 3)
	assert.Equal(t, "2024-03", months[0].Month)
	assert.Equal(t, "2024-01", months[1].Month)
	assert.Equal(t, "2023-12", months[2].Month)
	assertDecimal(t, "6", months[0].TotalHours)
	assertDecimal(t, "60", months[0].TotalEarnings)
	assertDecimal(t, "0", months[2].TotalEarnings)

	assert.Empty(t, summary.Breakdown(nil, workplaces))
}

func TestWorkplaceTotals(t *testing.T) {
	workplaces := []model.Workplace{
		{Name: "Acme", HourlyRate: d("10")},
		{Name: "Beta", HourlyRate: d("12")},
	}
	entries := []model.TimeEntry{
		entry("2024-01-15", "Acme", "1"),
		entry("2024-03-01", "acme", "2"),
		entry("2024-03-02", "Acme", "4.5"),
	}

	totals := summary.WorkplaceTotals(entries, workplaces)
	require.Len(t, totals, 2)
	assertDecimal(t, "5.5", totals[0].Hours)
	assertDecimal(t, "0", totals[1].Hours)

	assertDecimal(t, "45", summary.Earnings(entries[2], workplaces))
	assertDecimal(t, "0", summary.Earnings(entries[1], workplaces))
}
