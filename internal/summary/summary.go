// Package summary derives totals and monthly summaries from the stored
// entries. Everything here is a pure function of its inputs: rates are looked
// up at call time, so earnings follow the workplace's current rate.
package summary

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Tiliavir/hours-tracker/internal/model"
	"github.com/Tiliavir/hours-tracker/internal/timecalc"
)

var (
	// ErrNoEntries is returned when no entry falls in the selected month.
	ErrNoEntries = errors.New("no entries for month")
	// ErrInvalidMonth is returned for a selector that is not YYYY-MM.
	ErrInvalidMonth = errors.New("invalid month")
)

// Line is the per-workplace row of a summary.
type Line struct {
	Workplace string          `json:"workplace"`
	Hours     decimal.Decimal `json:"hours"`
	Rate      decimal.Decimal `json:"rate"`
	Earnings  decimal.Decimal `json:"earnings"`
}

// Summary aggregates one month of entries.
type Summary struct {
	Month         string          `json:"month"`
	Lines         []Line          `json:"lines"`
	TotalHours    decimal.Decimal `json:"totalHours"`
	TotalEarnings decimal.Decimal `json:"totalEarnings"`
}

// rates maps workplace names to their current hourly rate.
func rates(workplaces []model.Workplace) map[string]decimal.Decimal {
	m := make(map[string]decimal.Decimal, len(workplaces))
	for _, w := range workplaces {
		if _, seen := m[w.Name]; !seen {
			m[w.Name] = w.HourlyRate
		}
	}
	return m
}

// Rate returns the current hourly rate of the named workplace, or zero when
// it no longer exists.
func Rate(workplace string, workplaces []model.Workplace) decimal.Decimal {
	for _, w := range workplaces {
		if w.Name == workplace {
			return w.HourlyRate
		}
	}
	return decimal.Zero
}

// Earnings prices a single entry at its workplace's current rate.
func Earnings(e model.TimeEntry, workplaces []model.Workplace) decimal.Decimal {
	return e.Hours.Mul(Rate(e.Workplace, workplaces))
}

// Monthly summarises the entries whose date falls in month ("YYYY-MM").
// Lines keep the order in which each workplace first appears among the
// matching entries.
func Monthly(entries []model.TimeEntry, workplaces []model.Workplace, month string) (Summary, error) {
	if _, err := timecalc.ParseMonth(month); err != nil {
		return Summary{}, errors.Join(ErrInvalidMonth, err)
	}
	var selected []model.TimeEntry
	for _, e := range entries {
		if e.Month() == month {
			selected = append(selected, e)
		}
	}
	if len(selected) == 0 {
		return Summary{}, ErrNoEntries
	}
	return aggregate(month, selected, rates(workplaces)), nil
}

func aggregate(month string, entries []model.TimeEntry, rates map[string]decimal.Decimal) Summary {
	s := Summary{Month: month, TotalHours: decimal.Zero, TotalEarnings: decimal.Zero}
	index := map[string]int{}
	for _, e := range entries {
		i, seen := index[e.Workplace]
		if !seen {
			rate, ok := rates[e.Workplace]
			if !ok {
				rate = decimal.Zero
			}
			i = len(s.Lines)
			index[e.Workplace] = i
			s.Lines = append(s.Lines, Line{
				Workplace: e.Workplace,
				Hours:     decimal.Zero,
				Rate:      rate,
				Earnings:  decimal.Zero,
			})
		}
		earned := e.Hours.Mul(s.Lines[i].Rate)
		s.Lines[i].Hours = s.Lines[i].Hours.Add(e.Hours)
		s.Lines[i].Earnings = s.Lines[i].Earnings.Add(earned)
		s.TotalHours = s.TotalHours.Add(e.Hours)
		s.TotalEarnings = s.TotalEarnings.Add(earned)
	}
	return s
}

// Breakdown summarises every month present in entries, newest month first.
func Breakdown(entries []model.TimeEntry, workplaces []model.Workplace) []Summary {
	byMonth := map[string][]model.TimeEntry{}
	var months []string
	for _, e := range entries {
		m := e.Month()
		if _, seen := byMonth[m]; !seen {
			months = append(months, m)
		}
		byMonth[m] = append(byMonth[m], e)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(months)))

	r := rates(workplaces)
	out := make([]Summary, 0, len(months))
	for _, m := range months {
		out = append(out, aggregate(m, byMonth[m], r))
	}
	return out
}

// WorkplaceTotal is the all-time hours logged against one workplace.
type WorkplaceTotal struct {
	Workplace model.Workplace `json:"workplace"`
	Hours     decimal.Decimal `json:"hours"`
}

// WorkplaceTotals sums hours per current workplace, in workplace order.
// Entries are matched by exact workplace name.
func WorkplaceTotals(entries []model.TimeEntry, workplaces []model.Workplace) []WorkplaceTotal {
	out := make([]WorkplaceTotal, 0, len(workplaces))
	for _, w := range workplaces {
		total := decimal.Zero
		for _, e := range entries {
			if e.Workplace == w.Name {
				total = total.Add(e.Hours)
			}
		}
		out = append(out, WorkplaceTotal{Workplace: w, Hours: total})
	}
	return out
}
