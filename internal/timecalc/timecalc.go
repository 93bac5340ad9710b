package timecalc

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DateLayout is the ISO calendar date used for entry dates.
	DateLayout = "2006-01-02"
	// MonthLayout is the year-month selector used by summaries.
	MonthLayout = "2006-01"
)

// ParseDate parses an ISO calendar date like "2024-03-01".
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

// ParseMonth parses a year-month selector like "2024-03".
func ParseMonth(s string) (time.Time, error) {
	t, err := time.Parse(MonthLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q (want YYYY-MM): %w", s, err)
	}
	return t, nil
}

// Today returns the ISO date of t.
func Today(t time.Time) string {
	return t.Format(DateLayout)
}

// CurrentMonth returns the year-month selector of t.
func CurrentMonth(t time.Time) string {
	return t.Format(MonthLayout)
}

// FormatMonth renders "2024-03" as "March 2024". Invalid input is returned as is.
func FormatMonth(month string) string {
	t, err := ParseMonth(month)
	if err != nil {
		return month
	}
	return t.Format("January 2006")
}

// FormatDate renders "2024-03-01" as "Fri, Mar 1". Invalid input is returned as is.
func FormatDate(date string) string {
	t, err := ParseDate(date)
	if err != nil {
		return date
	}
	return t.Format("Mon, Jan 2")
}

// FormatHours formats hours like "8h" or "7.5h".
func FormatHours(h decimal.Decimal) string {
	return h.String() + "h"
}

// FormatMoney formats an amount with two decimals, e.g. "$160.00".
func FormatMoney(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

// FormatTimestamp renders a creation instant in local time.
func FormatTimestamp(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}
