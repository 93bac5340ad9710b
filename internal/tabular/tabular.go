// Package tabular describes the sheet layout mirrored to an external sync
// target and the operations such a target must support.
package tabular

import (
	"context"
	"fmt"
	"strings"
)

// Region is a named sheet of the sync target.
type Region struct {
	Title   string
	SheetID int
	Header  []string
}

// Columns returns the number of columns of the region.
func (r Region) Columns() int { return len(r.Header) }

// LastColumn returns the letter of the region's last column.
func (r Region) LastColumn() string { return ColumnName(r.Columns()) }

var (
	TimeEntries = Region{
		Title:   "Time Entries",
		SheetID: 0,
		Header:  []string{"Date", "Workplace", "Hours", "Notes", "Timestamp", "Earnings"},
	}
	Workplaces = Region{
		Title:   "Workplaces",
		SheetID: 1,
		Header:  []string{"Workplace", "Hourly Rate", "Total Hours"},
	}
	MonthlySummary = Region{
		Title:   "Monthly Summary",
		SheetID: 2,
		Header:  []string{"Month", "Workplace", "Hours", "Earnings", "Total"},
	}
)

// Regions lists every region in sheet order.
var Regions = []Region{TimeEntries, Workplaces, MonthlySummary}

// Range addresses rows of a region from FirstRow (1-based) onwards.
// Rows == 0 means open-ended.
type Range struct {
	Region   Region
	FirstRow int
	Rows     int
}

// From returns an open-ended range starting at row first.
func From(r Region, first int) Range {
	return Range{Region: r, FirstRow: first}
}

// Bounded returns a copy of rng limited to n rows.
func (rng Range) Bounded(n int) Range {
	rng.Rows = n
	return rng
}

// A1 renders the range in A1 notation, e.g. "Time Entries!A2:F" or
// "Monthly Summary!A1:E12". An open range starting at row 1 covers whole
// columns ("Monthly Summary!A:E").
func (rng Range) A1() string {
	last := rng.Region.LastColumn()
	switch {
	case rng.Rows > 0:
		return fmt.Sprintf("%s!A%d:%s%d", rng.Region.Title, rng.FirstRow, last, rng.FirstRow+rng.Rows-1)
	case rng.FirstRow <= 1:
		return fmt.Sprintf("%s!A:%s", rng.Region.Title, last)
	default:
		return fmt.Sprintf("%s!A%d:%s", rng.Region.Title, rng.FirstRow, last)
	}
}

// ColumnName converts a 1-based column number to its letter name.
func ColumnName(n int) string {
	var sb strings.Builder
	var buf []byte
	for n > 0 {
		n--
		buf = append(buf, byte('A'+n%26))
		n /= 26
	}
	for i := len(buf) - 1; i >= 0; i-- {
		sb.WriteByte(buf[i])
	}
	return sb.String()
}

// Target is a tabular store the coordinator mirrors data into.
type Target interface {
	// ID identifies the target, e.g. a spreadsheet id or workbook path.
	ID() string
	// Clear blanks every cell of rng.
	Clear(ctx context.Context, rng Range) error
	// Write stores rows starting at rng.FirstRow.
	Write(ctx context.Context, rng Range, rows [][]any) error
	// FormatHeader styles the first row of region.
	FormatHeader(ctx context.Context, region Region) error
}
