package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Workplace is a place of work with the hourly rate it currently pays.
type Workplace struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	HourlyRate decimal.Decimal `json:"hourlyRate"`
}

// TimeEntry records the hours worked at a workplace on one calendar day.
// Workplace references the workplace by name, not by id.
type TimeEntry struct {
	ID        string          `json:"id"`
	Date      string          `json:"date"`
	Workplace string          `json:"workplace"`
	Hours     decimal.Decimal `json:"hours"`
	Notes     string          `json:"notes"`
	Timestamp time.Time       `json:"timestamp"`
	Synced    bool            `json:"synced"`
}

// Month returns the YYYY-MM prefix of the entry date.
func (e TimeEntry) Month() string {
	if len(e.Date) < 7 {
		return e.Date
	}
	return e.Date[:7]
}

// Export is the document produced by a data export.
type Export struct {
	Workplaces []Workplace `json:"workplaces"`
	Entries    []TimeEntry `json:"entries"`
	ExportDate time.Time   `json:"exportDate"`
}
