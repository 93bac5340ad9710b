// Package syncer mirrors the local entries and workplaces into a tabular
// sync target.
package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Tiliavir/hours-tracker/internal/metrics"
	"github.com/Tiliavir/hours-tracker/internal/model"
	"github.com/Tiliavir/hours-tracker/internal/summary"
	"github.com/Tiliavir/hours-tracker/internal/tabular"
	"github.com/Tiliavir/hours-tracker/internal/timecalc"
)

// Push steps, as reported in SyncError.Step.
const (
	StepClear           = "clear"
	StepWriteEntries    = "write entries"
	StepWriteWorkplaces = "write workplaces"
	StepWriteSummary    = "write monthly summary"
	StepFormatSummary   = "format monthly summary"
)

// clearRanges are blanked before every push. The summary region is cleared
// including its header, which is rewritten with the breakdown.
var clearRanges = []tabular.Range{
	tabular.From(tabular.TimeEntries, 2),
	tabular.From(tabular.Workplaces, 2),
	tabular.From(tabular.MonthlySummary, 1),
}

// Attempt is the outcome of the last push.
type Attempt struct {
	At  time.Time
	Err error
}

// Coordinator pushes snapshots to the attached target. Pushes never overlap;
// a push requested while one is running is rejected with ErrSyncInProgress.
type Coordinator struct {
	sem *semaphore.Weighted
	log *slog.Logger
	now func() time.Time

	mu     sync.Mutex
	target tabular.Target
	last   *Attempt
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// WithClock sets the time source for attempt timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New returns a coordinator without a target.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		sem: semaphore.NewWeighted(1),
		log: slog.Default(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attach sets the sync target.
func (c *Coordinator) Attach(t tabular.Target) {
	c.mu.Lock()
	c.target = t
	c.mu.Unlock()
}

// Detach removes the sync target.
func (c *Coordinator) Detach() {
	c.mu.Lock()
	c.target = nil
	c.mu.Unlock()
}

// Connected reports whether a target is attached.
func (c *Coordinator) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target != nil
}

// LastAttempt returns the outcome of the most recent push, if any.
func (c *Coordinator) LastAttempt() (Attempt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return Attempt{}, false
	}
	return *c.last, true
}

// Push is PushSnapshot.
func (c *Coordinator) Push(ctx context.Context, entries []model.TimeEntry, workplaces []model.Workplace) error {
	return c.PushSnapshot(ctx, entries, workplaces)
}

// PushSnapshot overwrites every region of the target with the current data.
// Each region is fully rewritten, so retrying after a failure is safe.
func (c *Coordinator) PushSnapshot(ctx context.Context, entries []model.TimeEntry, workplaces []model.Workplace) error {
	c.mu.Lock()
	target := c.target
	c.mu.Unlock()
	if target == nil {
		err := &NotConnectedError{}
		c.record(err)
		metrics.RecordSyncPush("not_connected", 0)
		return err
	}

	if !c.sem.TryAcquire(1) {
		metrics.RecordSyncPush("rejected", 0)
		return ErrSyncInProgress
	}
	defer c.sem.Release(1)

	start := c.now()
	err := c.push(ctx, target, entries, workplaces)
	c.record(err)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		c.log.Error("sync failed", "target", target.ID(), "error", err)
		metrics.RecordSyncPush("failed", elapsed)
		return err
	}
	c.log.Info("data synced", "target", target.ID(), "entries", len(entries), "workplaces", len(workplaces))
	metrics.RecordSyncPush("success", elapsed)
	return nil
}

func (c *Coordinator) record(err error) {
	c.mu.Lock()
	c.last = &Attempt{At: c.now(), Err: err}
	c.mu.Unlock()
}

func (c *Coordinator) push(ctx context.Context, t tabular.Target, entries []model.TimeEntry, workplaces []model.Workplace) error {
	for _, rng := range clearRanges {
		if err := t.Clear(ctx, rng); err != nil {
			return &SyncError{Step: StepClear, Err: err}
		}
	}

	if rows := EntryRows(entries, workplaces); len(rows) > 0 {
		rng := tabular.From(tabular.TimeEntries, 2).Bounded(len(rows))
		if err := t.Write(ctx, rng, rows); err != nil {
			return &SyncError{Step: StepWriteEntries, Err: err}
		}
	}

	if rows := WorkplaceRows(entries, workplaces); len(rows) > 0 {
		rng := tabular.From(tabular.Workplaces, 2).Bounded(len(rows))
		if err := t.Write(ctx, rng, rows); err != nil {
			return &SyncError{Step: StepWriteWorkplaces, Err: err}
		}
	}

	// A header alone is not written.
	rows := SummaryRows(entries, workplaces)
	if len(rows) <= 1 {
		return nil
	}
	rng := tabular.From(tabular.MonthlySummary, 1).Bounded(len(rows))
	if err := t.Write(ctx, rng, rows); err != nil {
		return &SyncError{Step: StepWriteSummary, Err: err}
	}
	if err := t.FormatHeader(ctx, tabular.MonthlySummary); err != nil {
		return &SyncError{Step: StepFormatSummary, Err: err}
	}
	return nil
}

// EntryRows renders entries as Time Entries rows, with earnings at the
// current rate.
func EntryRows(entries []model.TimeEntry, workplaces []model.Workplace) [][]any {
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []any{
			e.Date,
			e.Workplace,
			e.Hours.InexactFloat64(),
			e.Notes,
			timecalc.FormatTimestamp(e.Timestamp),
			timecalc.FormatMoney(summary.Earnings(e, workplaces)),
		})
	}
	return rows
}

// WorkplaceRows renders workplaces with their all-time hours.
func WorkplaceRows(entries []model.TimeEntry, workplaces []model.Workplace) [][]any {
	totals := summary.WorkplaceTotals(entries, workplaces)
	rows := make([][]any, 0, len(totals))
	for _, t := range totals {
		rows = append(rows, []any{
			t.Workplace.Name,
			timecalc.FormatMoney(t.Workplace.HourlyRate),
			timecalc.FormatHours(t.Hours),
		})
	}
	return rows
}

// SummaryRows renders the monthly breakdown, newest month first: the header,
// then per month one row per workplace, a total row and a blank separator.
func SummaryRows(entries []model.TimeEntry, workplaces []model.Workplace) [][]any {
	header := make([]any, 0, tabular.MonthlySummary.Columns())
	for _, h := range tabular.MonthlySummary.Header {
		header = append(header, h)
	}
	rows := [][]any{header}
	for _, s := range summary.Breakdown(entries, workplaces) {
		for _, l := range s.Lines {
			rows = append(rows, []any{s.Month, l.Workplace, timecalc.FormatHours(l.Hours), timecalc.FormatMoney(l.Earnings), ""})
		}
		rows = append(rows,
			[]any{"", s.Month + " Total", timecalc.FormatHours(s.TotalHours), timecalc.FormatMoney(s.TotalEarnings), "✓"},
			[]any{"", "", "", "", ""},
		)
	}
	return rows
}
