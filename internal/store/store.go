// Package store holds workplaces and time entries and persists them to a
// key-value storage medium.
package store

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Tiliavir/hours-tracker/internal/model"
	"github.com/Tiliavir/hours-tracker/internal/storage"
	"github.com/Tiliavir/hours-tracker/internal/timecalc"
)

var maxHours = decimal.NewFromInt(24)

// Store is the in-memory source of truth for one session. Every mutation
// writes the full collections back to the medium.
type Store struct {
	mu            sync.RWMutex
	medium        storage.Medium
	log           *slog.Logger
	now           func() time.Time
	newID         func() string
	workplaces    []model.Workplace
	entries       []model.TimeEntry
	spreadsheetID string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for load and persist warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithClock overrides the clock used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDs overrides record id generation.
func WithIDs(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// quarantiner is implemented by media that can move undecodable values aside.
type quarantiner interface {
	Quarantine(key string) (string, error)
}

// Open loads the persisted collections from medium. Unreadable or corrupt
// values load as empty and are logged, never returned as errors.
func Open(medium storage.Medium, opts ...Option) *Store {
	s := &Store{
		medium: medium,
		log:    slog.Default(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.workplaces = loadJSON[[]model.Workplace](s, storage.KeyWorkplaces)
	s.entries = loadJSON[[]model.TimeEntry](s, storage.KeyEntries)
	s.spreadsheetID = loadJSON[string](s, storage.KeySpreadsheetID)
	if s.workplaces == nil {
		s.workplaces = []model.Workplace{}
	}
	if s.entries == nil {
		s.entries = []model.TimeEntry{}
	}
	return s
}

func loadJSON[T any](s *Store, key string) T {
	var v T
	raw, err := s.medium.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return v
	}
	if err != nil {
		s.log.Warn("could not load data, starting empty", "key", key, "err", err)
		return v
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		s.log.Warn("corrupt data, starting empty", "key", key, "err", err)
		if q, ok := s.medium.(quarantiner); ok {
			if backup, qerr := q.Quarantine(key); qerr == nil {
				s.log.Warn("backed up corrupt data", "key", key, "path", backup)
			}
		}
		var zero T
		return zero
	}
	return v
}

// persist writes value under key. Callers hold the write lock.
func (s *Store) persist(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return &StorageError{Key: key, Err: err}
	}
	if err := s.medium.Set(key, string(data)); err != nil {
		s.log.Error("could not save data", "key", key, "err", err)
		return &StorageError{Key: key, Err: err}
	}
	return nil
}

// AddWorkplace creates a workplace. Names are unique ignoring case.
// A *StorageError return accompanies a valid record.
func (s *Store) AddWorkplace(name string, hourlyRate decimal.Decimal) (model.Workplace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Workplace{}, &ValidationError{Field: "name", Reason: "workplace name is required"}
	}
	if hourlyRate.IsNegative() {
		return model.Workplace{}, &ValidationError{Field: "hourlyRate", Reason: "hourly rate must not be negative"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.findWorkplaceByName(name); ok {
		return model.Workplace{}, &ValidationError{Field: "name", Reason: "workplace already exists"}
	}

	w := model.Workplace{ID: s.newID(), Name: name, HourlyRate: hourlyRate}
	s.workplaces = append(s.workplaces, w)
	return w, s.persist(storage.KeyWorkplaces, s.workplaces)
}

func (s *Store) findWorkplaceByName(name string) (model.Workplace, bool) {
	for _, w := range s.workplaces {
		if strings.EqualFold(w.Name, name) {
			return w, true
		}
	}
	return model.Workplace{}, false
}

// WorkplaceByName looks a workplace up ignoring case.
func (s *Store) WorkplaceByName(name string) (model.Workplace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findWorkplaceByName(strings.TrimSpace(name))
}

// RemoveWorkplace deletes a workplace by id. Entries logged against it are kept.
func (s *Store) RemoveWorkplace(id string, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, w := range s.workplaces {
		if w.ID == id {
			s.workplaces = append(s.workplaces[:i:i], s.workplaces[i+1:]...)
			return s.persist(storage.KeyWorkplaces, s.workplaces)
		}
	}
	return ErrNotFound
}

// EntryInput is the caller-supplied part of a new time entry.
type EntryInput struct {
	Date      string
	Workplace string
	Hours     decimal.Decimal
	Notes     string
}

// LogEntry records hours for a workplace on a date. If an entry already exists
// for that date and workplace, LogEntry returns a *ConflictError unless
// replace is set, in which case the old entry is dropped. New entries go to
// the head of the list.
func (s *Store) LogEntry(in EntryInput, replace bool) (model.TimeEntry, error) {
	in.Workplace = strings.TrimSpace(in.Workplace)
	if in.Workplace == "" {
		return model.TimeEntry{}, &ValidationError{Field: "workplace", Reason: "please select a workplace"}
	}
	if _, err := timecalc.ParseDate(in.Date); err != nil {
		return model.TimeEntry{}, &ValidationError{Field: "date", Reason: err.Error()}
	}
	if !in.Hours.IsPositive() || in.Hours.GreaterThan(maxHours) {
		return model.TimeEntry{}, &ValidationError{Field: "hours", Reason: "hours must be between 0 and 24"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.entries
	for i, e := range s.entries {
		if e.Date == in.Date && e.Workplace == in.Workplace {
			if !replace {
				return model.TimeEntry{}, &ConflictError{Existing: e}
			}
			entries = append(s.entries[:i:i], s.entries[i+1:]...)
			break
		}
	}

	entry := model.TimeEntry{
		ID:        s.newID(),
		Date:      in.Date,
		Workplace: in.Workplace,
		Hours:     in.Hours,
		Notes:     in.Notes,
		Timestamp: s.now().UTC(),
	}
	s.entries = append([]model.TimeEntry{entry}, entries...)
	return entry, s.persist(storage.KeyEntries, s.entries)
}

// RemoveEntry deletes a time entry by id.
func (s *Store) RemoveEntry(id string, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if e.ID == id {
			s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			return s.persist(storage.KeyEntries, s.entries)
		}
	}
	return ErrNotFound
}

// ListRecent returns up to n entries, most recently logged first.
func (s *Store) ListRecent(n int) []model.TimeEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 {
		return []model.TimeEntry{}
	}
	if n > len(s.entries) {
		n = len(s.entries)
	}
	out := make([]model.TimeEntry, n)
	copy(out, s.entries[:n])
	return out
}

// Entries returns a copy of all entries in insertion order.
func (s *Store) Entries() []model.TimeEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.TimeEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Workplaces returns a copy of all workplaces in creation order.
func (s *Store) Workplaces() []model.Workplace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Workplace, len(s.workplaces))
	copy(out, s.workplaces)
	return out
}

// ClearConfirmation carries the two separate confirmations ClearAll needs.
type ClearConfirmation struct {
	Confirmed   bool
	Reconfirmed bool
}

// ClearAll wipes every workplace, entry and the cached spreadsheet id, in
// memory and on the medium.
func (s *Store) ClearAll(c ClearConfirmation) error {
	if !c.Confirmed || !c.Reconfirmed {
		return ErrConfirmationRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.workplaces = []model.Workplace{}
	s.entries = []model.TimeEntry{}
	s.spreadsheetID = ""

	var errs []error
	for _, key := range []string{storage.KeyWorkplaces, storage.KeyEntries, storage.KeySpreadsheetID} {
		if err := s.medium.Remove(key); err != nil {
			s.log.Error("could not remove data", "key", key, "err", err)
			errs = append(errs, &StorageError{Key: key, Err: err})
		}
	}
	return errors.Join(errs...)
}

// SpreadsheetID returns the cached id of the external sync target, if any.
func (s *Store) SpreadsheetID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spreadsheetID
}

// SetSpreadsheetID caches the id of the external sync target.
func (s *Store) SetSpreadsheetID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spreadsheetID = id
	if id == "" {
		if err := s.medium.Remove(storage.KeySpreadsheetID); err != nil {
			return &StorageError{Key: storage.KeySpreadsheetID, Err: err}
		}
		return nil
	}
	return s.persist(storage.KeySpreadsheetID, id)
}

// Export snapshots the store for download.
func (s *Store) Export(now time.Time) model.Export {
	return model.Export{
		Workplaces: s.Workplaces(),
		Entries:    s.Entries(),
		ExportDate: now.UTC(),
	}
}
