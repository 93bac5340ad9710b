package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Prefix namespaces every key written by the application.
const Prefix = "hoursTracker_"

// Stable keys used by the entity store.
const (
	KeyWorkplaces    = "workplaces"
	KeyEntries       = "entries"
	KeySpreadsheetID = "spreadsheetId"
)

// ErrNotFound is returned by Get when a key has never been written.
var ErrNotFound = errors.New("key not found")

// Medium is a synchronous string-keyed, string-valued store.
// Implementations apply the application namespace themselves.
type Medium interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Remove(key string) error
}

// BaseDir returns the root data directory (~/.hours).
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".hours"), nil
}

// File keeps each key as its own JSON document below Dir.
type File struct {
	Dir string
	mu  sync.Mutex
}

// NewFile returns a file-backed medium rooted at dir.
func NewFile(dir string) *File {
	return &File{Dir: dir}
}

// path returns the path for the given key's JSON file.
func (f *File) path(key string) string {
	return filepath.Join(f.Dir, Prefix+key+".json")
}

// Get returns the stored value, or ErrNotFound if the key was never written.
func (f *File) Get(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.path(key)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("storage error reading %s: %w", path, err)
	}
	return string(data), nil
}

// Set atomically writes value under key.
func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("storage error creating directories: %w", err)
	}

	// Atomic write: write to temp file then rename.
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(value), 0o600); err != nil {
		return fmt.Errorf("storage error writing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("storage error renaming temp file: %w", err)
	}
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (f *File) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage error removing %s: %w", key, err)
	}
	return nil
}

// Quarantine moves a value that could not be decoded aside so the next write
// starts clean. It returns the backup path.
func (f *File) Quarantine(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.path(key)
	backupPath := path + ".corrupt"
	if err := os.Rename(path, backupPath); err != nil {
		return "", fmt.Errorf("storage error backing up %s: %w", path, err)
	}
	return backupPath, nil
}

// Memory is an in-process medium, mainly for tests and dry runs.
type Memory struct {
	mu     sync.Mutex
	values map[string]string

	// FailWrites makes Set and Remove fail, simulating a full or read-only medium.
	FailWrites bool
}

// NewMemory returns an empty in-memory medium.
func NewMemory() *Memory {
	return &Memory{values: map[string]string{}}
}

// ErrWriteFailed is returned by Memory when FailWrites is set.
var ErrWriteFailed = errors.New("write failed")

func (m *Memory) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[Prefix+key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return ErrWriteFailed
	}
	m.values[Prefix+key] = value
	return nil
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return ErrWriteFailed
	}
	delete(m.values, Prefix+key)
	return nil
}

// Keys lists the namespaced keys currently held, sorted.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Raw sets a value bypassing FailWrites, for seeding test fixtures.
func (m *Memory) Raw(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[Prefix+strings.TrimPrefix(key, Prefix)] = value
}
