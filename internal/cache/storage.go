package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrMiss is returned by Storage.Match when no entry exists for a key.
var ErrMiss = errors.New("cache: no match")

// Entry is one cached response.
type Entry struct {
	Key      string      `json:"key"`
	URL      string      `json:"url"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"storedAt"`
}

// Response rebuilds an *http.Response for req from the entry.
func (e *Entry) Response(req *http.Request) *http.Response {
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        e.Header.Clone(),
		Body:          newBody(e.Body),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

func (e *Entry) clone() *Entry {
	c := *e
	c.Header = e.Header.Clone()
	c.Body = append([]byte(nil), e.Body...)
	return &c
}

// Storage holds cache generations. Implementations serialize their own writes;
// a Put is visible to Match only once it has fully completed.
type Storage interface {
	Match(ctx context.Context, generation, key string) (*Entry, error)
	Put(ctx context.Context, generation string, e *Entry) error
	Delete(ctx context.Context, generation string) error
	Generations(ctx context.Context) ([]string, error)
}

// MemoryStorage keeps generations in memory.
type MemoryStorage struct {
	mu   sync.RWMutex
	gens map[string]map[string]*Entry
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{gens: make(map[string]map[string]*Entry)}
}

func (s *MemoryStorage) Match(_ context.Context, generation, key string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.gens[generation][key]
	if !ok {
		return nil, ErrMiss
	}
	return e.clone(), nil
}

func (s *MemoryStorage) Put(_ context.Context, generation string, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen, ok := s.gens[generation]
	if !ok {
		gen = make(map[string]*Entry)
		s.gens[generation] = gen
	}
	gen[e.Key] = e.clone()
	return nil
}

func (s *MemoryStorage) Delete(_ context.Context, generation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.gens, generation)
	return nil
}

func (s *MemoryStorage) Generations(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.gens))
	for name := range s.gens {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DiskStorage keeps one directory per generation under Dir and one JSON file
// per entry, named by the SHA-256 of the entry key.
type DiskStorage struct {
	Dir string
	mu  sync.Mutex
}

func NewDiskStorage(dir string) *DiskStorage {
	return &DiskStorage{Dir: dir}
}

func (s *DiskStorage) genDir(generation string) (string, error) {
	if generation == "" || strings.ContainsAny(generation, `/\`) || generation == "." || generation == ".." {
		return "", fmt.Errorf("invalid generation name %q", generation)
	}
	return filepath.Join(s.Dir, generation), nil
}

func entryFile(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:]) + ".json"
}

func (s *DiskStorage) Match(_ context.Context, generation, key string) (*Entry, error) {
	dir, err := s.genDir(generation)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, entryFile(key)))
	if os.IsNotExist(err) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("corrupt cache entry %s in %s: %w", key, generation, err)
	}
	return &e, nil
}

func (s *DiskStorage) Put(_ context.Context, generation string, e *Entry) error {
	dir, err := s.genDir(generation)
	if err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshalling cache entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating generation directory: %w", err)
	}
	path := filepath.Join(dir, entryFile(e.Key))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("saving cache entry: %w", err)
	}
	return nil
}

func (s *DiskStorage) Delete(_ context.Context, generation string) error {
	dir, err := s.genDir(generation)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("deleting generation %s: %w", generation, err)
	}
	return nil
}

func (s *DiskStorage) Generations(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := os.ReadDir(s.Dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing generations: %w", err)
	}
	var names []string
	for _, it := range items {
		if it.IsDir() {
			names = append(names, it.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
