// Package cache implements the offline cache of the hours tracker web app:
// versioned cache generations, the request interception policy and the
// background sync hand-off to connected client sessions.
package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Tiliavir/hours-tracker/internal/metrics"
)

// State is the lifecycle state of the manager's cache generation.
type State int

const (
	StateInstalling State = iota
	StateInstalled
	StateActive
	StateSuperseded
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActive:
		return "active"
	case StateSuperseded:
		return "superseded"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrNotInstalled is returned by Activate before a successful Install.
var ErrNotInstalled = errors.New("cache: generation not installed")

// NetworkError reports a failed fetch that no cached fallback could answer.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("fetching %s: %v", e.URL, e.Err) }

func (e *NetworkError) Unwrap() error { return e.Err }

// Manager owns the static and dynamic generation of one manifest version and
// intercepts requests according to the cache policy. It implements
// http.RoundTripper and http.Handler.
type Manager struct {
	manifest  Manifest
	origin    *url.URL
	storage   Storage
	transport http.RoundTripper
	clients   *Clients
	log       *slog.Logger
	now       func() time.Time
	limit     int

	mu      sync.Mutex
	state   State
	pending map[string]struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithTransport sets the network transport. Default http.DefaultTransport.
func WithTransport(rt http.RoundTripper) Option {
	return func(m *Manager) { m.transport = rt }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithClients sets the session registry.
func WithClients(c *Clients) Option {
	return func(m *Manager) { m.clients = c }
}

// WithClock sets the time source used for StoredAt.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithInstallConcurrency bounds parallel asset fetches during Install.
func WithInstallConcurrency(n int) Option {
	return func(m *Manager) { m.limit = n }
}

// New creates a manager for the application served at origin.
func New(origin string, manifest Manifest, storage Storage, opts ...Option) (*Manager, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parsing origin: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("origin %q must be an absolute URL", origin)
	}
	m := &Manager{
		manifest:  manifest,
		origin:    &url.URL{Scheme: u.Scheme, Host: u.Host},
		storage:   storage,
		transport: http.DefaultTransport,
		log:       slog.Default(),
		now:       time.Now,
		limit:     4,
		pending:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.clients == nil {
		m.clients = NewClients(0)
	}
	return m, nil
}

// Manifest returns the manifest the manager was created with.
func (m *Manager) Manifest() Manifest { return m.manifest }

// Clients returns the session registry.
func (m *Manager) Clients() *Clients { return m.clients }

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Install populates the static generation. When any asset fails it retries
// with the essential subset only; failure of an essential asset leaves the
// generation installing.
func (m *Manager) Install(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateInstalling {
		st := m.state
		m.mu.Unlock()
		return fmt.Errorf("cache: cannot install in state %s", st)
	}
	m.mu.Unlock()

	m.log.Info("installing cache generation", "generation", m.manifest.StaticName())
	entries, err := m.fetchAll(ctx, m.manifest.Static)
	if err != nil {
		m.log.Warn("failed to cache some static assets, falling back to essentials", "error", err)
		entries, err = m.fetchAll(ctx, m.manifest.Essential)
		if err != nil {
			return fmt.Errorf("installing %s: essential assets: %w", m.manifest.StaticName(), err)
		}
	}

	for _, e := range entries {
		if err := m.storage.Put(ctx, m.manifest.StaticName(), e); err != nil {
			return fmt.Errorf("installing %s: %w", m.manifest.StaticName(), err)
		}
	}

	m.mu.Lock()
	m.state = StateInstalled
	m.mu.Unlock()
	m.log.Info("cache generation installed", "generation", m.manifest.StaticName(), "assets", len(entries))
	return nil
}

// fetchAll fetches assets concurrently. It fails as a whole if any asset fails.
func (m *Manager) fetchAll(ctx context.Context, assets []string) ([]*Entry, error) {
	seen := make(map[string]bool)
	var urls []*url.URL
	for _, asset := range assets {
		u, err := m.resolve(asset)
		if err != nil {
			return nil, err
		}
		key := m.key(u)
		if seen[key] {
			continue
		}
		seen[key] = true
		urls = append(urls, u)
	}

	entries := make([]*Entry, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.limit)
	for i, u := range urls {
		g.Go(func() error {
			e, err := m.fetchAsset(gctx, u)
			if err != nil {
				return err
			}
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (m *Manager) fetchAsset(ctx context.Context, u *url.URL) (*Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := m.transport.RoundTrip(req)
	if err != nil {
		return nil, &NetworkError{URL: u.String(), Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, &NetworkError{URL: u.String(), Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{URL: u.String(), Err: err}
	}
	return m.newEntry(m.key(u), u, resp.StatusCode, resp.Header, body), nil
}

// Activate deletes every generation owned by the application except the
// current static and dynamic pair, then claims all connected sessions.
func (m *Manager) Activate(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateActive:
		m.mu.Unlock()
		return nil
	case StateInstalled:
	default:
		m.mu.Unlock()
		return ErrNotInstalled
	}
	m.mu.Unlock()

	gens, err := m.storage.Generations(ctx)
	if err != nil {
		return fmt.Errorf("activating %s: %w", m.manifest.StaticName(), err)
	}
	for _, gen := range gens {
		if gen == m.manifest.StaticName() || gen == m.manifest.DynamicName() || !m.manifest.Owns(gen) {
			continue
		}
		if err := m.storage.Delete(ctx, gen); err != nil {
			return fmt.Errorf("activating %s: %w", m.manifest.StaticName(), err)
		}
		metrics.RecordGenerationDeleted()
		m.log.Info("deleted old cache generation", "generation", gen)
	}

	m.mu.Lock()
	m.state = StateActive
	m.mu.Unlock()

	if err := m.clients.Claim(); err != nil {
		m.log.Warn("could not notify every client of the new controller", "error", err)
	}
	m.log.Info("cache generation active", "generation", m.manifest.StaticName())
	return nil
}

// Supersede hands control over to a newer manager. A superseded manager
// passes every request straight to the network.
func (m *Manager) Supersede() {
	m.mu.Lock()
	m.state = StateSuperseded
	m.mu.Unlock()
}

// RoundTrip applies the cache policy to req.
func (m *Manager) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet || m.State() != StateActive {
		resp, err := m.transport.RoundTrip(req)
		if err != nil {
			metrics.RecordCacheRequest(metrics.PolicyPassthrough, metrics.OutcomeFailed)
			return nil, err
		}
		metrics.RecordCacheRequest(metrics.PolicyPassthrough, metrics.OutcomeNetwork)
		return resp, nil
	}

	if m.manifest.IsAPIHost(req.URL.Hostname()) {
		resp, err := m.transport.RoundTrip(req)
		if err != nil {
			m.log.Info("API request failed offline", "url", req.URL.String(), "error", err)
			metrics.RecordCacheRequest(metrics.PolicyAPI, metrics.OutcomeUnavailable)
			return unavailable(req), nil
		}
		metrics.RecordCacheRequest(metrics.PolicyAPI, metrics.OutcomeNetwork)
		return resp, nil
	}

	ctx := req.Context()
	key := m.key(req.URL)
	if e, ok := m.lookup(ctx, key); ok {
		m.log.Debug("serving from cache", "url", req.URL.String())
		metrics.RecordCacheRequest(metrics.PolicyCacheFirst, metrics.OutcomeCacheHit)
		return e.Response(req), nil
	}

	resp, err := m.transport.RoundTrip(req)
	if err != nil {
		if acceptsHTML(req) {
			if shell, ok := m.shell(ctx); ok {
				metrics.RecordCacheRequest(metrics.PolicyCacheFirst, metrics.OutcomeShell)
				return shell.Response(req), nil
			}
		}
		metrics.RecordCacheRequest(metrics.PolicyCacheFirst, metrics.OutcomeFailed)
		return nil, &NetworkError{URL: req.URL.String(), Err: err}
	}

	if resp.StatusCode != http.StatusOK || !m.sameOrigin(req.URL) {
		metrics.RecordCacheRequest(metrics.PolicyCacheFirst, metrics.OutcomeNetwork)
		return resp, nil
	}

	// The entry is committed only once the whole body has been read.
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		metrics.RecordCacheRequest(metrics.PolicyCacheFirst, metrics.OutcomeFailed)
		return nil, &NetworkError{URL: req.URL.String(), Err: err}
	}
	e := m.newEntry(key, req.URL, resp.StatusCode, resp.Header, body)
	if err := m.storage.Put(ctx, m.manifest.DynamicName(), e); err != nil {
		m.log.Warn("could not store response in dynamic cache", "url", req.URL.String(), "error", err)
		metrics.RecordCacheRequest(metrics.PolicyCacheFirst, metrics.OutcomeNetwork)
	} else {
		metrics.RecordCacheRequest(metrics.PolicyCacheFirst, metrics.OutcomeStored)
	}
	resp.Body = newBody(body)
	resp.ContentLength = int64(len(body))
	return resp, nil
}

// ServeHTTP proxies r to the origin through the cache policy.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	target := m.origin.ResolveReference(&url.URL{Path: r.URL.Path, RawPath: r.URL.RawPath, RawQuery: r.URL.RawQuery})
	out, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	out.Header = r.Header.Clone()

	resp, err := m.RoundTrip(out)
	if err != nil {
		m.log.Warn("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		http.Error(w, "offline and not cached", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		m.log.Debug("copying response body", "path", r.URL.Path, "error", err)
	}
}

// lookup searches the static generation, then the dynamic one.
func (m *Manager) lookup(ctx context.Context, key string) (*Entry, bool) {
	for _, gen := range []string{m.manifest.StaticName(), m.manifest.DynamicName()} {
		e, err := m.storage.Match(ctx, gen, key)
		if err == nil {
			return e, true
		}
		if !errors.Is(err, ErrMiss) {
			m.log.Warn("cache lookup failed", "generation", gen, "key", key, "error", err)
		}
	}
	return nil, false
}

func (m *Manager) shell(ctx context.Context) (*Entry, bool) {
	u, err := m.resolve(m.manifest.Shell)
	if err != nil {
		return nil, false
	}
	return m.lookup(ctx, m.key(u))
}

// resolve turns a manifest asset into an absolute URL.
func (m *Manager) resolve(asset string) (*url.URL, error) {
	u, err := url.Parse(m.manifest.canonical(asset))
	if err != nil {
		return nil, fmt.Errorf("invalid asset %q: %w", asset, err)
	}
	if u.IsAbs() {
		return u, nil
	}
	return m.origin.ResolveReference(u), nil
}

// key identifies a request in a generation: the aliased path for same-origin
// URLs, the full URL otherwise.
func (m *Manager) key(u *url.URL) string {
	if !m.sameOrigin(u) {
		c := *u
		c.Fragment = ""
		return c.String()
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	path = m.manifest.canonical(path)
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path
}

func (m *Manager) sameOrigin(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, m.origin.Scheme) && strings.EqualFold(u.Host, m.origin.Host)
}

func (m *Manager) newEntry(key string, u *url.URL, status int, header http.Header, body []byte) *Entry {
	return &Entry{
		Key:      key,
		URL:      u.String(),
		Status:   status,
		Header:   header.Clone(),
		Body:     body,
		StoredAt: m.now().UTC(),
	}
}

func acceptsHTML(req *http.Request) bool {
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

func unavailable(req *http.Request) *http.Response {
	body := []byte("API unavailable offline")
	return &http.Response{
		Status:        "503 Service Unavailable",
		StatusCode:    http.StatusServiceUnavailable,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Body:          newBody(body),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

func newBody(b []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(b))
}
