package server_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/hours-tracker/internal/cache"
	"github.com/Tiliavir/hours-tracker/internal/model"
	"github.com/Tiliavir/hours-tracker/internal/server"
	"github.com/Tiliavir/hours-tracker/internal/storage"
	"github.com/Tiliavir/hours-tracker/internal/store"
	"github.com/Tiliavir/hours-tracker/internal/summary"
	"github.com/Tiliavir/hours-tracker/internal/syncer"
	"github.com/Tiliavir/hours-tracker/internal/tabular"
)

const origin = "https://hours.example"

var (
	now     = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	discard = slog.New(slog.NewTextHandler(io.Discard, nil))
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// countingTarget records the operations of every push.
type countingTarget struct {
	mu  sync.Mutex
	ops []string
}

func (t *countingTarget) ID() string { return "sheet-1" }

func (t *countingTarget) record(op string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ops = append(t.ops, op)
	return nil
}

func (t *countingTarget) Clear(_ context.Context, rng tabular.Range) error {
	return t.record("clear " + rng.A1())
}

func (t *countingTarget) Write(_ context.Context, rng tabular.Range, _ [][]any) error {
	return t.record("write " + rng.A1())
}

func (t *countingTarget) FormatHeader(_ context.Context, r tabular.Region) error {
	return t.record("format " + r.Title)
}

func (t *countingTarget) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ops)
}

// assets serves the application files for the cache manager.
type assets struct {
	mu      sync.Mutex
	offline bool
}

func (a *assets) RoundTrip(req *http.Request) (*http.Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.offline {
		return nil, errors.New("network down")
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"text/plain"}},
		Body:       io.NopCloser(strings.NewReader("asset " + req.URL.Path)),
		Request:    req,
	}, nil
}

func (a *assets) setOffline(v bool) {
	a.mu.Lock()
	a.offline = v
	a.mu.Unlock()
}

type fixture struct {
	srv    *server.Server
	medium *storage.Memory
	store  *store.Store
	sync   *syncer.Coordinator
	cache  *cache.Manager
	net    *assets
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ids := 0
	medium := storage.NewMemory()
	st := store.Open(medium,
		store.WithLogger(discard),
		store.WithClock(func() time.Time { return now }),
		store.WithIDs(func() string { ids++; return fmt.Sprintf("id-%d", ids) }),
	)
	coord := syncer.New(syncer.WithLogger(discard), syncer.WithClock(func() time.Time { return now }))

	net := &assets{}
	mgr, err := cache.New(origin, cache.DefaultManifest(), cache.NewMemoryStorage(),
		cache.WithTransport(net), cache.WithLogger(discard))
	require.NoError(t, err)

	srv := server.New(server.Config{
		Store:          st,
		Sync:           coord,
		Cache:          mgr,
		Logger:         discard,
		AllowedOrigins: []string{origin},
		Now:            func() time.Time { return now },
	})
	return &fixture{srv: srv, medium: medium, store: st, sync: coord, cache: mgr, net: net}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestWorkplaceEndpoints(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/workplaces", `{"name":"Acme","hourlyRate":"20"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[model.Workplace](t, w)
	assert.Equal(t, "id-1", created.ID)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = f.do(t, http.MethodPost, "/api/workplaces", `{"name":"acme","hourlyRate":"10"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "name", decode[map[string]any](t, w)["field"])

	w = f.do(t, http.MethodGet, "/api/workplaces", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]map[string]any](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, "Acme", list[0]["name"])
	assert.Equal(t, "0", list[0]["totalHours"])

	assert.Equal(t, http.StatusPreconditionRequired, f.do(t, http.MethodDelete, "/api/workplaces/id-1", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/workplaces/nope?confirm=true", "").Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/workplaces/id-1?confirm=true", "").Code)
	assert.Empty(t, f.store.Workplaces())
}

func TestEntryEndpoints(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/workplaces", `{"name":"Acme","hourlyRate":"20"}`).Code)

	w := f.do(t, http.MethodPost, "/api/entries", `{"workplace":"Acme","hours":"8","notes":"on site"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decode[model.TimeEntry](t, w)
	assert.Equal(t, "2024-03-15", first.Date)

	w = f.do(t, http.MethodPost, "/api/entries", `{"date":"2024-03-15","workplace":"Acme","hours":"6"}`)
	require.Equal(t, http.StatusConflict, w.Code)
	existing := decode[map[string]any](t, w)["existing"].(map[string]any)
	assert.Equal(t, first.ID, existing["id"])

	w = f.do(t, http.MethodPost, "/api/entries", `{"date":"2024-03-15","workplace":"Acme","hours":"6","replace":true}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodGet, "/api/entries", "")
	require.Equal(t, http.StatusOK, w.Code)
	entries := decode[[]model.TimeEntry](t, w)
	require.Len(t, entries, 1)
	assert.Equal(t, "6", entries[0].Hours.String())

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/entries?limit=many", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/entries", `{"workplace":"Acme","hours":"25"}`).Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/entries/"+entries[0].ID+"?confirm=1", "").Code)
	assert.Empty(t, f.store.Entries())
}

func TestSummaryEndpoints(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/workplaces", `{"name":"Acme","hourlyRate":"20"}`)
	f.do(t, http.MethodPost, "/api/entries", `{"date":"2024-03-01","workplace":"Acme","hours":"8"}`)
	f.do(t, http.MethodPost, "/api/entries", `{"date":"2024-01-10","workplace":"Acme","hours":"2.5"}`)

	w := f.do(t, http.MethodGet, "/api/summary", "")
	require.Equal(t, http.StatusOK, w.Code)
	sum := decode[summary.Summary](t, w)
	assert.Equal(t, "2024-03", sum.Month)
	assert.Equal(t, "8", sum.TotalHours.String())
	assert.Equal(t, "160", sum.TotalEarnings.String())

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/summary?month=2024-02", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/summary?month=March", "").Code)

	w = f.do(t, http.MethodGet, "/api/summary/all", "")
	require.Equal(t, http.StatusOK, w.Code)
	all := decode[[]summary.Summary](t, w)
	require.Len(t, all, 2)
	assert.Equal(t, "2024-03", all[0].Month)
	assert.Equal(t, "2024-01", all[1].Month)
}

func TestExportEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/workplaces", `{"name":"Acme","hourlyRate":"20"}`)

	w := f.do(t, http.MethodGet, "/api/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="hours-tracker-export-2024-03-15.json"`, w.Header().Get("Content-Disposition"))
	exp := decode[model.Export](t, w)
	assert.Len(t, exp.Workplaces, 1)
	assert.Empty(t, exp.Entries)
	assert.True(t, exp.ExportDate.Equal(now))
}

func TestStorageFailureIsAWarning(t *testing.T) {
	f := newFixture(t)
	f.medium.FailWrites = true

	w := f.do(t, http.MethodPost, "/api/workplaces", `{"name":"Acme","hourlyRate":"20"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Header().Get("X-Storage-Warning"), "storage error")
	assert.Len(t, f.store.Workplaces(), 1)
}

func TestClearAllNeedsBothConfirmations(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/workplaces", `{"name":"Acme","hourlyRate":"20"}`)

	assert.Equal(t, http.StatusPreconditionRequired, f.do(t, http.MethodDelete, "/api/data?confirm=true", "").Code)
	assert.Len(t, f.store.Workplaces(), 1)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/data?confirm=true&reconfirm=true", "").Code)
	assert.Empty(t, f.store.Workplaces())
}

func TestSyncEndpoints(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/workplaces", `{"name":"Acme","hourlyRate":"20"}`)

	w := f.do(t, http.MethodPost, "/api/sync", "")
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	assert.Contains(t, w.Body.String(), "not connected")

	target := &countingTarget{}
	f.sync.Attach(target)
	w = f.do(t, http.MethodPost, "/api/sync", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotZero(t, target.count())

	w = f.do(t, http.MethodGet, "/api/sync", "")
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[map[string]any](t, w)
	assert.Equal(t, true, status["connected"])
	last := status["lastAttempt"].(map[string]any)
	assert.NotContains(t, last, "error")
}

func TestUnmatchedPathsGoThroughCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.cache.Install(ctx))
	require.NoError(t, f.cache.Activate(ctx))

	f.net.setOffline(true)
	w := f.do(t, http.MethodGet, "/app.js", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "asset /app.js", w.Body.String())

	w = f.do(t, http.MethodGet, "/reports/unknown.js", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestWithoutCacheManager(t *testing.T) {
	srv := server.New(server.Config{Store: store.Open(storage.NewMemory(), store.WithLogger(discard)), Sync: syncer.New()})
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/app.js", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/_sw/events", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMessageEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/_sw/message", `{"type":"REGISTER_SYNC"}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, []string{cache.TagSyncData}, f.cache.PendingSyncs())

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/_sw/message", `{"type":"PING"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/_sw/message", `not json`).Code)
}

func TestEventsStreamDeliversMessages(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/_sw/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream"), resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	next := func() (event, data string) {
		for lines.Scan() {
			line := lines.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			case line == "" && event != "":
				return event, data
			}
		}
		return event, data
	}

	event, _ := next()
	require.Equal(t, "ready", event)
	assert.Equal(t, 1, f.cache.Clients().Len())

	require.NoError(t, f.cache.FireSync(context.Background(), cache.TagSyncData))
	event, data := next()
	require.Equal(t, "message", event)
	var msg cache.Message
	require.NoError(t, json.Unmarshal([]byte(data), &msg))
	assert.Equal(t, cache.MsgBackgroundSync, msg.Type)
	assert.Equal(t, cache.ActionSyncData, msg.Action)
}

func TestRunSessionSyncsOnBackgroundSync(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/workplaces", `{"name":"Acme","hourlyRate":"20"}`)
	target := &countingTarget{}
	f.sync.Attach(target)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := f.cache.Clients().Connect()
	done := make(chan struct{})
	go func() {
		f.srv.RunSession(ctx, client)
		close(done)
	}()

	require.NoError(t, f.cache.FireSync(ctx, cache.TagDailySync))
	require.Eventually(t, func() bool { return target.count() > 0 }, time.Second, 5*time.Millisecond)

	f.cache.Clients().Disconnect(client.ID)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("session did not stop after disconnect")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/entries", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, origin, w.Header().Get("Access-Control-Allow-Origin"))
}
