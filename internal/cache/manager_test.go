package cache_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/hours-tracker/internal/cache"
)

const origin = "https://hours.example"

var errOffline = errors.New("network down")

// fakeNet serves fixed bodies by absolute URL and records every request.
type fakeNet struct {
	mu      sync.Mutex
	assets  map[string]string
	fail    map[string]bool
	offline bool
	calls   []string
}

func newFakeNet() *fakeNet {
	return &fakeNet{
		assets: map[string]string{
			origin + "/index.html":              "<html>shell</html>",
			origin + "/style.css":               "body{}",
			origin + "/app.js":                  "app()",
			origin + "/google-sheets.js":        "sheets()",
			origin + "/manifest.json":           "{}",
			"https://apis.google.com/js/api.js": "gapi()",
		},
		fail: map[string]bool{},
	}
}

func (f *fakeNet) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := req.URL.String()
	f.calls = append(f.calls, req.Method+" "+u)
	if f.offline || f.fail[u] {
		return nil, errOffline
	}
	body, ok := f.assets[u]
	status := http.StatusOK
	if !ok {
		status, body = http.StatusNotFound, "not found"
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"text/plain"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}, nil
}

func (f *fakeNet) setOffline(v bool) {
	f.mu.Lock()
	f.offline = v
	f.mu.Unlock()
}

func (f *fakeNet) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newManager(t *testing.T, net *fakeNet, st cache.Storage, opts ...cache.Option) *cache.Manager {
	t.Helper()
	opts = append([]cache.Option{
		cache.WithTransport(net),
		cache.WithLogger(quietLogger()),
		cache.WithClock(func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }),
	}, opts...)
	m, err := cache.New(origin, cache.DefaultManifest(), st, opts...)
	require.NoError(t, err)
	return m
}

func activeManager(t *testing.T, net *fakeNet, st cache.Storage) *cache.Manager {
	t.Helper()
	m := newManager(t, net, st)
	require.NoError(t, m.Install(context.Background()))
	require.NoError(t, m.Activate(context.Background()))
	return m
}

func get(t *testing.T, rt http.RoundTripper, url, accept string) (*http.Response, string, error) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := rt.RoundTrip(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body), nil
}

func TestCacheFirstAfterInstall(t *testing.T) {
	net := newFakeNet()
	m := activeManager(t, net, cache.NewMemoryStorage())
	installCalls := net.callCount()

	for _, tc := range []struct{ url, body string }{
		{origin + "/style.css", "body{}"},
		{origin + "/", "<html>shell</html>"},
		{origin + "/index.html", "<html>shell</html>"},
		{"https://apis.google.com/js/api.js", "gapi()"},
	} {
		resp, body, err := get(t, m, tc.url, "")
		require.NoError(t, err, tc.url)
		assert.Equal(t, http.StatusOK, resp.StatusCode, tc.url)
		assert.Equal(t, tc.body, body, tc.url)
	}
	assert.Equal(t, installCalls, net.callCount(), "cached assets must not reach the network")
	assert.Equal(t, cache.StateActive, m.State())
}

func TestInstallFetchesRootOnce(t *testing.T) {
	net := newFakeNet()
	m := newManager(t, net, cache.NewMemoryStorage())
	require.NoError(t, m.Install(context.Background()))
	// "/" and "/index.html" share one entry.
	assert.Equal(t, 6, net.callCount())
}

func TestInstallFallsBackToEssentials(t *testing.T) {
	net := newFakeNet()
	net.fail[origin+"/google-sheets.js"] = true
	st := cache.NewMemoryStorage()
	m := newManager(t, net, st)

	require.NoError(t, m.Install(context.Background()))
	assert.Equal(t, cache.StateInstalled, m.State())

	gen := cache.DefaultManifest().StaticName()
	for _, key := range []string{"/index.html", "/style.css", "/app.js"} {
		_, err := st.Match(context.Background(), gen, key)
		assert.NoError(t, err, key)
	}
	_, err := st.Match(context.Background(), gen, "/manifest.json")
	assert.ErrorIs(t, err, cache.ErrMiss)
}

func TestInstallFailsWithoutEssentials(t *testing.T) {
	net := newFakeNet()
	net.fail[origin+"/app.js"] = true
	m := newManager(t, net, cache.NewMemoryStorage())

	err := m.Install(context.Background())
	require.Error(t, err)
	var nerr *cache.NetworkError
	assert.ErrorAs(t, err, &nerr)
	assert.Equal(t, cache.StateInstalling, m.State())
	assert.ErrorIs(t, m.Activate(context.Background()), cache.ErrNotInstalled)
}

func TestActivateDeletesStaleGenerations(t *testing.T) {
	ctx := context.Background()
	st := cache.NewMemoryStorage()
	stale := &cache.Entry{Key: "/index.html", Status: http.StatusOK}
	for _, gen := range []string{"hours-tracker-static-v0", "hours-tracker-dynamic-v0", "hours-tracker-v0", "other-app-v1"} {
		require.NoError(t, st.Put(ctx, gen, stale))
	}

	net := newFakeNet()
	clients := cache.NewClients(4)
	session := clients.Connect()
	m := newManager(t, net, st, cache.WithClients(clients))
	require.NoError(t, m.Install(ctx))
	require.NoError(t, st.Put(ctx, "hours-tracker-dynamic-v1", stale))
	require.NoError(t, m.Activate(ctx))

	gens, err := st.Generations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"hours-tracker-dynamic-v1", "hours-tracker-static-v1", "other-app-v1"}, gens)

	assert.True(t, session.Controlled())
	select {
	case msg := <-session.Messages():
		assert.Equal(t, cache.MsgControllerChange, msg.Type)
	default:
		t.Fatal("claimed session was not notified")
	}

	require.NoError(t, m.Activate(ctx), "activating twice is a no-op")
}

func TestRequestsPassThroughBeforeActivation(t *testing.T) {
	net := newFakeNet()
	m := newManager(t, net, cache.NewMemoryStorage())
	require.NoError(t, m.Install(context.Background()))
	before := net.callCount()

	_, _, err := get(t, m, origin+"/style.css", "")
	require.NoError(t, err)
	assert.Equal(t, before+1, net.callCount())
}

func TestAPIRequestsAreNeverCached(t *testing.T) {
	net := newFakeNet()
	api := "https://sheets.googleapis.com/v4/spreadsheets/abc"
	net.assets[api] = `{"spreadsheetId":"abc"}`
	m := activeManager(t, net, cache.NewMemoryStorage())

	for i := 0; i < 2; i++ {
		resp, body, err := get(t, m, api, "")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, `{"spreadsheetId":"abc"}`, body)
	}

	net.setOffline(true)
	resp, body, err := get(t, m, api, "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body, "unavailable offline")
}

func TestRuntimeCaching(t *testing.T) {
	net := newFakeNet()
	net.assets[origin+"/icons/clock.svg"] = "<svg/>"
	net.assets["https://cdn.example/lib.js"] = "lib()"
	m := activeManager(t, net, cache.NewMemoryStorage())

	_, body, err := get(t, m, origin+"/icons/clock.svg", "")
	require.NoError(t, err)
	assert.Equal(t, "<svg/>", body)
	_, _, err = get(t, m, "https://cdn.example/lib.js", "")
	require.NoError(t, err)
	resp, _, err := get(t, m, origin+"/missing.js", "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	net.setOffline(true)

	_, body, err = get(t, m, origin+"/icons/clock.svg", "")
	require.NoError(t, err, "same-origin 200 responses are stored")
	assert.Equal(t, "<svg/>", body)

	_, _, err = get(t, m, "https://cdn.example/lib.js", "")
	var nerr *cache.NetworkError
	require.ErrorAs(t, err, &nerr, "cross-origin responses are not stored")
	assert.ErrorIs(t, err, errOffline)

	_, _, err = get(t, m, origin+"/missing.js", "")
	assert.ErrorAs(t, err, &nerr, "non-200 responses are not stored")
}

func TestShellFallbackForDocuments(t *testing.T) {
	net := newFakeNet()
	m := activeManager(t, net, cache.NewMemoryStorage())
	net.setOffline(true)

	resp, body, err := get(t, m, origin+"/reports/2024-03", "text/html,application/xhtml+xml")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html>shell</html>", body)

	_, _, err = get(t, m, origin+"/reports/2024-03.png", "image/png")
	var nerr *cache.NetworkError
	assert.ErrorAs(t, err, &nerr)
}

func TestNonGETPassesThrough(t *testing.T) {
	net := newFakeNet()
	m := activeManager(t, net, cache.NewMemoryStorage())
	before := net.callCount()

	req := httptest.NewRequest(http.MethodPost, origin+"/style.css", strings.NewReader("x"))
	resp, err := m.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, before+1, net.callCount())

	net.setOffline(true)
	_, err = m.RoundTrip(httptest.NewRequest(http.MethodPost, origin+"/style.css", nil))
	assert.ErrorIs(t, err, errOffline)
}

func TestSupersededManagerStopsIntercepting(t *testing.T) {
	net := newFakeNet()
	m := activeManager(t, net, cache.NewMemoryStorage())
	m.Supersede()
	assert.Equal(t, cache.StateSuperseded, m.State())

	net.setOffline(true)
	_, _, err := get(t, m, origin+"/style.css", "")
	assert.ErrorIs(t, err, errOffline)
}

func TestServeHTTP(t *testing.T) {
	net := newFakeNet()
	m := activeManager(t, net, cache.NewMemoryStorage())
	net.setOffline(true)

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "app()", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/data.bin", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServeHTTPKeepsEscapedPath(t *testing.T) {
	net := newFakeNet()
	net.assets[origin+"/files/a%2Fb.txt"] = "escaped"
	m := activeManager(t, net, cache.NewMemoryStorage())

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/a%2Fb.txt", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "escaped", rec.Body.String())
}

func TestFireSyncBroadcasts(t *testing.T) {
	ctx := context.Background()
	clients := cache.NewClients(1)
	a := clients.Connect()
	b := clients.Connect()
	m := newManager(t, newFakeNet(), cache.NewMemoryStorage(), cache.WithClients(clients))

	m.RegisterSync(cache.TagSyncData)
	assert.Equal(t, []string{cache.TagSyncData}, m.PendingSyncs())

	require.NoError(t, m.FireSync(ctx, cache.TagSyncData))
	assert.Empty(t, m.PendingSyncs())
	for _, c := range []*cache.Client{a, b} {
		msg := <-c.Messages()
		assert.Equal(t, cache.Message{Type: cache.MsgBackgroundSync, Action: cache.ActionSyncData}, msg)
	}

	// b's inbox is full: the broadcast fails and the tag stays pending.
	require.NoError(t, clients.Broadcast(cache.Message{Type: "PING"}))
	<-a.Messages()
	m.RegisterSync(cache.TagSyncData)
	err := m.FireSync(ctx, cache.TagSyncData)
	require.Error(t, err)
	assert.ErrorIs(t, err, cache.ErrClientBusy)
	assert.Equal(t, []string{cache.TagSyncData}, m.PendingSyncs())

	clients.Disconnect(b.ID)
	drained := 0
	for range b.Messages() {
		drained++
	}
	assert.Equal(t, 1, drained)
	assert.Equal(t, 1, clients.Len())
	<-a.Messages()
	require.NoError(t, m.FireSync(ctx, cache.TagSyncData))
	assert.Empty(t, m.PendingSyncs())
}

func TestRunSchedulerRetriesPendingTags(t *testing.T) {
	clients := cache.NewClients(4)
	session := clients.Connect()
	m := newManager(t, newFakeNet(), cache.NewMemoryStorage(), cache.WithClients(clients))
	m.RegisterSync(cache.TagSyncData)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.RunScheduler(ctx, 5*time.Millisecond, 0) }()

	select {
	case msg := <-session.Messages():
		assert.Equal(t, cache.MsgBackgroundSync, msg.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler never fired the pending tag")
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestHandleMessage(t *testing.T) {
	ctx := context.Background()
	net := newFakeNet()
	m := newManager(t, net, cache.NewMemoryStorage())
	require.NoError(t, m.Install(ctx))

	require.NoError(t, m.HandleMessage(ctx, cache.Message{Type: cache.MsgSkipWaiting}))
	assert.Equal(t, cache.StateActive, m.State())

	require.NoError(t, m.HandleMessage(ctx, cache.Message{Type: cache.MsgRegisterSync}))
	assert.Equal(t, []string{cache.TagSyncData}, m.PendingSyncs())

	data, err := json.Marshal(cache.CacheUpdate{URL: "/data/latest.json", Content: `{"entries":[]}`})
	require.NoError(t, err)
	require.NoError(t, m.HandleMessage(ctx, cache.Message{Type: cache.MsgCacheUpdate, Data: data}))
	net.setOffline(true)
	_, body, err := get(t, m, origin+"/data/latest.json", "")
	require.NoError(t, err)
	assert.Equal(t, `{"entries":[]}`, body)

	err = m.HandleMessage(ctx, cache.Message{Type: "PUSH"})
	assert.ErrorIs(t, err, cache.ErrUnknownMessage)
}

func TestNewRejectsRelativeOrigin(t *testing.T) {
	_, err := cache.New("/app", cache.DefaultManifest(), cache.NewMemoryStorage())
	assert.Error(t, err)
}
