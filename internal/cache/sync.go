package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"
)

// Background sync tags.
const (
	TagSyncData  = "sync-hours-data"
	TagDailySync = "daily-sync"
)

// ErrUnknownMessage is returned by HandleMessage for unsupported types.
var ErrUnknownMessage = errors.New("cache: unknown message type")

// CacheUpdate is the payload of a CACHE_UPDATE message.
type CacheUpdate struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}

// RegisterSync records tag as pending until it fires successfully.
func (m *Manager) RegisterSync(tag string) {
	m.mu.Lock()
	m.pending[tag] = struct{}{}
	m.mu.Unlock()
	m.log.Debug("background sync registered", "tag", tag)
}

// PendingSyncs returns the registered tags that have not fired successfully.
func (m *Manager) PendingSyncs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	tags := make([]string, 0, len(m.pending))
	for tag := range m.pending {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// FireSync runs the task behind tag. The data sync tags ask every connected
// session to run a sync; a failed broadcast keeps the tag pending.
func (m *Manager) FireSync(ctx context.Context, tag string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.log.Info("background sync triggered", "tag", tag)
	switch tag {
	case TagSyncData, TagDailySync:
		err := m.clients.Broadcast(Message{Type: MsgBackgroundSync, Action: ActionSyncData})
		if err != nil {
			m.log.Error("background sync failed", "tag", tag, "error", err)
			return fmt.Errorf("background sync %q: %w", tag, err)
		}
	default:
		m.log.Debug("ignoring unknown sync tag", "tag", tag)
	}

	m.mu.Lock()
	delete(m.pending, tag)
	m.mu.Unlock()
	return nil
}

// RunScheduler fires pending tags every interval and the daily sync tag every
// periodic interval (0 disables it) until ctx is done.
func (m *Manager) RunScheduler(ctx context.Context, interval, periodic time.Duration) error {
	retry := time.NewTicker(interval)
	defer retry.Stop()

	var daily <-chan time.Time
	if periodic > 0 {
		t := time.NewTicker(periodic)
		defer t.Stop()
		daily = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-retry.C:
			for _, tag := range m.PendingSyncs() {
				_ = m.FireSync(ctx, tag)
			}
		case <-daily:
			_ = m.FireSync(ctx, TagDailySync)
		}
	}
}

// HandleMessage processes a message posted by a client session.
func (m *Manager) HandleMessage(ctx context.Context, msg Message) error {
	switch msg.Type {
	case MsgSkipWaiting:
		return m.Activate(ctx)
	case MsgRegisterSync:
		m.RegisterSync(TagSyncData)
		return nil
	case MsgCacheUpdate:
		var upd CacheUpdate
		if err := json.Unmarshal(msg.Data, &upd); err != nil {
			return fmt.Errorf("decoding %s: %w", MsgCacheUpdate, err)
		}
		return m.storeUpdate(ctx, upd)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
}

func (m *Manager) storeUpdate(ctx context.Context, upd CacheUpdate) error {
	u, err := url.Parse(upd.URL)
	if err != nil || upd.URL == "" {
		return fmt.Errorf("%s: invalid url %q", MsgCacheUpdate, upd.URL)
	}
	if !u.IsAbs() {
		u = m.origin.ResolveReference(u)
	}
	header := http.Header{"Content-Type": {"text/plain;charset=UTF-8"}}
	e := m.newEntry(m.key(u), u, http.StatusOK, header, []byte(upd.Content))
	if err := m.storage.Put(ctx, m.manifest.DynamicName(), e); err != nil {
		return fmt.Errorf("%s: %w", MsgCacheUpdate, err)
	}
	return nil
}
