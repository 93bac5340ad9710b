package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Message types exchanged with client sessions.
const (
	MsgBackgroundSync   = "BACKGROUND_SYNC"
	MsgSkipWaiting      = "SKIP_WAITING"
	MsgRegisterSync     = "REGISTER_SYNC"
	MsgCacheUpdate      = "CACHE_UPDATE"
	MsgControllerChange = "CONTROLLER_CHANGE"

	ActionSyncData = "SYNC_DATA"
)

// ErrClientBusy is reported for a session whose message buffer is full.
var ErrClientBusy = errors.New("client message buffer full")

// Message is posted between the cache manager and client sessions.
type Message struct {
	Type   string          `json:"type"`
	Action string          `json:"action,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Client is one connected session. Messages posted to it are delivered on
// Messages until it disconnects.
type Client struct {
	ID         string
	ch         chan Message
	controlled atomic.Bool
}

// Messages returns the session's inbox. It is closed on Disconnect.
func (c *Client) Messages() <-chan Message { return c.ch }

// Controlled reports whether an active cache manager has claimed the session.
func (c *Client) Controlled() bool { return c.controlled.Load() }

// Clients is the registry of connected sessions.
type Clients struct {
	mu      sync.Mutex
	clients map[string]*Client
	buffer  int
}

// NewClients returns a registry whose sessions buffer up to buffer messages.
func NewClients(buffer int) *Clients {
	if buffer <= 0 {
		buffer = 16
	}
	return &Clients{clients: make(map[string]*Client), buffer: buffer}
}

// Connect registers a new session.
func (cs *Clients) Connect() *Client {
	c := &Client{ID: uuid.NewString(), ch: make(chan Message, cs.buffer)}
	cs.mu.Lock()
	cs.clients[c.ID] = c
	cs.mu.Unlock()
	return c
}

// Disconnect removes a session and closes its inbox. Unknown ids are ignored.
func (cs *Clients) Disconnect(id string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if c, ok := cs.clients[id]; ok {
		delete(cs.clients, id)
		close(c.ch)
	}
}

// Len returns the number of connected sessions.
func (cs *Clients) Len() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.clients)
}

// Claim marks every connected session as controlled and notifies it.
func (cs *Clients) Claim() error {
	cs.mu.Lock()
	for _, c := range cs.clients {
		c.controlled.Store(true)
	}
	cs.mu.Unlock()
	return cs.Broadcast(Message{Type: MsgControllerChange})
}

// Broadcast posts msg to every session without blocking. Sessions that could
// not take the message are reported in the joined error.
func (cs *Clients) Broadcast(msg Message) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	ids := make([]string, 0, len(cs.clients))
	for id := range cs.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var errs []error
	for _, id := range ids {
		select {
		case cs.clients[id].ch <- msg:
		default:
			errs = append(errs, fmt.Errorf("client %s: %w", id, ErrClientBusy))
		}
	}
	return errors.Join(errs...)
}
