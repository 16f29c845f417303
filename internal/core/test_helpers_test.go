package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/mentorwire/internal/log"
	"github.com/vovakirdan/mentorwire/internal/store"
)

var errStoreDown = errors.New("store unavailable")

// memStore is an in-memory store.Store with switchable failures.
type memStore struct {
	mu            sync.Mutex
	messages      []*store.Message
	byKey         map[string]*store.Message
	notifications []*store.Notification
	failSave      bool
	failNotify    bool

	// notifyHook, when set, runs at the start of CreateNotification.
	notifyHook func()

	// saveDelay, when set, stalls each SaveMessage before it commits.
	saveDelay func(call int64) time.Duration
	saves     atomic.Int64
}

func newMemStore() *memStore {
	return &memStore{byKey: make(map[string]*store.Message)}
}

func (m *memStore) CreateUser(context.Context, store.User) (*store.User, error) {
	return nil, errors.New("not implemented")
}

func (m *memStore) GetUserByID(context.Context, int64) (*store.User, error) {
	return nil, store.ErrNotFound
}

func (m *memStore) GetUserByUsername(context.Context, string) (*store.User, error) {
	return nil, store.ErrNotFound
}

func (m *memStore) SaveMessage(_ context.Context, msg *store.Message) (bool, error) {
	if m.saveDelay != nil {
		time.Sleep(m.saveDelay(m.saves.Add(1)))
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failSave {
		return false, errStoreDown
	}
	key := fmt.Sprintf("%d/%s", msg.SenderID, msg.ClientID)
	if prev, ok := m.byKey[key]; ok {
		*msg = *prev
		return false, nil
	}
	msg.ID = int64(len(m.messages) + 1)
	msg.ConversationKey = store.DirectKey(msg.SenderID, msg.ReceiverID)
	cp := *msg
	m.messages = append(m.messages, &cp)
	m.byKey[key] = &cp
	return true, nil
}

func (m *memStore) ListConversation(_ context.Context, a, b int64, _ int, _ *int64) ([]*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := store.DirectKey(a, b)
	var out []*store.Message
	for _, msg := range m.messages {
		if msg.ConversationKey == key {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) CreateNotification(_ context.Context, n *store.Notification) error {
	if m.notifyHook != nil {
		m.notifyHook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failNotify {
		return errStoreDown
	}
	cp := *n
	m.notifications = append(m.notifications, &cp)
	return nil
}

func (m *memStore) ListNotifications(_ context.Context, recipient int64, _, _ int) ([]*store.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*store.Notification
	for i := len(m.notifications) - 1; i >= 0; i-- {
		if m.notifications[i].Recipient == recipient {
			out = append(out, m.notifications[i])
		}
	}
	return out, nil
}

func (m *memStore) CountUnread(_ context.Context, recipient int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, note := range m.notifications {
		if note.Recipient == recipient && !note.IsRead {
			n++
		}
	}
	return n, nil
}

func (m *memStore) MarkRead(_ context.Context, recipient int64, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, note := range m.notifications {
		if note.ID == id && note.Recipient == recipient {
			note.IsRead = true
			note.IsSeen = true
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memStore) MarkAllRead(_ context.Context, recipient int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, note := range m.notifications {
		if note.Recipient == recipient && !note.IsRead {
			note.IsRead = true
			note.IsSeen = true
			n++
		}
	}
	return n, nil
}

func (m *memStore) MarkAllSeen(_ context.Context, recipient int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, note := range m.notifications {
		if note.Recipient == recipient && !note.IsSeen {
			note.IsSeen = true
			n++
		}
	}
	return n, nil
}

func (m *memStore) DeleteNotification(_ context.Context, recipient int64, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, note := range m.notifications {
		if note.ID == id && note.Recipient == recipient {
			m.notifications = append(m.notifications[:i], m.notifications[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memStore) Close() error { return nil }

func (m *memStore) notificationsFor(recipient int64, typ store.NotificationType) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, note := range m.notifications {
		if note.Recipient == recipient && note.Type == typ {
			n++
		}
	}
	return n
}

func (m *memStore) messageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

func newTestHub(t *testing.T, opts Options) (*Hub, *memStore) {
	t.Helper()
	st := newMemStore()
	return NewHub(st, opts, log.Nop()), st
}

// joined connects a client as userID and discards the join handshake.
func joined(t *testing.T, h *Hub, connID string, userID int64) *Client {
	t.Helper()
	c := h.Connect(connID)
	h.Handle(context.Background(), c, JoinCommand{UserID: userID})
	mustEvent[JoinConfirmedEvent](t, c)
	mustEvent[ActiveUsersEvent](t, c)
	return c
}

// drain discards every queued event.
func drain(c *Client) {
	for {
		select {
		case <-c.Events:
		default:
			return
		}
	}
}

// mustEvent waits for the next event of type T, skipping others.
func mustEvent[T Event](t *testing.T, c *Client) T {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events:
			require.True(t, ok, "event channel closed")
			if typed, match := ev.(T); match {
				return typed
			}
		case <-deadline:
			var zero T
			t.Fatalf("expected %T event not received", zero)
			return zero
		}
	}
}

// noEvent asserts that no event of type T is queued within wait.
func noEvent[T Event](t *testing.T, c *Client, wait time.Duration) {
	t.Helper()

	deadline := time.After(wait)
	for {
		select {
		case ev, ok := <-c.Events:
			if !ok {
				return
			}
			if _, match := ev.(T); match {
				t.Fatalf("unexpected %T event: %+v", ev, ev)
			}
		case <-deadline:
			return
		}
	}
}
