package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/mentorwire/internal/observability"
	"github.com/vovakirdan/mentorwire/internal/store"
)

// Notifier persists notifications and pushes them to the recipient's live
// connections. It keeps a cache of the unread count for online users, always
// refreshed from the store after a write and dropped when the user goes offline.
type Notifier struct {
	store    store.NotificationStore
	registry *Registry
	log      zerolog.Logger

	mu     sync.Mutex
	unread map[int64]int64
}

// NewNotifier constructs a dispatcher over st.
func NewNotifier(st store.NotificationStore, reg *Registry, logger *zerolog.Logger) *Notifier {
	n := &Notifier{
		store:    st,
		registry: reg,
		log:      logger.With().Str("component", "notifier").Logger(),
		unread:   make(map[int64]int64),
	}
	reg.Subscribe(n.onPresence)
	return n
}

func (n *Notifier) onPresence(ch PresenceChange) {
	if ch.Online {
		return
	}
	n.mu.Lock()
	delete(n.unread, ch.UserID)
	n.mu.Unlock()
}

// Notify persists a notification for recipient and pushes it with the fresh
// unread count. Nothing is pushed when persistence fails.
func (n *Notifier) Notify(ctx context.Context, recipient int64, typ store.NotificationType, payload any) (*store.Notification, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode notification payload: %w", err)
	}

	note := &store.Notification{
		ID:        uuid.NewString(),
		Recipient: recipient,
		Type:      typ,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}
	if err := n.store.CreateNotification(ctx, note); err != nil {
		n.log.Error().Err(err).Int64("user_id", recipient).Str("type", string(typ)).Msg("create notification")
		return nil, fmt.Errorf("create notification: %w", err)
	}
	observability.IncNotification(string(typ))

	count, err := n.refresh(ctx, recipient)
	if err != nil {
		// The row exists; the poller will reconcile the count.
		n.log.Warn().Err(err).Int64("user_id", recipient).Msg("count unread")
		count = n.Cached(recipient) + 1
	}
	n.registry.PushTo(recipient, NotificationEvent{Notification: *note, UnreadCount: count})
	return note, nil
}

// UnreadCount returns the authoritative unread count and refreshes the cache.
func (n *Notifier) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	return n.refresh(ctx, userID)
}

// Cached returns the last known unread count without touching the store.
func (n *Notifier) Cached(userID int64) int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.unread[userID]
}

// List returns the user's notifications, newest first.
func (n *Notifier) List(ctx context.Context, userID int64, limit, offset int) ([]*store.Notification, error) {
	return n.store.ListNotifications(ctx, userID, limit, offset)
}

// MarkRead flags one notification as read.
func (n *Notifier) MarkRead(ctx context.Context, userID int64, id string) error {
	if err := n.store.MarkRead(ctx, userID, id); err != nil {
		return err
	}
	return n.publishCount(ctx, userID)
}

// MarkAllRead flags every notification of userID as read.
func (n *Notifier) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	changed, err := n.store.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	return changed, n.publishCount(ctx, userID)
}

// MarkAllSeen flags every notification of userID as seen. Seen does not
// affect the unread count.
func (n *Notifier) MarkAllSeen(ctx context.Context, userID int64) (int64, error) {
	changed, err := n.store.MarkAllSeen(ctx, userID)
	if err != nil {
		return 0, err
	}
	return changed, n.publishCount(ctx, userID)
}

// Delete removes one notification.
func (n *Notifier) Delete(ctx context.Context, userID int64, id string) error {
	if err := n.store.DeleteNotification(ctx, userID, id); err != nil {
		return err
	}
	return n.publishCount(ctx, userID)
}

func (n *Notifier) publishCount(ctx context.Context, userID int64) error {
	count, err := n.refresh(ctx, userID)
	if err != nil {
		return err
	}
	n.registry.PushTo(userID, UnreadCountEvent{Count: count})
	return nil
}

func (n *Notifier) refresh(ctx context.Context, userID int64) (int64, error) {
	count, err := n.store.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	n.mu.Lock()
	// Checked under mu so an offline transition cannot slip between the check
	// and the write.
	if n.registry.IsOnline(userID) {
		n.unread[userID] = int64(count)
	}
	n.mu.Unlock()
	return int64(count), nil
}
