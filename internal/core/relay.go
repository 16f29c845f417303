package core

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/mentorwire/internal/observability"
	"github.com/vovakirdan/mentorwire/internal/store"
)

// DefaultMaxMessageBytes caps message content when no limit is configured.
const DefaultMaxMessageBytes = 1 << 20

// Failure reasons reported in MessageFailedEvent.
const (
	ReasonInvalidReceiver   = "invalid_receiver"
	ReasonEmptyContent      = "empty_content"
	ReasonInvalidType       = "invalid_type"
	ReasonTooLarge          = "too_large"
	ReasonSelfMessage       = "self_message"
	ReasonSenderMismatch    = "sender_mismatch"
	ReasonPersistenceFailed = "persistence_failed"
)

// newMessagePreviewRunes bounds the content excerpt stored in new_message notifications.
const newMessagePreviewRunes = 80

// Relay validates, persists and forwards direct messages.
type Relay struct {
	store    store.MessageStore
	registry *Registry
	notifier *Notifier
	audit    *auditor
	maxBytes int
	locks    *keyedMutex
	log      zerolog.Logger
}

func newRelay(st store.MessageStore, reg *Registry, n *Notifier, a *auditor, maxBytes int, logger *zerolog.Logger) *Relay {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMessageBytes
	}
	return &Relay{
		store:    st,
		registry: reg,
		notifier: n,
		audit:    a,
		maxBytes: maxBytes,
		locks:    newKeyedMutex(),
		log:      logger.With().Str("component", "relay").Logger(),
	}
}

// Send relays msg from the joined client c. The sender id always comes from
// the connection; a different claimed sender fails the message. Failures are
// reported to c only.
func (r *Relay) Send(ctx context.Context, c *Client, msg ChatMessage) {
	senderID := c.UserID()
	if senderID == 0 {
		c.Push(errorEvent(ErrCodeNotJoined, "join before sending messages"))
		return
	}
	claimed := msg.SenderID
	msg.SenderID = senderID
	if msg.Type == "" {
		msg.Type = store.MessageTypeText
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	if claimed != 0 && claimed != senderID {
		r.fail(c, msg, ReasonSenderMismatch)
		return
	}
	if reason := r.validate(msg); reason != "" {
		r.fail(c, msg, reason)
		return
	}

	rec := &store.Message{
		ClientID:   msg.ID,
		SenderID:   senderID,
		ReceiverID: msg.ReceiverID,
		Body:       msg.Content,
		Type:       msg.Type,
		CreatedAt:  time.Now().UTC(),
	}

	// Persist and push under the conversation lock so both parties see the
	// same order the store assigned.
	unlock := r.locks.Lock(store.DirectKey(senderID, msg.ReceiverID))
	created, err := r.store.SaveMessage(ctx, rec)
	if err != nil {
		unlock()
		r.log.Error().Err(err).Str("message_id", msg.ID).Int64("user_id", senderID).Msg("save message")
		r.fail(c, msg, ReasonPersistenceFailed)
		return
	}
	saved := messageFromStore(rec)
	if !created {
		r.registry.PushTo(senderID, MessageConfirmedEvent{Message: saved, Duplicate: true})
		unlock()
		observability.IncMessage("duplicate")
		return
	}
	r.registry.PushTo(saved.ReceiverID, MessageReceivedEvent{Message: saved})
	r.registry.PushTo(senderID, MessageConfirmedEvent{Message: saved})
	unlock()

	observability.IncMessage("sent")
	r.log.Debug().Str("message_id", saved.ID).Int64("user_id", senderID).Int64("receiver_id", saved.ReceiverID).Msg("message relayed")

	if _, err := r.notifier.Notify(ctx, saved.ReceiverID, store.NotificationNewMessage, newMessagePayload{
		MessageID:  saved.ID,
		SenderID:   senderID,
		SenderName: c.Name(),
		Type:       saved.Type,
		Preview:    preview(saved),
	}); err != nil {
		r.log.Warn().Err(err).Str("message_id", saved.ID).Msg("new_message notification")
	}
	r.audit.publish(ctx, "message.sent", saved)
}

func (r *Relay) validate(msg ChatMessage) string {
	switch {
	case msg.ReceiverID <= 0:
		return ReasonInvalidReceiver
	case msg.ReceiverID == msg.SenderID:
		return ReasonSelfMessage
	case strings.TrimSpace(msg.Content) == "":
		return ReasonEmptyContent
	case !msg.Type.Valid():
		return ReasonInvalidType
	case len(msg.Content) > r.maxBytes:
		return ReasonTooLarge
	}
	return ""
}

func (r *Relay) fail(c *Client, msg ChatMessage, reason string) {
	observability.IncMessage(reason)
	c.Push(MessageFailedEvent{MessageID: msg.ID, ReceiverID: msg.ReceiverID, Reason: reason})
}

type newMessagePayload struct {
	MessageID  string            `json:"message_id"`
	SenderID   int64             `json:"sender_id"`
	SenderName string            `json:"sender_name,omitempty"`
	Type       store.MessageType `json:"message_type"`
	Preview    string            `json:"preview"`
}

func preview(m ChatMessage) string {
	if m.Type != store.MessageTypeText {
		return "[" + string(m.Type) + "]"
	}
	runes := []rune(m.Content)
	if len(runes) <= newMessagePreviewRunes {
		return m.Content
	}
	return string(runes[:newMessagePreviewRunes]) + "…"
}
