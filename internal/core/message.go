package core

import (
	"time"

	"github.com/vovakirdan/mentorwire/internal/store"
)

// DeliveryStatus tracks a chat message from the sender's point of view.
type DeliveryStatus string

const (
	StatusSending DeliveryStatus = "sending"
	StatusSent    DeliveryStatus = "sent"
	StatusFailed  DeliveryStatus = "failed"
)

// ChatMessage is the domain model for a relayed direct message.
type ChatMessage struct {
	ID         string // sender-generated idempotency key
	Seq        int64  // store row id, zero until persisted
	SenderID   int64
	ReceiverID int64
	Content    string
	Type       store.MessageType
	Timestamp  time.Time
	Status     DeliveryStatus
}

func messageFromStore(m *store.Message) ChatMessage {
	return ChatMessage{
		ID:         m.ClientID,
		Seq:        m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Body,
		Type:       m.Type,
		Timestamp:  m.CreatedAt,
		Status:     StatusSent,
	}
}
