package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique field is already taken.
	ErrConflict = errors.New("conflict")
)

// Role is the side of the marketplace an account is on.
type Role string

const (
	RoleStudent Role = "student"
	RoleTutor   Role = "tutor"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTutor
}

// User is a marketplace account.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	Role         Role
	PasswordHash string
	CreatedAt    time.Time
}

// MessageType defines the kind of content a chat message carries.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeAudio MessageType = "audio"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeAudio:
		return true
	}
	return false
}

// Message represents a persisted direct message.
type Message struct {
	ID              int64
	ClientID        string // sender-generated idempotency key
	SenderID        int64
	ReceiverID      int64
	ConversationKey string
	Body            string
	Type            MessageType
	CreatedAt       time.Time
}

// NotificationType defines what a notification is about.
type NotificationType string

const (
	NotificationIncomingCall NotificationType = "incoming_call"
	NotificationMissedCall   NotificationType = "missed_call"
	NotificationCallAnswered NotificationType = "call_answered"
	NotificationCallRejected NotificationType = "call_rejected"
	NotificationCallEnded    NotificationType = "call_ended"
	NotificationNewMessage   NotificationType = "new_message"
	NotificationChatMessage  NotificationType = "chat_message"
	NotificationSystem       NotificationType = "system_notification"
)

// Notification is a record shown in the recipient's notification list.
type Notification struct {
	ID        string
	Recipient int64
	Type      NotificationType
	Payload   json.RawMessage
	IsRead    bool
	IsSeen    bool
	CreatedAt time.Time
}

// DirectKey returns the conversation key for the unordered pair {a, b}.
func DirectKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("dm:%d:%d", a, b)
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser stores u, whose PasswordHash is already hashed, and returns
	// the saved row. A taken username is ErrConflict.
	CreateUser(ctx context.Context, u User) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage appends msg to its conversation. When (SenderID, ClientID) already
	// exists nothing is written, msg is filled from the stored row and created is false.
	SaveMessage(ctx context.Context, msg *Message) (created bool, err error)

	// ListConversation returns messages between two users, newest first.
	// If beforeID is provided, returns messages older than that ID.
	ListConversation(ctx context.Context, userA, userB int64, limit int, beforeID *int64) ([]*Message, error)
}

// NotificationStore handles notification persistence.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *Notification) error
	ListNotifications(ctx context.Context, recipient int64, limit, offset int) ([]*Notification, error)
	CountUnread(ctx context.Context, recipient int64) (int, error)

	// MarkRead returns ErrNotFound when the notification does not belong to recipient.
	MarkRead(ctx context.Context, recipient int64, id string) error
	MarkAllRead(ctx context.Context, recipient int64) (int64, error)
	MarkAllSeen(ctx context.Context, recipient int64) (int64, error)
	DeleteNotification(ctx context.Context, recipient int64, id string) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore
	NotificationStore

	// Close closes the underlying database connection.
	Close() error
}
