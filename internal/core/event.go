package core

import (
	"encoding/json"

	"github.com/vovakirdan/mentorwire/internal/store"
)

// EventKind identifies an event the core emits to clients.
type EventKind int

const (
	// EventJoinConfirmed acknowledges a join to the joining connection.
	EventJoinConfirmed EventKind = iota
	// EventActiveUsers delivers the online user snapshot to a new connection.
	EventActiveUsers
	// EventUserOnline announces a user's first connection.
	EventUserOnline
	// EventUserOffline announces a user's last disconnection.
	EventUserOffline

	EventMessageReceived
	EventMessageConfirmed
	EventMessageFailed

	// Call events
	EventIncomingCall
	EventCallFailed
	EventCallAccepted
	EventCallRejected
	EventCallEnded
	EventSignal

	EventNotification
	EventUnreadCount

	// EventError notifies a client about a domain error.
	EventError
)

var eventKindNames = [...]string{
	EventJoinConfirmed:    "join_confirmed",
	EventActiveUsers:      "active_users",
	EventUserOnline:       "user_online",
	EventUserOffline:      "user_offline",
	EventMessageReceived:  "message_received",
	EventMessageConfirmed: "message_confirmed",
	EventMessageFailed:    "message_failed",
	EventIncomingCall:     "incoming_call",
	EventCallFailed:       "call_failed",
	EventCallAccepted:     "call_accepted",
	EventCallRejected:     "call_rejected",
	EventCallEnded:        "call_ended",
	EventSignal:           "signal",
	EventNotification:     "notification",
	EventUnreadCount:      "unread_count",
	EventError:            "error",
}

func (k EventKind) String() string {
	if int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return "unknown"
}

// Event is sent to clients to describe what happened in the system.
// Only the types declared in this file implement it.
type Event interface {
	Kind() EventKind
}

type JoinConfirmedEvent struct {
	UserID     int64
	Name       string
	ICEServers []ICEServer
}

type ActiveUsersEvent struct {
	UserIDs []int64
}

type UserOnlineEvent struct {
	UserID int64
}

type UserOfflineEvent struct {
	UserID int64
}

// MessageReceivedEvent carries a persisted message to the receiver.
type MessageReceivedEvent struct {
	Message ChatMessage
}

// MessageConfirmedEvent tells the sender's connections a message was persisted.
// Duplicate is set when the message id had been stored before.
type MessageConfirmedEvent struct {
	Message   ChatMessage
	Duplicate bool
}

type MessageFailedEvent struct {
	MessageID  string
	ReceiverID int64
	Reason     string
}

type IncomingCallEvent struct {
	CallID     string
	CallerID   int64
	CallerName string
}

type CallFailedEvent struct {
	CallID     string
	ReceiverID int64
	Reason     string
}

type CallAcceptedEvent struct {
	CallID     string
	ReceiverID int64
}

type CallRejectedEvent struct {
	CallID     string
	ReceiverID int64
	Reason     string
}

type CallEndedEvent struct {
	CallID string
	By     int64
	Reason string
}

// SignalEvent relays a signaling payload verbatim from one participant to the other.
type SignalEvent struct {
	CallID  string
	From    int64
	Signal  SignalKind
	Payload json.RawMessage
}

type NotificationEvent struct {
	Notification store.Notification
	UnreadCount  int64
}

type UnreadCountEvent struct {
	Count int64
}

type ErrorEvent struct {
	Err *CoreError
}

func (JoinConfirmedEvent) Kind() EventKind    { return EventJoinConfirmed }
func (ActiveUsersEvent) Kind() EventKind      { return EventActiveUsers }
func (UserOnlineEvent) Kind() EventKind       { return EventUserOnline }
func (UserOfflineEvent) Kind() EventKind      { return EventUserOffline }
func (MessageReceivedEvent) Kind() EventKind  { return EventMessageReceived }
func (MessageConfirmedEvent) Kind() EventKind { return EventMessageConfirmed }
func (MessageFailedEvent) Kind() EventKind    { return EventMessageFailed }
func (IncomingCallEvent) Kind() EventKind     { return EventIncomingCall }
func (CallFailedEvent) Kind() EventKind       { return EventCallFailed }
func (CallAcceptedEvent) Kind() EventKind     { return EventCallAccepted }
func (CallRejectedEvent) Kind() EventKind     { return EventCallRejected }
func (CallEndedEvent) Kind() EventKind        { return EventCallEnded }
func (SignalEvent) Kind() EventKind           { return EventSignal }
func (NotificationEvent) Kind() EventKind     { return EventNotification }
func (UnreadCountEvent) Kind() EventKind      { return EventUnreadCount }
func (ErrorEvent) Kind() EventKind            { return EventError }

func errorEvent(code, msg string) ErrorEvent {
	return ErrorEvent{Err: coreError(code, msg)}
}
