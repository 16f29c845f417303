package proto

import (
	"encoding/json"

	"github.com/pion/webrtc/v3"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeJoin         = "join"
	InboundTypeLeave        = "leave"
	InboundTypeSendMessage  = "sendMessage"
	InboundTypeInitiateCall = "initiateCall"
	InboundTypeAcceptCall   = "acceptCall"
	InboundTypeRejectCall   = "rejectCall"
	InboundTypeEndCall      = "endCall"
	InboundTypeOffer        = "offer"
	InboundTypeAnswer       = "answer"
	InboundTypeICECandidate = "iceCandidate"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// Outbound event names.
const (
	EventJoinConfirmed    = "joinConfirmed"
	EventActiveUsers      = "activeUsersUpdate"
	EventUserOnline       = "userOnline"
	EventUserOffline      = "userOffline"
	EventReceiveMessage   = "receiveMessage"
	EventMessageConfirmed = "messageConfirmed"
	EventMessageFailed    = "messageFailed"
	EventIncomingCall     = "incomingCall"
	EventCallFailed       = "callFailed"
	EventCallAccepted     = "callAccepted"
	EventCallRejected     = "callRejected"
	EventCallEnded        = "callEnded"
	EventNewNotification  = "newNotification"
	EventUnreadCount      = "unreadCount"
	// Signaling events reuse the inbound names: offer, answer, iceCandidate.
)

// JoinData binds the connection to a user.
type JoinData struct {
	UserID   int64  `json:"userId"`
	Token    string `json:"token,omitempty"`
	Name     string `json:"name,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
}

// SendMessageData is a chat message from the client. Older clients send the
// text as content. SenderID, when present, must match the joined user;
// Timestamp is informational and the server stamps its own.
type SendMessageData struct {
	MessageID   string `json:"messageId,omitempty"`
	SenderID    int64  `json:"senderId,omitempty"`
	ReceiverID  int64  `json:"receiverId"`
	Message     string `json:"message,omitempty"`
	Content     string `json:"content,omitempty"`
	MessageType string `json:"messageType,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"`
}

// Text returns the message body, preferring message over content.
func (d SendMessageData) Text() string {
	if d.Message != "" {
		return d.Message
	}
	return d.Content
}

type InitiateCallData struct {
	CallID     string `json:"callId,omitempty"`
	ReceiverID int64  `json:"receiverId"`
	CallerName string `json:"callerName,omitempty"`
}

// AnswerCallData is used by acceptCall and rejectCall.
type AnswerCallData struct {
	CallID   string `json:"callId,omitempty"`
	CallerID int64  `json:"callerId,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type EndCallData struct {
	CallID string `json:"callId"`
}

// SignalData carries an SDP description or ICE candidate. Payload is relayed
// to the other participant unchanged.
type SignalData struct {
	CallID  string          `json:"callId"`
	Payload json.RawMessage `json:"payload"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

type EventJoinConfirmedData struct {
	UserID     int64              `json:"userId"`
	Name       string             `json:"name,omitempty"`
	Protocol   int                `json:"protocol"`
	ICEServers []webrtc.ICEServer `json:"iceServers,omitempty"`
}

type EventActiveUsersData struct {
	UserIDs []int64 `json:"userIds"`
}

type EventPresenceData struct {
	UserID int64 `json:"userId"`
}

// ChatMessage is the wire form of a relayed message.
type ChatMessage struct {
	MessageID   string `json:"messageId"`
	Seq         int64  `json:"seq,omitempty"`
	SenderID    int64  `json:"senderId"`
	ReceiverID  int64  `json:"receiverId"`
	Content     string `json:"content"`
	MessageType string `json:"messageType"`
	Timestamp   int64  `json:"timestamp"`
	Status      string `json:"deliveryStatus,omitempty"`
}

type EventMessageConfirmedData struct {
	ChatMessage
	Duplicate bool `json:"duplicate,omitempty"`
}

type EventMessageFailedData struct {
	MessageID  string `json:"messageId"`
	ReceiverID int64  `json:"receiverId,omitempty"`
	Error      string `json:"error"`
}

type EventIncomingCallData struct {
	CallID     string `json:"callId"`
	CallerID   int64  `json:"callerId"`
	CallerName string `json:"callerName,omitempty"`
}

// EventCallData is shared by callFailed, callAccepted, callRejected and callEnded.
type EventCallData struct {
	CallID     string `json:"callId"`
	ReceiverID int64  `json:"receiverId,omitempty"`
	By         int64  `json:"by,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

type EventSignalData struct {
	CallID  string          `json:"callId"`
	From    int64           `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

type Notification struct {
	ID        string          `json:"notificationId"`
	Recipient int64           `json:"recipient"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	IsRead    bool            `json:"isRead"`
	IsSeen    bool            `json:"isSeen"`
	CreatedAt int64           `json:"createdAt"`
}

type EventNotificationData struct {
	Notification Notification `json:"notification"`
	UnreadCount  int64        `json:"unreadCount"`
}

type EventUnreadCountData struct {
	Count int64 `json:"count"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
