package core

import "encoding/json"

// Command is an action requested by a connection. The set of commands is
// closed: only types in this file implement it.
type Command interface {
	command()
}

// JoinCommand binds the connection to an authenticated user identity.
type JoinCommand struct {
	UserID int64
	Name   string
}

// LeaveCommand detaches the connection from its user without closing it.
type LeaveCommand struct{}

// SendMessageCommand relays a direct chat message.
type SendMessageCommand struct {
	Message ChatMessage
}

// InitiateCallCommand starts ringing the receiver.
type InitiateCallCommand struct {
	CallID     string
	ReceiverID int64
	CallerName string
}

// AcceptCallCommand answers a ringing call. CallID may be empty, in which case
// the pending call from CallerID is used.
type AcceptCallCommand struct {
	CallID   string
	CallerID int64
}

// RejectCallCommand declines a ringing call. CallID may be empty as for accept.
type RejectCallCommand struct {
	CallID   string
	CallerID int64
	Reason   string
}

// EndCallCommand hangs up.
type EndCallCommand struct {
	CallID string
}

// SignalCommand carries an opaque WebRTC signaling payload to the other party.
type SignalCommand struct {
	CallID  string
	Kind    SignalKind
	Payload json.RawMessage
}

func (JoinCommand) command()         {}
func (LeaveCommand) command()        {}
func (SendMessageCommand) command()  {}
func (InitiateCallCommand) command() {}
func (AcceptCallCommand) command()   {}
func (RejectCallCommand) command()   {}
func (EndCallCommand) command()      {}
func (SignalCommand) command()       {}
