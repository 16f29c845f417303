package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/mentorwire/internal/observability"
	"github.com/vovakirdan/mentorwire/internal/store"
)

const (
	// DefaultRingTimeout matches the client's ringing UI.
	DefaultRingTimeout = 30 * time.Second
	// DefaultCallRetention is how long terminal sessions stay addressable.
	DefaultCallRetention = 2 * time.Minute
)

// CallState is the lifecycle state of a call session.
type CallState string

const (
	CallInitiated CallState = "initiated"
	CallAccepted  CallState = "accepted"
	CallRejected  CallState = "rejected"
	CallTimedOut  CallState = "timed_out"
	CallEnded     CallState = "ended"
)

// Active reports whether the call still carries signaling.
func (s CallState) Active() bool {
	return s == CallInitiated || s == CallAccepted
}

// SignalKind names a relayed WebRTC signaling message.
type SignalKind string

const (
	SignalOffer        SignalKind = "offer"
	SignalAnswer       SignalKind = "answer"
	SignalICECandidate SignalKind = "ice_candidate"
)

func (k SignalKind) Valid() bool {
	switch k {
	case SignalOffer, SignalAnswer, SignalICECandidate:
		return true
	}
	return false
}

// Reasons carried by CallFailedEvent and CallEndedEvent.
const (
	CallReasonInvalidReceiver = "invalid_receiver"
	CallReasonSelfCall        = "self_call"
	CallReasonExists          = "call_exists"
	CallReasonBusy            = "busy"
	CallReasonOffline         = "receiver_offline"
	CallReasonTimeout         = "timeout"
	CallReasonHangup          = "hangup"
	CallReasonDisconnected    = "disconnected"
	CallReasonRejected        = "rejected"
)

// CallSession is one call between a caller and a receiver.
type CallSession struct {
	ID         string
	CallerID   int64
	ReceiverID int64
	CallerName string
	State      CallState
	Reason     string
	StartedAt  time.Time
	EndedAt    time.Time

	timer *time.Timer
}

func (s *CallSession) participant(userID int64) bool {
	return userID == s.CallerID || userID == s.ReceiverID
}

func (s *CallSession) peer(userID int64) int64 {
	if userID == s.CallerID {
		return s.ReceiverID
	}
	return s.CallerID
}

func (s *CallSession) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

type callPayload struct {
	CallID     string `json:"call_id"`
	CallerID   int64  `json:"caller_id"`
	ReceiverID int64  `json:"receiver_id"`
	CallerName string `json:"caller_name,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

type callAudit struct {
	CallID     string    `json:"call_id"`
	CallerID   int64     `json:"caller_id"`
	ReceiverID int64     `json:"receiver_id"`
	State      CallState `json:"state"`
	Reason     string    `json:"reason,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at,omitempty"`
}

// followUps are store and broker side effects run after the session lock is released.
type followUps []func(ctx context.Context)

func (f followUps) run(ctx context.Context) {
	for _, fn := range f {
		fn(ctx)
	}
}

// Coordinator owns every call session and its state machine.
type Coordinator struct {
	registry    *Registry
	notifier    *Notifier
	audit       *auditor
	ringTimeout time.Duration
	retention   time.Duration
	log         zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*CallSession
}

func newCoordinator(reg *Registry, n *Notifier, a *auditor, ringTimeout, retention time.Duration, logger *zerolog.Logger) *Coordinator {
	if ringTimeout <= 0 {
		ringTimeout = DefaultRingTimeout
	}
	if retention <= 0 {
		retention = DefaultCallRetention
	}
	co := &Coordinator{
		registry:    reg,
		notifier:    n,
		audit:       a,
		ringTimeout: ringTimeout,
		retention:   retention,
		log:         logger.With().Str("component", "calls").Logger(),
		sessions:    make(map[string]*CallSession),
	}
	reg.SubscribeAfter(co.onPresence)
	return co
}

// Initiate starts a call from c's user to cmd.ReceiverID.
func (co *Coordinator) Initiate(ctx context.Context, c *Client, cmd InitiateCallCommand) {
	callerID := c.UserID()
	if callerID == 0 {
		c.Push(errorEvent(ErrCodeNotJoined, "join before calling"))
		return
	}
	callID := cmd.CallID
	if callID == "" {
		callID = uuid.NewString()
	}
	name := cmd.CallerName
	if name == "" {
		name = c.Name()
	}

	switch {
	case cmd.ReceiverID <= 0:
		c.Push(CallFailedEvent{CallID: callID, ReceiverID: cmd.ReceiverID, Reason: CallReasonInvalidReceiver})
		return
	case cmd.ReceiverID == callerID:
		c.Push(CallFailedEvent{CallID: callID, ReceiverID: cmd.ReceiverID, Reason: CallReasonSelfCall})
		return
	}

	var after followUps
	co.mu.Lock()
	if _, exists := co.sessions[callID]; exists {
		co.mu.Unlock()
		c.Push(CallFailedEvent{CallID: callID, ReceiverID: cmd.ReceiverID, Reason: CallReasonExists})
		return
	}
	if co.busyLocked(cmd.ReceiverID) {
		co.mu.Unlock()
		observability.IncCall("failed", CallReasonBusy)
		c.Push(CallFailedEvent{CallID: callID, ReceiverID: cmd.ReceiverID, Reason: CallReasonBusy})
		return
	}

	s := &CallSession{
		ID:         callID,
		CallerID:   callerID,
		ReceiverID: cmd.ReceiverID,
		CallerName: name,
		State:      CallInitiated,
		StartedAt:  time.Now().UTC(),
	}
	co.sessions[callID] = s

	if !co.registry.IsOnline(s.ReceiverID) {
		co.finishLocked(s, CallTimedOut, CallReasonOffline)
		co.registry.PushTo(callerID, CallFailedEvent{CallID: callID, ReceiverID: s.ReceiverID, Reason: CallReasonOffline})
		after = append(after, co.notifyFn(s.ReceiverID, store.NotificationMissedCall, s), co.auditFn(s))
	} else {
		co.registry.PushTo(s.ReceiverID, IncomingCallEvent{CallID: callID, CallerID: callerID, CallerName: name})
		s.timer = time.AfterFunc(co.ringTimeout, func() { co.expire(s) })
		after = append(after, co.notifyFn(s.ReceiverID, store.NotificationIncomingCall, s))
	}
	co.mu.Unlock()

	co.log.Info().Str("call_id", callID).Int64("user_id", callerID).Int64("receiver_id", s.ReceiverID).Msg("call initiated")
	after.run(ctx)
}

// Accept answers a ringing call addressed to c's user.
func (co *Coordinator) Accept(ctx context.Context, c *Client, cmd AcceptCallCommand) {
	uid := c.UserID()
	var after followUps

	co.mu.Lock()
	s, errEv := co.answerableLocked(uid, cmd.CallID, cmd.CallerID)
	if errEv != nil {
		co.mu.Unlock()
		c.Push(*errEv)
		return
	}
	s.stopTimer()
	s.State = CallAccepted
	co.registry.PushTo(s.CallerID, CallAcceptedEvent{CallID: s.ID, ReceiverID: uid})
	after = append(after, co.notifyFn(s.CallerID, store.NotificationCallAnswered, s))
	co.mu.Unlock()

	co.log.Info().Str("call_id", s.ID).Int64("user_id", uid).Msg("call accepted")
	after.run(ctx)
}

// Reject declines a ringing call addressed to c's user.
func (co *Coordinator) Reject(ctx context.Context, c *Client, cmd RejectCallCommand) {
	uid := c.UserID()
	reason := cmd.Reason
	if reason == "" {
		reason = CallReasonRejected
	}
	var after followUps

	co.mu.Lock()
	s, errEv := co.answerableLocked(uid, cmd.CallID, cmd.CallerID)
	if errEv != nil {
		co.mu.Unlock()
		c.Push(*errEv)
		return
	}
	co.finishLocked(s, CallRejected, reason)
	co.registry.PushTo(s.CallerID, CallRejectedEvent{CallID: s.ID, ReceiverID: uid, Reason: reason})
	after = append(after, co.notifyFn(s.CallerID, store.NotificationCallRejected, s), co.auditFn(s))
	co.mu.Unlock()

	co.log.Info().Str("call_id", s.ID).Int64("user_id", uid).Str("reason", reason).Msg("call rejected")
	after.run(ctx)
}

// End hangs up a ringing or connected call on behalf of either participant.
func (co *Coordinator) End(ctx context.Context, c *Client, cmd EndCallCommand) {
	uid := c.UserID()
	var after followUps

	co.mu.Lock()
	s, errEv := co.participantLocked(uid, cmd.CallID)
	if errEv != nil {
		co.mu.Unlock()
		c.Push(*errEv)
		return
	}
	if !s.State.Active() {
		co.mu.Unlock()
		c.Push(errorEvent(ErrCodeInvalidTransition, "call is already "+string(s.State)))
		return
	}
	ringing := s.State == CallInitiated
	co.finishLocked(s, CallEnded, CallReasonHangup)
	co.registry.PushTo(s.peer(uid), CallEndedEvent{CallID: s.ID, By: uid, Reason: CallReasonHangup})
	if ringing && uid == s.CallerID {
		after = append(after, co.notifyFn(s.ReceiverID, store.NotificationMissedCall, s))
	}
	after = append(after, co.auditFn(s))
	co.mu.Unlock()

	co.log.Info().Str("call_id", s.ID).Int64("user_id", uid).Msg("call ended")
	after.run(ctx)
}

// RelaySignal forwards an offer, answer or ICE candidate to the other participant.
func (co *Coordinator) RelaySignal(c *Client, cmd SignalCommand) {
	uid := c.UserID()
	if !cmd.Kind.Valid() {
		c.Push(errorEvent(ErrCodeBadRequest, "unknown signal kind"))
		return
	}

	co.mu.Lock()
	defer co.mu.Unlock()

	s, errEv := co.participantLocked(uid, cmd.CallID)
	if errEv != nil {
		c.Push(*errEv)
		return
	}
	if !s.State.Active() {
		c.Push(errorEvent(ErrCodeInvalidTransition, "call is "+string(s.State)))
		return
	}
	co.registry.PushTo(s.peer(uid), SignalEvent{CallID: s.ID, From: uid, Signal: cmd.Kind, Payload: cmd.Payload})
}

// Session returns a copy of the session with the given id.
func (co *Coordinator) Session(callID string) (CallSession, bool) {
	co.mu.Lock()
	defer co.mu.Unlock()

	s, ok := co.sessions[callID]
	if !ok {
		return CallSession{}, false
	}
	out := *s
	out.timer = nil
	return out, true
}

// ActiveCount returns the number of ringing or connected calls.
func (co *Coordinator) ActiveCount() int {
	co.mu.Lock()
	defer co.mu.Unlock()

	n := 0
	for _, s := range co.sessions {
		if s.State.Active() {
			n++
		}
	}
	return n
}

// Sweep forgets terminal sessions older than the retention window.
func (co *Coordinator) Sweep(now time.Time) int {
	co.mu.Lock()
	defer co.mu.Unlock()

	removed := 0
	for id, s := range co.sessions {
		if !s.State.Active() && now.Sub(s.EndedAt) >= co.retention {
			delete(co.sessions, id)
			removed++
		}
	}
	return removed
}

// onPresence ends the active calls of a user whose last connection left. The
// notifications and audit events are returned for the registry to run later.
func (co *Coordinator) onPresence(ch PresenceChange) func() {
	if ch.Online {
		return nil
	}
	var after followUps

	co.mu.Lock()
	for _, s := range co.sessions {
		if !s.State.Active() || !s.participant(ch.UserID) {
			continue
		}
		ringing := s.State == CallInitiated
		co.finishLocked(s, CallEnded, CallReasonDisconnected)
		other := s.peer(ch.UserID)
		co.registry.PushTo(other, CallEndedEvent{CallID: s.ID, By: ch.UserID, Reason: CallReasonDisconnected})
		if ringing && ch.UserID == s.CallerID {
			after = append(after, co.notifyFn(other, store.NotificationMissedCall, s))
		} else {
			after = append(after, co.notifyFn(other, store.NotificationCallEnded, s))
		}
		after = append(after, co.auditFn(s))
		co.log.Info().Str("call_id", s.ID).Int64("user_id", ch.UserID).Msg("call ended by disconnect")
	}
	co.mu.Unlock()

	if len(after) == 0 {
		return nil
	}
	return func() { after.run(context.Background()) }
}

func (co *Coordinator) expire(s *CallSession) {
	var after followUps

	co.mu.Lock()
	if co.sessions[s.ID] != s || s.State != CallInitiated {
		co.mu.Unlock()
		return
	}
	co.finishLocked(s, CallTimedOut, CallReasonTimeout)
	co.registry.PushTo(s.CallerID, CallFailedEvent{CallID: s.ID, ReceiverID: s.ReceiverID, Reason: CallReasonTimeout})
	co.registry.PushTo(s.ReceiverID, CallEndedEvent{CallID: s.ID, By: s.CallerID, Reason: CallReasonTimeout})
	after = append(after, co.notifyFn(s.ReceiverID, store.NotificationMissedCall, s), co.auditFn(s))
	co.mu.Unlock()

	co.log.Info().Str("call_id", s.ID).Msg("call timed out")
	after.run(context.Background())
}

func (co *Coordinator) finishLocked(s *CallSession, state CallState, reason string) {
	s.stopTimer()
	s.State = state
	s.Reason = reason
	s.EndedAt = time.Now().UTC()
	observability.IncCall(string(state), reason)
}

func (co *Coordinator) busyLocked(userID int64) bool {
	for _, s := range co.sessions {
		if s.State.Active() && s.participant(userID) {
			return true
		}
	}
	return false
}

// answerableLocked resolves the call a receiver is answering, either by id or
// as the ringing call from callerID.
func (co *Coordinator) answerableLocked(uid int64, callID string, callerID int64) (*CallSession, *ErrorEvent) {
	if uid == 0 {
		ev := errorEvent(ErrCodeNotJoined, "join before answering calls")
		return nil, &ev
	}
	var s *CallSession
	if callID != "" {
		s = co.sessions[callID]
	} else {
		s = co.latestFromLocked(callerID, uid)
	}
	if s == nil {
		ev := errorEvent(ErrCodeCallNotFound, "call not found")
		return nil, &ev
	}
	if s.ReceiverID != uid {
		ev := errorEvent(ErrCodeNotParticipant, "only the receiver can answer")
		return nil, &ev
	}
	if s.State != CallInitiated {
		ev := errorEvent(ErrCodeInvalidTransition, "call is already "+string(s.State))
		return nil, &ev
	}
	return s, nil
}

// latestFromLocked prefers a ringing call, then the most recent one, so that
// a late answer reports invalid_transition instead of call_not_found.
func (co *Coordinator) latestFromLocked(callerID, receiverID int64) *CallSession {
	var best *CallSession
	for _, s := range co.sessions {
		if s.CallerID != callerID || s.ReceiverID != receiverID {
			continue
		}
		if s.State == CallInitiated {
			return s
		}
		if best == nil || s.StartedAt.After(best.StartedAt) {
			best = s
		}
	}
	return best
}

func (co *Coordinator) participantLocked(uid int64, callID string) (*CallSession, *ErrorEvent) {
	if uid == 0 {
		ev := errorEvent(ErrCodeNotJoined, "join before using calls")
		return nil, &ev
	}
	s, ok := co.sessions[callID]
	if !ok {
		ev := errorEvent(ErrCodeCallNotFound, "call not found")
		return nil, &ev
	}
	if !s.participant(uid) {
		ev := errorEvent(ErrCodeNotParticipant, "not a participant of this call")
		return nil, &ev
	}
	return s, nil
}

func (co *Coordinator) notifyFn(recipient int64, typ store.NotificationType, s *CallSession) func(context.Context) {
	payload := callPayload{
		CallID:     s.ID,
		CallerID:   s.CallerID,
		ReceiverID: s.ReceiverID,
		CallerName: s.CallerName,
		Reason:     s.Reason,
	}
	return func(ctx context.Context) {
		if _, err := co.notifier.Notify(ctx, recipient, typ, payload); err != nil {
			co.log.Warn().Err(err).Str("call_id", payload.CallID).Str("type", string(typ)).Msg("call notification")
		}
	}
}

func (co *Coordinator) auditFn(s *CallSession) func(context.Context) {
	rec := callAudit{
		CallID:     s.ID,
		CallerID:   s.CallerID,
		ReceiverID: s.ReceiverID,
		State:      s.State,
		Reason:     s.Reason,
		StartedAt:  s.StartedAt,
		EndedAt:    s.EndedAt,
	}
	return func(ctx context.Context) {
		co.audit.publish(ctx, "call."+string(rec.State), rec)
	}
}
