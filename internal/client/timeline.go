package client

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vovakirdan/mentorwire/internal/proto"
)

// Status is the local delivery state of an outgoing message.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Entry is one message in the local timeline.
type Entry struct {
	MessageID  string
	SenderID   int64
	ReceiverID int64
	Content    string
	Type       string
	Seq        int64
	Status     Status
	Reason     string
	CreatedAt  time.Time
}

// Timeline keeps optimistic outgoing messages keyed by message id and
// reconciles them with server confirmations. A confirmed entry never goes
// back to pending or failed.
type Timeline struct {
	self int64

	mu      sync.Mutex
	entries map[entryKey]*Entry
	order   []entryKey
}

// entryKey mirrors the server's dedupe key.
type entryKey struct {
	sender int64
	id     string
}

// NewTimeline returns an empty timeline for user self.
func NewTimeline(self int64) *Timeline {
	return &Timeline{self: self, entries: make(map[entryKey]*Entry)}
}

func key(senderID int64, messageID string) entryKey {
	return entryKey{sender: senderID, id: messageID}
}

// Add records a new outgoing message as pending and returns it with a fresh id.
func (t *Timeline) Add(receiverID int64, content, typ string) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := &Entry{
		MessageID:  uuid.NewString(),
		SenderID:   t.self,
		ReceiverID: receiverID,
		Content:    content,
		Type:       typ,
		Status:     StatusPending,
		CreatedAt:  time.Now(),
	}
	t.insertLocked(e)
	return *e
}

// Confirm applies a messageConfirmed event. Confirmations for messages this
// timeline never saw, such as sends from another device, are inserted.
func (t *Timeline) Confirm(msg proto.ChatMessage) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key(msg.SenderID, msg.MessageID)
	e, ok := t.entries[k]
	if !ok {
		e = fromWire(msg)
		t.insertLocked(e)
	}
	e.Status = StatusConfirmed
	e.Seq = msg.Seq
	e.Reason = ""
	return *e
}

// Fail applies a messageFailed event. It is ignored for unknown or already
// confirmed messages.
func (t *Timeline) Fail(messageID, reason string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key(t.self, messageID)]
	if !ok || e.Status == StatusConfirmed {
		return Entry{}, false
	}
	e.Status = StatusFailed
	e.Reason = reason
	return *e, true
}

// Retry moves a failed message back to pending under the same id, so the
// server can deduplicate it if the first attempt did land.
func (t *Timeline) Retry(messageID string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key(t.self, messageID)]
	if !ok || e.Status != StatusFailed {
		return Entry{}, false
	}
	e.Status = StatusPending
	e.Reason = ""
	return *e, true
}

// Receive records an inbound message. It reports false for a message already
// in the timeline.
func (t *Timeline) Receive(msg proto.ChatMessage) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[key(msg.SenderID, msg.MessageID)]; ok {
		return false
	}
	e := fromWire(msg)
	e.Status = StatusConfirmed
	t.insertLocked(e)
	return true
}

// Get returns the entry for one of our own messages.
func (t *Timeline) Get(messageID string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key(t.self, messageID)]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Pending returns our messages still awaiting confirmation, oldest first.
func (t *Timeline) Pending() []Entry {
	return t.filter(func(e *Entry) bool { return e.SenderID == t.self && e.Status == StatusPending })
}

// Conversation returns every entry exchanged with peerID in arrival order.
func (t *Timeline) Conversation(peerID int64) []Entry {
	return t.filter(func(e *Entry) bool { return e.ReceiverID == peerID || e.SenderID == peerID })
}

func (t *Timeline) filter(keep func(*Entry) bool) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Entry
	for _, k := range t.order {
		if e := t.entries[k]; keep(e) {
			out = append(out, *e)
		}
	}
	return out
}

func (t *Timeline) insertLocked(e *Entry) {
	k := key(e.SenderID, e.MessageID)
	t.entries[k] = e
	t.order = append(t.order, k)
}

func fromWire(msg proto.ChatMessage) *Entry {
	return &Entry{
		MessageID:  msg.MessageID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Content:    msg.Content,
		Type:       msg.MessageType,
		Seq:        msg.Seq,
		CreatedAt:  time.UnixMilli(msg.Timestamp),
	}
}
