package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/mentorwire/internal/store"
)

type recordingPublisher struct {
	keys chan string
}

func (p *recordingPublisher) Publish(_ context.Context, key string, _ any) error {
	p.keys <- key
	return nil
}

func TestHubJoinConfirmsAndCarriesICEServers(t *testing.T) {
	ice := []ICEServer{{URLs: []string{"stun:stun.example.org:3478"}}}
	h, _ := newTestHub(t, Options{ICEServers: ice})

	c := h.Connect("c1")
	handle(h, c, JoinCommand{UserID: 4, Name: "Tutor"})

	conf := mustEvent[JoinConfirmedEvent](t, c)
	assert.Equal(t, int64(4), conf.UserID)
	assert.Equal(t, "Tutor", conf.Name)
	assert.Equal(t, ice, conf.ICEServers)
	assert.Equal(t, []int64{4}, mustEvent[ActiveUsersEvent](t, c).UserIDs)
}

func TestHubRejoinAsOtherUser(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	c := joined(t, h, "c", 1)

	handle(h, c, JoinCommand{UserID: 2})
	assert.Equal(t, ErrCodeUnauthorized, mustEvent[ErrorEvent](t, c).Err.Code)
	assert.Equal(t, int64(1), c.UserID())

	handle(h, c, JoinCommand{UserID: 0})
	assert.Equal(t, ErrCodeBadRequest, mustEvent[ErrorEvent](t, c).Err.Code)
}

func TestHubLeaveKeepsConnectionOpen(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	observer := joined(t, h, "o", 9)
	c := joined(t, h, "c", 1)

	handle(h, c, LeaveCommand{})
	assert.Equal(t, int64(1), mustEvent[UserOfflineEvent](t, observer).UserID)
	assert.Zero(t, c.UserID())
	assert.True(t, c.Push(UnreadCountEvent{}))

	// The connection may join again.
	handle(h, c, JoinCommand{UserID: 1})
	mustEvent[JoinConfirmedEvent](t, c)
	assert.True(t, h.Registry.IsOnline(1))
}

func TestHubDisconnectLeavesNoEntries(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	c := joined(t, h, "c", 1)

	h.Disconnect(c)
	h.Disconnect(c)

	assert.False(t, h.Registry.IsOnline(1))
	assert.Empty(t, h.Registry.ConnectionsFor(1))
	for range c.Events {
	}
	assert.False(t, c.Push(UnreadCountEvent{}))
}

func TestHubPublishesAuditEvents(t *testing.T) {
	pub := &recordingPublisher{keys: make(chan string, 4)}
	h, _ := newTestHub(t, Options{Publisher: pub})
	alice := joined(t, h, "a", 1)

	send(h, alice, ChatMessage{ReceiverID: 2, Content: "hi"})
	handle(h, alice, InitiateCallCommand{CallID: "c", ReceiverID: 2})

	assert.Equal(t, "message.sent", <-pub.keys)
	assert.Equal(t, "call."+string(CallTimedOut), <-pub.keys)
}

func TestHubRunStopsOnCancel(t *testing.T) {
	h, _ := newTestHub(t, Options{SweepSchedule: "@every 1s", CallRetention: time.Millisecond})
	caller := joined(t, h, "caller", 1)
	handle(h, caller, InitiateCallCommand{CallID: "c", ReceiverID: 2})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := h.Calls.Session("c")
		return !ok
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
}

func TestHubRunRejectsBadSchedule(t *testing.T) {
	h, _ := newTestHub(t, Options{SweepSchedule: "not a schedule"})
	assert.Error(t, h.Run(context.Background()))
}

// Acceptance scenarios.

func TestScenarioTutorStudentChat(t *testing.T) {
	h, st := newTestHub(t, Options{})
	student := joined(t, h, "student", 10)
	tutor := joined(t, h, "tutor", 20)

	send(h, student, ChatMessage{ID: "s1", ReceiverID: 20, Content: "Can we start?"})
	assert.Equal(t, "s1", mustEvent[MessageReceivedEvent](t, tutor).Message.ID)
	assert.Equal(t, "s1", mustEvent[MessageConfirmedEvent](t, student).Message.ID)

	send(h, tutor, ChatMessage{ID: "t1", ReceiverID: 10, Content: "Yes"})
	assert.Equal(t, "t1", mustEvent[MessageReceivedEvent](t, student).Message.ID)

	msgs, err := st.ListConversation(context.Background(), 20, 10, 50, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, msgs[0].ConversationKey, msgs[1].ConversationKey)
}

func TestScenarioCallDuringDisconnect(t *testing.T) {
	h, st := newTestHub(t, Options{RingTimeout: time.Minute})
	student := joined(t, h, "student", 10)
	tutor := joined(t, h, "tutor", 20)

	handle(h, student, InitiateCallCommand{CallID: "lesson", ReceiverID: 20})
	mustEvent[IncomingCallEvent](t, tutor)

	// The caller's only tab closes while ringing.
	h.Disconnect(student)
	ended := mustEvent[CallEndedEvent](t, tutor)
	assert.Equal(t, CallReasonDisconnected, ended.Reason)
	assert.Zero(t, h.Calls.ActiveCount())
	assert.Equal(t, 1, st.notificationsFor(20, store.NotificationMissedCall))
}
