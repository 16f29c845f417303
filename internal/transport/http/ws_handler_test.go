package http

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/mentorwire/internal/config"
	"github.com/vovakirdan/mentorwire/internal/proto"
)

func TestHealthEndpoint(t *testing.T) {
	env := startTestServer(t, nil)

	resp, err := env.ts.Client().Get(env.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}

func TestWebSocketJoinAndMessage(t *testing.T) {
	env := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := joinAs(t, ctx, env, 1)
	bob := joinAs(t, ctx, env, 2)

	online := decode[proto.EventPresenceData](t, readEvent(t, ctx, alice, proto.EventUserOnline))
	assert.Equal(t, int64(2), online.UserID)

	send(t, ctx, alice, proto.InboundTypeSendMessage, proto.SendMessageData{
		MessageID:  "m-1",
		ReceiverID: 2,
		Content:    "hi there",
	})

	got := decode[proto.ChatMessage](t, readEvent(t, ctx, bob, proto.EventReceiveMessage))
	assert.Equal(t, "m-1", got.MessageID)
	assert.Equal(t, int64(1), got.SenderID)
	assert.Equal(t, "hi there", got.Content)
	assert.Equal(t, "text", got.MessageType)

	ack := decode[proto.EventMessageConfirmedData](t, readEvent(t, ctx, alice, proto.EventMessageConfirmed))
	assert.Equal(t, "m-1", ack.MessageID)
	assert.Equal(t, "sent", ack.Status)

	note := decode[proto.EventNotificationData](t, readEvent(t, ctx, bob, proto.EventNewNotification))
	assert.Equal(t, "new_message", note.Notification.Type)
	assert.Equal(t, int64(1), note.UnreadCount)
}

func TestWebSocketMessageValidationFailure(t *testing.T) {
	env := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := joinAs(t, ctx, env, 1)
	send(t, ctx, alice, proto.InboundTypeSendMessage, proto.SendMessageData{MessageID: "bad", ReceiverID: 2})

	failed := decode[proto.EventMessageFailedData](t, readEvent(t, ctx, alice, proto.EventMessageFailed))
	assert.Equal(t, "bad", failed.MessageID)
	assert.Equal(t, "empty_content", failed.Error)
}

func TestWebSocketCallSignaling(t *testing.T) {
	env := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	caller := joinAs(t, ctx, env, 1)
	receiver := joinAs(t, ctx, env, 2)

	send(t, ctx, caller, proto.InboundTypeInitiateCall, proto.InitiateCallData{CallID: "call-1", ReceiverID: 2, CallerName: "Ann"})
	incoming := decode[proto.EventIncomingCallData](t, readEvent(t, ctx, receiver, proto.EventIncomingCall))
	assert.Equal(t, "call-1", incoming.CallID)
	assert.Equal(t, int64(1), incoming.CallerID)

	send(t, ctx, receiver, proto.InboundTypeAcceptCall, proto.AnswerCallData{CallerID: 1})
	readEvent(t, ctx, caller, proto.EventCallAccepted)

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0\r\n"}`)
	send(t, ctx, caller, proto.InboundTypeOffer, proto.SignalData{CallID: "call-1", Payload: offer})
	sig := decode[proto.EventSignalData](t, readEvent(t, ctx, receiver, proto.InboundTypeOffer))
	assert.Equal(t, int64(1), sig.From)
	assert.JSONEq(t, string(offer), string(sig.Payload))

	// An answer labelled as an offer is refused before it reaches the core.
	send(t, ctx, receiver, proto.InboundTypeAnswer, proto.SignalData{CallID: "call-1", Payload: offer})
	errOut := readEvent(t, ctx, receiver, proto.OutboundTypeError)
	assert.Equal(t, "bad_request", errOut.Error.Code)

	send(t, ctx, receiver, proto.InboundTypeEndCall, proto.EndCallData{CallID: "call-1"})
	ended := decode[proto.EventCallData](t, readEvent(t, ctx, caller, proto.EventCallEnded))
	assert.Equal(t, int64(2), ended.By)
}

func TestWebSocketDisconnectCleansUp(t *testing.T) {
	env := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	observer := joinAs(t, ctx, env, 9)
	conn := joinAs(t, ctx, env, 1)
	readEvent(t, ctx, observer, proto.EventUserOnline)

	require.NoError(t, conn.CloseNow())

	off := decode[proto.EventPresenceData](t, readEvent(t, ctx, observer, proto.EventUserOffline))
	assert.Equal(t, int64(1), off.UserID)
	assert.Eventually(t, func() bool { return !env.hub.Registry.IsOnline(1) }, time.Second, 10*time.Millisecond)
}

func TestWebSocketRateLimit(t *testing.T) {
	env := startTestServer(t, func(cfg *config.Config) { cfg.RateLimitPerMinute = 2 })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := joinAs(t, ctx, env, 1)
	send(t, ctx, conn, proto.InboundTypeLeave, struct{}{})
	send(t, ctx, conn, proto.InboundTypeLeave, struct{}{})

	errOut := readEvent(t, ctx, conn, proto.OutboundTypeError)
	assert.Equal(t, "rate_limited", errOut.Error.Code)
}

func TestWebSocketUnknownType(t *testing.T) {
	env := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)
	send(t, ctx, conn, "dance", struct{}{})
	errOut := readEvent(t, ctx, conn, proto.OutboundTypeError)
	assert.Equal(t, "bad_request", errOut.Error.Code)
}
