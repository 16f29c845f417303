package http

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/mentorwire/internal/core"
	"github.com/vovakirdan/mentorwire/internal/proto"
)

func inbound(t *testing.T, typ string, data any) proto.Inbound {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return proto.Inbound{Type: typ, Data: raw}
}

func TestValidateSignal(t *testing.T) {
	cases := []struct {
		name    string
		kind    core.SignalKind
		payload string
		ok      bool
	}{
		{"offer", core.SignalOffer, `{"type":"offer","sdp":"v=0"}`, true},
		{"answer", core.SignalAnswer, `{"type":"answer","sdp":"v=0"}`, true},
		{"answer as offer", core.SignalOffer, `{"type":"answer","sdp":"v=0"}`, false},
		{"empty sdp", core.SignalAnswer, `{"type":"answer","sdp":""}`, false},
		{"unknown type", core.SignalOffer, `{"type":"bogus","sdp":"v=0"}`, false},
		{"candidate", core.SignalICECandidate, `{"candidate":"candidate:1 1 udp 2122260223 10.0.0.2 54321 typ host","sdpMid":"0","sdpMLineIndex":0}`, true},
		{"end of candidates", core.SignalICECandidate, `{"candidate":""}`, true},
		{"candidate not object", core.SignalICECandidate, `"nope"`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateSignal(tc.kind, json.RawMessage(tc.payload))
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestInboundAcceptNeedsCallOrCaller(t *testing.T) {
	_, perr := inboundToCommand(inbound(t, proto.InboundTypeAcceptCall, proto.AnswerCallData{}))
	require.NotNil(t, perr)
	assert.Equal(t, core.ErrCodeBadRequest, perr.Code)

	cmd, perr := inboundToCommand(inbound(t, proto.InboundTypeRejectCall, proto.AnswerCallData{CallerID: 3, Reason: "later"}))
	require.Nil(t, perr)
	assert.Equal(t, core.RejectCallCommand{CallerID: 3, Reason: "later"}, cmd)
}

func TestInboundSendMessageFields(t *testing.T) {
	raw := proto.Inbound{Type: proto.InboundTypeSendMessage, Data: json.RawMessage(
		`{"receiverId":2,"senderId":1,"message":"hi","messageType":"text","messageId":"m1","timestamp":1700000000000}`,
	)}
	cmd, perr := inboundToCommand(raw)
	require.Nil(t, perr)
	send, ok := cmd.(core.SendMessageCommand)
	require.True(t, ok)
	assert.Equal(t, "m1", send.Message.ID)
	assert.Equal(t, "hi", send.Message.Content)
	assert.Equal(t, int64(1), send.Message.SenderID)
	assert.Equal(t, int64(2), send.Message.ReceiverID)

	// content is still accepted.
	cmd, perr = inboundToCommand(inbound(t, proto.InboundTypeSendMessage, proto.SendMessageData{ReceiverID: 2, Content: "legacy"}))
	require.Nil(t, perr)
	assert.Equal(t, "legacy", cmd.(core.SendMessageCommand).Message.Content)
}

func TestOutboundSignalUsesWireName(t *testing.T) {
	out := outboundFromEvent(core.SignalEvent{CallID: "c", From: 1, Signal: core.SignalICECandidate, Payload: json.RawMessage(`{}`)})
	assert.Equal(t, proto.OutboundTypeEvent, out.Type)
	assert.Equal(t, proto.InboundTypeICECandidate, out.Event)

	errOut := outboundFromEvent(core.ErrorEvent{Err: &core.CoreError{Code: core.ErrCodeCallNotFound, Message: "call not found"}})
	assert.Equal(t, proto.OutboundTypeError, errOut.Type)
	assert.Equal(t, core.ErrCodeCallNotFound, errOut.Error.Code)
}

func TestICEServersCarryCredentials(t *testing.T) {
	servers := iceServersToWire([]core.ICEServer{{URLs: []string{"turn:turn.example.org"}, Username: "u", Credential: "p"}})
	require.Len(t, servers, 1)
	assert.Equal(t, "p", servers[0].Credential)
	assert.Nil(t, iceServersToWire(nil))
}
