package http

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v3"

	"github.com/vovakirdan/mentorwire/internal/core"
	"github.com/vovakirdan/mentorwire/internal/proto"
	"github.com/vovakirdan/mentorwire/internal/store"
)

var errEmptySDP = errors.New("sdp is empty")

var signalKinds = map[string]core.SignalKind{
	proto.InboundTypeOffer:        core.SignalOffer,
	proto.InboundTypeAnswer:       core.SignalAnswer,
	proto.InboundTypeICECandidate: core.SignalICECandidate,
}

var signalEventNames = map[core.SignalKind]string{
	core.SignalOffer:        proto.InboundTypeOffer,
	core.SignalAnswer:       proto.InboundTypeAnswer,
	core.SignalICECandidate: proto.InboundTypeICECandidate,
}

// inboundToCommand maps every inbound type except join, which the ws handler
// authenticates itself. A non-nil *proto.Error is reported to the client and
// the connection stays open.
func inboundToCommand(inbound proto.Inbound) (core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeLeave:
		return core.LeaveCommand{}, nil
	case proto.InboundTypeSendMessage:
		var data proto.SendMessageData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, badRequest(err)
		}
		return core.SendMessageCommand{Message: core.ChatMessage{
			ID:         data.MessageID,
			SenderID:   data.SenderID,
			ReceiverID: data.ReceiverID,
			Content:    data.Text(),
			Type:       store.MessageType(data.MessageType),
			Status:     core.StatusSending,
		}}, nil
	case proto.InboundTypeInitiateCall:
		var data proto.InitiateCallData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, badRequest(err)
		}
		return core.InitiateCallCommand{CallID: data.CallID, ReceiverID: data.ReceiverID, CallerName: data.CallerName}, nil
	case proto.InboundTypeAcceptCall, proto.InboundTypeRejectCall:
		var data proto.AnswerCallData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, badRequest(err)
		}
		if data.CallID == "" && data.CallerID <= 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "callId or callerId is required"}
		}
		if inbound.Type == proto.InboundTypeAcceptCall {
			return core.AcceptCallCommand{CallID: data.CallID, CallerID: data.CallerID}, nil
		}
		return core.RejectCallCommand{CallID: data.CallID, CallerID: data.CallerID, Reason: data.Reason}, nil
	case proto.InboundTypeEndCall:
		var data proto.EndCallData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, badRequest(err)
		}
		if data.CallID == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "callId is required"}
		}
		return core.EndCallCommand{CallID: data.CallID}, nil
	case proto.InboundTypeOffer, proto.InboundTypeAnswer, proto.InboundTypeICECandidate:
		var data proto.SignalData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, badRequest(err)
		}
		if data.CallID == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "callId is required"}
		}
		kind := signalKinds[inbound.Type]
		if err := validateSignal(kind, data.Payload); err != nil {
			return nil, badRequest(err)
		}
		return core.SignalCommand{CallID: data.CallID, Kind: kind, Payload: data.Payload}, nil
	default:
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "unknown message type"}
	}
}

// validateSignal checks that a payload has the shape a browser peer
// connection will accept. The payload itself is relayed untouched.
func validateSignal(kind core.SignalKind, payload json.RawMessage) error {
	switch kind {
	case core.SignalOffer, core.SignalAnswer:
		var desc webrtc.SessionDescription
		if err := json.Unmarshal(payload, &desc); err != nil {
			return fmt.Errorf("invalid session description: %w", err)
		}
		want := webrtc.SDPTypeOffer
		if kind == core.SignalAnswer {
			want = webrtc.SDPTypeAnswer
		}
		if desc.Type != want {
			return fmt.Errorf("session description type %q, want %q", desc.Type, want)
		}
		if desc.SDP == "" {
			return errEmptySDP
		}
	case core.SignalICECandidate:
		var cand webrtc.ICECandidateInit
		if err := json.Unmarshal(payload, &cand); err != nil {
			return fmt.Errorf("invalid ice candidate: %w", err)
		}
	}
	return nil
}

func badRequest(err error) *proto.Error {
	return &proto.Error{Code: core.ErrCodeBadRequest, Msg: err.Error()}
}

func outboundFromEvent(event core.Event) proto.Outbound {
	switch ev := event.(type) {
	case core.JoinConfirmedEvent:
		return eventOut(proto.EventJoinConfirmed, proto.EventJoinConfirmedData{
			UserID:     ev.UserID,
			Name:       ev.Name,
			Protocol:   proto.ProtocolVersion,
			ICEServers: iceServersToWire(ev.ICEServers),
		})
	case core.ActiveUsersEvent:
		return eventOut(proto.EventActiveUsers, proto.EventActiveUsersData{UserIDs: ev.UserIDs})
	case core.UserOnlineEvent:
		return eventOut(proto.EventUserOnline, proto.EventPresenceData{UserID: ev.UserID})
	case core.UserOfflineEvent:
		return eventOut(proto.EventUserOffline, proto.EventPresenceData{UserID: ev.UserID})
	case core.MessageReceivedEvent:
		return eventOut(proto.EventReceiveMessage, chatMessageToWire(ev.Message))
	case core.MessageConfirmedEvent:
		return eventOut(proto.EventMessageConfirmed, proto.EventMessageConfirmedData{
			ChatMessage: chatMessageToWire(ev.Message),
			Duplicate:   ev.Duplicate,
		})
	case core.MessageFailedEvent:
		return eventOut(proto.EventMessageFailed, proto.EventMessageFailedData{
			MessageID:  ev.MessageID,
			ReceiverID: ev.ReceiverID,
			Error:      ev.Reason,
		})
	case core.IncomingCallEvent:
		return eventOut(proto.EventIncomingCall, proto.EventIncomingCallData{
			CallID:     ev.CallID,
			CallerID:   ev.CallerID,
			CallerName: ev.CallerName,
		})
	case core.CallFailedEvent:
		return eventOut(proto.EventCallFailed, proto.EventCallData{CallID: ev.CallID, ReceiverID: ev.ReceiverID, Reason: ev.Reason})
	case core.CallAcceptedEvent:
		return eventOut(proto.EventCallAccepted, proto.EventCallData{CallID: ev.CallID, ReceiverID: ev.ReceiverID})
	case core.CallRejectedEvent:
		return eventOut(proto.EventCallRejected, proto.EventCallData{CallID: ev.CallID, ReceiverID: ev.ReceiverID, Reason: ev.Reason})
	case core.CallEndedEvent:
		return eventOut(proto.EventCallEnded, proto.EventCallData{CallID: ev.CallID, By: ev.By, Reason: ev.Reason})
	case core.SignalEvent:
		return eventOut(signalEventNames[ev.Signal], proto.EventSignalData{CallID: ev.CallID, From: ev.From, Payload: ev.Payload})
	case core.NotificationEvent:
		return eventOut(proto.EventNewNotification, proto.EventNotificationData{
			Notification: notificationToWire(&ev.Notification),
			UnreadCount:  ev.UnreadCount,
		})
	case core.UnreadCountEvent:
		return eventOut(proto.EventUnreadCount, proto.EventUnreadCountData{Count: ev.Count})
	case core.ErrorEvent:
		if ev.Err == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: core.ErrCodeInternal, Msg: "unknown error"}}
		}
		return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: ev.Err.Code, Msg: ev.Err.Message}}
	default:
		return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: core.ErrCodeInternal, Msg: "unmapped event"}}
	}
}

func eventOut(name string, data any) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeEvent, Event: name, Data: data}
}

func chatMessageToWire(m core.ChatMessage) proto.ChatMessage {
	return proto.ChatMessage{
		MessageID:   m.ID,
		Seq:         m.Seq,
		SenderID:    m.SenderID,
		ReceiverID:  m.ReceiverID,
		Content:     m.Content,
		MessageType: string(m.Type),
		Timestamp:   m.Timestamp.UnixMilli(),
		Status:      string(m.Status),
	}
}

func storeMessageToWire(m *store.Message) proto.ChatMessage {
	return proto.ChatMessage{
		MessageID:   m.ClientID,
		Seq:         m.ID,
		SenderID:    m.SenderID,
		ReceiverID:  m.ReceiverID,
		Content:     m.Body,
		MessageType: string(m.Type),
		Timestamp:   m.CreatedAt.UnixMilli(),
		Status:      string(core.StatusSent),
	}
}

func notificationToWire(n *store.Notification) proto.Notification {
	return proto.Notification{
		ID:        n.ID,
		Recipient: n.Recipient,
		Type:      string(n.Type),
		Payload:   n.Payload,
		IsRead:    n.IsRead,
		IsSeen:    n.IsSeen,
		CreatedAt: n.CreatedAt.UnixMilli(),
	}
}

func iceServersToWire(servers []core.ICEServer) []webrtc.ICEServer {
	if len(servers) == 0 {
		return nil
	}
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		srv := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			srv.Credential = s.Credential
			srv.CredentialType = webrtc.ICECredentialTypePassword
		}
		out = append(out, srv)
	}
	return out
}
