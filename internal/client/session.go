package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/mentorwire/internal/proto"
)

// Envelope is an outbound server frame with its data left encoded.
type Envelope struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *proto.Error    `json:"error,omitempty"`
}

// Session is a joined websocket connection that keeps a timeline and an
// unread counter in sync with the events it reads.
type Session struct {
	conn     *websocket.Conn
	timeline *Timeline
	unread   *UnreadCounter
	userID   int64
	log      zerolog.Logger
}

// Dial opens a websocket to wsURL and joins with data. It returns once the
// server confirmed the join.
func Dial(ctx context.Context, wsURL string, data proto.JoinData, unread *UnreadCounter, logger *zerolog.Logger) (*Session, error) {
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	s := &Session{conn: conn, unread: unread, log: logger.With().Str("component", "session").Logger()}
	if data.Protocol == 0 {
		data.Protocol = proto.ProtocolVersion
	}
	if err := s.write(ctx, proto.InboundTypeJoin, data); err != nil {
		conn.CloseNow()
		return nil, err
	}

	for {
		env, err := s.readEnvelope(ctx)
		if err != nil {
			conn.CloseNow()
			return nil, err
		}
		if env.Type == proto.OutboundTypeError && env.Error != nil {
			conn.CloseNow()
			return nil, fmt.Errorf("join rejected: %s: %s", env.Error.Code, env.Error.Msg)
		}
		if env.Event == proto.EventJoinConfirmed {
			var conf proto.EventJoinConfirmedData
			if err := json.Unmarshal(env.Data, &conf); err != nil {
				conn.CloseNow()
				return nil, fmt.Errorf("decode joinConfirmed: %w", err)
			}
			s.userID = conf.UserID
			s.timeline = NewTimeline(conf.UserID)
			return s, nil
		}
	}
}

// UserID is the identity the server confirmed.
func (s *Session) UserID() int64 { return s.userID }

// Timeline exposes the local message state.
func (s *Session) Timeline() *Timeline { return s.timeline }

// SendText queues a text message optimistically and sends it.
func (s *Session) SendText(ctx context.Context, receiverID int64, content string) (Entry, error) {
	e := s.timeline.Add(receiverID, content, "text")
	return e, s.sendEntry(ctx, e)
}

// Retry resends a failed message with its original id.
func (s *Session) Retry(ctx context.Context, messageID string) (Entry, error) {
	e, ok := s.timeline.Retry(messageID)
	if !ok {
		return Entry{}, fmt.Errorf("message %s is not failed", messageID)
	}
	return e, s.sendEntry(ctx, e)
}

func (s *Session) sendEntry(ctx context.Context, e Entry) error {
	err := s.write(ctx, proto.InboundTypeSendMessage, proto.SendMessageData{
		MessageID:   e.MessageID,
		SenderID:    e.SenderID,
		ReceiverID:  e.ReceiverID,
		Message:     e.Content,
		MessageType: e.Type,
		Timestamp:   e.CreatedAt.UnixMilli(),
	})
	if err != nil {
		s.timeline.Fail(e.MessageID, err.Error())
	}
	return err
}

// Send writes an arbitrary inbound frame, used for call commands.
func (s *Session) Send(ctx context.Context, typ string, data any) error {
	return s.write(ctx, typ, data)
}

// Next reads one frame and applies it to the timeline and unread counter.
func (s *Session) Next(ctx context.Context) (Envelope, error) {
	env, err := s.readEnvelope(ctx)
	if err != nil {
		return Envelope{}, err
	}
	if err := s.apply(env); err != nil {
		s.log.Warn().Err(err).Str("event", env.Event).Msg("apply event")
	}
	return env, nil
}

func (s *Session) apply(env Envelope) error {
	switch env.Event {
	case proto.EventMessageConfirmed:
		var ack proto.EventMessageConfirmedData
		if err := json.Unmarshal(env.Data, &ack); err != nil {
			return err
		}
		s.timeline.Confirm(ack.ChatMessage)
	case proto.EventMessageFailed:
		var failed proto.EventMessageFailedData
		if err := json.Unmarshal(env.Data, &failed); err != nil {
			return err
		}
		s.timeline.Fail(failed.MessageID, failed.Error)
	case proto.EventReceiveMessage:
		var msg proto.ChatMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return err
		}
		s.timeline.Receive(msg)
	case proto.EventNewNotification:
		var note proto.EventNotificationData
		if err := json.Unmarshal(env.Data, &note); err != nil {
			return err
		}
		s.unread.Set(note.UnreadCount)
	case proto.EventUnreadCount:
		var uc proto.EventUnreadCountData
		if err := json.Unmarshal(env.Data, &uc); err != nil {
			return err
		}
		s.unread.Set(uc.Count)
	}
	return nil
}

// Close closes the connection normally.
func (s *Session) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "bye")
}

func (s *Session) write(ctx context.Context, typ string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, s.conn, proto.Inbound{Type: typ, Data: raw}); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}

func (s *Session) readEnvelope(ctx context.Context) (Envelope, error) {
	var env Envelope
	if err := wsjson.Read(ctx, s.conn, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
