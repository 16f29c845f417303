package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/mentorwire/internal/auth"
	"github.com/vovakirdan/mentorwire/internal/core"
	"github.com/vovakirdan/mentorwire/internal/observability"
	"github.com/vovakirdan/mentorwire/internal/proto"
)

// WSOptions tunes per-connection behaviour.
type WSOptions struct {
	JWTRequired        bool
	MaxMessageBytes    int64
	RateLimitPerMinute int
}

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub  *core.Hub
	auth *auth.Service
	opts WSOptions
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, authService *auth.Service, opts WSOptions, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, auth: authService, opts: opts, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.opts.MaxMessageBytes > 0 {
		// Leave room for the envelope around the content.
		conn.SetReadLimit(h.opts.MaxMessageBytes + 4096)
	}

	observability.IncWSActive()
	defer observability.DecWSActive()

	client := h.hub.Connect(uuid.NewString())
	defer h.hub.Disconnect(client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// readLoop handles commands synchronously so that one connection's commands
// take effect in the order they were sent.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newRateLimiter(h.opts.RateLimitPerMinute)

	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("read ws inbound")
			return err
		}
		observability.IncWSEvent(inbound.Type)

		if !limiter.allow() {
			pushError(client, core.ErrCodeRateLimited, "too many messages")
			continue
		}

		if inbound.Type == proto.InboundTypeJoin {
			cmd, protoErr := h.joinCommand(inbound.Data)
			if protoErr != nil {
				pushError(client, protoErr.Code, protoErr.Msg)
				continue
			}
			h.hub.Handle(ctx, client, cmd)
			continue
		}

		cmd, protoErr := inboundToCommand(inbound)
		if protoErr != nil {
			pushError(client, protoErr.Code, protoErr.Msg)
			continue
		}
		h.hub.Handle(ctx, client, cmd)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// joinCommand authenticates a join request. With JWT required, the token's
// user wins and a conflicting userId is rejected.
func (h *WSHandler) joinCommand(raw json.RawMessage) (core.Command, *proto.Error) {
	var data proto.JoinData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, badRequest(err)
	}
	if data.Protocol != 0 && data.Protocol != proto.ProtocolVersion {
		return nil, &proto.Error{Code: core.ErrCodeUnsupportedVersion, Msg: "unsupported protocol version"}
	}

	if data.Token == "" {
		if h.opts.JWTRequired {
			return nil, &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "token required"}
		}
		if data.UserID <= 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "userId is required"}
		}
		return core.JoinCommand{UserID: data.UserID, Name: data.Name}, nil
	}

	claims, err := h.auth.ValidateToken(data.Token)
	if err != nil {
		h.log.Debug().Err(err).Msg("invalid join token")
		return nil, &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "invalid token"}
	}
	if data.UserID != 0 && data.UserID != claims.UserID {
		return nil, &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "userId does not match token"}
	}
	name := data.Name
	if name == "" {
		name = claims.Name()
	}
	return core.JoinCommand{UserID: claims.UserID, Name: name}, nil
}

func pushError(client *core.Client, code, msg string) {
	client.Push(core.ErrorEvent{Err: &core.CoreError{Code: code, Message: msg}})
}
