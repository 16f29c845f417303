package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/mentorwire/internal/auth"
	"github.com/vovakirdan/mentorwire/internal/config"
	"github.com/vovakirdan/mentorwire/internal/core"
	"github.com/vovakirdan/mentorwire/internal/log"
	"github.com/vovakirdan/mentorwire/internal/proto"
	"github.com/vovakirdan/mentorwire/internal/store/sqlite"
)

const testSecret = "testsecret"

type testEnv struct {
	ts   *httptest.Server
	hub  *core.Hub
	auth *auth.Service
}

func startTestServer(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.JWTSecret = testSecret
	cfg.JWTRequired = false
	cfg.RateLimitPerMinute = 0
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	authSvc := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})
	hub := core.NewHub(st, core.Options{
		RingTimeout: cfg.RingTimeout,
		ICEServers:  []core.ICEServer{{URLs: cfg.STUNURLs}},
	}, log.Nop())

	server := NewServer(hub, st, authSvc, &cfg, log.Nop())
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, hub: hub, auth: authSvc}
}

func (e *testEnv) dial(t *testing.T, ctx context.Context) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

// wireOut mirrors proto.Outbound with undecoded data.
type wireOut struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}))
}

// readEvent reads until an outbound named event arrives. Pass
// proto.OutboundTypeError to wait for an error.
func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) wireOut {
	t.Helper()

	for {
		var out wireOut
		require.NoError(t, wsjson.Read(ctx, conn, &out))
		if out.Type == proto.OutboundTypeError && event == proto.OutboundTypeError {
			return out
		}
		if out.Type == proto.OutboundTypeEvent && out.Event == event {
			return out
		}
	}
}

func decode[T any](t *testing.T, out wireOut) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(out.Data, &v))
	return v
}

// joinAs connects and joins without a token.
func joinAs(t *testing.T, ctx context.Context, env *testEnv, userID int64) *websocket.Conn {
	t.Helper()

	conn := env.dial(t, ctx)
	send(t, ctx, conn, proto.InboundTypeJoin, proto.JoinData{UserID: userID})
	conf := decode[proto.EventJoinConfirmedData](t, readEvent(t, ctx, conn, proto.EventJoinConfirmed))
	require.Equal(t, userID, conf.UserID)
	readEvent(t, ctx, conn, proto.EventActiveUsers)
	return conn
}
