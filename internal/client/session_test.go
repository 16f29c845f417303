package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/mentorwire/internal/auth"
	"github.com/vovakirdan/mentorwire/internal/config"
	"github.com/vovakirdan/mentorwire/internal/core"
	"github.com/vovakirdan/mentorwire/internal/log"
	"github.com/vovakirdan/mentorwire/internal/proto"
	"github.com/vovakirdan/mentorwire/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/mentorwire/internal/transport/http"
)

func startServer(t *testing.T) (wsURL, baseURL string, authSvc *auth.Service) {
	t.Helper()

	cfg := config.Default()
	cfg.JWTRequired = true

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	authSvc = auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})
	hub := core.NewHub(st, core.Options{}, log.Nop())
	srv := transporthttp.NewServer(hub, st, authSvc, &cfg, log.Nop())

	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return strings.Replace(ts.URL, "http", "ws", 1) + "/ws", ts.URL, authSvc
}

// waitFor reads frames until the named event arrives.
func waitFor(t *testing.T, ctx context.Context, s *Session, event string) Envelope {
	t.Helper()
	for {
		env, err := s.Next(ctx)
		require.NoError(t, err)
		if env.Event == event {
			return env
		}
	}
}

func TestSessionReconcilesWithServer(t *testing.T) {
	wsURL, baseURL, authSvc := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	studentToken, err := authSvc.IssueToken(1, "student")
	require.NoError(t, err)
	tutorToken, err := authSvc.IssueToken(2, "tutor")
	require.NoError(t, err)

	studentUnread := &UnreadCounter{}
	student, err := Dial(ctx, wsURL, proto.JoinData{Token: studentToken}, studentUnread, log.Nop())
	require.NoError(t, err)
	defer student.Close()
	assert.Equal(t, int64(1), student.UserID())

	tutorUnread := &UnreadCounter{}
	tutor, err := Dial(ctx, wsURL, proto.JoinData{Token: tutorToken}, tutorUnread, log.Nop())
	require.NoError(t, err)
	defer tutor.Close()

	sent, err := student.SendText(ctx, 2, "Can we move the lesson?")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, sent.Status)

	waitFor(t, ctx, student, proto.EventMessageConfirmed)
	got, ok := student.Timeline().Get(sent.MessageID)
	require.True(t, ok)
	assert.Equal(t, StatusConfirmed, got.Status)

	waitFor(t, ctx, tutor, proto.EventReceiveMessage)
	waitFor(t, ctx, tutor, proto.EventNewNotification)
	assert.Equal(t, int64(1), tutorUnread.Get())
	require.Len(t, tutor.Timeline().Conversation(1), 1)

	// Polling agrees with the pushed count.
	poller := NewUnreadPoller(baseURL, tutorToken, time.Minute, tutorUnread, log.Nop())
	n, err := poller.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSessionJoinRejected(t *testing.T) {
	wsURL, _, _ := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Dial(ctx, wsURL, proto.JoinData{Token: "nope"}, &UnreadCounter{}, log.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized")
}
