package http

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/mentorwire/internal/auth"
	"github.com/vovakirdan/mentorwire/internal/config"
	"github.com/vovakirdan/mentorwire/internal/proto"
)

func requireJWT(cfg *config.Config) { cfg.JWTRequired = true }

func TestWebSocketJWTJoinUsesTokenIdentity(t *testing.T) {
	env := startTestServer(t, requireJWT)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token, err := env.auth.IssueToken(42, "tutor")
	require.NoError(t, err)

	conn := env.dial(t, ctx)
	send(t, ctx, conn, proto.InboundTypeJoin, proto.JoinData{Token: token, Protocol: proto.ProtocolVersion})

	conf := decode[proto.EventJoinConfirmedData](t, readEvent(t, ctx, conn, proto.EventJoinConfirmed))
	assert.Equal(t, int64(42), conf.UserID)
	assert.Equal(t, "tutor", conf.Name)
	require.Len(t, conf.ICEServers, 1)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, conf.ICEServers[0].URLs)

	snap := decode[proto.EventActiveUsersData](t, readEvent(t, ctx, conn, proto.EventActiveUsers))
	assert.Equal(t, []int64{42}, snap.UserIDs)
	assert.True(t, env.hub.Registry.IsOnline(42))
}

func TestWebSocketJWTUserMismatch(t *testing.T) {
	env := startTestServer(t, requireJWT)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token, err := env.auth.IssueToken(42, "tutor")
	require.NoError(t, err)

	conn := env.dial(t, ctx)
	send(t, ctx, conn, proto.InboundTypeJoin, proto.JoinData{UserID: 7, Token: token})

	out := readEvent(t, ctx, conn, proto.OutboundTypeError)
	assert.Equal(t, "unauthorized", out.Error.Code)
	assert.False(t, env.hub.Registry.IsOnline(7))
	assert.False(t, env.hub.Registry.IsOnline(42))
}

func TestWebSocketJWTRequired(t *testing.T) {
	env := startTestServer(t, requireJWT)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)
	send(t, ctx, conn, proto.InboundTypeJoin, proto.JoinData{UserID: 7})
	assert.Equal(t, "unauthorized", readEvent(t, ctx, conn, proto.OutboundTypeError).Error.Code)

	send(t, ctx, conn, proto.InboundTypeJoin, proto.JoinData{Token: "invalid"})
	assert.Equal(t, "unauthorized", readEvent(t, ctx, conn, proto.OutboundTypeError).Error.Code)
}

func TestWebSocketJWTForeignSecret(t *testing.T) {
	env := startTestServer(t, requireJWT)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	claims := auth.Claims{
		UserID: 5,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other"))
	require.NoError(t, err)

	conn := env.dial(t, ctx)
	send(t, ctx, conn, proto.InboundTypeJoin, proto.JoinData{Token: forged})
	assert.Equal(t, "unauthorized", readEvent(t, ctx, conn, proto.OutboundTypeError).Error.Code)
}

func TestRegisteredAccountJoinsWithReturnedIdentity(t *testing.T) {
	env := startTestServer(t, requireJWT)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp := env.do(t, "POST", "/api/register", "", map[string]string{
		"username": "rivera", "password": "secret123", "displayName": "Ms. Rivera", "role": "tutor",
	})
	require.Equal(t, 201, resp.StatusCode)
	acct := decodeBody[AuthResponse](t, resp)

	// /ws is served through the same handler as the REST routes.
	conn := env.dial(t, ctx)
	send(t, ctx, conn, proto.InboundTypeJoin, proto.JoinData{UserID: acct.UserID, Token: acct.Token})
	conf := decode[proto.EventJoinConfirmedData](t, readEvent(t, ctx, conn, proto.EventJoinConfirmed))
	assert.Equal(t, acct.UserID, conf.UserID)
	assert.Equal(t, "Ms. Rivera", conf.Name)

	readEvent(t, ctx, conn, proto.EventActiveUsers)
	assert.True(t, env.hub.Registry.IsOnline(acct.UserID))
}
