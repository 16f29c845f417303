package core

import (
	"github.com/rs/zerolog"

	"github.com/vovakirdan/mentorwire/internal/observability"
)

// Presence turns registry transitions into userOnline/userOffline broadcasts.
type Presence struct {
	registry *Registry
	log      zerolog.Logger
}

// NewPresence subscribes a tracker to reg.
func NewPresence(reg *Registry, logger *zerolog.Logger) *Presence {
	p := &Presence{registry: reg, log: logger.With().Str("component", "presence").Logger()}
	reg.Subscribe(p.onChange)
	return p
}

func (p *Presence) onChange(ch PresenceChange) {
	observability.SetOnlineUsers(len(p.registry.ActiveUsers()))
	if ch.Online {
		p.log.Debug().Int64("user_id", ch.UserID).Msg("user online")
		p.registry.Broadcast(UserOnlineEvent{UserID: ch.UserID}, ch.UserID)
		return
	}
	p.log.Debug().Int64("user_id", ch.UserID).Msg("user offline")
	p.registry.Broadcast(UserOfflineEvent{UserID: ch.UserID}, 0)
}

// SendSnapshot pushes the current online set to a freshly joined connection.
func (p *Presence) SendSnapshot(c *Client) {
	c.Push(ActiveUsersEvent{UserIDs: p.registry.ActiveUsers()})
}

// Online reports whether userID has any live connection.
func (p *Presence) Online(userID int64) bool {
	return p.registry.IsOnline(userID)
}

// Snapshot returns the ids of online users.
func (p *Presence) Snapshot() []int64 {
	return p.registry.ActiveUsers()
}
