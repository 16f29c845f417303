package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/mentorwire/internal/store"
)

// DefaultSweepSchedule is the cron schedule for forgetting finished calls.
const DefaultSweepSchedule = "@every 1m"

// Publisher receives audit envelopes for finished messages and calls.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

type auditor struct {
	pub Publisher
	log zerolog.Logger
}

func (a *auditor) publish(ctx context.Context, key string, event any) {
	if a == nil || a.pub == nil {
		return
	}
	if err := a.pub.Publish(ctx, key, event); err != nil {
		a.log.Warn().Err(err).Str("routing_key", key).Msg("publish audit event")
	}
}

// ICEServer is a STUN/TURN server handed to clients on join.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// Options tunes the hub. Zero values select the package defaults.
type Options struct {
	RingTimeout     time.Duration
	CallRetention   time.Duration
	SweepSchedule   string
	MaxMessageBytes int
	EventBuffer     int
	ICEServers      []ICEServer
	Publisher       Publisher
}

// Hub wires the registry, presence, relay, call coordinator and notifier and
// dispatches client commands to them.
type Hub struct {
	Registry *Registry
	Presence *Presence
	Relay    *Relay
	Calls    *Coordinator
	Notifier *Notifier

	opts Options
	log  zerolog.Logger
}

// NewHub creates a hub over st.
func NewHub(st store.Store, opts Options, logger *zerolog.Logger) *Hub {
	if opts.SweepSchedule == "" {
		opts.SweepSchedule = DefaultSweepSchedule
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	audit := &auditor{pub: opts.Publisher, log: logger.With().Str("component", "audit").Logger()}

	reg := NewRegistry()
	presence := NewPresence(reg, logger)
	notifier := NewNotifier(st, reg, logger)

	return &Hub{
		Registry: reg,
		Presence: presence,
		Relay:    newRelay(st, reg, notifier, audit, opts.MaxMessageBytes, logger),
		Calls:    newCoordinator(reg, notifier, audit, opts.RingTimeout, opts.CallRetention, logger),
		Notifier: notifier,
		opts:     opts,
		log:      logger.With().Str("component", "hub").Logger(),
	}
}

// Connect allocates a client for a new transport connection.
func (h *Hub) Connect(connID string) *Client {
	return NewClient(connID, h.opts.EventBuffer)
}

// Disconnect removes c from the registry and closes its event queue.
func (h *Hub) Disconnect(c *Client) {
	if userID, last, ok := h.Registry.Leave(c.ID); ok {
		h.log.Debug().Str("conn_id", c.ID).Int64("user_id", userID).Bool("last", last).Msg("connection left")
	}
	c.Close()
}

// Handle executes cmd for c. Commands from one connection must be handled
// sequentially to keep their order.
func (h *Hub) Handle(ctx context.Context, c *Client, cmd Command) {
	switch cmd := cmd.(type) {
	case JoinCommand:
		h.join(c, cmd)
	case LeaveCommand:
		h.Registry.Leave(c.ID)
	case SendMessageCommand:
		h.Relay.Send(ctx, c, cmd.Message)
	case InitiateCallCommand:
		h.Calls.Initiate(ctx, c, cmd)
	case AcceptCallCommand:
		h.Calls.Accept(ctx, c, cmd)
	case RejectCallCommand:
		h.Calls.Reject(ctx, c, cmd)
	case EndCallCommand:
		h.Calls.End(ctx, c, cmd)
	case SignalCommand:
		h.Calls.RelaySignal(c, cmd)
	default:
		c.Push(errorEvent(ErrCodeBadRequest, fmt.Sprintf("%v: %T", ErrUnknownCommand, cmd)))
	}
}

func (h *Hub) join(c *Client, cmd JoinCommand) {
	if cmd.UserID <= 0 {
		c.Push(errorEvent(ErrCodeBadRequest, "user id required"))
		return
	}
	if cmd.Name != "" {
		c.name.Store(cmd.Name)
	}
	if cur := c.UserID(); cur != 0 && cur != cmd.UserID {
		c.Push(errorEvent(ErrCodeUnauthorized, ErrAlreadyJoined.Error()))
		return
	}
	// Confirm first so joinConfirmed precedes the presence snapshot.
	c.Push(JoinConfirmedEvent{UserID: cmd.UserID, Name: c.Name(), ICEServers: h.opts.ICEServers})

	if _, err := h.Registry.Join(c, cmd.UserID); err != nil {
		if errors.Is(err, ErrAlreadyJoined) {
			c.Push(errorEvent(ErrCodeUnauthorized, err.Error()))
			return
		}
		c.Push(errorEvent(ErrCodeInternal, err.Error()))
		return
	}
	h.Presence.SendSnapshot(c)
	h.log.Debug().Str("conn_id", c.ID).Int64("user_id", cmd.UserID).Msg("connection joined")
}

// Run drives periodic maintenance until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	sched := cron.New()
	if _, err := sched.AddFunc(h.opts.SweepSchedule, func() {
		if n := h.Calls.Sweep(time.Now().UTC()); n > 0 {
			h.log.Debug().Int("removed", n).Msg("swept finished calls")
		}
	}); err != nil {
		return fmt.Errorf("schedule call sweep: %w", err)
	}
	sched.Start()
	<-ctx.Done()
	<-sched.Stop().Done()
	return nil
}
