package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPollInterval is the unread count reconciliation period.
const DefaultPollInterval = 30 * time.Second

var errUnauthorized = errors.New("unread count: unauthorized")

// UnreadCounter holds the latest known unread notification count. Pushed
// counts and polled counts both land here; the poll is authoritative.
type UnreadCounter struct {
	v atomic.Int64
}

func (c *UnreadCounter) Set(n int64) { c.v.Store(n) }

func (c *UnreadCounter) Get() int64 { return c.v.Load() }

// UnreadPoller periodically fetches the unread count over REST so that a
// dropped push never leaves the badge wrong for longer than one interval.
type UnreadPoller struct {
	baseURL  string
	token    string
	interval time.Duration
	counter  *UnreadCounter
	http     *http.Client
	log      zerolog.Logger
}

// NewUnreadPoller builds a poller against the server at baseURL.
func NewUnreadPoller(baseURL, token string, interval time.Duration, counter *UnreadCounter, logger *zerolog.Logger) *UnreadPoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &UnreadPoller{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		interval: interval,
		counter:  counter,
		http:     &http.Client{Timeout: 10 * time.Second},
		log:      logger.With().Str("component", "unread_poller").Logger(),
	}
}

// Fetch reads the unread count once and stores it in the counter.
func (p *UnreadPoller) Fetch(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/notifications/unread-count", nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return 0, errUnauthorized
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("unread count: status %d", resp.StatusCode)
	}

	var body struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode unread count: %w", err)
	}
	p.counter.Set(body.Count)
	return body.Count, nil
}

// Run fetches immediately and then every interval until ctx is done. Transient
// failures are logged and retried on the next tick; an auth failure stops it.
func (p *UnreadPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.Fetch(ctx); err != nil {
			if errors.Is(err, errUnauthorized) {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			p.log.Warn().Err(err).Msg("poll unread count")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
