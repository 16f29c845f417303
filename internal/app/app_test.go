package app

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/mentorwire/internal/config"
	"github.com/vovakirdan/mentorwire/internal/log"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestAppServesAndShutsDown(t *testing.T) {
	cfg := config.Default()
	cfg.Addr = freeAddr(t)
	cfg.DatabasePath = filepath.Join(t.TempDir(), "app.db")
	cfg.ShutdownTimeout = time.Second

	application, err := New(&cfg, log.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + cfg.Addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestHubOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	opts := HubOptions(&cfg, nil)

	assert.Equal(t, cfg.RingTimeout, opts.RingTimeout)
	assert.Equal(t, int(cfg.MaxMessageBytes), opts.MaxMessageBytes)
	require.Len(t, opts.ICEServers, 1)
	assert.Equal(t, cfg.STUNURLs, opts.ICEServers[0].URLs)

	cfg.STUNURLs = nil
	assert.Empty(t, HubOptions(&cfg, nil).ICEServers)
}
