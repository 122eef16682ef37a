// Package servertest provides utilities for testing rhoserve servers.
package servertest

import (
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"go.akshayshah.org/attest"

	"github.com/pollardlab/rhoserve/internal/client"
	"github.com/pollardlab/rhoserve/internal/server"
)

// New starts a rhoserve server on an ephemeral port and returns
// ready-to-use clients. The clients and the server are automatically
// cleaned up when the test completes.
func New(tb testing.TB, numClients int) []*client.Client {
	tb.Helper()
	attest.True(tb, numClients > 0, attest.Sprint("num clients must be positive"))

	logger := NewLogger(tb)
	srv := server.New(server.Config{}, logger)

	ln, err := net.Listen("tcp", "localhost:0")
	attest.Ok(tb, err, attest.Sprint("listen on ephemeral port"))

	var wg sync.WaitGroup
	logger.Debug("starting server", "addr", ln.Addr())
	wg.Go(func() {
		attest.Ok(tb, srv.ServeTCP(ln), attest.Sprint("serve"))
	})
	tb.Cleanup(func() {
		attest.Ok(tb, srv.Close(), attest.Sprint("server close"))
		wg.Wait()
	})

	clients := make([]*client.Client, numClients)
	for i := range clients {
		var c *client.Client
		for {
			c, err = client.Dial(ln.Addr().String())
			if err == nil {
				break
			}
			backoff := 100 * time.Millisecond
			logger.Debug("server not ready", "addr", ln.Addr(), "retry_after", backoff)
			time.Sleep(backoff)
		}
		tb.Cleanup(func() {
			c.CloseAndLog(logger)
		})
		clients[i] = c
	}
	return clients
}

// NewLogger creates a structured logger that writes to the supplied
// testing.TB.
func NewLogger(tb testing.TB) *slog.Logger {
	handler := slog.NewTextHandler(tb.Output(), &slog.HandlerOptions{
		AddSource: false,
		Level:     slog.LevelDebug,
	})
	return slog.New(handler)
}
