package server

import (
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.akshayshah.org/attest"

	"github.com/pollardlab/rhoserve/internal/wire"
)

func TestConnectionHandshake(t *testing.T) {
	addr := startServer(t)
	conn, err := net.Dial("tcp", addr)
	attest.Ok(t, err)
	defer conn.Close()

	resp, err := wire.ReadResponse(conn)
	attest.Ok(t, err)
	attest.Equal(t, resp, wire.Response(wire.ConnectionOk{}))
}

func TestHarvestOnDisconnect(t *testing.T) {
	addr := startServer(t)
	conn, err := net.Dial("tcp", addr)
	attest.Ok(t, err)
	_, err = wire.ReadResponse(conn)
	attest.Ok(t, err)
	waitForPeers(t, 1)

	// An abrupt disconnect cancels the reader; the writer exits and the
	// broker harvests the registry entry.
	attest.Ok(t, conn.Close())
	waitForPeers(t, 0)
}

func TestHarvestOnQuit(t *testing.T) {
	addr := startServer(t)
	conn, err := net.Dial("tcp", addr)
	attest.Ok(t, err)
	defer conn.Close()
	_, err = wire.ReadResponse(conn)
	attest.Ok(t, err)
	waitForPeers(t, 1)

	attest.Ok(t, wire.WriteRequest(conn, wire.QuitRequest{}))
	waitForPeers(t, 0)
}

func TestStreamOrdering(t *testing.T) {
	addr := startServer(t)
	conn, err := net.Dial("tcp", addr)
	attest.Ok(t, err)
	defer conn.Close()
	_, err = wire.ReadResponse(conn)
	attest.Ok(t, err)

	attest.Ok(t, wire.WriteRequest(conn, wire.LogRequest{G: 2, H: 2495, P: 5011}))

	// Streamed items arrive in step order, contiguous, with the terminal
	// record after all of them.
	var steps uint64
	for {
		resp, err := wire.ReadResponse(conn)
		attest.Ok(t, err)
		if item, ok := resp.(wire.LogItem); ok {
			steps++
			attest.Equal(t, item.I, steps)
			continue
		}
		terminal, ok := resp.(wire.SuccessfulLog)
		attest.True(t, ok, attest.Sprintf("unexpected terminal %T", resp))
		attest.Equal(t, terminal.Log, 3351)
		attest.True(t, terminal.Ratio > 0)
		break
	}
	attest.Equal(t, steps, 96)
}

func TestOversizedModulus(t *testing.T) {
	addr := startServer(t)
	conn, err := net.Dial("tcp", addr)
	attest.Ok(t, err)
	defer conn.Close()
	_, err = wire.ReadResponse(conn)
	attest.Ok(t, err)

	// A modulus whose square overflows 64 bits never starts a walk; the
	// client just gets the unsuccessful terminal record.
	attest.Ok(t, wire.WriteRequest(conn, wire.LogRequest{G: 2, H: 5, P: 1<<33 + 1}))
	resp, err := wire.ReadResponse(conn)
	attest.Ok(t, err)
	attest.Equal(t, resp, wire.Response(wire.UnsuccessfulLog{G: 2, H: 5, P: 1<<33 + 1}))

	attest.Ok(t, wire.WriteRequest(conn, wire.RSARequest{N: 1<<40 + 1, E: 3}))
	resp, err = wire.ReadResponse(conn)
	attest.Ok(t, err)
	attest.Equal(t, resp, wire.Response(wire.UnsuccessfulRSA{N: 1<<40 + 1}))
}

func TestCycleClosure(t *testing.T) {
	addr := startServer(t)
	conn, err := net.Dial("tcp", addr)
	attest.Ok(t, err)
	defer conn.Close()
	_, err = wire.ReadResponse(conn)
	attest.Ok(t, err)

	// 101 is prime, so the factoring walk's collision is a bare cycle
	// closure and the factorization is unsuccessful.
	attest.Ok(t, wire.WriteRequest(conn, wire.RSARequest{N: 101, E: 3}))
	for {
		resp, err := wire.ReadResponse(conn)
		attest.Ok(t, err)
		if _, ok := resp.(wire.RSAItem); ok {
			continue
		}
		attest.Equal(t, resp, wire.Response(wire.UnsuccessfulRSA{N: 101}))
		break
	}
}

func startServer(tb testing.TB) string {
	tb.Helper()
	logger := slog.New(slog.NewTextHandler(tb.Output(), &slog.HandlerOptions{Level: slog.LevelDebug}))
	srv := New(Config{}, logger)

	ln, err := net.Listen("tcp", "localhost:0")
	attest.Ok(tb, err, attest.Sprint("listen on ephemeral port"))

	var wg sync.WaitGroup
	wg.Go(func() {
		attest.Ok(tb, srv.ServeTCP(ln), attest.Sprint("serve"))
	})
	tb.Cleanup(func() {
		attest.Ok(tb, srv.Close(), attest.Sprint("server close"))
		wg.Wait()
	})
	return ln.Addr().String()
}

// waitForPeers polls the registry gauge. The broker applies registry
// changes asynchronously, so tests can only observe them eventually.
func waitForPeers(tb testing.TB, want float64) {
	tb.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(activePeers) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	tb.Fatalf("registry gauge never reached %v", want)
}
