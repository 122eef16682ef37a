package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/antithesishq/antithesis-sdk-go/assert"
	"github.com/google/uuid"

	"github.com/pollardlab/rhoserve/internal/walk"
	"github.com/pollardlab/rhoserve/internal/wire"
)

// An outbound is one message on a per-client queue: either a ready
// wire.Response, or a walk the writer drives to produce a stream of items
// followed by a terminal record.
type outbound interface{}

type logStream struct {
	walk *walk.LogWalk
}

type rsaStream struct {
	walk *walk.FactorWalk
}

// readLoop is the per-connection reader task. It mints the peer id, hands
// the connection to the broker inside a newClient event, then parses
// request frames into events until the client quits or the connection
// fails. Any path out cancels the connection context, which shuts down the
// paired writer between messages.
func (s *Server) readLoop(conn net.Conn) error {
	peerID := uuid.New()
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	// Force the socket shut once the connection context ends. This
	// unblocks a reader parked in Read during server shutdown and a
	// writer parked mid-write on a stalled client.
	context.AfterFunc(ctx, func() { _ = conn.Close() })
	logger := s.logger.With("peer_id", peerID, "peer_addr", conn.RemoteAddr())

	ev := newClientEvent{peerID: peerID, conn: conn, ctx: ctx, cancel: cancel}
	if !s.emit(ctx, ev) {
		return nil
	}

	for {
		req, err := wire.ReadRequest(conn)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				logger.Info("client disconnected")
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}

		var ev event
		switch r := req.(type) {
		case wire.LogRequest:
			ev = logEvent{peerID: peerID, g: r.G, h: r.H, p: r.P}
		case wire.RSARequest:
			// The exponent is carried for wire compatibility only.
			ev = rsaEvent{peerID: peerID, n: r.N}
		case wire.PrimeRequest:
			ev = primeEvent{peerID: peerID, p: r.P}
		case wire.QuitRequest:
			s.emit(ctx, quitEvent{peerID: peerID})
			logger.Info("client quit")
			return nil
		}
		if !s.emit(ctx, ev) {
			return nil
		}
	}
}

// emit sends an event to the broker, giving up if the connection context
// ends first. It reports whether the event was delivered.
func (s *Server) emit(ctx context.Context, ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// writeLoop is the per-connection writer task. It drains the outbound
// queue, serializing each message onto the socket, until the connection
// context is cancelled. Cancellation is checked between messages and
// between streamed items. The context's end also closes the socket (see
// readLoop), so a frame whose write has not finished by then can fail.
func (s *Server) writeLoop(peerID uuid.UUID, conn net.Conn, queue <-chan outbound, ctx context.Context, cancel context.CancelFunc) {
	logger := s.logger.With("peer_id", peerID)
	defer func() {
		// On whole-server shutdown the broker may already be gone; it
		// discards the registry wholesale on exit, so skipping the
		// notification is safe.
		select {
		case s.harvest <- peerID:
		case <-s.ctx.Done():
		}
	}()
	defer conn.Close()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("writer received shutdown signal")
			return
		case msg := <-queue:
			if err := s.writeOutbound(ctx, conn, logger, msg); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Debug("writer cancelled mid-stream")
				} else {
					logger.Error("write failed", "err", err)
				}
				return
			}
		}
	}
}

func (s *Server) writeOutbound(ctx context.Context, conn net.Conn, logger *slog.Logger, msg outbound) error {
	switch m := msg.(type) {
	case wire.Response:
		return wire.WriteResponse(conn, m)
	case logStream:
		return s.streamLog(ctx, conn, logger, m.walk)
	case rsaStream:
		return s.streamRSA(ctx, conn, logger, m.walk)
	default:
		return fmt.Errorf("illegal outbound message %T", msg)
	}
}

// streamLog drives a discrete-log walk to completion, emitting one LogItem
// per step, then the terminal record chosen by Solve.
func (s *Server) streamLog(ctx context.Context, conn net.Conn, logger *slog.Logger, w *walk.LogWalk) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		step, ok := w.Next()
		if !ok {
			break
		}
		walkStepsTotal.WithLabelValues("log").Inc()
		item := wire.LogItem{I: step.I, X: step.X, A: step.A, B: step.B, Y: step.Y, C: step.C, D: step.D}
		if err := wire.WriteResponse(conn, item); err != nil {
			return err
		}
	}
	e, err := w.Solve()
	if err != nil {
		if !errors.Is(err, walk.ErrUnsolvable) {
			// Inverse-probe failures land here too; either way the client
			// learns the logarithm was not recovered.
			logger.Error("discrete log solve failed", "err", err)
		}
		assert.Reachable("Exercised unsolvable discrete log", nil)
		logger.Info("discrete logarithm not solved", "g", w.G, "h", w.H, "p", w.P)
		return wire.WriteResponse(conn, wire.UnsuccessfulLog{G: w.G, H: w.H, P: w.P})
	}
	logger.Info("discrete logarithm solved", "g", w.G, "h", w.H, "p", w.P, "log", e)
	return wire.WriteResponse(conn, wire.SuccessfulLog{Log: e, G: w.G, H: w.H, P: w.P, Ratio: w.Ratio()})
}

// streamRSA drives a factoring walk to completion, emitting one RSAItem
// per step, then the terminal record chosen by Factor.
func (s *Server) streamRSA(ctx context.Context, conn net.Conn, logger *slog.Logger, w *walk.FactorWalk) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		step, ok := w.Next()
		if !ok {
			break
		}
		walkStepsTotal.WithLabelValues("rsa").Inc()
		item := wire.RSAItem{I: step.I, X: step.X, Y: step.Y, G: step.G, N: step.N}
		if err := wire.WriteResponse(conn, item); err != nil {
			return err
		}
	}
	p, ok := w.Factor()
	if !ok {
		assert.Reachable("Exercised factor walk cycle closure", nil)
		logger.Info("modulus not factored", "n", w.N)
		return wire.WriteResponse(conn, wire.UnsuccessfulRSA{N: w.N})
	}
	logger.Info("modulus factored", "n", w.N, "p", p, "q", w.N/p)
	return wire.WriteResponse(conn, wire.SuccessfulRSA{P: p, Q: w.N / p, Ratio: w.Ratio()})
}
