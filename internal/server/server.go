// Package server provides the rhoserve server: a TCP service that runs
// number-theoretic computations on behalf of interactive clients and
// streams per-iteration state back as the algorithms progress.
//
// Internally the server is a small actor system. Each accepted connection
// gets a reader goroutine and a writer goroutine; a single broker
// goroutine owns the registry of connected peers and routes work between
// them. All channels are bounded, and cancellation is rooted at the
// reader: any path out of the reader tears down the paired writer.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"
)

// Config bundles the primitive values that configure a rhoserve server.
type Config struct {
	// EventBuffer is the capacity of the channel carrying reader events
	// to the broker.
	EventBuffer int

	// QueueSize is the capacity of each per-client outbound queue.
	QueueSize int

	// Witnesses is the number of Miller-Rabin rounds run per primality
	// request.
	Witnesses int
}

const (
	defaultEventBuffer = 64
	defaultQueueSize   = 32
	defaultWitnesses   = 20
)

// Server is the rhoserve server.
type Server struct {
	cfg    Config
	logger *slog.Logger

	events  chan event
	harvest chan uuid.UUID

	ctx    context.Context
	cancel context.CancelFunc

	// connWG counts reader tasks (spawned by the accept loop); taskWG
	// counts writer tasks and offloaded workers (spawned by the broker).
	// Separate groups keep the shutdown sequence free of Add/Wait races.
	connWG sync.WaitGroup
	taskWG sync.WaitGroup

	mu sync.Mutex
	ln net.Listener
}

// New constructs a Server. Zero config fields take defaults.
func New(cfg Config, logger *slog.Logger) *Server {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Witnesses <= 0 {
		cfg.Witnesses = defaultWitnesses
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		logger:  logger,
		events:  make(chan event, cfg.EventBuffer),
		harvest: make(chan uuid.UUID),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ServeTCP accepts connections and serves requests until the listener is
// closed, then drains the per-connection tasks and waits for the broker to
// exit. It returns the broker's error, which is non-nil only on a registry
// invariant violation.
func (s *Server) ServeTCP(ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	brokerErr := make(chan error, 1)
	go func() {
		err := s.broker()
		if err != nil {
			s.logger.Error("broker failed", "err", err)
			// The broker owns all cross-client state; once it is gone the
			// server cannot make progress.
			_ = s.Close()
		}
		brokerErr <- err
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "err", err)
			continue
		}
		s.logger.Info("accepted connection", "peer_addr", conn.RemoteAddr())
		connectionsTotal.Inc()
		s.connWG.Add(1)
		go func() {
			defer s.connWG.Done()
			if err := s.readLoop(conn); err != nil {
				s.logger.Error("reader failed", "peer_addr", conn.RemoteAddr(), "err", err)
			}
		}()
	}

	// The listener is gone: wind down the readers, close the event
	// channel so the broker drains and exits, then wait for the writer
	// and worker tasks it spawned.
	s.cancel()
	s.connWG.Wait()
	close(s.events)
	err := <-brokerErr
	s.taskWG.Wait()
	return err
}

// Close shuts the server down: in-flight connections are cancelled and the
// listener is closed, unblocking ServeTCP.
func (s *Server) Close() error {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	err := s.ln.Close()
	s.ln = nil
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
