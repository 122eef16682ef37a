package server

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"

	"github.com/antithesishq/antithesis-sdk-go/assert"
	"github.com/google/uuid"

	"github.com/pollardlab/rhoserve/internal/numtheory"
	"github.com/pollardlab/rhoserve/internal/walk"
	"github.com/pollardlab/rhoserve/internal/wire"
)

// An event is one message from a reader task to the broker.
type event interface{ peer() uuid.UUID }

type newClientEvent struct {
	peerID uuid.UUID
	conn   net.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

type logEvent struct {
	peerID  uuid.UUID
	g, h, p uint64
}

type rsaEvent struct {
	peerID uuid.UUID
	n      uint64
}

type primeEvent struct {
	peerID uuid.UUID
	p      uint64
}

type quitEvent struct {
	peerID uuid.UUID
}

func (e newClientEvent) peer() uuid.UUID { return e.peerID }
func (e logEvent) peer() uuid.UUID       { return e.peerID }
func (e rsaEvent) peer() uuid.UUID       { return e.peerID }
func (e primeEvent) peer() uuid.UUID     { return e.peerID }
func (e quitEvent) peer() uuid.UUID      { return e.peerID }

// A peerEntry is the broker's record of one connected client: the send end
// of its outbound queue and the context that ends when its reader exits.
type peerEntry struct {
	queue chan<- outbound
	ctx   context.Context
}

// broker is the single task owning the client registry. It selects over
// the reader-side event channel and the harvest channel; when the event
// channel closes it drains any pending harvests and exits cleanly. A
// non-nil return means a registry invariant was violated, which is fatal
// to the server.
func (s *Server) broker() error {
	peers := make(map[uuid.UUID]*peerEntry)
	for {
		// Bias toward the event channel. A peer's final events are always
		// buffered before its writer announces the harvest, so draining
		// events first keeps the registry invariant sound: a harvest can
		// never overtake the events it trails.
		var (
			ev  event
			ok  bool
			got bool
		)
		select {
		case ev, ok = <-s.events:
			got = true
		default:
		}
		if !got {
			select {
			case ev, ok = <-s.events:
			case id := <-s.harvest:
				s.remove(peers, id)
				continue
			}
		}
		if !ok {
			for {
				select {
				case id := <-s.harvest:
					s.remove(peers, id)
				default:
					return nil
				}
			}
		}
		if err := s.handleEvent(peers, ev); err != nil {
			return err
		}
	}
}

func (s *Server) remove(peers map[uuid.UUID]*peerEntry, id uuid.UUID) {
	if _, ok := peers[id]; !ok {
		// A double-remove means a lost registry entry somewhere.
		assert.Unreachable("Harvested peers are always registered", map[string]any{"peer_id": id.String()})
		return
	}
	delete(peers, id)
	activePeers.Dec()
	harvestedTotal.Inc()
	s.logger.Info("harvested disconnected client", "peer_id", id)
}

func (s *Server) handleEvent(peers map[uuid.UUID]*peerEntry, ev event) error {
	if e, ok := ev.(newClientEvent); ok {
		if e.ctx.Err() != nil {
			// The reader is already gone (shutdown drain); there is no
			// writer to pair with.
			_ = e.conn.Close()
			return nil
		}
		queue := make(chan outbound, s.cfg.QueueSize)
		entry := &peerEntry{queue: queue, ctx: e.ctx}
		peers[e.peerID] = entry
		activePeers.Inc()
		s.taskWG.Add(1)
		go func() {
			defer s.taskWG.Done()
			s.writeLoop(e.peerID, e.conn, queue, e.ctx, e.cancel)
		}()
		s.send(entry, wire.ConnectionOk{})
		s.logger.Info("registered client", "peer_id", e.peerID)
		return nil
	}

	entry, ok := peers[ev.peer()]
	if !ok {
		// Either a NewClient was lost or a peer was removed twice; both
		// mean the registry can no longer be trusted.
		assert.Unreachable("Events always reference a registered peer", map[string]any{"peer_id": ev.peer().String()})
		return fmt.Errorf("event for unknown peer %s", ev.peer())
	}

	switch e := ev.(type) {
	case primeEvent:
		requestsTotal.WithLabelValues("prime").Inc()
		s.logger.Info("primality request", "peer_id", e.peerID, "p", e.p)
		s.offloadPrime(entry, e.p)
	case logEvent:
		requestsTotal.WithLabelValues("log").Inc()
		s.logger.Info("discrete log request", "peer_id", e.peerID, "g", e.g, "h", e.h, "p", e.p)
		w, err := walk.NewLog(e.p, e.g, e.h)
		if err != nil {
			assert.Reachable("Exercised out-of-range discrete log modulus", nil)
			s.send(entry, wire.UnsuccessfulLog{G: e.g, H: e.h, P: e.p})
			return nil
		}
		s.send(entry, logStream{walk: w})
	case rsaEvent:
		requestsTotal.WithLabelValues("rsa").Inc()
		s.logger.Info("factoring request", "peer_id", e.peerID, "n", e.n)
		w, err := walk.NewFactor(e.n)
		if err != nil {
			assert.Reachable("Exercised out-of-range factoring modulus", nil)
			s.send(entry, wire.UnsuccessfulRSA{N: e.n})
			return nil
		}
		s.send(entry, rsaStream{walk: w})
	case quitEvent:
		// Recorded for logging only; teardown rides on the reader's
		// cancellation.
		s.logger.Info("client announced quit", "peer_id", e.peerID)
	}
	return nil
}

// offloadPrime runs the witness rounds off the broker goroutine so a large
// exponentiation never stalls other clients' events.
func (s *Server) offloadPrime(entry *peerEntry, p uint64) {
	witnesses := s.cfg.Witnesses
	s.taskWG.Add(1)
	go func() {
		defer s.taskWG.Done()
		defer func() {
			// A panicked worker must not take the server down; the
			// affected client simply never hears back.
			if r := recover(); r != nil {
				s.logger.Error("primality worker panicked", "p", p, "panic", r)
			}
		}()
		r := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		prime, prob := numtheory.ProbablyPrime(r, p, witnesses)
		if prime {
			s.send(entry, wire.Prime{P: p, Prob: float32(prob)})
		} else {
			s.send(entry, wire.NotPrime{P: p})
		}
	}()
}

// send enqueues a message for a peer's writer. The queue is bounded, so a
// slow client applies backpressure here; if the peer's connection ends
// first, the message is dropped with it.
func (s *Server) send(entry *peerEntry, msg outbound) {
	select {
	case entry.queue <- msg:
	case <-entry.ctx.Done():
	}
}
