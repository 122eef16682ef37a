package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rhoserve_connections_total",
		Help: "Total number of TCP connections accepted",
	})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rhoserve_requests_total",
		Help: "Total number of requests dispatched by the broker",
	}, []string{"op"}) // op: prime, log, rsa

	walkStepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rhoserve_walk_steps_total",
		Help: "Total number of Pollard walk steps streamed to clients",
	}, []string{"op"}) // op: log, rsa

	activePeers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rhoserve_active_peers",
		Help: "Number of clients currently in the broker registry",
	})

	harvestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rhoserve_peers_harvested_total",
		Help: "Total number of registry entries removed after disconnect",
	})
)
