package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stateGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "player_session_state",
		Help: "Playback session state: 0 idle, 1 starting, 2 active, 3 ending.",
	})
	sessionStarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "player_session_starts_total",
		Help: "Requested playback sessions.",
	})
	sessionEnds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "player_session_ends_total",
		Help: "Ended playback sessions.",
	})
	sessionDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "player_session_drops_total",
		Help: "Session requests lost together with the control channel before any answer.",
	})
	negotiationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "player_negotiation_errors_total",
		Help: "Remote descriptions and candidates the peer connection couldn't apply.",
	}, []string{"type"})
	staleEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "player_session_stale_events_total",
		Help: "Ignored events of superseded sessions, links or peer connections.",
	}, []string{"type"})
	reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "player_signaling_reconnects_total",
		Help: "Scheduled control channel reconnects.",
	})
)
