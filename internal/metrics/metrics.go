package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LobbyMetrics records coordinator activity.
type LobbyMetrics interface {
	EventHandled(eventType string, elapsed time.Duration)
	EventRejected(kind string)
	GameFinished(reason string)
}

// Gauges are sampled on every scrape.
type Gauges struct {
	Connections    func() int
	QueueSize      func() int
	PendingMatches func() int
	ActiveGames    func() int
}

type prometheusMetrics struct {
	events        *prometheus.CounterVec
	eventDuration *prometheus.HistogramVec
	errors        *prometheus.CounterVec
	gamesFinished *prometheus.CounterVec
}

func NewMetrics(registry *prometheus.Registry) LobbyMetrics {
	factory := promauto.With(registry)
	return prometheusMetrics{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lobby_events_total",
			Help: "Inbound events handled, by type",
		}, []string{"type"}),
		eventDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lobby_event_duration_ms",
			Help:    "Time spent handling one inbound event in milliseconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"type"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lobby_errors_total",
			Help: "Rejected inbound events, by error kind",
		}, []string{"kind"}),
		gamesFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lobby_games_finished_total",
			Help: "Games finished, by end reason",
		}, []string{"reason"}),
	}
}

// RegisterGauges exposes live coordinator sizes; nil sources are skipped.
func RegisterGauges(registry *prometheus.Registry, g Gauges) {
	factory := promauto.With(registry)
	add := func(name, help string, src func() int) {
		if src == nil {
			return
		}
		factory.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 { return float64(src()) })
	}
	add("lobby_connections", "Registered players, including those inside the reconnect grace period", g.Connections)
	add("lobby_queue_size", "Players waiting in the matchmaking queue", g.QueueSize)
	add("lobby_pending_matches", "Matches awaiting acceptance", g.PendingMatches)
	add("lobby_active_games", "Games in progress on this coordinator", g.ActiveGames)
}

func (m prometheusMetrics) EventHandled(eventType string, elapsed time.Duration) {
	m.events.With(prometheus.Labels{"type": eventType}).Inc()
	m.eventDuration.With(prometheus.Labels{"type": eventType}).Observe(float64(elapsed.Milliseconds()))
}

func (m prometheusMetrics) EventRejected(kind string) {
	m.errors.With(prometheus.Labels{"kind": kind}).Inc()
}

func (m prometheusMetrics) GameFinished(reason string) {
	m.gamesFinished.With(prometheus.Labels{"reason": reason}).Inc()
}

type noop struct{}

// Noop discards everything.
func Noop() LobbyMetrics { return noop{} }

func (noop) EventHandled(string, time.Duration) {}
func (noop) EventRejected(string)               {}
func (noop) GameFinished(string)                {}
