package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects client-side counters for the messenger session.
//
// Everything is room-scoped via the room label so one process can host
// several room sessions without the series colliding.
type Metrics struct {
	// MessageCounter tracks chat messages by room and direction.
	// Labels: room, direction (inbound|outbound)
	MessageCounter *prometheus.CounterVec

	// PresenceSyncs counts applied presence snapshots and diffs.
	// Labels: room, kind (state|diff)
	PresenceSyncs *prometheus.CounterVec

	// TypingPushes counts outbound typing notifications.
	// Labels: room, typing (true|false)
	TypingPushes *prometheus.CounterVec

	// PushFailures counts pushes and joins acknowledged with "error".
	// Labels: room, event
	PushFailures *prometheus.CounterVec

	// Reconnects counts transport reconnect attempts.
	// Labels: room
	Reconnects *prometheus.CounterVec

	// OnlineUsers gauges the current distinct users in the room roster.
	// Labels: room
	OnlineUsers *prometheus.GaugeVec
}

// NewMetrics creates and registers the metric set on the default registerer.
func NewMetrics() *Metrics {
	return newMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsFor creates the metric set on a caller-supplied registerer.
// Tests use this to avoid duplicate registration panics.
func NewMetricsFor(reg prometheus.Registerer) *Metrics {
	return newMetricsWith(reg)
}

func newMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MessageCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "beam_messages_total",
			Help: "Chat messages by room and direction.",
		}, []string{"room", "direction"}),
		PresenceSyncs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "beam_presence_syncs_total",
			Help: "Applied presence snapshots and diffs by room.",
		}, []string{"room", "kind"}),
		TypingPushes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "beam_typing_pushes_total",
			Help: "Outbound typing notifications by room and value.",
		}, []string{"room", "typing"}),
		PushFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "beam_push_failures_total",
			Help: "Pushes and joins acknowledged with an error.",
		}, []string{"room", "event"}),
		Reconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "beam_reconnects_total",
			Help: "Transport reconnect attempts by room.",
		}, []string{"room"}),
		OnlineUsers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "beam_online_users",
			Help: "Distinct users currently present in the room.",
		}, []string{"room"}),
	}
}

// Handler returns the HTTP handler exposing the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
