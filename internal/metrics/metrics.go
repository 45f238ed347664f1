package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tglab"

// Metrics holds the service collectors. A nil *Metrics is valid and
// records nothing, which keeps tests free of registry setup.
type Metrics struct {
	Updates    prometheus.Counter
	Commands   *prometheus.CounterVec
	Replies    prometheus.Counter
	Broadcasts prometheus.Counter
	Deliveries *prometheus.CounterVec
	Evictions  prometheus.Counter
	Errors     *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Updates: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Platform updates processed by the poll loop.",
		}),
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Chat commands handled, by command name.",
		}, []string{"command"}),
		Replies: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Replies sent in response to commands.",
		}),
		Broadcasts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_messages_total",
			Help:      "Messages sent to authorized chats by broadcast.",
		}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Webhook deliveries, by event kind and outcome.",
		}, []string{"kind", "outcome"}),
		Evictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_evictions_total",
			Help:      "Unauthorized chats left by the sweeper.",
		}),
		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "platform_errors_total",
			Help:      "Failed messaging platform calls, by operation.",
		}, []string{"op"}),
	}
}

func (m *Metrics) Update() {
	if m != nil {
		m.Updates.Inc()
	}
}

func (m *Metrics) Command(name string) {
	if m != nil {
		m.Commands.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) Reply() {
	if m != nil {
		m.Replies.Inc()
	}
}

func (m *Metrics) Broadcast() {
	if m != nil {
		m.Broadcasts.Inc()
	}
}

func (m *Metrics) Delivery(kind, outcome string) {
	if m != nil {
		m.Deliveries.WithLabelValues(kind, outcome).Inc()
	}
}

func (m *Metrics) Eviction() {
	if m != nil {
		m.Evictions.Inc()
	}
}

func (m *Metrics) PlatformError(op string) {
	if m != nil {
		m.Errors.WithLabelValues(op).Inc()
	}
}
