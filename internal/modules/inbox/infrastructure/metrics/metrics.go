package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the inbox collectors. A nil *Metrics is valid and records nothing,
// so components can be built without a registry in tests.
type Metrics struct {
	unread           prometheus.Gauge
	storeMutations   *prometheus.CounterVec
	transportState   prometheus.Gauge
	reconnects       prometheus.Counter
	messages         *prometheus.CounterVec
	snapshotLoads    *prometheus.CounterVec
	acknowledgements *prometheus.CounterVec
}

// New registers the inbox collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		unread: factory.NewGauge(prometheus.GaugeOpts{
			Name: "inbox_unread_notifications",
			Help: "Current number of unread notifications held by the inbox.",
		}),
		storeMutations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inbox_store_mutations_total",
			Help: "Applied store mutations by kind.",
		}, []string{"kind"}),
		transportState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "inbox_transport_state",
			Help: "Push transport state (0 disconnected, 1 connecting, 2 connected, 3 reconnecting, 4 closed).",
		}),
		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "inbox_transport_reconnects_total",
			Help: "Number of reconnect attempts after an unexpected disconnect.",
		}),
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inbox_transport_messages_total",
			Help: "Push messages received by topic and result.",
		}, []string{"topic", "result"}),
		snapshotLoads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inbox_snapshot_loads_total",
			Help: "Snapshot loads by result.",
		}, []string{"result"}),
		acknowledgements: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inbox_acknowledgements_total",
			Help: "Backend read-state confirmations by operation and result.",
		}, []string{"op", "result"}),
	}
}

func (m *Metrics) SetUnread(n int) {
	if m == nil {
		return
	}
	m.unread.Set(float64(n))
}

func (m *Metrics) StoreMutation(kind string) {
	if m == nil {
		return
	}
	m.storeMutations.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetTransportState(state int) {
	if m == nil {
		return
	}
	m.transportState.Set(float64(state))
}

func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) Message(topic, result string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(topic, result).Inc()
}

func (m *Metrics) SnapshotLoad(result string) {
	if m == nil {
		return
	}
	m.snapshotLoads.WithLabelValues(result).Inc()
}

func (m *Metrics) Acknowledgement(op, result string) {
	if m == nil {
		return
	}
	m.acknowledgements.WithLabelValues(op, result).Inc()
}
