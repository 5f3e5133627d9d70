package paintmgr

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the Prometheus metrics of one manager.
type metrics struct {
	packetsDispatched *prometheus.CounterVec
	packetsDropped    *prometheus.CounterVec
	packetsForwarded  prometheus.Counter
	tasks             *prometheus.CounterVec
	syncs             *prometheus.CounterVec
	teardowns         *prometheus.CounterVec
	reconnects        prometheus.Counter
}

func newMetrics(reg prometheus.Registerer, sessions func() float64) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "sharedpaint",
		Name:      "sessions",
		Help:      "Number of open control sessions",
	}, sessions)

	return &metrics{
		packetsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sharedpaint",
			Name:      "packets_dispatched_total",
			Help:      "Packets handled by the dispatcher",
		}, []string{"code"}),

		packetsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sharedpaint",
			Name:      "packets_dropped_total",
			Help:      "Packets dropped by the dispatcher",
		}, []string{"code", "reason"}),

		packetsForwarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sharedpaint",
			Name:      "packets_forwarded_total",
			Help:      "Packets forwarded to other members as super-peer",
		}),

		tasks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sharedpaint",
			Name:      "tasks_total",
			Help:      "Tasks submitted to the operation log",
		}, []string{"origin", "result"}),

		syncs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sharedpaint",
			Name:      "sync_total",
			Help:      "Full-state sync events",
		}, []string{"event"}),

		teardowns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sharedpaint",
			Name:      "teardowns_total",
			Help:      "Times every session was closed after a fatal condition",
		}, []string{"code"}),

		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sharedpaint",
			Name:      "relay_reconnects_total",
			Help:      "Relay reconnect attempts",
		}),
	}
}
