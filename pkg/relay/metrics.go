package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	packets    *prometheus.CounterVec
	dropped    *prometheus.CounterVec
	joins      prometheus.Counter
	rejected   *prometheus.CounterVec
	elections  prometheus.Counter
	syncRoutes *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer, members, channels func() float64) *metrics {
	factory := promauto.With(reg)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "sharedpaint",
		Subsystem: "relay",
		Name:      "members",
		Help:      "Number of joined members across channels",
	}, members)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "sharedpaint",
		Subsystem: "relay",
		Name:      "channels",
		Help:      "Number of channels with at least one member",
	}, channels)

	return &metrics{
		packets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sharedpaint",
			Subsystem: "relay",
			Name:      "packets_forwarded_total",
			Help:      "Packets forwarded to members",
		}, []string{"code"}),

		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sharedpaint",
			Subsystem: "relay",
			Name:      "packets_dropped_total",
			Help:      "Packets the relay did not forward",
		}, []string{"code", "reason"}),

		joins: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sharedpaint",
			Subsystem: "relay",
			Name:      "joins_total",
			Help:      "Accepted channel joins",
		}),

		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sharedpaint",
			Subsystem: "relay",
			Name:      "rejected_total",
			Help:      "Sessions closed by the relay",
		}, []string{"reason"}),

		elections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sharedpaint",
			Subsystem: "relay",
			Name:      "superpeer_elections_total",
			Help:      "Super-peer changes announced to channels",
		}),

		syncRoutes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sharedpaint",
			Subsystem: "relay",
			Name:      "sync_requests_total",
			Help:      "SYNC_REQUEST routing outcomes",
		}, []string{"route"}),
	}
}
