package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors a Registry reports to.
// One Metrics value may be shared by several registries.
type Metrics struct {
	Lookups     *prometheus.CounterVec
	Builds      prometheus.Counter
	BuildErrors prometheus.Counter
	Reclaims    prometheus.Counter
	Retained    prometheus.Gauge
}

// NewMetrics registers the registry collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Lookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "featurekit",
				Subsystem: "registry",
				Name:      "lookups_total",
				Help:      "Registry lookups by result (hit or miss).",
			},
			[]string{"result"},
		),
		Builds: f.NewCounter(prometheus.CounterOpts{
			Namespace: "featurekit",
			Subsystem: "registry",
			Name:      "builds_total",
			Help:      "Values constructed after a miss.",
		}),
		BuildErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "featurekit",
			Subsystem: "registry",
			Name:      "build_errors_total",
			Help:      "Failed constructions.",
		}),
		Reclaims: f.NewCounter(prometheus.CounterOpts{
			Namespace: "featurekit",
			Subsystem: "registry",
			Name:      "reclaims_total",
			Help:      "Entries dropped after their value was garbage collected.",
		}),
		Retained: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "featurekit",
			Subsystem: "registry",
			Name:      "retained",
			Help:      "Entries pinned with a strong reference.",
		}),
	}
}
