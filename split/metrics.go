package split

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for module installs.
type Metrics struct {
	Installs        *prometheus.CounterVec
	DownloadedBytes prometheus.Counter
	Installed       prometheus.Gauge
}

// NewMetrics registers the install collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Installs: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "featurekit",
				Subsystem: "split",
				Name:      "installs_total",
				Help:      "Finished install tasks by terminal status.",
			},
			[]string{"status"},
		),
		DownloadedBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "featurekit",
			Subsystem: "split",
			Name:      "downloaded_bytes_total",
			Help:      "Bytes copied from the module catalog.",
		}),
		Installed: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "featurekit",
			Subsystem: "split",
			Name:      "installed_modules",
			Help:      "Modules currently installed.",
		}),
	}
}
