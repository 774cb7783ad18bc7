package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the runtime's Prometheus collectors
type Metrics struct {
	MessagesDelivered *prometheus.CounterVec
	NodeErrors        *prometheus.CounterVec
	Deploys           *prometheus.CounterVec
	DeployDuration    prometheus.Histogram
	ActiveNodes       prometheus.Gauge
}

const metricsNamespace = "wireflow"

// NewMetrics creates the collectors and registers them with reg. A nil
// registerer leaves them unregistered
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesDelivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "engine",
				Name:      "messages_delivered_total",
				Help:      "Total messages delivered to nodes",
			},
			[]string{"node_type"},
		),
		NodeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "engine",
				Name:      "node_errors_total",
				Help:      "Total errors reported by nodes",
			},
			[]string{"node_type"},
		),
		Deploys: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "engine",
				Name:      "deploys_total",
				Help:      "Total deploys by type and outcome",
			},
			[]string{"type", "status"},
		),
		DeployDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "engine",
				Name:      "deploy_duration_seconds",
				Help:      "Time taken to install a deploy",
				Buckets:   prometheus.DefBuckets,
			},
		),
		ActiveNodes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "engine",
				Name:      "active_nodes",
				Help:      "Number of running node instances",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.MessagesDelivered,
			m.NodeErrors,
			m.Deploys,
			m.DeployDuration,
			m.ActiveNodes,
		)
	}
	return m
}
