// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the delivery counters. Register them once per registry.
type Metrics struct {
	Deliveries   *prometheus.CounterVec
	Sends        *prometheus.CounterVec
	SendDuration prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campaign_deliveries_total",
			Help: "Per-recipient deliveries by terminal status",
		}, []string{"status"}),
		Sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campaign_sends_total",
			Help: "Campaign send attempts by result",
		}, []string{"result"}),
		SendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "campaign_send_duration_seconds",
			Help:    "Time spent sending a whole campaign",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Deliveries, m.Sends, m.SendDuration)
	}
	return m
}
