package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics groups the application collectors registered on the shared registry.
type Metrics struct {
	Deliveries     *prometheus.CounterVec
	BillingCreated *prometheus.HistogramVec
	PenaltyRefresh prometheus.Counter
}

func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aquaduct",
			Name:      "notification_deliveries_total",
			Help:      "Notification delivery attempts by channel and outcome.",
		}, []string{"channel", "outcome"}),
		BillingCreated: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aquaduct",
			Name:      "billing_create_duration_seconds",
			Help:      "Time spent creating a billing, split by result.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		PenaltyRefresh: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aquaduct",
			Name:      "penalty_recomputed_total",
			Help:      "Billings whose penalty changed on recompute.",
		}),
	}
	reg.MustRegister(m.Deliveries, m.BillingCreated, m.PenaltyRefresh)
	return m
}

// ObserveDelivery is nil-safe so services can run without metrics in tests.
func (m *Metrics) ObserveDelivery(channel string, ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.Deliveries.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) ObserveBillingCreate(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.BillingCreated.WithLabelValues(result).Observe(elapsed.Seconds())
}

func (m *Metrics) AddPenaltyRefresh(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PenaltyRefresh.Add(float64(n))
}
