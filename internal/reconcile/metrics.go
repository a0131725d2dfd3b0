package reconcile

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for reconciliation runs.
type Metrics struct {
	RunsTotal     *prometheus.CounterVec
	ProductsTotal *prometheus.CounterVec
	RunDuration   prometheus.Histogram
}

// NewMetrics constructs the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_runs_total",
			Help: "Reconciliation runs by outcome.",
		},
		[]string{"outcome"},
	)
	products := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_products_total",
			Help: "Products touched by reconciliation, by transition.",
		},
		[]string{"transition"},
	)
	duration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reconcile_run_duration_seconds",
			Help:    "Wall time of a reconciliation transaction.",
			Buckets: prometheus.DefBuckets,
		},
	)

	reg.MustRegister(runs, products, duration)

	return &Metrics{
		RunsTotal:     runs,
		ProductsTotal: products,
		RunDuration:   duration,
	}
}

func (m *Metrics) observeSuccess(res *Result, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues("success").Inc()
	m.ProductsTotal.WithLabelValues("inserted").Add(float64(res.Inserted))
	m.ProductsTotal.WithLabelValues("updated").Add(float64(res.Updated))
	m.ProductsTotal.WithLabelValues("removed").Add(float64(res.Removed))
	m.ProductsTotal.WithLabelValues("reactivated").Add(float64(res.Reactivated))
	m.RunDuration.Observe(d.Seconds())
}

func (m *Metrics) observeFailure(step string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues("failed_" + step).Inc()
}
