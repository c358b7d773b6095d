package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "course_purchases"

// Metrics holds the Prometheus collectors for purchase orchestration.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	checkouts         *prometheus.CounterVec
	reconciles        *prometheus.CounterVec
	reconcileFailures *prometheus.CounterVec
	webhooks          *prometheus.CounterVec
	providerLatency   *prometheus.HistogramVec
}

var (
	defaultOnce sync.Once
	shared      *Metrics
)

func Default() *Metrics {
	defaultOnce.Do(func() {
		shared = MustNew(prometheus.DefaultRegisterer)
	})
	return shared
}

// MustNew registers the collectors with reg, reusing collectors that are
// already registered under the same name.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	return &Metrics{
		checkouts: registerCounterVec(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checkouts_total",
				Help:      "Checkout attempts by result.",
			},
			[]string{"result"},
		)),
		reconciles: registerCounterVec(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciles_total",
				Help:      "Completed purchase reconciliations by trigger.",
			},
			[]string{"trigger"},
		)),
		reconcileFailures: registerCounterVec(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_failures_total",
				Help:      "Reconciliations that stopped part way, by failed step.",
			},
			[]string{"step"},
		)),
		webhooks: registerCounterVec(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhooks_total",
				Help:      "Webhook deliveries by outcome.",
			},
			[]string{"outcome"},
		)),
		providerLatency: registerHistogramVec(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Latency of payment provider calls.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "status"},
		)),
	}
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func registerHistogramVec(reg prometheus.Registerer, h *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := reg.Register(h); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
		panic(err)
	}
	return h
}

func (m *Metrics) IncCheckout(result string) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(result).Inc()
}

func (m *Metrics) IncReconcile(trigger string) {
	if m == nil {
		return
	}
	m.reconciles.WithLabelValues(trigger).Inc()
}

func (m *Metrics) IncReconcileFailure(step string) {
	if m == nil {
		return
	}
	m.reconcileFailures.WithLabelValues(step).Inc()
}

func (m *Metrics) IncWebhook(outcome string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveProviderCall(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.providerLatency.WithLabelValues(operation, status).Observe(duration.Seconds())
}
