// Package metrics exposes Prometheus collectors for credential exchange and storage
// operations. A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fridge"

// Refresh outcomes recorded by the credential manager.
const (
	RefreshSucceeded = "succeeded"
	RefreshFailed    = "failed"
	RefreshSkipped   = "skipped"
)

type Metrics struct {
	exchangeDuration *prometheus.HistogramVec
	refreshTotal     *prometheus.CounterVec
	operationsTotal  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		exchangeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sts_exchange_duration_seconds",
				Help:      "Latency of identity token exchanges",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		refreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credential_refresh_total",
				Help:      "Number of credential refresh attempts by outcome",
			},
			[]string{"result"},
		),
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_operations_total",
				Help:      "Number of storage operations by operation and relayed status",
			},
			[]string{"operation", "status"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.exchangeDuration, m.refreshTotal, m.operationsTotal)
	}
	return m
}

func (m *Metrics) ObserveExchange(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.exchangeDuration.WithLabelValues(result).Observe(d.Seconds())
}

func (m *Metrics) IncRefresh(result string) {
	if m == nil {
		return
	}
	m.refreshTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncOperation(operation string, status int) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation, strconv.Itoa(status)).Inc()
}
