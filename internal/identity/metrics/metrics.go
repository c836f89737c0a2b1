// Package metrics holds Prometheus metrics for the PII protection engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for identity record operations.
type Metrics struct {
	RecordsCreated     prometheus.Counter
	RecordsActivated   prometheus.Counter
	RecordsDeactivated *prometheus.CounterVec

	RecoveriesSucceeded prometheus.Counter
	RecoveriesFailed    *prometheus.CounterVec

	DecryptFailures      prometheus.Counter
	ThrottleRejections   *prometheus.CounterVec
	KeyDerivationLatency prometheus.Histogram
}

// New creates and registers all identity metrics.
func New() *Metrics {
	return &Metrics{
		RecordsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idvault_records_created_total",
			Help: "Total number of identity records created",
		}),
		RecordsActivated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idvault_records_activated_total",
			Help: "Total number of identity record activations",
		}),
		RecordsDeactivated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idvault_records_deactivated_total",
			Help: "Total number of identity record deactivations, labeled by reason",
		}, []string{"reason"}),
		RecoveriesSucceeded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idvault_recoveries_succeeded_total",
			Help: "Total number of successful personal key recoveries",
		}),
		RecoveriesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idvault_recoveries_failed_total",
			Help: "Total number of failed recoveries, labeled by the field at fault",
		}, []string{"field"}),
		DecryptFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idvault_decrypt_failures_total",
			Help: "Total number of envelope decryption failures despite verified credentials",
		}),
		ThrottleRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idvault_throttle_rejections_total",
			Help: "Total number of operations refused by the throttle, labeled by action",
		}, []string{"action"}),
		KeyDerivationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "idvault_key_derivation_seconds",
			Help:    "Latency of password and personal key derivation plus envelope work",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// ObserveKeyDerivation records the duration of one KDF-bound operation.
func (m *Metrics) ObserveKeyDerivation(start time.Time) {
	m.KeyDerivationLatency.Observe(time.Since(start).Seconds())
}
