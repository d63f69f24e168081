// Package metrics exposes tenantd's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantd_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenantd_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// Lifecycle operation metrics
	ProvisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantd_provisions_total",
			Help: "Total number of tenant provisioning attempts by outcome",
		},
		[]string{"outcome"},
	)
	ProvisionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tenantd_provision_duration_seconds",
			Help:    "Duration of tenant provisioning from request to terminal state",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10), // 5s .. ~42m
		},
	)
	DeletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantd_deletions_total",
			Help: "Total number of tenant deletion attempts by outcome",
		},
		[]string{"outcome"},
	)
	TenantsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tenantd_tenants",
			Help: "Number of tenant records by lifecycle state",
		},
		[]string{"state"},
	)
)

// RecordProvision records one finished provisioning attempt.
func RecordProvision(outcome string, started time.Time) {
	ProvisionsTotal.WithLabelValues(outcome).Inc()
	ProvisionDuration.Observe(time.Since(started).Seconds())
}

// RecordDeletion records one finished deletion attempt.
func RecordDeletion(outcome string) {
	DeletionsTotal.WithLabelValues(outcome).Inc()
}
