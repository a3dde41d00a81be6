// Package metrics exposes Prometheus counters for generation and HTTP traffic.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"identity-forge/internal/catalog"
	"identity-forge/internal/portrait"
)

const (
	OutcomeSuccess = "success"
	OutcomeNoImage = "no_image"
	OutcomeError   = "error"

	BatchComplete = "complete"
	BatchPartial  = "partial"
	BatchFailed   = "failed"
)

type Collector struct {
	attemptsTotal   *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	batchesTotal    *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewCollector registers all metrics on reg. A nil reg uses the default registerer.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Collector{
		attemptsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_attempts_total",
				Help:      "Image generation attempts by style and outcome",
			},
			[]string{"style", "outcome"},
		),
		attemptDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "Image generation latency by style",
				Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"style"},
		),
		batchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Batch generations by category and outcome",
			},
			[]string{"category", "outcome"},
		),
		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

func (c *Collector) ObserveAttempt(styleID string, err error, d time.Duration) {
	outcome := OutcomeSuccess
	switch {
	case errors.Is(err, portrait.ErrNoImage):
		outcome = OutcomeNoImage
	case err != nil:
		outcome = OutcomeError
	}
	c.attemptsTotal.WithLabelValues(styleID, outcome).Inc()
	c.attemptDuration.WithLabelValues(styleID).Observe(d.Seconds())
}

func (c *Collector) ObserveBatch(category catalog.Category, succeeded, total int) {
	outcome := BatchPartial
	switch {
	case succeeded == 0:
		outcome = BatchFailed
	case succeeded == total:
		outcome = BatchComplete
	}
	c.batchesTotal.WithLabelValues(string(category), outcome).Inc()
}

func (c *Collector) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
