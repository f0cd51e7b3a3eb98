// Package metrics provides Prometheus metrics for rendering and serving.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Render outcomes used as label values.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeRejected = "rejected"
	OutcomeTimeout  = "timeout"
)

var (
	// RendersTotal counts finished render attempts by outcome.
	RendersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fastboot_renders_total",
		Help: "Total number of render attempts, by outcome.",
	}, []string{"outcome"})

	// RenderDuration observes the wall time of completed renders.
	RenderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fastboot_render_duration_seconds",
		Help:    "Duration of render attempts that reached the application.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	// RenderInFlight is 1 while a render holds a sandbox.
	RenderInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fastboot_render_in_flight",
		Help: "Current number of renders in progress.",
	})

	// SandboxBootsTotal counts sandbox boots by outcome.
	SandboxBootsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fastboot_sandbox_boots_total",
		Help: "Total number of sandbox boots, by outcome.",
	}, []string{"outcome"})

	// CacheLookupsTotal counts rendered-page cache lookups by result.
	CacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fastboot_cache_lookups_total",
		Help: "Total number of rendered page cache lookups, by result (hit/miss).",
	}, []string{"result"})

	// FallbacksTotal counts requests answered with the unrendered index.
	FallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fastboot_fallbacks_total",
		Help: "Total number of requests served with the plain index after a render failure.",
	})
)

// RecordRender records a finished render attempt.
func RecordRender(outcome string, d time.Duration) {
	RendersTotal.WithLabelValues(outcome).Inc()
	if outcome != OutcomeRejected {
		RenderDuration.Observe(d.Seconds())
	}
}

// RecordBoot records a sandbox boot attempt.
func RecordBoot(err error) {
	if err != nil {
		SandboxBootsTotal.WithLabelValues(OutcomeError).Inc()
		return
	}
	SandboxBootsTotal.WithLabelValues(OutcomeOK).Inc()
}

// RecordCache records a cache lookup.
func RecordCache(hit bool) {
	if hit {
		CacheLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	CacheLookupsTotal.WithLabelValues("miss").Inc()
}

// RecordFallback records a fallback to the plain index.
func RecordFallback() {
	FallbacksTotal.Inc()
}
