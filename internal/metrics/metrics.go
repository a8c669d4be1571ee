// Package metrics exposes Prometheus collectors for the crawler.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal         *prometheus.CounterVec
	challengeSolvesTotal *prometheus.CounterVec
	rotationsTotal       prometheus.Counter
	cacheEventsTotal     *prometheus.CounterVec
	lookupsTotal         *prometheus.CounterVec
	rateLimitDelay       prometheus.Histogram

	once sync.Once
)

// Init registers the collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rymeta_fetches_total",
				Help: "Fetch attempts by request kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		challengeSolvesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rymeta_challenge_solves_total",
				Help: "Anti-bot challenge solve attempts by result.",
			},
			[]string{"result"},
		)

		rotationsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "rymeta_identity_rotations_total",
				Help: "Egress identity rotations triggered by block signals.",
			},
		)

		cacheEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rymeta_cache_events_total",
				Help: "Content cache events by store and result.",
			},
			[]string{"store", "result"},
		)

		lookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rymeta_lookups_total",
				Help: "Top-level metadata lookups by entity kind and result.",
			},
			[]string{"kind", "result"},
		)

		rateLimitDelay = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rymeta_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the outbound rate limiter.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		)
	})
}

// RecordFetch counts one fetch attempt outcome.
func RecordFetch(kind, outcome string) {
	if fetchesTotal != nil {
		fetchesTotal.WithLabelValues(kind, outcome).Inc()
	}
}

// RecordChallengeSolve counts one challenge solve attempt.
func RecordChallengeSolve(success bool) {
	if challengeSolvesTotal == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	challengeSolvesTotal.WithLabelValues(result).Inc()
}

// RecordRotation counts one identity rotation.
func RecordRotation() {
	if rotationsTotal != nil {
		rotationsTotal.Inc()
	}
}

// RecordCacheEvent counts a hit or miss against a named cache store.
func RecordCacheEvent(store, result string) {
	if cacheEventsTotal != nil {
		cacheEventsTotal.WithLabelValues(store, result).Inc()
	}
}

// RecordLookup counts a top-level lookup result.
func RecordLookup(kind, result string) {
	if lookupsTotal != nil {
		lookupsTotal.WithLabelValues(kind, result).Inc()
	}
}

// ObserveRateLimitDelay records time spent blocked in the rate limiter.
func ObserveRateLimitDelay(d time.Duration) {
	if rateLimitDelay != nil && d > time.Millisecond {
		rateLimitDelay.Observe(d.Seconds())
	}
}

// Router returns an HTTP handler exposing /metrics and /healthz.
func Router() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}
