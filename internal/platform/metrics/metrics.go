// Package metrics exposes engine and cascade counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ckdmbd"

// Metrics holds the service's collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Classifications          *prometheus.CounterVec
	CatalogResolutionFailure prometheus.Counter
	Revisions                *prometheus.CounterVec
	PrescriptionsOutdated    prometheus.Counter
	Recommendations          *prometheus.CounterVec
	RevisionLockContention   prometheus.Counter
	HTTPRequests             *prometheus.CounterVec
	HTTPDuration             *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Classifications computed, by group and bucket.",
		}, []string{"group", "bucket"}),
		CatalogResolutionFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_resolution_failures_total",
			Help:      "Derived classifications with no matching catalog row.",
		}),
		Revisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revisions_total",
			Help:      "Visit revisions by result.",
		}, []string{"result"}),
		PrescriptionsOutdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prescriptions_outdated_total",
			Help:      "Prescriptions outdated by the revision cascade.",
		}),
		Recommendations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendations_total",
			Help:      "Recommendation requests by whether a prior visit matched.",
		}, []string{"matched"}),
		RevisionLockContention: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revision_lock_contention_total",
			Help:      "Revisions rejected because another revision held the visit lock.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Classifications,
		m.CatalogResolutionFailure,
		m.Revisions,
		m.PrescriptionsOutdated,
		m.Recommendations,
		m.RevisionLockContention,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

// Registry returns the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return echo.WrapHandler(h)
}

func (m *Metrics) ObserveClassification(group, bucket int) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(strconv.Itoa(group), strconv.Itoa(bucket)).Inc()
}

func (m *Metrics) ObserveCatalogFailure() {
	if m == nil {
		return
	}
	m.CatalogResolutionFailure.Inc()
}

// ObserveRevision records one revision result: "applied", "noop", "degraded",
// "rejected" or "failed".
func (m *Metrics) ObserveRevision(result string, outdated int) {
	if m == nil {
		return
	}
	m.Revisions.WithLabelValues(result).Inc()
	if outdated > 0 {
		m.PrescriptionsOutdated.Add(float64(outdated))
	}
}

func (m *Metrics) ObserveRecommendation(matched bool) {
	if m == nil {
		return
	}
	m.Recommendations.WithLabelValues(strconv.FormatBool(matched)).Inc()
}

func (m *Metrics) ObserveLockContention() {
	if m == nil {
		return
	}
	m.RevisionLockContention.Inc()
}

// Middleware records request counts and latency keyed by the matched route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			timer := prometheus.NewTimer(m.HTTPDuration.WithLabelValues(c.Request().Method, c.Path()))
			err := next(c)
			timer.ObserveDuration()

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}
			m.HTTPRequests.WithLabelValues(c.Request().Method, c.Path(), strconv.Itoa(status)).Inc()
			return err
		}
	}
}
