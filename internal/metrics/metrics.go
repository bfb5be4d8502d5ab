// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "camview"

// Upload results.
const (
	ResultOK            = "ok"
	ResultRateLimited   = "rate_limited"
	ResultUnauthorized  = "unauthorized"
	ResultInvalid       = "invalid"
	ResultClassifyError = "classify_error"
)

// Login results.
const (
	LoginSuccess = "success"
	LoginFailure = "failure"
)

// Alert outcomes.
const (
	AlertSent   = "sent"
	AlertFailed = "failed"
)

// Metrics groups every collector on a private registry so tests can build
// as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	// Uploads counts ingest attempts. Labels: result
	Uploads *prometheus.CounterVec
	// RateLimited counts rejected calls. Labels: bucket
	RateLimited *prometheus.CounterVec
	// Logins counts login attempts. Labels: result (success, failure)
	Logins *prometheus.CounterVec
	// Alerts counts fired alerts by delivery outcome.
	Alerts *prometheus.CounterVec

	ClassifyDuration prometheus.Histogram
	Subscribers      prometheus.Gauge
	GallerySize      prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Uploads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Frame uploads by result",
		}, []string{"result"}),
		RateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by a rate limiter",
		}, []string{"bucket"}),
		Logins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by result",
		}, []string{"result"}),
		Alerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Fired alerts by notification outcome",
		}, []string{"outcome"}),
		ClassifyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classify_duration_seconds",
			Help:      "Latency of label classification calls",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		}),
		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Connected real-time viewers",
		}),
		GallerySize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gallery_size",
			Help:      "Snapshots currently held in the gallery",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
