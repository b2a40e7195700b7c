// Package metricsvc exposes the application metrics to Prometheus.
package metricsvc

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/schoolstats/core/report"
)

type Metrics struct {
	registry *prometheus.Registry

	saves        *prometheus.CounterVec
	saveDuration *prometheus.HistogramVec
	uploads      *prometheus.CounterVec
	uploadBytes  prometheus.Counter
	sessions     prometheus.Gauge
	requests     *prometheus.HistogramVec
}

var _ report.Metrics = (*Metrics)(nil) // interface compliance check

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// New registers the metrics in a dedicated registry, along with the Go runtime and process collectors.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_saves_total",
			Help:      "Child report saves by status and result.",
		}, []string{"status", "result"}),
		saveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_save_duration_seconds",
			Help:      "Duration of the child report saves, uploads included.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"status"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_uploads_total",
			Help:      "File uploads by result.",
		}, []string{"result"}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_upload_bytes_total",
			Help:      "Bytes of the uploaded files.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "editing_sessions",
			Help:      "Open editing sessions.",
		}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of the HTTP requests by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.saves, m.saveDuration, m.uploads, m.uploadBytes, m.sessions, m.requests,
	)
	return m
}

func (m *Metrics) SaveObserved(status report.Status, d time.Duration, err error) {
	m.saves.WithLabelValues(string(status), result(err)).Inc()
	m.saveDuration.WithLabelValues(string(status)).Observe(d.Seconds())
}

func (m *Metrics) UploadObserved(size int64, err error) {
	m.uploads.WithLabelValues(result(err)).Inc()
	if err == nil {
		m.uploadBytes.Add(float64(size))
	}
}

func (m *Metrics) SessionsOpen(n int) {
	m.sessions.Set(float64(n))
}

func (m *Metrics) ObserveRequest(method, route string, code int, d time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(code)).Observe(d.Seconds())
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
