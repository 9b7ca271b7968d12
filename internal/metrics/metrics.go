// Package metrics exposes Prometheus collectors for scan and HTTP activity.
package metrics

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ipscan"

// Collector owns a private registry so tests and multiple instances never
// collide on the default one.
type Collector struct {
	registry *prometheus.Registry

	scansTotal    *prometheus.CounterVec
	scanDuration  prometheus.Histogram
	probesTotal   *prometheus.CounterVec
	probesRunning prometheus.Gauge
	hostsOnline   prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates a Collector with the Go and process collectors registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		scansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "total",
			Help:      "Scans finished, by result (completed, cancelled, rejected).",
		}, []string{"result"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of completed scans.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 900},
		}),
		probesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "total",
			Help:      "Host probes finished, by method and status.",
		}, []string{"method", "status"}),
		probesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "in_flight",
			Help:      "Host probes currently running.",
		}),
		hostsOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "hosts_online",
			Help:      "Online hosts found by the most recent completed scan.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	c.registry.MustRegister(
		c.scansTotal,
		c.scanDuration,
		c.probesTotal,
		c.probesRunning,
		c.hostsOnline,
		c.httpRequests,
		c.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ProbeStarted increments the in-flight gauge.
func (c *Collector) ProbeStarted() { c.probesRunning.Inc() }

// ProbeFinished decrements the in-flight gauge and counts the outcome.
func (c *Collector) ProbeFinished(method, status string) {
	c.probesRunning.Dec()
	c.probesTotal.WithLabelValues(method, status).Inc()
}

// ScanFinished records a scan that ran to completion.
func (c *Collector) ScanFinished(d time.Duration, online int) {
	c.scansTotal.WithLabelValues("completed").Inc()
	c.scanDuration.Observe(d.Seconds())
	c.hostsOnline.Set(float64(online))
}

// ScanCancelled counts a scan discarded before completion.
func (c *Collector) ScanCancelled() { c.scansTotal.WithLabelValues("cancelled").Inc() }

// ScanRejected counts a scan refused because another was running.
func (c *Collector) ScanRejected() { c.scansTotal.WithLabelValues("rejected").Inc() }

// Middleware records request count and latency, labelled by the ServeMux
// pattern that matched rather than the raw path.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		c.httpRequests.WithLabelValues(route, strconv.Itoa(sw.status)).Inc()
		c.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Hijack is required by the websocket upgrade.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.status = http.StatusSwitchingProtocols
	return http.NewResponseController(w.ResponseWriter).Hijack()
}
