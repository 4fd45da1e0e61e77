package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "paydesk"

// Collector registers on its own registry, not the global default.
type Collector struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	runs         *prometheus.CounterVec
	runDuration  prometheus.Histogram
	runEmployees *prometheus.CounterVec
}

func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code",
		}, []string{"method", "route", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payroll",
			Name:      "runs_total",
			Help:      "Payroll runs by final status",
		}, []string{"status"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "payroll",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a payroll run including persistence",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		runEmployees: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payroll",
			Name:      "run_employees_total",
			Help:      "Employees processed by payroll runs, by outcome",
		}, []string{"outcome"}),
	}
}

func (c *Collector) Record(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (c *Collector) ObserveRun(status string, processed, failed int, duration time.Duration) {
	c.runs.WithLabelValues(status).Inc()
	c.runDuration.Observe(duration.Seconds())
	c.runEmployees.WithLabelValues("processed").Add(float64(processed))
	c.runEmployees.WithLabelValues("failed").Add(float64(failed))
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
