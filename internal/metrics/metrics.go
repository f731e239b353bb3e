// Package metrics collects harness-level Prometheus metrics: step counts,
// wait timeouts, scenario outcomes, and substituted transfer bytes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// Collector centralizes harness metrics. It implements flow.Observer so a
// runner reports step activity without knowing about Prometheus.
type Collector struct {
	stepsTotal      *prometheus.CounterVec
	stepDuration    *prometheus.HistogramVec
	waitTimeouts    *prometheus.CounterVec
	scenariosTotal  *prometheus.CounterVec
	transferBytes   prometheus.Counter
	pendingRequests prometheus.Gauge

	logger      *zap.Logger
	httpHandler func(*fasthttp.RequestCtx)
}

// NewCollector registers harness metrics on the default registerer.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegistry registers harness metrics on a custom registerer,
// letting tests use an isolated registry.
func NewCollectorWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{logger: logger}

	c.stepsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "steps_total",
		Help:      "Scenario steps executed, by kind and result",
	}, []string{"kind", "result"})

	c.stepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "step_duration_seconds",
		Help:      "Time spent in each scenario step",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"kind"})

	c.waitTimeouts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "wait_timeouts_total",
		Help:      "Wait steps that hit their deadline, by label",
	}, []string{"label"})

	c.scenariosTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scenarios_total",
		Help:      "Scenarios finished, by name and result",
	}, []string{"scenario", "result"})

	c.transferBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transfer_substituted_bytes_total",
		Help:      "Synthetic bytes substituted for real upload content",
	})

	c.pendingRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_rest_requests",
		Help:      "REST requests currently in flight",
	})

	registerer.MustRegister(
		c.stepsTotal,
		c.stepDuration,
		c.waitTimeouts,
		c.scenariosTotal,
		c.transferBytes,
		c.pendingRequests,
	)

	c.httpHandler = fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return c
}

// StepStarted implements flow.Observer.
func (c *Collector) StepStarted(kind, label string) {}

// StepFinished implements flow.Observer.
func (c *Collector) StepFinished(kind, label string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.stepsTotal.WithLabelValues(kind, result).Inc()
	c.stepDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// WaitTimedOut implements flow.Observer.
func (c *Collector) WaitTimedOut(label string, timeout time.Duration) {
	c.waitTimeouts.WithLabelValues(label).Inc()
	c.logger.Debug("Recorded wait timeout", zap.String("label", label), zap.Duration("timeout", timeout))
}

// RecordScenario records a finished scenario.
func (c *Collector) RecordScenario(name string, err error) {
	result := "pass"
	if err != nil {
		result = "fail"
	}
	c.scenariosTotal.WithLabelValues(name, result).Inc()
}

// RecordTransferBytes accumulates substituted payload bytes.
func (c *Collector) RecordTransferBytes(n int64) {
	if n > 0 {
		c.transferBytes.Add(float64(n))
	}
}

// SetPendingRequests exports the REST client's in-flight gauge.
func (c *Collector) SetPendingRequests(n int64) {
	c.pendingRequests.Set(float64(n))
}

// HTTPHandler serves the /metrics endpoint on a fasthttp server.
func (c *Collector) HTTPHandler() func(*fasthttp.RequestCtx) {
	return c.httpHandler
}
