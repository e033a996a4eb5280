// Package metrics exports run progress as Prometheus metrics.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matter-conformance/yamltests/internal/testharness/assertions"
	"github.com/matter-conformance/yamltests/internal/testharness/engine"
	"github.com/matter-conformance/yamltests/internal/testharness/loader"
	"github.com/matter-conformance/yamltests/pkg/transport"
	"github.com/matter-conformance/yamltests/pkg/wire"
)

// Namespace prefixes every metric name.
const Namespace = "yamltests"

// Hooks records run events into Prometheus collectors.
type Hooks struct {
	tests       *prometheus.CounterVec
	steps       *prometheus.CounterVec
	stepSeconds *prometheus.HistogramVec
	checks      *prometheus.CounterVec
	connections *prometheus.CounterVec
	retries     prometheus.Counter
	running     prometheus.Gauge

	mu     sync.Mutex
	step   *loader.Step
	errors int
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Hooks, error) {
	h := &Hooks{
		tests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tests_total",
			Help:      "Tests finished, by result.",
		}, []string{"result"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "steps_total",
			Help:      "Steps visited, by status.",
		}, []string{"status"}),
		stepSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of executed steps, by cluster.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"cluster"}),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "checks_total",
			Help:      "Response checks, by severity.",
		}, []string{"severity"}),
		connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "connection_attempts_total",
			Help:      "Transport connection attempts, by result.",
		}, []string{"result"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "connection_retries_total",
			Help:      "Transport connection retries.",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "test_running",
			Help:      "1 while a test is running.",
		}),
	}
	for _, c := range []prometheus.Collector{h.tests, h.steps, h.stepSeconds, h.checks, h.connections, h.retries, h.running} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (h *Hooks) Start(int)          {}
func (h *Hooks) Stop(time.Duration) {}

func (h *Hooks) TestStart(string, int) {
	h.mu.Lock()
	h.errors = 0
	h.mu.Unlock()
	h.running.Set(1)
}

func (h *Hooks) TestStop(time.Duration) {
	h.running.Set(0)
	h.mu.Lock()
	failed := h.errors > 0
	h.mu.Unlock()
	if failed {
		h.tests.WithLabelValues("failed").Inc()
	} else {
		h.tests.WithLabelValues("passed").Inc()
	}
}

// TestError marks the running test as failed.
func (h *Hooks) TestError(error) {
	h.mu.Lock()
	h.errors++
	h.mu.Unlock()
}

func (h *Hooks) StepSkipped(*loader.Step) {
	h.steps.WithLabelValues(engine.StepSkipped.String()).Inc()
}

func (h *Hooks) StepStart(step *loader.Step) {
	h.mu.Lock()
	h.step = step
	h.mu.Unlock()
}

func (h *Hooks) StepSuccess(outcome *assertions.Outcome, _ []wire.LogRecord, d time.Duration) {
	h.steps.WithLabelValues(engine.StepPassed.String()).Inc()
	h.observe(outcome, d)
}

func (h *Hooks) StepFailure(outcome *assertions.Outcome, _ []wire.LogRecord, d time.Duration, _ []*loader.ExpectedResponse, _ []wire.Response) {
	h.mu.Lock()
	h.errors++
	h.mu.Unlock()
	h.steps.WithLabelValues(engine.StepFailed.String()).Inc()
	h.observe(outcome, d)
}

func (h *Hooks) StepUnknown() {
	h.steps.WithLabelValues(engine.StepUnknown.String()).Inc()
}

func (h *Hooks) observe(outcome *assertions.Outcome, d time.Duration) {
	h.mu.Lock()
	cluster := ""
	if h.step != nil {
		cluster = h.step.Cluster
	}
	h.mu.Unlock()
	h.stepSeconds.WithLabelValues(cluster).Observe(d.Seconds())
	for _, e := range outcome.Entries {
		h.checks.WithLabelValues(e.Severity.String()).Inc()
	}
}

func (h *Hooks) Connecting(string)     {}
func (h *Hooks) Abort(string)          {}
func (h *Hooks) Retry(time.Duration)   { h.retries.Inc() }
func (h *Hooks) Success(time.Duration) { h.connections.WithLabelValues("success").Inc() }
func (h *Hooks) Failure(time.Duration) { h.connections.WithLabelValues("failure").Inc() }

// Compile-time interface satisfaction checks.
var (
	_ engine.Hooks              = (*Hooks)(nil)
	_ engine.TestErrorHooks     = (*Hooks)(nil)
	_ transport.ConnectionHooks = (*Hooks)(nil)
)
