package policies

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/morezero/callguard/pkg/pipeline"
)

const metricsLogPrefix = "policies:metrics"

// Metrics records call counts and latency per operation and outcome.
type Metrics struct {
	pipeline.Base[time.Time]

	calls   *prometheus.CounterVec
	latency *prometheus.HistogramVec
	pending *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	if namespace == "" {
		namespace = "callguard"
	}
	m := &Metrics{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "calls_total",
				Help:      "Total number of intercepted calls by outcome",
			},
			[]string{"target", "method", "outcome"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "call_duration_seconds",
				Help:      "Time from invocation to settled result",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
			},
			[]string{"target", "method", "outcome"},
		),
		pending: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "deferred_pending",
				Help:      "Deferred results not yet settled",
			},
			[]string{"target", "method"},
		),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.calls, m.latency, m.pending} {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("%s - failed to register collector: %w", metricsLogPrefix, err)
			}
		}
	}
	return m, nil
}

func (m *Metrics) Prepare(context.Context, *pipeline.Invocation) (time.Time, error) {
	return time.Now(), nil
}

func (m *Metrics) PostInvoke(_ context.Context, inv *pipeline.Invocation, res *pipeline.Result, start time.Time) *pipeline.Result {
	if res.IsDeferred() && res.Outcome() == pipeline.Pending {
		return nil
	}
	m.observe(inv, res, start)
	return nil
}

func (m *Metrics) PreInvoke(_ context.Context, inv *pipeline.Invocation, _ time.Time) *pipeline.Result {
	if inv.Method != nil && inv.Method.Result == pipeline.Deferred {
		m.pending.WithLabelValues(inv.Method.Target, inv.Method.Name).Inc()
	}
	return nil
}

func (m *Metrics) Continue(_ context.Context, inv *pipeline.Invocation, res *pipeline.Result, start time.Time) *pipeline.Result {
	m.observe(inv, res, start)
	return nil
}

func (m *Metrics) observe(inv *pipeline.Invocation, res *pipeline.Result, start time.Time) {
	target, method := "", ""
	if inv.Method != nil {
		target, method = inv.Method.Target, inv.Method.Name
		if inv.Method.Result == pipeline.Deferred {
			m.pending.WithLabelValues(target, method).Dec()
		}
	}
	outcome := res.Outcome().String()
	m.calls.WithLabelValues(target, method, outcome).Inc()
	m.latency.WithLabelValues(target, method, outcome).Observe(time.Since(start).Seconds())
}
