// Package kdeletemetrics exposes coordinator state as Prometheus
// metrics, the same plug-in pattern franz-go itself uses for its kgo
// client metrics in plugin/kprom: a small struct of ready-made
// collectors, registered against any prometheus.Registerer by the
// embedder, updated by the coordinator through a narrow hook interface
// so the core package never imports prometheus directly.
package kdeletemetrics

import "github.com/prometheus/client_golang/prometheus"

// Hooks is the interface the coordinator drives; Metrics implements it.
type Hooks interface {
	SetTopicsQueued(n int)
	SetTopicsIneligible(n int)
	SetReplicasInState(state string, n int)
	ObserveTeardownSeconds(seconds float64)
	IncStopReplicaErrors(reason string)
}

// Metrics is a ready-to-register collection of coordinator gauges,
// counters, and a histogram, mirroring kprom's constructor-returns-a-
// struct-of-collectors shape.
type Metrics struct {
	namespace string

	topicsQueued      prometheus.Gauge
	topicsIneligible  prometheus.Gauge
	replicasInState   *prometheus.GaugeVec
	teardownSeconds   prometheus.Histogram
	stopReplicaErrors *prometheus.CounterVec
}

// Opt configures a Metrics instance.
type Opt func(*Metrics)

// Namespace overrides the default "kdelete" Prometheus namespace.
func Namespace(ns string) Opt {
	return func(m *Metrics) { m.namespace = ns }
}

// NewMetrics builds the collector set. Call Register to attach it to a
// prometheus.Registerer.
func NewMetrics(opts ...Opt) *Metrics {
	m := &Metrics{namespace: "kdelete"}
	for _, opt := range opts {
		opt(m)
	}

	m.topicsQueued = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "topics_queued",
		Help:      "Number of topics currently in topics_to_be_deleted.",
	})
	m.topicsIneligible = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "topics_ineligible",
		Help:      "Number of queued topics currently blocked from progressing.",
	})
	m.replicasInState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "replicas_in_state",
		Help:      "Number of replicas of the in-progress topic currently in each deletion state.",
	}, []string{"state"})
	m.teardownSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "teardown_seconds",
		Help:      "Time from a topic's deletion_enqueue_time to complete_delete_topic.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})
	m.stopReplicaErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "stop_replica_errors_total",
		Help:      "StopReplica failures observed, by reason.",
	}, []string{"reason"})

	return m
}

// Register attaches every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.topicsQueued, m.topicsIneligible, m.replicasInState, m.teardownSeconds, m.stopReplicaErrors,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) SetTopicsQueued(n int)     { m.topicsQueued.Set(float64(n)) }
func (m *Metrics) SetTopicsIneligible(n int) { m.topicsIneligible.Set(float64(n)) }
func (m *Metrics) SetReplicasInState(state string, n int) {
	m.replicasInState.WithLabelValues(state).Set(float64(n))
}
func (m *Metrics) ObserveTeardownSeconds(seconds float64) { m.teardownSeconds.Observe(seconds) }
func (m *Metrics) IncStopReplicaErrors(reason string)     { m.stopReplicaErrors.WithLabelValues(reason).Inc() }

var _ Hooks = (*Metrics)(nil)
