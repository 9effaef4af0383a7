package kdelete

import (
	"github.com/twmb/kdelete/pkg/kdelete/kdeletemetrics"
	"github.com/twmb/kdelete/pkg/kdelete/klog"
)

// cfg holds every Coordinator option, in the same unexported-struct-plus-
// functional-options shape kgo.cfg uses.
type cfg struct {
	enabled bool
	logger  klog.Logger
	metrics kdeletemetrics.Hooks

	eventBuffer int
	onFatal     func(error)

	deregisterPartitionWatch func(topic string)
}

func defaultCfg() cfg {
	return cfg{
		enabled:     true,
		logger:      klog.Nop,
		eventBuffer: 64,
	}
}

// Opt configures a Coordinator at construction.
type Opt interface {
	apply(*cfg)
}

type opt func(*cfg)

func (o opt) apply(c *cfg) { o(c) }

// WithLogger sets the logger the coordinator writes through. The
// default discards everything.
func WithLogger(l klog.Logger) Opt {
	return opt(func(c *cfg) { c.logger = l })
}

// WithMetrics attaches a metrics sink, typically *kdeletemetrics.Metrics.
func WithMetrics(m kdeletemetrics.Hooks) Opt {
	return opt(func(c *cfg) { c.metrics = m })
}

// Disabled turns off deletion cluster-wide: every operation except Init
// becomes a no-op, and Init purges stale intent markers instead of
// seeding the queue (spec.md §4.1).
func Disabled() Opt {
	return opt(func(c *cfg) { c.enabled = false })
}

// WithFatalHandler registers the function called when a durable-store
// write fails during teardown (spec.md §7: "propagated as a fatal event
// to the event loop"). The expected response is to resign the
// controller role; the coordinator itself never calls os.Exit or
// panics on I/O failure. The default handler is a no-op.
func WithFatalHandler(f func(error)) Opt {
	return opt(func(c *cfg) { c.onFatal = f })
}

// EventBuffer sets the internal event channel's buffer size. The
// default of 64 is generous for a single-topic-at-a-time coordinator;
// raise it only if callers are expected to burst many
// resume_for_topics/broker-failure events between loop iterations.
func EventBuffer(n int) Opt {
	return opt(func(c *cfg) { c.eventBuffer = n })
}

// WithPartitionWatchDeregistrar registers the hook teardown calls first,
// to let an embedding controller stop watching a deleted topic's
// partition-modifications path before its metadata disappears
// underneath that watch.
func WithPartitionWatchDeregistrar(f func(topic string)) Opt {
	return opt(func(c *cfg) { c.deregisterPartitionWatch = f })
}
