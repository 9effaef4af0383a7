// Package kdelete implements the topic deletion coordinator: the state
// machine that asynchronously, reliably, and idempotently tears down a
// topic's replicas and metadata once an operator marks it for deletion.
//
// A Coordinator runs entirely on one internal goroutine. Every public
// method marshals a tagged event onto a channel and that goroutine is
// the only thing that ever reads or writes topics_to_be_deleted,
// partitions_to_be_deleted, topics_ineligible_for_deletion, or the
// replica/partition projections. This mirrors kgo's own
// updateMetadataLoop: a dedicated goroutine owns state outright and
// communicates with the rest of the program purely through channels, so
// nothing needs a mutex.
package kdelete

import (
	"context"
	"fmt"

	"github.com/twmb/kdelete/pkg/kdelete/kdispatch"
	"github.com/twmb/kdelete/pkg/kdelete/klog"
	"github.com/twmb/kdelete/pkg/kdelete/kmeta"
	"github.com/twmb/kdelete/pkg/kdelete/kpartition"
	"github.com/twmb/kdelete/pkg/kdelete/kreplica"
	"github.com/twmb/kdelete/pkg/kdelete/kstore"
)

// Coordinator is the C5 deletion coordinator.
type Coordinator struct {
	cfg        cfg
	gateway    kstore.Gateway
	dispatcher *kdispatch.Dispatcher
	meta       *kmeta.Cache

	events  chan event
	done    chan struct{}
	started bool

	// Everything below is owned exclusively by run(); no other
	// goroutine touches these fields.
	replicas   *kreplica.Projection
	partitions *kpartition.Projection
	queued     *topicSet
	ineligible map[string]bool
	partOwner  map[kpartition.ID]string // partitions_to_be_deleted, partition -> owning topic
}

// New constructs a Coordinator. Run must be called before any event is
// processed.
func New(gateway kstore.Gateway, dispatcher *kdispatch.Dispatcher, meta *kmeta.Cache, opts ...Opt) *Coordinator {
	c := defaultCfg()
	for _, o := range opts {
		o.apply(&c)
	}
	if c.onFatal == nil {
		c.onFatal = func(error) {}
	}
	return &Coordinator{
		cfg:        c,
		gateway:    gateway,
		dispatcher: dispatcher,
		meta:       meta,
		events:     make(chan event, c.eventBuffer),
		done:       make(chan struct{}),
		replicas:   kreplica.New(),
		partitions: kpartition.New(),
		queued:     newTopicSet(),
		ineligible: make(map[string]bool),
		partOwner:  make(map[kpartition.ID]string),
	}
}

// Run starts the coordinator's event loop and blocks until ctx is
// canceled. It is meant to be run in its own goroutine:
//
//	go coord.Run(ctx)
func (c *Coordinator) Run(ctx context.Context) {
	c.started = true
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			c.handle(ctx, ev)
		}
	}
}

// Stopped returns a channel closed once Run has returned.
func (c *Coordinator) Stopped() <-chan struct{} { return c.done }

func (c *Coordinator) send(ev event) {
	c.events <- ev
}

// query runs fn synchronously on the event loop and blocks the caller
// until it completes, giving predicate methods (IsTopicQueued, ...) the
// same single-thread serialization as every mutating operation, per
// spec.md §5 ("Predicate queries from other subsystems must run on the
// event thread").
func (c *Coordinator) query(fn func()) {
	done := make(chan struct{})
	c.send(evQuery{run: fn, done: done})
	<-done
}

func (c *Coordinator) handle(ctx context.Context, ev event) {
	switch e := ev.(type) {
	case evInit:
		c.handleInit(ctx, e)
	case evEnqueue:
		c.handleEnqueue(ctx, e)
	case evReset:
		c.handleReset(e)
	case evResumeForTopics:
		c.handleResumeForTopics(ctx, e)
	case evMarkIneligible:
		c.handleMarkIneligible(e)
	case evFailReplicaDeletion:
		c.handleFailReplicaDeletion(ctx, e.replicas)
	case evCompleteReplicaDeletion:
		c.handleCompleteReplicaDeletion(ctx, e.replicas)
	case evStopReplicaResponseReceived:
		c.handleStopReplicaResponse(ctx, e)
	case evBrokerStartup:
		c.meta.BrokerUp(e.broker)
		c.handleResumeForTopics(ctx, evResumeForTopics{topics: c.queued.Names()})
	case evBrokerFailure:
		c.handleBrokerFailure(ctx, e.broker)
	case evBrokerShuttingDown:
		c.meta.BrokerShuttingDown(e.broker)
	case evPartitionReassignmentComplete:
		c.handleResumeForTopics(ctx, evResumeForTopics{topics: []string{e.partition.Topic}})
	case fatalEvent:
		c.cfg.onFatal(e.err)
	case evQuery:
		e.run()
		close(e.done)
	default:
		panic(fmt.Sprintf("kdelete: unhandled event type %T", ev))
	}
	c.reportMetrics()
}

func (c *Coordinator) reportMetrics() {
	if c.cfg.metrics == nil {
		return
	}
	c.cfg.metrics.SetTopicsQueued(c.queued.Len())
	c.cfg.metrics.SetTopicsIneligible(len(c.ineligible))
}

// --- Public API: spec.md §4.1 ---

// Init seeds the coordinator from the durable store's current contents.
// Called exactly once, when this node becomes controller. If deletion
// is disabled, it instead purges every stale intent marker and
// returns. This call blocks until the seed has been applied.
func (c *Coordinator) Init(ctx context.Context, queued []kstore.TopicToBeDeleted, ineligible []string) {
	done := make(chan struct{})
	c.send(evInit{queued: queued, ineligible: ineligible, done: done})
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Enqueue adds newly observed intent markers to topics_to_be_deleted
// and invokes resume. No-op if deletion is disabled.
func (c *Coordinator) Enqueue(topics []kstore.TopicToBeDeleted) {
	c.send(evEnqueue{topics: topics})
}

// Reset clears all in-memory state. Called on controller resignation.
func (c *Coordinator) Reset() {
	done := make(chan struct{})
	c.send(evReset{done: done})
	<-done
}

// ResumeForTopics intersects topics with topics_to_be_deleted, clears
// them from topics_ineligible_for_deletion, and invokes resume if any
// were actually queued.
func (c *Coordinator) ResumeForTopics(topics []string) {
	c.send(evResumeForTopics{topics: topics})
}

// MarkIneligible adds topics ∩ topics_to_be_deleted to
// topics_ineligible_for_deletion. Does not invoke resume: no progress
// is possible from marking something blocked (spec.md §9).
func (c *Coordinator) MarkIneligible(topics []string) {
	c.send(evMarkIneligible{topics: topics})
}

// FailReplicaDeletion transitions replicas whose topic is queued to
// ReplicaDeletionIneligible, marks their topics ineligible, and invokes
// resume.
func (c *Coordinator) FailReplicaDeletion(replicas []kreplica.ID) {
	c.send(evFailReplicaDeletion{replicas: replicas})
}

// CompleteReplicaDeletion transitions replicas whose topic is queued to
// ReplicaDeletionSuccessful and invokes resume.
func (c *Coordinator) CompleteReplicaDeletion(replicas []kreplica.ID) {
	c.send(evCompleteReplicaDeletion{replicas: replicas})
}

// IsTopicQueued reports whether topic is in topics_to_be_deleted.
func (c *Coordinator) IsTopicQueued(topic string) bool {
	var out bool
	c.query(func() { out = c.queued.Has(topic) })
	return out
}

// IsPartitionQueued reports whether partition is in
// partitions_to_be_deleted.
func (c *Coordinator) IsPartitionQueued(partition kpartition.ID) bool {
	var out bool
	c.query(func() { _, out = c.partOwner[partition] })
	return out
}

// OnBrokerStartup feeds a BrokerStartup ingress event (spec.md §6).
func (c *Coordinator) OnBrokerStartup(broker int32) { c.send(evBrokerStartup{broker: broker}) }

// OnBrokerFailure feeds a BrokerFailure ingress event.
func (c *Coordinator) OnBrokerFailure(broker int32) { c.send(evBrokerFailure{broker: broker}) }

// OnBrokerShuttingDown records that a broker has entered a graceful
// shutdown: on_topic_deletion still addresses it with UpdateMetadata,
// but start_replica_deletion no longer treats it as a StopReplica
// target. Unlike BrokerStartup this never triggers resume on its own:
// a broker leaving the cluster cannot unblock a topic, only a dead one
// coming back can.
func (c *Coordinator) OnBrokerShuttingDown(broker int32) {
	c.send(evBrokerShuttingDown{broker: broker})
}

// OnPartitionReassignmentComplete feeds a
// PartitionReassignmentComplete ingress event.
func (c *Coordinator) OnPartitionReassignmentComplete(partition kpartition.ID) {
	c.send(evPartitionReassignmentComplete{partition: partition})
}

// OnStopReplicaResponse is the re-entry point kdispatch's response
// callback uses: it never calls coordinator methods directly, only
// constructs this tagged event.
func (c *Coordinator) OnStopReplicaResponse(broker int32, results []kdispatch.StopReplicaResult) {
	c.send(evStopReplicaResponseReceived{broker: broker, results: results})
}

func (c *Coordinator) isTopicIneligible(t string) bool {
	if !c.cfg.enabled {
		return true
	}
	return c.ineligible[t]
}

func (c *Coordinator) isTopicDeletionInProgress(t string) bool {
	return c.replicas.AnyInState(t, kreplica.ReplicaDeletionStarted)
}

func (c *Coordinator) isTopicEligible(t string) bool {
	return c.queued.Has(t) && !c.isTopicDeletionInProgress(t) && !c.isTopicIneligible(t)
}

func (c *Coordinator) addPartitionsOf(topic string) {
	for _, p := range c.meta.PartitionsForTopic(topic) {
		c.partOwner[kpartition.ID{Topic: topic, Index: p}] = topic
	}
}

func (c *Coordinator) removePartitionsOf(topic string) {
	for id, owner := range c.partOwner {
		if owner == topic {
			delete(c.partOwner, id)
		}
	}
}
