package kdelete

import (
	"context"
	"time"

	"github.com/twmb/kdelete/pkg/kdelete/kpartition"
	"github.com/twmb/kdelete/pkg/kdelete/klog"
	"github.com/twmb/kdelete/pkg/kdelete/kreplica"
)

// handleInit implements init (spec.md §4.1). Called exactly once per
// controller election.
func (c *Coordinator) handleInit(ctx context.Context, e evInit) {
	defer close(e.done)

	if !c.cfg.enabled {
		for _, t := range e.queued {
			if err := c.gateway.DeleteIntentMarker(ctx, t.Topic); err != nil {
				c.cfg.logger.Log(klog.LogLevelWarn, "init: failed to purge stale intent marker while deletion disabled", "topic", t.Topic, "err", err)
			}
		}
		return
	}

	c.queued.Clear()
	c.ineligible = make(map[string]bool)
	c.partOwner = make(map[kpartition.ID]string)
	c.replicas = kreplica.New()
	c.partitions = kpartition.New()

	wantIneligible := make(map[string]bool, len(e.ineligible))
	for _, t := range e.ineligible {
		wantIneligible[t] = true
	}

	for _, t := range e.queued {
		c.addQueuedTopic(t.Topic, t.EnqueuedAt)
		if wantIneligible[t.Topic] {
			c.ineligible[t.Topic] = true
		}
	}

	c.cfg.logger.Log(klog.LogLevelInfo, "init: seeded coordinator", "topics_queued", c.queued.Len(), "topics_ineligible", len(c.ineligible))
}

// addQueuedTopic inserts topic into topics_to_be_deleted and folds its
// partitions into partitions_to_be_deleted (I2), returning whether it
// was newly added. A duplicate with a different enqueuedAt than the one
// already on file is logged as an anomaly and otherwise ignored: the
// first-seen enqueue time wins (I4 treats the marker's creation time as
// authoritative, and creation time cannot retroactively change).
func (c *Coordinator) addQueuedTopic(topic string, enqueuedAt time.Time) bool {
	fp := fingerprint(topic, enqueuedAt)
	if existing, ok := c.queued.Get(topic); ok {
		if existing.Fingerprint != fp {
			c.cfg.logger.Log(klog.LogLevelWarn, "enqueue: topic already queued with a different enqueue time, ignoring", "topic", topic, "kept_at", existing.EnqueuedAt, "seen_at", enqueuedAt)
		}
		return false
	}
	c.queued.Add(queuedTopic{Topic: topic, EnqueuedAt: enqueuedAt, Fingerprint: fp})
	c.addPartitionsOf(topic)
	return true
}

// handleEnqueue implements enqueue.
func (c *Coordinator) handleEnqueue(ctx context.Context, e evEnqueue) {
	if !c.cfg.enabled {
		return
	}
	var any bool
	for _, t := range e.topics {
		if c.addQueuedTopic(t.Topic, t.EnqueuedAt) {
			any = true
		}
	}
	if !any {
		return // enqueue(S); enqueue(S) is a no-op past the first call (P6)
	}
	c.resume(ctx)
}

// handleReset implements reset.
func (c *Coordinator) handleReset(e evReset) {
	c.queued.Clear()
	c.ineligible = make(map[string]bool)
	c.partOwner = make(map[kpartition.ID]string)
	c.replicas = kreplica.New()
	c.partitions = kpartition.New()
	close(e.done)
}

// handleResumeForTopics implements resume_for_topics.
func (c *Coordinator) handleResumeForTopics(ctx context.Context, e evResumeForTopics) {
	var intersect []string
	for _, t := range e.topics {
		if c.queued.Has(t) {
			intersect = append(intersect, t)
		}
	}
	if len(intersect) == 0 {
		return
	}
	for _, t := range intersect {
		delete(c.ineligible, t)
	}
	c.resume(ctx)
}

// handleMarkIneligible implements mark_ineligible. Deliberately does
// not call resume: no progress is possible from marking something
// blocked (spec.md §9's noted test gotcha).
func (c *Coordinator) handleMarkIneligible(e evMarkIneligible) {
	for _, t := range e.topics {
		if c.queued.Has(t) {
			c.ineligible[t] = true
		}
	}
}

// applyFailReplica transitions every replica whose topic is queued to
// ReplicaDeletionIneligible and marks those topics ineligible, without
// invoking resume (callers decide when to resume).
func (c *Coordinator) applyFailReplica(replicas []kreplica.ID) (touched []string) {
	seen := make(map[string]bool)
	for _, id := range replicas {
		if !c.queued.Has(id.Topic) {
			continue
		}
		if err := c.replicas.Transition(id, kreplica.ReplicaDeletionIneligible); err != nil {
			c.cfg.logger.Log(klog.LogLevelWarn, "fail_replica_deletion: illegal transition", "replica", id, "err", err)
			continue
		}
		if !seen[id.Topic] {
			seen[id.Topic] = true
			touched = append(touched, id.Topic)
		}
	}
	for _, t := range touched {
		c.ineligible[t] = true
	}
	return touched
}

// applyCompleteReplica transitions every replica whose topic is queued
// to ReplicaDeletionSuccessful, without invoking resume.
func (c *Coordinator) applyCompleteReplica(replicas []kreplica.ID) (touched []string) {
	seen := make(map[string]bool)
	for _, id := range replicas {
		if !c.queued.Has(id.Topic) {
			continue
		}
		if err := c.replicas.Transition(id, kreplica.ReplicaDeletionSuccessful); err != nil {
			c.cfg.logger.Log(klog.LogLevelWarn, "complete_replica_deletion: illegal transition", "replica", id, "err", err)
			continue
		}
		if !seen[id.Topic] {
			seen[id.Topic] = true
			touched = append(touched, id.Topic)
		}
	}
	return touched
}

func (c *Coordinator) handleFailReplicaDeletion(ctx context.Context, replicas []kreplica.ID) {
	c.applyFailReplica(replicas)
	c.resume(ctx)
}

func (c *Coordinator) handleCompleteReplicaDeletion(ctx context.Context, replicas []kreplica.ID) {
	c.applyCompleteReplica(replicas)
	c.resume(ctx)
}

// handleStopReplicaResponse routes a batch of classified StopReplica
// results to the complete/fail paths and resumes once, avoiding a
// double resume for a single wire response.
func (c *Coordinator) handleStopReplicaResponse(ctx context.Context, e evStopReplicaResponseReceived) {
	var ok, failed []kreplica.ID
	for _, r := range e.results {
		if r.Err == nil {
			ok = append(ok, r.ID)
			continue
		}
		failed = append(failed, r.ID)
		if c.cfg.metrics != nil {
			c.cfg.metrics.IncStopReplicaErrors(r.Err.Error())
		}
	}
	c.applyCompleteReplica(ok)
	c.applyFailReplica(failed)
	c.resume(ctx)
}

func (c *Coordinator) handleBrokerFailure(ctx context.Context, broker int32) {
	c.meta.BrokerDown(broker)
	var affected []kreplica.ID
	for _, topic := range c.queued.Names() {
		for _, id := range c.meta.AllReplicasOf(topic) {
			if id.Broker == broker {
				affected = append(affected, id)
			}
		}
	}
	if len(affected) == 0 {
		return
	}
	c.handleFailReplicaDeletion(ctx, affected)
}
