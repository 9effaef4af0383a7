package kdelete

import (
	"context"

	"github.com/twmb/kdelete/pkg/kdelete/kdispatch"
	"github.com/twmb/kdelete/pkg/kdelete/klog"
	"github.com/twmb/kdelete/pkg/kdelete/kreplica"
)

// resume implements the algorithm from spec.md §4.1: pick the single
// oldest-enqueued topic, classify its replicas, and either finish it,
// leave it alone while in flight, retry what it can, or kick off
// deletion. It acts on one topic, the oldest; everything else in
// topics_to_be_deleted waits. When that topic's teardown completes,
// completeDeleteTopic calls resume again, which picks the next one.
func (c *Coordinator) resume(ctx context.Context) {
	if c.queued.Len() == 0 {
		return
	}
	t, ok := c.queued.Min()
	if !ok {
		return
	}
	topic := t.Topic

	switch {
	case c.replicas.AllInStates(topic, kreplica.ReplicaDeletionSuccessful):
		c.completeDeleteTopic(ctx, topic)
		return
	case c.replicas.AnyInState(topic, kreplica.ReplicaDeletionStarted):
		return
	default:
		for _, id := range c.replicas.InState(topic, kreplica.ReplicaDeletionIneligible) {
			if err := c.replicas.Transition(id, kreplica.OfflineReplica); err != nil {
				c.cfg.logger.Log(klog.LogLevelWarn, "resume: could not retry ineligible replica", "replica", id, "err", err)
			}
		}
	}

	if c.isTopicEligible(topic) {
		c.onTopicDeletion(ctx, topic)
		return
	}
	c.cfg.logger.Log(klog.LogLevelDebug, "resume: topic blocked", "topic", topic,
		"ineligible", c.isTopicIneligible(topic), "in_progress", c.isTopicDeletionInProgress(topic))
}

// onTopicDeletion tells every live or shutting-down broker to stop
// routing client traffic to topic's partitions, then starts tearing
// down their replicas.
func (c *Coordinator) onTopicDeletion(ctx context.Context, topic string) {
	brokers := c.meta.LiveOrShuttingDownBrokers()
	partitions := c.partitionsForUpdateMetadata(topic)

	c.dispatcher.DispatchUpdateMetadata(ctx, brokers, partitions, func(broker int32, err error) {
		c.cfg.logger.Log(klog.LogLevelWarn, "UpdateMetadata failed during topic deletion", "topic", topic, "broker", broker, "err", err)
	})

	c.onPartitionDeletion(ctx, topic)
}

// partitionsForUpdateMetadata builds the partition list DispatchUpdateMetadata
// needs. Only Topic and Partition are meaningful here; Broker is unused
// by that call and left zero.
func (c *Coordinator) partitionsForUpdateMetadata(topic string) []kreplica.ID {
	idxs := c.meta.PartitionsForTopic(topic)
	out := make([]kreplica.ID, len(idxs))
	for i, idx := range idxs {
		out[i] = kreplica.ID{Topic: topic, Partition: idx}
	}
	return out
}

// onPartitionDeletion fans out to every replica of topic's partitions.
func (c *Coordinator) onPartitionDeletion(ctx context.Context, topic string) {
	c.startReplicaDeletion(ctx, topic, c.meta.AllReplicasOf(topic))
}

// startReplicaDeletion implements the seven-step replica teardown
// kickoff: split replicas by broker liveness, skip the ones already
// confirmed deleted, mark the dead ones ineligible, and issue
// StopReplica(delete=true) to the rest.
func (c *Coordinator) startReplicaDeletion(ctx context.Context, topic string, replicas []kreplica.ID) {
	targetable := make(map[kreplica.ID]bool, len(replicas))
	for _, id := range c.meta.LiveReplicasOf(topic) {
		targetable[id] = true
	}

	var dead, retry []kreplica.ID
	for _, id := range replicas {
		if s, ok := c.replicas.State(id); ok && s == kreplica.ReplicaDeletionSuccessful {
			continue
		}
		if targetable[id] {
			retry = append(retry, id)
		} else {
			dead = append(dead, id)
		}
	}

	for _, id := range dead {
		if err := c.replicas.Transition(id, kreplica.ReplicaDeletionIneligible); err != nil {
			c.cfg.logger.Log(klog.LogLevelWarn, "start_replica_deletion: could not mark dead replica ineligible", "replica", id, "err", err)
		}
	}
	if len(dead) > 0 {
		c.ineligible[topic] = true
	}

	for _, id := range retry {
		if err := c.replicas.Transition(id, kreplica.OfflineReplica); err != nil {
			c.cfg.logger.Log(klog.LogLevelWarn, "start_replica_deletion: illegal reset to OfflineReplica", "replica", id, "err", err)
			continue
		}
		if err := c.replicas.Transition(id, kreplica.ReplicaDeletionStarted); err != nil {
			c.cfg.logger.Log(klog.LogLevelWarn, "start_replica_deletion: illegal transition to ReplicaDeletionStarted", "replica", id, "err", err)
		}
	}
	if len(retry) == 0 {
		return
	}

	c.dispatcher.DispatchStopReplica(ctx, retry, true, func(broker int32, results []kdispatch.StopReplicaResult) {
		c.OnStopReplicaResponse(broker, results)
	})
}
