package kdelete

import (
	"context"
	"fmt"
	"time"

	"github.com/twmb/kdelete/pkg/kdelete/klog"
	"github.com/twmb/kdelete/pkg/kdelete/kpartition"
	"github.com/twmb/kdelete/pkg/kdelete/kreplica"
)

// completeDeleteTopic implements complete_delete_topic (spec.md §4.1):
// every replica of t has already reached ReplicaDeletionSuccessful, so
// the only work left is retiring in-memory state and the three durable
// paths, in the order a watcher reacting to their disappearance expects
// — metadata and config before the intent marker, so nothing racing the
// watch can see the marker gone while /brokers/topics/<t> still exists.
func (c *Coordinator) completeDeleteTopic(ctx context.Context, t string) {
	if c.cfg.deregisterPartitionWatch != nil {
		c.cfg.deregisterPartitionWatch(t)
	}

	for _, id := range c.replicas.InState(t, kreplica.ReplicaDeletionSuccessful) {
		if err := c.replicas.Transition(id, kreplica.NonExistentReplica); err != nil {
			c.cfg.logger.Log(klog.LogLevelWarn, "complete_delete_topic: could not retire replica", "replica", id, "err", err)
		}
	}
	c.replicas.ForgetTopic(t)

	for _, idx := range c.meta.PartitionsForTopic(t) {
		id := kpartition.ID{Topic: t, Index: idx}
		if err := c.partitions.Transition(id, kpartition.OfflinePartition); err != nil {
			c.cfg.logger.Log(klog.LogLevelWarn, "complete_delete_topic: could not offline partition", "partition", id, "err", err)
		}
		if err := c.partitions.Transition(id, kpartition.NonExistentPartition); err != nil {
			c.cfg.logger.Log(klog.LogLevelWarn, "complete_delete_topic: could not retire partition", "partition", id, "err", err)
		}
		c.partitions.Forget(id)
	}

	enqueuedAt, _ := c.queued.Get(t)
	c.queued.Remove(t)
	c.removePartitionsOf(t)

	if err := c.gateway.DeleteTopicMetadata(ctx, t); err != nil {
		c.failTeardown(t, "metadata", err)
		return
	}
	if err := c.gateway.DeleteTopicConfig(ctx, t); err != nil {
		c.failTeardown(t, "config", err)
		return
	}
	if err := c.gateway.DeleteIntentMarker(ctx, t); err != nil {
		c.failTeardown(t, "intent marker", err)
		return
	}

	if c.cfg.metrics != nil && !enqueuedAt.EnqueuedAt.IsZero() {
		c.cfg.metrics.ObserveTeardownSeconds(time.Since(enqueuedAt.EnqueuedAt).Seconds())
	}

	c.meta.RemoveTopic(t)
	c.cfg.logger.Log(klog.LogLevelInfo, "complete_delete_topic: topic torn down", "topic", t)

	c.resume(ctx)
}

// failTeardown routes a durable-store write failure mid-teardown to the
// fatal handler (spec.md §7): the coordinator cannot safely guess
// whether t's marker or metadata survived, so it stops advancing and
// leaves resignation to the embedder.
func (c *Coordinator) failTeardown(t, step string, err error) {
	c.cfg.onFatal(fmt.Errorf("complete_delete_topic: deleting %s for topic %q: %w", step, t, err))
}
