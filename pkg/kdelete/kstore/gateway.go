// Package kstore defines the contract the deletion coordinator uses to
// talk to the durable coordination store (a hierarchical key-value
// service with watches, e.g. ZooKeeper) and provides an in-memory Fake
// implementation for tests and for embedders that have not wired a real
// backend yet.
//
// The real backend is explicitly out of scope for this module (see
// spec.md §1): Gateway is the seam, not the implementation.
package kstore

import (
	"context"
	"time"
)

// DeleteTopicsChildChange mirrors a watch firing on
// /admin/delete_topics with a set of newly observed children.
type DeleteTopicsChildChange struct {
	NewTopics []TopicToBeDeleted
}

// TopicToBeDeleted is the durable-store-facing view of a queued topic:
// just enough to seed the coordinator's in-memory TopicToBeDeleted.
type TopicToBeDeleted struct {
	Topic       string
	EnqueuedAt  time.Time
}

// Gateway is everything the coordinator needs from the durable store.
type Gateway interface {
	// Watch returns a channel that receives a DeleteTopicsChildChange
	// each time new intent markers appear under /admin/delete_topics.
	// The channel is closed when ctx is done.
	Watch(ctx context.Context) (<-chan DeleteTopicsChildChange, error)

	// ListIntentMarkers returns every currently-existing intent marker,
	// used by init on controller election.
	ListIntentMarkers(ctx context.Context) ([]TopicToBeDeleted, error)

	// CreateIntentMarker writes /admin/delete_topics/<topic>, stamping
	// the creation time the watch fires with. Coordinator production
	// code never calls this directly — an operator or CLI is the one
	// that actually creates the marker — but it is part of the seam so
	// a Gateway implementation (and its tests) own the full lifecycle
	// of the path they otherwise only delete.
	CreateIntentMarker(ctx context.Context, topic string) (time.Time, error)

	// DeleteIntentMarker removes /admin/delete_topics/<topic>. Called
	// only by complete_delete_topic, and by init's purge-when-disabled
	// path.
	DeleteIntentMarker(ctx context.Context, topic string) error

	// DeleteTopicMetadata recursively removes /brokers/topics/<topic>.
	// Called only by complete_delete_topic.
	DeleteTopicMetadata(ctx context.Context, topic string) error

	// DeleteTopicConfig recursively removes /config/topics/<topic>.
	// Called only by complete_delete_topic.
	DeleteTopicConfig(ctx context.Context, topic string) error
}
