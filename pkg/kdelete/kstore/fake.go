package kstore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Fake is an in-memory Gateway, used by tests and by any embedder that
// has not wired a real coordination store. It is not a serious
// ZooKeeper/etcd stand-in: there is no persistence, no recursive-delete
// semantics beyond a flat map, and watch delivery is best-effort
// (a single buffered channel per Watch call; when the buffer is full a
// change is dropped silently and nothing reports it, much as a real
// watch can also coalesce rapid-fire child changes).
type Fake struct {
	mu sync.Mutex

	markers  map[string]time.Time
	metadata map[string]bool
	config   map[string]bool

	watchers []chan DeleteTopicsChildChange
}

// NewFake returns an empty Fake gateway.
func NewFake() *Fake {
	return &Fake{
		markers:  make(map[string]time.Time),
		metadata: make(map[string]bool),
		config:   make(map[string]bool),
	}
}

// SeedTopic registers topic as having metadata and config, as if it had
// been created before the coordinator started watching. Test helper,
// not part of the Gateway interface.
func (f *Fake) SeedTopic(topic string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metadata[topic] = true
	f.config[topic] = true
}

// HasTopicMetadata reports whether /brokers/topics/<topic> still
// exists. Test helper.
func (f *Fake) HasTopicMetadata(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metadata[topic]
}

// HasTopicConfig reports whether /config/topics/<topic> still exists.
// Test helper.
func (f *Fake) HasTopicConfig(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.config[topic]
}

// HasIntentMarker reports whether /admin/delete_topics/<topic> still
// exists. Test helper.
func (f *Fake) HasIntentMarker(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.markers[topic]
	return ok
}

// CreateIntentMarker simulates the operator CLI writing
// /admin/delete_topics/<topic>, stamping the creation time and fanning
// the change out to every active watcher. Coordinator production code
// never calls this itself — it only observes the result through
// Watch/ListIntentMarkers, exactly as it would with a real store where
// the CLI is a separate process — but it is part of Gateway so a test
// or an embedder's CLI tool has a single interface to write against.
func (f *Fake) CreateIntentMarker(ctx context.Context, topic string) (time.Time, error) {
	f.mu.Lock()
	now := time.Now()
	f.markers[topic] = now
	watchers := append([]chan DeleteTopicsChildChange(nil), f.watchers...)
	f.mu.Unlock()

	change := DeleteTopicsChildChange{NewTopics: []TopicToBeDeleted{{Topic: topic, EnqueuedAt: now}}}
	for _, w := range watchers {
		select {
		case w <- change:
		default:
		}
	}
	return now, nil
}

func (f *Fake) Watch(ctx context.Context) (<-chan DeleteTopicsChildChange, error) {
	ch := make(chan DeleteTopicsChildChange, 16)
	f.mu.Lock()
	f.watchers = append(f.watchers, ch)
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, w := range f.watchers {
			if w == ch {
				f.watchers = append(f.watchers[:i], f.watchers[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

func (f *Fake) ListIntentMarkers(ctx context.Context) ([]TopicToBeDeleted, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]TopicToBeDeleted, 0, len(f.markers))
	for topic, at := range f.markers {
		out = append(out, TopicToBeDeleted{Topic: topic, EnqueuedAt: at})
	}
	return out, nil
}

func (f *Fake) DeleteIntentMarker(ctx context.Context, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.markers[topic]; !ok {
		return fmt.Errorf("kstore: no intent marker for %q", topic)
	}
	delete(f.markers, topic)
	return nil
}

func (f *Fake) DeleteTopicMetadata(ctx context.Context, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.metadata, topic)
	return nil
}

func (f *Fake) DeleteTopicConfig(ctx context.Context, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.config, topic)
	return nil
}

var _ Gateway = (*Fake)(nil)
