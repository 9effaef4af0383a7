package kdelete

import (
	"time"

	"github.com/google/btree"
)

// queuedTopic is the in-memory TopicToBeDeleted (spec.md §3): identity
// is Topic, EnqueuedAt is when the intent marker was created in the
// durable store.
type queuedTopic struct {
	Topic       string
	EnqueuedAt  time.Time
	Fingerprint [32]byte
}

// orderedByTimeThenName wraps queuedTopic for btree ordering: ascending
// enqueue time, ties broken by topic name. This is the Go encoding of
// "select the single topic with the smallest deletion_enqueue_time,
// tie-break by name" (spec.md §4.1 step 2 of resume).
type orderedByTimeThenName struct{ queuedTopic }

func (a orderedByTimeThenName) Less(than btree.Item) bool {
	b := than.(orderedByTimeThenName)
	if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
		return a.EnqueuedAt.Before(b.EnqueuedAt)
	}
	return a.Topic < b.Topic
}

// topicSet is topics_to_be_deleted: a name-keyed set that also supports
// an O(log n) "smallest enqueue time" query via a google/btree index,
// the same ordered-index technique franz-go's sticky balancer
// (internal/sticky) uses to keep partitions in deterministic order for
// a comparator-driven pick.
type topicSet struct {
	byName map[string]queuedTopic
	order  *btree.BTree
}

func newTopicSet() *topicSet {
	return &topicSet{
		byName: make(map[string]queuedTopic),
		order:  btree.New(32),
	}
}

// Add inserts t if its name is not already present. It reports whether
// the insert happened (false means a duplicate per P6, or a resolvable
// anomaly logged by the caller).
func (s *topicSet) Add(t queuedTopic) bool {
	if _, exists := s.byName[t.Topic]; exists {
		return false
	}
	s.byName[t.Topic] = t
	s.order.ReplaceOrInsert(orderedByTimeThenName{t})
	return true
}

// Remove deletes topic from the set, if present.
func (s *topicSet) Remove(topic string) {
	t, ok := s.byName[topic]
	if !ok {
		return
	}
	delete(s.byName, topic)
	s.order.Delete(orderedByTimeThenName{t})
}

// Get returns topic's queuedTopic entry, if queued.
func (s *topicSet) Get(topic string) (queuedTopic, bool) {
	t, ok := s.byName[topic]
	return t, ok
}

// Has reports whether topic is queued.
func (s *topicSet) Has(topic string) bool {
	_, ok := s.byName[topic]
	return ok
}

// Len reports how many topics are queued.
func (s *topicSet) Len() int { return len(s.byName) }

// Names returns every queued topic name, in no particular order.
func (s *topicSet) Names() []string {
	out := make([]string, 0, len(s.byName))
	for name := range s.byName {
		out = append(out, name)
	}
	return out
}

// Min returns the queued topic with the smallest (enqueue time, name),
// or ok=false if the set is empty.
func (s *topicSet) Min() (t queuedTopic, ok bool) {
	s.order.Ascend(func(item btree.Item) bool {
		t = item.(orderedByTimeThenName).queuedTopic
		ok = true
		return false
	})
	return t, ok
}

// Clear empties the set in place.
func (s *topicSet) Clear() {
	s.byName = make(map[string]queuedTopic)
	s.order = btree.New(32)
}
