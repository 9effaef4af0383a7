// Package kmeta tracks the controller's view of broker liveness and
// topic/partition/replica assignment — the slice of cluster metadata
// that topic deletion needs to classify replicas as reachable or dead
// and to know which brokers to address with UpdateMetadata.
//
// This is the controller-side counterpart to a Kafka client's own
// per-partition metadata cache (which brokers lead which partitions,
// refreshed on a timer and merged against the previous view). The
// concern is the same shape — a cache of assignment plus a liveness
// set, updated by discrete events rather than continuous polling —
// just read from the other end of the cluster.
package kmeta

import "github.com/twmb/kdelete/pkg/kdelete/kreplica"

// Cache holds the controller's metadata view. It is not safe for
// concurrent use; like the coordinator's own sets, it is owned
// exclusively by the controller's event thread.
type Cache struct {
	liveBrokers      map[int32]bool
	shuttingDown     map[int32]bool
	assignments      map[string]map[int32][]int32 // topic -> partition -> replica broker IDs
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		liveBrokers:  make(map[int32]bool),
		shuttingDown: make(map[int32]bool),
		assignments:  make(map[string]map[int32][]int32),
	}
}

// BrokerUp marks a broker live. Called on BrokerStartup.
func (c *Cache) BrokerUp(id int32) {
	c.liveBrokers[id] = true
	delete(c.shuttingDown, id)
}

// BrokerDown marks a broker dead. Called on BrokerFailure.
func (c *Cache) BrokerDown(id int32) {
	delete(c.liveBrokers, id)
	delete(c.shuttingDown, id)
}

// BrokerShuttingDown marks a broker as gracefully shutting down: still
// addressable for UpdateMetadata, but not a valid StopReplica target.
func (c *Cache) BrokerShuttingDown(id int32) {
	c.shuttingDown[id] = true
}

// IsLive reports whether broker id is currently live.
func (c *Cache) IsLive(id int32) bool { return c.liveBrokers[id] }

// IsShuttingDown reports whether broker id is in graceful shutdown.
func (c *Cache) IsShuttingDown(id int32) bool { return c.shuttingDown[id] }

// LiveOrShuttingDownBrokers returns every broker id that should receive
// UpdateMetadata for partitions going under deletion.
func (c *Cache) LiveOrShuttingDownBrokers() []int32 {
	seen := make(map[int32]bool, len(c.liveBrokers)+len(c.shuttingDown))
	out := make([]int32, 0, len(c.liveBrokers)+len(c.shuttingDown))
	for id := range c.liveBrokers {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for id := range c.shuttingDown {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// SetAssignment records the replica broker list for a partition.
func (c *Cache) SetAssignment(topic string, partition int32, replicas []int32) {
	m, ok := c.assignments[topic]
	if !ok {
		m = make(map[int32][]int32)
		c.assignments[topic] = m
	}
	m[partition] = append([]int32(nil), replicas...)
}

// PartitionsForTopic returns every partition index assigned to topic.
func (c *Cache) PartitionsForTopic(topic string) []int32 {
	m := c.assignments[topic]
	out := make([]int32, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	return out
}

// AllReplicasOf returns the full assigned replica set for topic,
// regardless of broker liveness.
func (c *Cache) AllReplicasOf(topic string) []kreplica.ID {
	m := c.assignments[topic]
	out := make([]kreplica.ID, 0, len(m)*2)
	for partition, brokers := range m {
		for _, b := range brokers {
			out = append(out, kreplica.ID{Topic: topic, Partition: partition, Broker: b})
		}
	}
	return out
}

// LiveReplicasOf returns the subset of topic's assigned replicas that
// are valid StopReplica targets: their broker is live and not in
// graceful shutdown. A shutting-down broker still receives
// UpdateMetadata (see LiveOrShuttingDownBrokers) but is never sent
// StopReplica.
func (c *Cache) LiveReplicasOf(topic string) []kreplica.ID {
	all := c.AllReplicasOf(topic)
	out := all[:0:0]
	for _, id := range all {
		if c.liveBrokers[id.Broker] && !c.shuttingDown[id.Broker] {
			out = append(out, id)
		}
	}
	return out
}

// RemoveTopic drops all assignment data for topic. Called as the last
// step of teardown.
func (c *Cache) RemoveTopic(topic string) {
	delete(c.assignments, topic)
}
