package kdelete

import (
	"time"

	"github.com/twmb/kdelete/pkg/kdelete/ksnapshot"
)

// Snapshot captures the coordinator's current queued/ineligible sets for
// diagnostics, running the read on the event thread like every other
// query. The result is never fed back into the coordinator: ksnapshot
// is a one-way diagnostic export, not a recovery path (the durable
// store remains authoritative per I4).
func (c *Coordinator) Snapshot() ksnapshot.State {
	var s ksnapshot.State
	c.query(func() {
		s.TakenAt = time.Now()
		for name := range c.ineligible {
			s.Ineligible = append(s.Ineligible, name)
		}
		s.PartitionsToBeDeleted = len(c.partOwner)
		for _, name := range c.queued.Names() {
			t, _ := c.queued.Get(name)
			s.Queued = append(s.Queued, ksnapshot.QueuedTopic{Topic: t.Topic, EnqueuedAt: t.EnqueuedAt})
		}
	})
	return s
}
