package kdelete

import (
	"time"

	"github.com/twmb/kdelete/pkg/kdelete/kdispatch"
	"github.com/twmb/kdelete/pkg/kdelete/kpartition"
	"github.com/twmb/kdelete/pkg/kdelete/kreplica"
	"github.com/twmb/kdelete/pkg/kdelete/kstore"
)

// event is the tagged-event encoding spec.md §9 asks for: every input
// to the coordinator, whether from the durable-store watch, the broker
// response dispatcher, the broker-failure detector, or an internal
// timer, is a concrete struct routed through one channel and handled by
// exactly one case in the run loop's type switch. No callback type ever
// crosses from kdispatch or kstore into run's state directly.
type event interface{ isEvent() }

type evInit struct {
	queued     []kstore.TopicToBeDeleted
	ineligible []string
	done       chan struct{}
}

type evEnqueue struct {
	topics []kstore.TopicToBeDeleted
}

type evReset struct {
	done chan struct{}
}

type evResumeForTopics struct {
	topics []string
}

type evMarkIneligible struct {
	topics []string
}

type evFailReplicaDeletion struct {
	replicas []kreplica.ID
}

type evCompleteReplicaDeletion struct {
	replicas []kreplica.ID
}

// evStopReplicaResponseReceived is what kdispatch's response callback
// constructs and sends back in, per spec.md §6's ingress event of the
// same name, instead of calling into the coordinator directly.
type evStopReplicaResponseReceived struct {
	broker  int32
	results []kdispatch.StopReplicaResult
}

type evQuery struct {
	run  func()
	done chan struct{}
}

// evBrokerStartup / evBrokerFailure / evBrokerShuttingDown feed kmeta
// and then behave like resume_for_topics / fail_replica_deletion / a
// pure liveness-state update, respectively.
type evBrokerStartup struct {
	broker int32
}

type evBrokerFailure struct {
	broker int32
}

// evBrokerShuttingDown marks a broker as gracefully leaving the
// cluster: still reachable for UpdateMetadata (on_topic_deletion step 1
// addresses "all live or shutting-down brokers"), but no longer a valid
// StopReplica target.
type evBrokerShuttingDown struct {
	broker int32
}

type evPartitionReassignmentComplete struct {
	partition kpartition.ID
}

func (evInit) isEvent()                         {}
func (evEnqueue) isEvent()                      {}
func (evReset) isEvent()                        {}
func (evResumeForTopics) isEvent()               {}
func (evMarkIneligible) isEvent()                {}
func (evFailReplicaDeletion) isEvent()           {}
func (evCompleteReplicaDeletion) isEvent()       {}
func (evStopReplicaResponseReceived) isEvent()   {}
func (evQuery) isEvent()                         {}
func (evBrokerStartup) isEvent()                 {}
func (evBrokerFailure) isEvent()                 {}
func (evBrokerShuttingDown) isEvent()            {}
func (evPartitionReassignmentComplete) isEvent() {}

// fatalEvent carries a fatal error through the run loop, which forwards
// it to the fatal handler rather than panicking or calling os.Exit.
// Teardown does not emit one: failTeardown already runs on the event
// goroutine and calls the fatal handler directly.
type fatalEvent struct {
	err error
	at  time.Time
}

func (fatalEvent) isEvent() {}
