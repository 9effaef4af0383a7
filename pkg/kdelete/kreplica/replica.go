// Package kreplica implements the subset of the replica state machine
// that topic deletion touches: the five states a replica passes through
// from "not yet asked to delete" to "gone", and the queries the deletion
// coordinator needs over them.
//
// The full replica state machine (leader election, ISR shrink/expand,
// new-replica bootstrap, and so on) lives outside this package; it is
// the generic state machine spec.md cites as an external collaborator.
package kreplica

import "fmt"

// ID identifies one replica: a copy of one partition hosted on one
// broker.
type ID struct {
	Topic     string
	Partition int32
	Broker    int32
}

// State is a replica's deletion-relevant state.
type State int8

const (
	// OfflineReplica: not serving, not yet instructed to delete.
	OfflineReplica State = iota
	// ReplicaDeletionStarted: a stop-replica(delete=true) request is outstanding.
	ReplicaDeletionStarted
	// ReplicaDeletionSuccessful: broker acknowledged deletion with no error.
	ReplicaDeletionSuccessful
	// ReplicaDeletionIneligible: deletion failed or broker is down; blocks completion.
	ReplicaDeletionIneligible
	// NonExistentReplica: terminal, removed from projections.
	NonExistentReplica
)

func (s State) String() string {
	switch s {
	case OfflineReplica:
		return "OfflineReplica"
	case ReplicaDeletionStarted:
		return "ReplicaDeletionStarted"
	case ReplicaDeletionSuccessful:
		return "ReplicaDeletionSuccessful"
	case ReplicaDeletionIneligible:
		return "ReplicaDeletionIneligible"
	case NonExistentReplica:
		return "NonExistentReplica"
	default:
		return fmt.Sprintf("State(%d)", int8(s))
	}
}

// legalEdges enumerates every allowed from->to transition. Anything not
// listed here, including transitions out of NonExistentReplica, is
// rejected by Transition.
var legalEdges = map[State]map[State]bool{
	OfflineReplica: {
		ReplicaDeletionStarted:    true,
		ReplicaDeletionIneligible: true, // dead-broker classification skips straight here
	},
	ReplicaDeletionStarted: {
		ReplicaDeletionSuccessful: true,
		ReplicaDeletionIneligible: true,
	},
	ReplicaDeletionIneligible: {
		OfflineReplica: true, // retry path
	},
	ReplicaDeletionSuccessful: {
		NonExistentReplica: true,
	},
	NonExistentReplica: {},
}

// IllegalTransitionError is returned by Transition when an edge is not
// in legalEdges.
type IllegalTransitionError struct {
	ID       ID
	From, To State
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("replica %s: illegal transition %s -> %s", e.ID, e.From, e.To)
}

func (id ID) String() string {
	return fmt.Sprintf("%s-%d@%d", id.Topic, id.Partition, id.Broker)
}
