// Package kpartition implements the subset of the partition state
// machine that topic deletion's teardown step touches.
package kpartition

import "fmt"

// ID identifies one partition of one topic.
type ID struct {
	Topic string
	Index int32
}

func (id ID) String() string { return fmt.Sprintf("%s-%d", id.Topic, id.Index) }

// State is a partition's lifecycle state, restricted to what teardown
// needs. OnlinePartition is the implicit default every partition starts
// in, owned by the general partition state machine outside this
// package; OfflinePartition and NonExistentPartition are the two
// deletion-teardown states this package actually transitions through.
type State int8

const (
	OnlinePartition State = iota
	OfflinePartition
	NonExistentPartition
)

func (s State) String() string {
	switch s {
	case OnlinePartition:
		return "OnlinePartition"
	case OfflinePartition:
		return "OfflinePartition"
	case NonExistentPartition:
		return "NonExistentPartition"
	default:
		return fmt.Sprintf("State(%d)", int8(s))
	}
}

var legalEdges = map[State]map[State]bool{
	OnlinePartition:      {OfflinePartition: true},
	OfflinePartition:     {NonExistentPartition: true, OnlinePartition: true},
	NonExistentPartition: {},
}

// IllegalTransitionError is returned by Transition for an edge not in
// legalEdges.
type IllegalTransitionError struct {
	ID       ID
	From, To State
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("partition %s: illegal transition %s -> %s", e.ID, e.From, e.To)
}

// Projection tracks per-partition lifecycle state. Like kreplica's
// Projection, it is owned exclusively by the controller's single event
// thread and holds no lock.
type Projection struct {
	states map[ID]State
}

// New returns an empty Projection.
func New() *Projection {
	return &Projection{states: make(map[ID]State)}
}

// Ensure registers id at OnlinePartition if untracked and returns its
// current state.
func (p *Projection) Ensure(id ID) State {
	if s, ok := p.states[id]; ok {
		return s
	}
	p.states[id] = OnlinePartition
	return OnlinePartition
}

// State reports id's current state, if tracked.
func (p *Projection) State(id ID) (State, bool) {
	s, ok := p.states[id]
	return s, ok
}

// Transition moves id to the given state, implicitly registering it at
// OnlinePartition first if untracked.
func (p *Projection) Transition(id ID, to State) error {
	from := p.Ensure(id)
	if from == to {
		return nil
	}
	if !legalEdges[from][to] {
		return &IllegalTransitionError{ID: id, From: from, To: to}
	}
	p.states[id] = to
	return nil
}

// Forget removes id from the projection.
func (p *Projection) Forget(id ID) {
	delete(p.states, id)
}
