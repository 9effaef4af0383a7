package kreplica

// Projection tracks, for every replica the coordinator has touched,
// which deletion state it currently occupies, and answers "any replica
// of topic T in state S" queries in constant time via a reverse index.
//
// Projection is not safe for concurrent use: like the coordinator's own
// sets, it is owned by and mutated only on the controller's single event
// thread.
type Projection struct {
	states map[ID]State
	byTopic map[string]map[State]map[ID]struct{}
}

// New returns an empty Projection.
func New() *Projection {
	return &Projection{
		states:  make(map[ID]State),
		byTopic: make(map[string]map[State]map[ID]struct{}),
	}
}

// Ensure registers id at OfflineReplica if it is not already tracked,
// and returns its current state. This is how a replica enters the
// projection the first time topic deletion looks at it.
func (p *Projection) Ensure(id ID) State {
	if s, ok := p.states[id]; ok {
		return s
	}
	p.set(id, OfflineReplica)
	return OfflineReplica
}

// State reports id's current state, if tracked.
func (p *Projection) State(id ID) (State, bool) {
	s, ok := p.states[id]
	return s, ok
}

// Transition moves id from its current state to to. If id is untracked,
// it is first implicitly registered at OfflineReplica (mirroring the
// general replica state machine's own bootstrap default). Transitioning
// a replica to the state it is already in is a no-op success, so
// response-driven callers can be idempotent without checking first.
func (p *Projection) Transition(id ID, to State) error {
	from := p.Ensure(id)
	if from == to {
		return nil
	}
	if !legalEdges[from][to] {
		return &IllegalTransitionError{ID: id, From: from, To: to}
	}
	p.set(id, to)
	return nil
}

// Forget removes id from the projection entirely. Used once a replica
// reaches NonExistentReplica and teardown no longer needs to track it.
func (p *Projection) Forget(id ID) {
	from, ok := p.states[id]
	if !ok {
		return
	}
	delete(p.states, id)
	if m := p.byTopic[id.Topic]; m != nil {
		if set := m[from]; set != nil {
			delete(set, id)
		}
	}
}

func (p *Projection) set(id ID, to State) {
	if from, ok := p.states[id]; ok {
		if m := p.byTopic[id.Topic]; m != nil {
			if set := m[from]; set != nil {
				delete(set, id)
			}
		}
	}
	p.states[id] = to
	m, ok := p.byTopic[id.Topic]
	if !ok {
		m = make(map[State]map[ID]struct{})
		p.byTopic[id.Topic] = m
	}
	set, ok := m[to]
	if !ok {
		set = make(map[ID]struct{})
		m[to] = set
	}
	set[id] = struct{}{}
}

// AnyInState reports whether any replica of topic is currently in state
// s. Used by is_topic_deletion_in_progress.
func (p *Projection) AnyInState(topic string, s State) bool {
	return len(p.byTopic[topic][s]) > 0
}

// InState returns every replica of topic currently in state s.
func (p *Projection) InState(topic string, s State) []ID {
	set := p.byTopic[topic][s]
	out := make([]ID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// AllInStates reports whether every replica of topic tracked by this
// projection is in one of states. A topic with zero tracked replicas is
// NOT considered "all in states" by this method; callers that need that
// behavior (e.g. nothing has been registered yet) should check the
// replica count independently.
func (p *Projection) AllInStates(topic string, states ...State) bool {
	want := make(map[State]bool, len(states))
	for _, s := range states {
		want[s] = true
	}
	var any bool
	for s, set := range p.byTopic[topic] {
		if len(set) == 0 {
			continue
		}
		any = true
		if !want[s] {
			return false
		}
	}
	return any
}

// ReplicaCount returns how many replicas of topic are currently tracked.
func (p *Projection) ReplicaCount(topic string) int {
	var n int
	for _, set := range p.byTopic[topic] {
		n += len(set)
	}
	return n
}

// ForgetTopic drops every tracked replica of topic. Used by teardown
// after all ReplicaDeletionSuccessful replicas have been moved to
// NonExistentReplica.
func (p *Projection) ForgetTopic(topic string) {
	for s, set := range p.byTopic[topic] {
		for id := range set {
			delete(p.states, id)
		}
		delete(p.byTopic[topic], s)
	}
	delete(p.byTopic, topic)
}
