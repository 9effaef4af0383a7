package kdelete

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kmsg"
	"github.com/twmb/kdelete/pkg/kdelete/kdispatch"
	"github.com/twmb/kdelete/pkg/kdelete/kmeta"
	"github.com/twmb/kdelete/pkg/kdelete/klog"
	"github.com/twmb/kdelete/pkg/kdelete/kreplica"
	"github.com/twmb/kdelete/pkg/kdelete/kstore"
)

// fakeIssuer answers every StopReplica/UpdateMetadata request inline
// with a success response (unless stopReplicaErr names the broker), so
// the coordinator's full enqueue-to-teardown path runs synchronously
// enough for a test to observe.
type fakeIssuer struct {
	stopReplicaErr map[int32]error // broker -> error to return for every partition, if set
}

func (f *fakeIssuer) IssueUpdateMetadata(ctx context.Context, broker int32, req *kmsg.UpdateMetadataRequest, onResponse func(*kmsg.UpdateMetadataResponse, error)) {
	onResponse(&kmsg.UpdateMetadataResponse{}, nil)
}

func (f *fakeIssuer) IssueStopReplica(ctx context.Context, broker int32, req *kmsg.StopReplicaRequest, onResponse func(*kmsg.StopReplicaResponse, error)) {
	resp := &kmsg.StopReplicaResponse{}
	for _, ts := range req.TopicStates {
		rts := kmsg.StopReplicaResponseTopicState{Topic: ts.Topic}
		for _, ps := range ts.PartitionStates {
			code := int16(0)
			if f.stopReplicaErr != nil {
				if _, bad := f.stopReplicaErr[broker]; bad {
					code = 1 // kerr.OffsetOutOfRange; any nonzero code fails the replica
				}
			}
			rts.PartitionStates = append(rts.PartitionStates, kmsg.StopReplicaResponseTopicStatePartition{
				Partition: ps.Partition,
				ErrorCode: code,
			})
		}
		resp.TopicStates = append(resp.TopicStates, rts)
	}
	onResponse(resp, nil)
}

func newTestCoordinator(t *testing.T, issuer kdispatch.Issuer, opts ...Opt) (*Coordinator, *kstore.Fake, *kmeta.Cache, context.CancelFunc) {
	t.Helper()
	gateway := kstore.NewFake()
	meta := kmeta.New()
	dispatcher := kdispatch.New(issuer, 1, 1, klog.Nop)

	coord := New(gateway, dispatcher, meta, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go coord.Run(ctx)
	t.Cleanup(cancel)
	return coord, gateway, meta, cancel
}

func TestEnqueueDrivesFullDeletion(t *testing.T) {
	coord, gateway, meta, _ := newTestCoordinator(t, &fakeIssuer{})

	meta.BrokerUp(1)
	meta.SetAssignment("orders", 0, []int32{1})

	gateway.SeedTopic("orders")
	at, err := gateway.CreateIntentMarker(context.Background(), "orders")
	require.NoError(t, err)

	coord.Init(context.Background(), nil, nil)
	coord.Enqueue([]kstore.TopicToBeDeleted{{Topic: "orders", EnqueuedAt: at}})

	require.Eventually(t, func() bool {
		return !coord.IsTopicQueued("orders")
	}, 2*time.Second, 5*time.Millisecond)

	require.False(t, gateway.HasTopicMetadata("orders"))
	require.False(t, gateway.HasTopicConfig("orders"))
	require.False(t, gateway.HasIntentMarker("orders"))
}

func TestEnqueueIsIdempotent(t *testing.T) {
	coord, gateway, meta, _ := newTestCoordinator(t, &fakeIssuer{})
	meta.BrokerUp(1)
	meta.SetAssignment("orders", 0, []int32{1})
	gateway.SeedTopic("orders")
	at, err := gateway.CreateIntentMarker(context.Background(), "orders")
	require.NoError(t, err)

	topics := []kstore.TopicToBeDeleted{{Topic: "orders", EnqueuedAt: at}}
	coord.Enqueue(topics)
	coord.Enqueue(topics) // P6: enqueue(S); enqueue(S) is a no-op

	require.Eventually(t, func() bool {
		return !coord.IsTopicQueued("orders")
	}, 2*time.Second, 5*time.Millisecond)
}

func TestMarkIneligibleBlocksUntilResumeForTopics(t *testing.T) {
	coord, gateway, meta, _ := newTestCoordinator(t, &fakeIssuer{})
	meta.BrokerUp(1)
	meta.SetAssignment("orders", 0, []int32{1})
	gateway.SeedTopic("orders")
	at, err := gateway.CreateIntentMarker(context.Background(), "orders")
	require.NoError(t, err)

	// Init only seeds state, it never calls resume, so marking the topic
	// ineligible right after is guaranteed to land before anything tries
	// to advance it.
	coord.Init(context.Background(), []kstore.TopicToBeDeleted{{Topic: "orders", EnqueuedAt: at}}, nil)
	coord.MarkIneligible([]string{"orders"})

	require.True(t, coord.IsTopicQueued("orders"))
	require.True(t, gateway.HasTopicMetadata("orders")) // untouched: no progress was attempted

	coord.ResumeForTopics([]string{"orders"})
	require.Eventually(t, func() bool {
		return !coord.IsTopicQueued("orders")
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDeadBrokerMarksTopicIneligibleAndBlocks(t *testing.T) {
	coord, gateway, meta, _ := newTestCoordinator(t, &fakeIssuer{})
	// Broker 1 is never marked up: every replica looks dead.
	meta.SetAssignment("orders", 0, []int32{1})
	gateway.SeedTopic("orders")
	at, err := gateway.CreateIntentMarker(context.Background(), "orders")
	require.NoError(t, err)

	coord.Enqueue([]kstore.TopicToBeDeleted{{Topic: "orders", EnqueuedAt: at}})

	require.Eventually(t, func() bool {
		return coord.IsTopicQueued("orders")
	}, time.Second, 5*time.Millisecond)
	require.True(t, gateway.HasTopicMetadata("orders")) // never torn down: stuck ineligible
}

func TestResetClearsQueuedTopics(t *testing.T) {
	coord, gateway, meta, _ := newTestCoordinator(t, &fakeIssuer{})
	meta.SetAssignment("orders", 0, []int32{1}) // broker down, so deletion stalls
	gateway.SeedTopic("orders")
	at, err := gateway.CreateIntentMarker(context.Background(), "orders")
	require.NoError(t, err)

	coord.Enqueue([]kstore.TopicToBeDeleted{{Topic: "orders", EnqueuedAt: at}})
	require.Eventually(t, func() bool { return coord.IsTopicQueued("orders") }, time.Second, 5*time.Millisecond)

	coord.Reset()
	require.False(t, coord.IsTopicQueued("orders"))
}

// TestBrokerRestartRetriesDeadReplicaToCompletion covers S2: a topic
// queued against a dead broker sits ineligible until BrokerStartup
// fires, at which point resume retries the replica through to
// completion without a second enqueue.
func TestBrokerRestartRetriesDeadReplicaToCompletion(t *testing.T) {
	coord, gateway, meta, _ := newTestCoordinator(t, &fakeIssuer{})
	meta.SetAssignment("orders", 0, []int32{1}) // broker 1 starts down
	gateway.SeedTopic("orders")
	at, err := gateway.CreateIntentMarker(context.Background(), "orders")
	require.NoError(t, err)

	coord.Enqueue([]kstore.TopicToBeDeleted{{Topic: "orders", EnqueuedAt: at}})
	require.Eventually(t, func() bool {
		return coord.IsTopicQueued("orders")
	}, time.Second, 5*time.Millisecond)
	require.True(t, gateway.HasTopicMetadata("orders")) // stuck: broker still down

	coord.OnBrokerStartup(1)

	require.Eventually(t, func() bool {
		return !coord.IsTopicQueued("orders")
	}, 2*time.Second, 5*time.Millisecond)
	require.False(t, gateway.HasTopicMetadata("orders"))
	require.False(t, gateway.HasIntentMarker("orders"))
}

// TestResumeSerializesSingleTopicAtATime covers S3: resume only ever
// advances topics_to_be_deleted's minimum entry, so a second,
// fully-eligible topic enqueued behind a stuck one never tears down
// until the first is no longer occupying that slot.
func TestResumeSerializesSingleTopicAtATime(t *testing.T) {
	coord, gateway, meta, _ := newTestCoordinator(t, &fakeIssuer{})

	// topicA is enqueued first and its broker never comes up, so it
	// permanently occupies queued.Min().
	meta.SetAssignment("topicA", 0, []int32{1})
	gateway.SeedTopic("topicA")
	atA, err := gateway.CreateIntentMarker(context.Background(), "topicA")
	require.NoError(t, err)
	coord.Enqueue([]kstore.TopicToBeDeleted{{Topic: "topicA", EnqueuedAt: atA}})
	require.Eventually(t, func() bool {
		return coord.IsTopicQueued("topicA")
	}, time.Second, 5*time.Millisecond)

	// topicB is fully eligible (broker 2 is up) but enqueued second.
	meta.BrokerUp(2)
	meta.SetAssignment("topicB", 0, []int32{2})
	gateway.SeedTopic("topicB")
	atB, err := gateway.CreateIntentMarker(context.Background(), "topicB")
	require.NoError(t, err)
	coord.Enqueue([]kstore.TopicToBeDeleted{{Topic: "topicB", EnqueuedAt: atB}})

	coord.ResumeForTopics([]string{"topicB"})

	// No require.Eventually for a negative: give resume plenty of
	// chances to (incorrectly) advance topicB, then assert it didn't.
	time.Sleep(100 * time.Millisecond)
	require.True(t, coord.IsTopicQueued("topicB"))
	require.True(t, gateway.HasTopicMetadata("topicB"))
}

// TestMixedLiveDeadReplicasClassifiedIndependently covers S6: within a
// single partition's replica set, a dead broker's replica goes
// ineligible immediately while live brokers' replicas still complete,
// and the topic stays queued-but-ineligible until the dead one
// returns. Once the live replicas have finished, resume moves the dead
// replica from ReplicaDeletionIneligible back to OfflineReplica (the
// retry path), where it waits for its broker.
func TestMixedLiveDeadReplicasClassifiedIndependently(t *testing.T) {
	coord, gateway, meta, _ := newTestCoordinator(t, &fakeIssuer{})
	meta.BrokerUp(1)
	meta.BrokerUp(2)
	// broker 3 never comes up
	meta.SetAssignment("d", 0, []int32{1, 2, 3})
	gateway.SeedTopic("d")
	at, err := gateway.CreateIntentMarker(context.Background(), "d")
	require.NoError(t, err)

	coord.Enqueue([]kstore.TopicToBeDeleted{{Topic: "d", EnqueuedAt: at}})

	require.Eventually(t, func() bool {
		var s1, s2 kreplica.State
		var ok1, ok2 bool
		coord.query(func() {
			s1, ok1 = coord.replicas.State(kreplica.ID{Topic: "d", Partition: 0, Broker: 1})
			s2, ok2 = coord.replicas.State(kreplica.ID{Topic: "d", Partition: 0, Broker: 2})
		})
		return ok1 && ok2 && s1 == kreplica.ReplicaDeletionSuccessful && s2 == kreplica.ReplicaDeletionSuccessful
	}, 2*time.Second, 5*time.Millisecond)

	var s3 kreplica.State
	var ok3 bool
	coord.query(func() { s3, ok3 = coord.replicas.State(kreplica.ID{Topic: "d", Partition: 0, Broker: 3}) })
	require.True(t, ok3)
	require.Equal(t, kreplica.OfflineReplica, s3)

	require.True(t, coord.IsTopicQueued("d"))
	require.True(t, gateway.HasTopicMetadata("d")) // not torn down: broker 3 still owed a retry
}

// pausableIssuer records every StopReplica request but never answers
// it, freezing affected replicas in ReplicaDeletionStarted to simulate
// a controller failover before the broker replies.
type pausableIssuer struct {
	mu       sync.Mutex
	requests int
}

func (p *pausableIssuer) IssueUpdateMetadata(ctx context.Context, broker int32, req *kmsg.UpdateMetadataRequest, onResponse func(*kmsg.UpdateMetadataResponse, error)) {
	onResponse(&kmsg.UpdateMetadataResponse{}, nil)
}

func (p *pausableIssuer) IssueStopReplica(ctx context.Context, broker int32, req *kmsg.StopReplicaRequest, onResponse func(*kmsg.StopReplicaResponse, error)) {
	p.mu.Lock()
	p.requests++
	p.mu.Unlock()
	// onResponse deliberately never called: the response is left
	// outstanding, as if the controller failed over before the broker
	// replied.
}

func (p *pausableIssuer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests
}

// TestInitOnFailoverResetsInFlightReplicas covers S4: a new controller
// calling Init while a replica is mid-ReplicaDeletionStarted drops the
// stale in-memory projection entirely, so a later ResumeForTopics
// restarts that replica's teardown from the beginning rather than
// waiting on a response that will never arrive.
func TestInitOnFailoverResetsInFlightReplicas(t *testing.T) {
	pausable := &pausableIssuer{}
	coord, gateway, meta, _ := newTestCoordinator(t, pausable)
	meta.BrokerUp(1)
	meta.SetAssignment("orders", 0, []int32{1})
	gateway.SeedTopic("orders")
	at, err := gateway.CreateIntentMarker(context.Background(), "orders")
	require.NoError(t, err)

	coord.Enqueue([]kstore.TopicToBeDeleted{{Topic: "orders", EnqueuedAt: at}})

	require.Eventually(t, func() bool {
		return pausable.count() > 0
	}, time.Second, 5*time.Millisecond)

	id := kreplica.ID{Topic: "orders", Partition: 0, Broker: 1}
	var state kreplica.State
	var tracked bool
	coord.query(func() { state, tracked = coord.replicas.State(id) })
	require.True(t, tracked)
	require.Equal(t, kreplica.ReplicaDeletionStarted, state)

	coord.Init(context.Background(), []kstore.TopicToBeDeleted{{Topic: "orders", EnqueuedAt: at}}, nil)

	coord.query(func() { _, tracked = coord.replicas.State(id) })
	require.False(t, tracked, "Init must drop the stale in-flight replica projection")

	before := pausable.count()
	coord.ResumeForTopics([]string{"orders"})
	require.Eventually(t, func() bool {
		return pausable.count() > before
	}, time.Second, 5*time.Millisecond, "resume after failover must reissue StopReplica")
}

// TestDisabledDeletionPurgesMarkersOnInit covers S5: with deletion
// disabled, init purges stale intent markers and does nothing else,
// and every other operation becomes a no-op.
func TestDisabledDeletionPurgesMarkersOnInit(t *testing.T) {
	coord, gateway, _, _ := newTestCoordinator(t, &fakeIssuer{}, Disabled())
	gateway.SeedTopic("orders")
	at, err := gateway.CreateIntentMarker(context.Background(), "orders")
	require.NoError(t, err)

	coord.Init(context.Background(), []kstore.TopicToBeDeleted{{Topic: "orders", EnqueuedAt: at}}, nil)

	require.False(t, gateway.HasIntentMarker("orders"))
	require.True(t, gateway.HasTopicMetadata("orders"))
	require.True(t, gateway.HasTopicConfig("orders"))
	require.False(t, coord.IsTopicQueued("orders"))

	coord.Enqueue([]kstore.TopicToBeDeleted{{Topic: "orders", EnqueuedAt: at}})
	require.False(t, coord.IsTopicQueued("orders"))
}
