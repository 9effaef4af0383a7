// Package kdispatch builds the two wire requests topic deletion issues
// to brokers — UpdateMetadata and StopReplica — using the real Kafka
// protocol types from github.com/twmb/franz-go/pkg/kmsg, and classifies
// StopReplica responses with github.com/twmb/franz-go/pkg/kerr so the
// coordinator can route them to complete_replica_deletion or
// fail_replica_deletion.
//
// The actual connection/transport layer (the "outbound request layer"
// in spec.md §1) is out of scope; Issuer is the seam a real broker
// client implements.
package kdispatch

import (
	"context"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kmsg"
	"github.com/twmb/kdelete/pkg/kdelete/klog"
	"github.com/twmb/kdelete/pkg/kdelete/kreplica"
)

// LeaderDuringDelete is the sentinel leader ID brokers are told to
// assign to partitions under deletion, causing them to reject client
// traffic for those partitions.
const LeaderDuringDelete = -2

// Issuer sends a built request to one broker and invokes the callback
// when (if ever) a response arrives. It never blocks the caller: a real
// implementation enqueues the request on a per-broker channel and
// invokes the callback from whatever goroutine observes the wire
// response, exactly the "dynamic dispatch via response callback"
// pattern spec.md §9 calls for — the callback is expected to re-enter
// the controller event loop as a tagged event, not call back into
// Dispatcher directly.
type Issuer interface {
	IssueStopReplica(ctx context.Context, broker int32, req *kmsg.StopReplicaRequest, onResponse func(*kmsg.StopReplicaResponse, error))
	IssueUpdateMetadata(ctx context.Context, broker int32, req *kmsg.UpdateMetadataRequest, onResponse func(*kmsg.UpdateMetadataResponse, error))
}

// Dispatcher is the C4 broker request dispatcher.
type Dispatcher struct {
	issuer          Issuer
	controllerID    int32
	controllerEpoch int32
	logger          klog.Logger
}

// New returns a Dispatcher that issues requests through issuer,
// stamping them with the given controller identity. A nil logger
// disables correlation-ID logging.
func New(issuer Issuer, controllerID, controllerEpoch int32, logger klog.Logger) *Dispatcher {
	if logger == nil {
		logger = klog.Nop
	}
	return &Dispatcher{issuer: issuer, controllerID: controllerID, controllerEpoch: controllerEpoch, logger: logger}
}

// StopReplicaResult is one partition's outcome from a StopReplica
// response, already classified against kerr.
type StopReplicaResult struct {
	ID      kreplica.ID
	Err     error // nil on success
	Retriable bool
}

// DispatchUpdateMetadata sends UpdateMetadata(leader=LeaderDuringDelete)
// for the given partitions to every broker in brokers. Responses are
// not part of the deletion flow (spec.md §6 only routes
// StopReplicaResponseReceived back into the coordinator), so failures
// are reported through onErr for logging rather than retried here.
func (d *Dispatcher) DispatchUpdateMetadata(ctx context.Context, brokers []int32, partitions []kreplica.ID, onErr func(broker int32, err error)) {
	byTopic := groupByTopic(partitions)
	req := &kmsg.UpdateMetadataRequest{
		ControllerID:    d.controllerID,
		ControllerEpoch: d.controllerEpoch,
	}
	for topic, ids := range byTopic {
		ts := kmsg.UpdateMetadataRequestTopicState{Topic: topic}
		for _, id := range ids {
			ts.PartitionStates = append(ts.PartitionStates, kmsg.UpdateMetadataRequestTopicStatePartition{
				Partition:       id.Partition,
				ControllerEpoch: d.controllerEpoch,
				Leader:          LeaderDuringDelete,
				LeaderEpoch:     -1,
			})
		}
		req.TopicStates = append(req.TopicStates, ts)
	}
	correlation := uuid.New()
	for _, broker := range brokers {
		broker := broker
		reqCopy := *req
		d.logger.Log(klog.LogLevelDebug, "dispatching UpdateMetadata", "correlation_id", correlation, "broker", broker, "topics", len(reqCopy.TopicStates))
		d.issuer.IssueUpdateMetadata(ctx, broker, &reqCopy, func(_ *kmsg.UpdateMetadataResponse, err error) {
			if err != nil {
				d.logger.Log(klog.LogLevelWarn, "UpdateMetadata failed", "correlation_id", correlation, "broker", broker, "err", err)
				if onErr != nil {
					onErr(broker, err)
				}
			}
		})
	}
}

// DispatchStopReplica issues StopReplica(delete) for replicas to their
// respective brokers, grouped one request per broker, and invokes
// onResult once per broker with the classified per-partition outcomes
// when that broker's response arrives.
func (d *Dispatcher) DispatchStopReplica(ctx context.Context, replicas []kreplica.ID, delete bool, onResult func(broker int32, results []StopReplicaResult)) {
	byBroker := make(map[int32][]kreplica.ID)
	for _, id := range replicas {
		byBroker[id.Broker] = append(byBroker[id.Broker], id)
	}

	for broker, ids := range byBroker {
		broker, ids := broker, ids
		byTopic := groupByTopic(ids)
		correlation := uuid.New()
		req := &kmsg.StopReplicaRequest{
			ControllerID:    d.controllerID,
			ControllerEpoch: d.controllerEpoch,
		}
		for topic, topicIDs := range byTopic {
			ts := kmsg.StopReplicaRequestTopic{Topic: topic}
			for _, id := range topicIDs {
				ts.PartitionStates = append(ts.PartitionStates, kmsg.StopReplicaRequestTopicPartitionState{
					Partition: id.Partition,
					Delete:    delete,
				})
			}
			req.TopicStates = append(req.TopicStates, ts)
		}

		d.logger.Log(klog.LogLevelDebug, "dispatching StopReplica", "correlation_id", correlation, "broker", broker, "delete", delete, "replicas", len(ids))
		d.issuer.IssueStopReplica(ctx, broker, req, func(resp *kmsg.StopReplicaResponse, err error) {
			if onResult == nil {
				return
			}
			if err != nil {
				results := make([]StopReplicaResult, len(ids))
				for i, id := range ids {
					results[i] = StopReplicaResult{ID: id, Err: err, Retriable: true}
				}
				onResult(broker, results)
				return
			}
			onResult(broker, classify(broker, resp))
		})
	}
}

func classify(broker int32, resp *kmsg.StopReplicaResponse) []StopReplicaResult {
	var out []StopReplicaResult
	for _, ts := range resp.TopicStates {
		for _, ps := range ts.PartitionStates {
			id := kreplica.ID{Topic: ts.Topic, Partition: ps.Partition, Broker: broker}
			if ps.ErrorCode == 0 {
				out = append(out, StopReplicaResult{ID: id})
				continue
			}
			err := kerr.ErrorForCode(ps.ErrorCode)
			out = append(out, StopReplicaResult{ID: id, Err: err, Retriable: kerr.IsRetriable(err)})
		}
	}
	return out
}

func groupByTopic(ids []kreplica.ID) map[string][]kreplica.ID {
	m := make(map[string][]kreplica.ID)
	for _, id := range ids {
		m[id.Topic] = append(m[id.Topic], id)
	}
	return m
}
