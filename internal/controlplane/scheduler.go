package controlplane

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rik-org/riklet/internal/model"
	"github.com/rik-org/riklet/internal/transport/schedgrpc"
)

// Scheduler assigns a workload to one of a fixed set of worker agents,
// picking the next worker in round-robin order.
type Scheduler struct {
	mu      sync.Mutex
	workers []string
	next    int
	dial    func(ctx context.Context, addr string) (schedulerClient, error)
}

// schedulerClient is the subset of *schedgrpc.Client the Scheduler needs,
// narrowed so tests can substitute a fake without a real gRPC dial.
type schedulerClient interface {
	Schedule(ctx context.Context, in model.InstanceScheduling) (model.ScheduleAck, error)
	Close() error
}

// NewScheduler builds a Scheduler dialing one of workers (each a
// "host:port" gRPC address) per call to Schedule, in round-robin order.
func NewScheduler(workers []string) *Scheduler {
	return &Scheduler{
		workers: workers,
		dial: func(ctx context.Context, addr string) (schedulerClient, error) {
			return schedgrpc.Dial(ctx, addr)
		},
	}
}

// ErrNoWorkers is returned by Schedule when no worker agents are configured.
var ErrNoWorkers = fmt.Errorf("controlplane: no worker agents configured")

func (s *Scheduler) pick() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.workers) == 0 {
		return "", ErrNoWorkers
	}
	addr := s.workers[s.next%len(s.workers)]
	s.next++
	return addr, nil
}

// Schedule assigns def a fresh instance ID, picks the next worker in
// round-robin order, and dials it over the scheduling transport. It returns
// the instance ID, the worker address it was sent to, and the worker's
// acknowledgement.
func (s *Scheduler) Schedule(ctx context.Context, def model.WorkloadDefinition) (instanceID, worker string, ack model.ScheduleAck, err error) {
	worker, err = s.pick()
	if err != nil {
		return "", "", model.ScheduleAck{}, err
	}

	body, err := json.Marshal(def)
	if err != nil {
		return "", "", model.ScheduleAck{}, fmt.Errorf("marshal definition: %w", err)
	}

	instanceID = model.NewID()

	client, err := s.dial(ctx, worker)
	if err != nil {
		return "", "", model.ScheduleAck{}, fmt.Errorf("dial worker %s: %w", worker, err)
	}
	defer client.Close()

	ack, err = client.Schedule(ctx, model.InstanceScheduling{
		InstanceID: instanceID,
		Definition: string(body),
	})
	if err != nil {
		return "", "", model.ScheduleAck{}, fmt.Errorf("schedule on %s: %w", worker, err)
	}

	return instanceID, worker, ack, nil
}
