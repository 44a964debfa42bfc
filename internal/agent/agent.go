// Package agent implements the worker agent loop: it receives scheduling
// decisions over schedgrpc, dispatches each to the Runtime Manager on its
// own goroutine, and translates the resulting success/failure into status
// transitions on a channel it owns. The runtime core only returns errors;
// this package is the sole place they become status events.
package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/rik-org/riklet/internal/model"
	"github.com/rik-org/riklet/internal/netfabric"
	"github.com/rik-org/riklet/internal/rikerr"
	"github.com/rik-org/riklet/internal/runtime"
)

// statusChanBuffer bounds how far the agent's status channel can lag a slow
// consumer before publish starts dropping events.
const statusChanBuffer = 256

// Agent owns the running instances on one worker host.
type Agent struct {
	manager *runtime.Manager
	ops     netfabric.HostOps
	logger  *slog.Logger

	statusCh chan model.StatusEvent

	mu        sync.Mutex
	instances map[string]runtime.Instance
	wg        sync.WaitGroup
}

// New builds an Agent dispatching onto manager, using ops for the startup
// orphan sweep.
func New(manager *runtime.Manager, ops netfabric.HostOps, logger *slog.Logger) *Agent {
	return &Agent{
		manager:   manager,
		ops:       ops,
		logger:    logger,
		statusCh:  make(chan model.StatusEvent, statusChanBuffer),
		instances: make(map[string]runtime.Instance),
	}
}

// StatusEvents returns the channel status transitions are published on.
// Callers (the gRPC server glue, or a future push-back transport) drain it;
// events are dropped, not blocked on, if nothing is draining.
func (a *Agent) StatusEvents() <-chan model.StatusEvent { return a.statusCh }

func (a *Agent) publish(ev model.StatusEvent) {
	ev.At = time.Now().UTC()
	select {
	case a.statusCh <- ev:
	default:
		a.logger.Warn("status channel full, dropping event", "instance_id", ev.InstanceID, "status", ev.Status)
	}
}

// Sweep runs the orphan sweeper once, before the agent starts accepting
// scheduling messages. known is always empty: this agent keeps no local
// state file to recover in-flight instance IDs across restarts, so every
// cold start is a clean-slate sweep.
func (a *Agent) Sweep(ctx context.Context) {
	netfabric.SweepOrphans(ctx, a.ops, map[string]bool{}, a.logger)
}

// Handle is the schedgrpc.Handler this agent registers with its gRPC
// server. It validates the scheduling message synchronously and, once
// accepted, launches Up() in its own goroutine so the RPC returns
// immediately with an acknowledgement rather than blocking for the full
// instance lifecycle.
func (a *Agent) Handle(ctx context.Context, in model.InstanceScheduling) (model.ScheduleAck, error) {
	var def model.WorkloadDefinition
	if err := json.Unmarshal([]byte(in.Definition), &def); err != nil {
		return model.ScheduleAck{InstanceID: in.InstanceID, Accepted: false, Reason: err.Error()}, nil
	}

	instance, err := a.manager.CreateRuntime(ctx, in)
	if err != nil {
		return model.ScheduleAck{InstanceID: in.InstanceID, Accepted: false, Reason: err.Error()}, nil
	}

	a.mu.Lock()
	a.instances[in.InstanceID] = instance
	a.mu.Unlock()

	a.publish(model.StatusEvent{InstanceID: in.InstanceID, Status: model.StatusPending})

	a.wg.Add(1)
	go a.run(in.InstanceID, instance)

	return model.ScheduleAck{InstanceID: in.InstanceID, Accepted: true}, nil
}

func (a *Agent) run(instanceID string, instance runtime.Instance) {
	defer a.wg.Done()

	ctx := context.Background()
	if err := instance.Up(ctx); err != nil {
		a.logger.Error("instance up failed", "instance_id", instanceID, "error", err)
		a.publish(model.StatusEvent{InstanceID: instanceID, Status: model.StatusFailed, Reason: err.Error()})
		a.mu.Lock()
		delete(a.instances, instanceID)
		a.mu.Unlock()
		return
	}

	a.publish(model.StatusEvent{InstanceID: instanceID, Status: model.StatusRunning})
}

// Stop tears down every running instance, in no particular order, and
// waits for all in-flight Up() goroutines to finish first.
func (a *Agent) Stop(ctx context.Context) {
	a.wg.Wait()

	a.mu.Lock()
	instances := a.instances
	a.instances = make(map[string]runtime.Instance)
	a.mu.Unlock()

	for id, inst := range instances {
		if err := inst.Down(ctx); err != nil && rikerr.ClassOf(err) != rikerr.NotRunning {
			a.logger.Warn("instance down failed during stop", "instance_id", id, "error", err)
			continue
		}
		a.publish(model.StatusEvent{InstanceID: id, Status: model.StatusTerminated})
	}
}
