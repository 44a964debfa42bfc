// Package runtime implements the Runtime Instance and Runtime Manager: the
// component that owns one live workload's fetched image, network
// resources, and machine handle, and the stateless factory that builds one
// from a scheduling message.
package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/rik-org/riklet/internal/metrics"
	"github.com/rik-org/riklet/internal/model"
	"github.com/rik-org/riklet/internal/netfabric"
	"github.com/rik-org/riklet/internal/rikerr"
	"github.com/rik-org/riklet/internal/vmdriver"
)

// Instance is the narrow capability interface the agent loop and the
// Manager depend on; neither needs to know whether it holds a
// FunctionInstance or a ContainerInstance.
type Instance interface {
	Up(ctx context.Context) error
	Down(ctx context.Context) error
}

// FunctionInstance is component D for the "function" kind: a microVM whose
// image (A), network (B), and machine (C) are owned here.
type FunctionInstance struct {
	instanceID string
	rootfsPath string
	network    *netfabric.RuntimeNetwork
	driver     *vmdriver.Driver
	logger     *slog.Logger

	params vmdriver.MachineParams
}

// NewFunctionInstance builds a FunctionInstance with its resources already
// resolved by the Manager (image fetched, network object constructed, no
// host mutation yet) but not yet brought up.
func NewFunctionInstance(instanceID, rootfsPath string, network *netfabric.RuntimeNetwork, params vmdriver.MachineParams, logger *slog.Logger) *FunctionInstance {
	return &FunctionInstance{
		instanceID: instanceID,
		rootfsPath: rootfsPath,
		network:    network,
		logger:     logger,
		params:     params,
	}
}

// Up brings the instance fully up: network init, config build, machine
// create, network preboot, machine start. Any error at step k triggers
// compensating teardown of steps 1..k-1 in reverse before the error is
// returned, so partial success is never observable externally.
func (f *FunctionInstance) Up(ctx context.Context) error {
	setupStart := time.Now()
	// Teardown runs detached from ctx's cancellation so that a cancelled Up
	// still removes the host resources it created.
	teardownCtx := context.WithoutCancel(ctx)

	// Step 1: network.init() — TapUp.
	if err := f.network.Init(ctx); err != nil {
		return err
	}

	// Step 2: build the microVM config from current network state.
	params := f.params
	params.InstanceID = f.instanceID
	params.RootfsPath = f.rootfsPath
	params.TapName = f.network.TapName
	params.MAC = f.network.MAC
	params.GuestIP = f.network.Subnet.GuestIP.String()
	params.HostIP = f.network.Subnet.HostIP.String()
	params.Netmask = f.network.Subnet.Netmask()
	driver := vmdriver.NewDriver(params)

	bootStart := time.Now()

	// Step 3: machine.create(config).
	if err := driver.Create(ctx); err != nil {
		f.network.Destroy(teardownCtx)
		return err
	}

	// Step 4: network.preboot() — Wired.
	if err := f.network.Preboot(ctx); err != nil {
		driver.Abort(teardownCtx)
		f.network.Destroy(teardownCtx)
		return err
	}
	metrics.NetworkSetupSeconds.Observe(time.Since(setupStart).Seconds())

	// Step 5: machine.start().
	if err := driver.Start(ctx); err != nil {
		driver.Abort(teardownCtx)
		f.network.Destroy(teardownCtx)
		return err
	}
	metrics.VMBootSeconds.Observe(time.Since(bootStart).Seconds())

	// Step 6: store the machine handle.
	f.driver = driver
	metrics.ActiveInstances.Inc()
	metrics.InstancesTotal.WithLabelValues(model.KindFunction, model.StatusRunning).Inc()
	return nil
}

// Down reverses Up: kill the machine, then destroy the network. A failure
// killing the machine is logged but does not prevent network teardown.
func (f *FunctionInstance) Down(ctx context.Context) error {
	if f.driver == nil {
		return rikerr.New(rikerr.NotRunning, "down_not_running")
	}

	if err := f.driver.Kill(ctx); err != nil {
		f.logger.Warn("machine kill failed, continuing teardown",
			"instance_id", f.instanceID, "error", err)
	}

	teardownStart := time.Now()
	f.network.Destroy(ctx)
	metrics.NetworkTeardownSeconds.Observe(time.Since(teardownStart).Seconds())

	metrics.ActiveInstances.Dec()
	metrics.InstancesTotal.WithLabelValues(model.KindFunction, model.StatusTerminated).Inc()
	return nil
}

// ContainerInstance is component F, the thin container-flavored Runtime
// Instance for the "pods" kind. It is intentionally shallow: no
// image-layer resolution, no networking beyond the host's default netns —
// present so the Manager's dispatch is real, not a stub that panics.
type ContainerInstance struct {
	instanceID string
	containers []model.ContainerSpec
	runc       ContainerOps
	logger     *slog.Logger

	started bool
}

// NewContainerInstance builds a ContainerInstance for the given container
// specs, driven through runc via the ContainerOps seam.
func NewContainerInstance(instanceID string, containers []model.ContainerSpec, runc ContainerOps, logger *slog.Logger) *ContainerInstance {
	return &ContainerInstance{
		instanceID: instanceID,
		containers: containers,
		runc:       runc,
		logger:     logger,
	}
}

// Up creates and starts every container in the pod, in order. A failure
// partway tears down any containers already started, reversed.
func (c *ContainerInstance) Up(ctx context.Context) error {
	started := make([]string, 0, len(c.containers))
	for _, spec := range c.containers {
		containerID := c.instanceID + "-" + spec.Name
		if err := c.runc.Create(ctx, containerID, spec); err != nil {
			c.unwind(ctx, started)
			return rikerr.Wrap(rikerr.Other, "container_create", err)
		}
		if err := c.runc.Start(ctx, containerID); err != nil {
			c.unwind(ctx, started)
			return rikerr.Wrap(rikerr.Other, "container_start", err)
		}
		started = append(started, containerID)
	}
	c.started = true
	metrics.ActiveInstances.Inc()
	metrics.InstancesTotal.WithLabelValues(model.KindPods, model.StatusRunning).Inc()
	return nil
}

func (c *ContainerInstance) unwind(ctx context.Context, started []string) {
	for i := len(started) - 1; i >= 0; i-- {
		if err := c.runc.Kill(ctx, started[i]); err != nil {
			c.logger.Warn("container teardown failed", "container_id", started[i], "error", err)
		}
	}
}

// Down stops every container in the pod, in reverse start order.
func (c *ContainerInstance) Down(ctx context.Context) error {
	if !c.started {
		return rikerr.New(rikerr.NotRunning, "down_not_running")
	}
	ids := make([]string, 0, len(c.containers))
	for _, spec := range c.containers {
		ids = append(ids, c.instanceID+"-"+spec.Name)
	}
	c.unwind(ctx, ids)
	c.started = false
	metrics.ActiveInstances.Dec()
	metrics.InstancesTotal.WithLabelValues(model.KindPods, model.StatusTerminated).Inc()
	return nil
}

// ContainerOps is the runc seam ContainerInstance drives, analogous to
// netfabric's HostOps: real implementations shell out to runc, test
// doubles record calls.
type ContainerOps interface {
	Create(ctx context.Context, containerID string, spec model.ContainerSpec) error
	Start(ctx context.Context, containerID string) error
	Kill(ctx context.Context, containerID string) error
}
