package runtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"

	"github.com/rik-org/riklet/internal/config"
	"github.com/rik-org/riklet/internal/imagecache"
	"github.com/rik-org/riklet/internal/model"
	"github.com/rik-org/riklet/internal/netfabric"
	"github.com/rik-org/riklet/internal/rikerr"
	"github.com/rik-org/riklet/internal/vmdriver"
)

// Manager is the stateless Runtime Manager (component E): given a
// scheduling message, it produces the Instance of the correct flavor. It
// never inspects which flavor it built — the agent loop only ever calls
// Up/Down through the Instance interface.
type Manager struct {
	cfg     config.AgentConfig
	fetcher *imagecache.Fetcher
	pool    *netfabric.IPPool
	ops     netfabric.HostOps
	runc    ContainerOps
	logger  *slog.Logger
}

// NewManager wires a Manager from the agent's shared resources.
func NewManager(cfg config.AgentConfig, fetcher *imagecache.Fetcher, pool *netfabric.IPPool, ops netfabric.HostOps, runc ContainerOps, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		fetcher: fetcher,
		pool:    pool,
		ops:     ops,
		runc:    runc,
		logger:  logger,
	}
}

// CreateRuntime parses scheduling.Definition, branches on Kind, and
// returns an un-started Instance. Parse failures are classed Parsing.
func (m *Manager) CreateRuntime(ctx context.Context, scheduling model.InstanceScheduling) (Instance, error) {
	var def model.WorkloadDefinition
	if err := json.Unmarshal([]byte(scheduling.Definition), &def); err != nil {
		return nil, rikerr.Wrap(rikerr.Parsing, "unmarshal_definition", err)
	}
	if err := def.Validate(); err != nil {
		return nil, rikerr.Wrap(rikerr.Parsing, "validate_definition", err)
	}

	switch def.Kind {
	case model.KindPods:
		return NewContainerInstance(scheduling.InstanceID, def.Spec.Containers, m.runc, m.logger), nil
	case model.KindFunction:
		return m.createFunctionRuntime(ctx, scheduling.InstanceID, &def)
	default:
		return nil, rikerr.New(rikerr.Parsing, "unknown_kind")
	}
}

func (m *Manager) createFunctionRuntime(ctx context.Context, instanceID string, def *model.WorkloadDefinition) (Instance, error) {
	rootfsPath, err := m.fetcher.EnsureRootfs(ctx, def)
	if err != nil {
		return nil, err
	}

	network := netfabric.New(instanceID, m.ops, m.pool, m.logger)
	network.OpTimeout = m.cfg.NetlinkTimeout

	params := vmdriver.MachineParams{
		KernelLocation:       m.cfg.KernelLocation,
		FirecrackerLocation:  m.cfg.FirecrackerLocation,
		FirecrackerWorkspace: m.cfg.FirecrackerWorkspace,
		SocketPath:           socketPath(m.cfg.FirecrackerWorkspace, instanceID),
		APITimeout:           m.cfg.FirecrackerTimeout,
	}

	return NewFunctionInstance(instanceID, rootfsPath, network, params, m.logger), nil
}

func socketPath(workspace, instanceID string) string {
	return filepath.Join(workspace, instanceID+".sock")
}
