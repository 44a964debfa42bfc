package netfabric

import (
	"context"
	"log/slog"
	"time"

	"github.com/rik-org/riklet/internal/rikerr"
)

// State is a RuntimeNetwork's position in its Uninitialized → Allocated →
// TapUp → Wired → Destroyed lifecycle.
type State int

const (
	Uninitialized State = iota
	Allocated
	TapUp
	Wired
	Destroyed
)

// RuntimeNetwork owns one instance's leased subnet, tap device, and
// firewall rules. Init creates the bare tap, Preboot addresses and wires
// it, Destroy tears everything down best-effort.
type RuntimeNetwork struct {
	InstanceID string
	Subnet     Subnet
	TapName    string
	MAC        string

	// OpTimeout bounds each individual host operation (tap create, address
	// assignment, rule install). Zero means no per-op deadline beyond the
	// caller's context.
	OpTimeout time.Duration

	state    State
	ops      HostOps
	pool     *IPPool
	logger   *slog.Logger
	outIface string
	rules    []FirewallRule
}

func (n *RuntimeNetwork) runOp(ctx context.Context, op func(context.Context) error) error {
	if n.OpTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.OpTimeout)
		defer cancel()
	}
	return op(ctx)
}

// New builds a RuntimeNetwork for instanceID. Init must be called before
// any other method.
func New(instanceID string, ops HostOps, pool *IPPool, logger *slog.Logger) *RuntimeNetwork {
	return &RuntimeNetwork{
		InstanceID: instanceID,
		TapName:    TapName(instanceID),
		ops:        ops,
		pool:       pool,
		logger:     logger,
		state:      Uninitialized,
	}
}

// Init is phase 1 (Allocated → TapUp): reserve a subnet and create the tap
// device as a bare, unaddressed interface.
func (n *RuntimeNetwork) Init(ctx context.Context) error {
	if n.state != Uninitialized {
		return rikerr.New(rikerr.Network, "init_wrong_state")
	}

	subnet, err := n.pool.Lease()
	if err != nil {
		return err
	}
	n.Subnet = subnet
	n.state = Allocated

	mac, err := GenerateMAC()
	if err != nil {
		n.pool.Release(n.Subnet)
		n.state = Uninitialized
		return rikerr.Wrap(rikerr.Network, "generate_mac", err)
	}
	n.MAC = mac

	if err := n.runOp(ctx, func(ctx context.Context) error {
		return n.ops.TapAdd(ctx, n.TapName)
	}); err != nil {
		n.pool.Release(n.Subnet)
		n.state = Uninitialized
		return rikerr.Wrap(rikerr.Network, "tap_add", err)
	}
	n.state = TapUp
	return nil
}

// Preboot is phase 2 (TapUp → Wired): address the tap, bring it up, and
// install the three forwarding/masquerade rules. Rule installation is
// best-effort: a failure is logged but does not abort the remaining
// rules.
func (n *RuntimeNetwork) Preboot(ctx context.Context) error {
	if n.state != TapUp {
		return rikerr.New(rikerr.Network, "preboot_wrong_state")
	}

	if err := n.runOp(ctx, func(ctx context.Context) error {
		return n.ops.AddrAdd(ctx, n.TapName, n.Subnet.HostCIDR())
	}); err != nil {
		return rikerr.Wrap(rikerr.Network, "addr_add", err)
	}
	if err := n.runOp(ctx, func(ctx context.Context) error {
		return n.ops.LinkUp(ctx, n.TapName)
	}); err != nil {
		return rikerr.Wrap(rikerr.Network, "link_up", err)
	}

	var outIface string
	if err := n.runOp(ctx, func(ctx context.Context) error {
		var err error
		outIface, err = n.ops.DefaultRouteInterface(ctx)
		return err
	}); err != nil {
		return rikerr.Wrap(rikerr.Network, "default_route", err)
	}
	n.outIface = outIface

	rules := []FirewallRule{
		{Chain: "FORWARD", Args: []string{"-i", n.TapName, "-o", outIface, "-j", "ACCEPT"}, InstanceID: n.InstanceID},
		{Chain: "FORWARD", Args: []string{"-i", outIface, "-o", n.TapName, "-m", "conntrack", "--ctstate", "ESTABLISHED,RELATED", "-j", "ACCEPT"}, InstanceID: n.InstanceID},
		{Table: "nat", Chain: "POSTROUTING", Args: []string{"-s", n.Subnet.HostCIDR(), "-o", outIface, "-j", "MASQUERADE"}, InstanceID: n.InstanceID},
	}
	for _, rule := range rules {
		if err := n.runOp(ctx, func(ctx context.Context) error {
			return n.ops.RuleAdd(ctx, rule)
		}); err != nil {
			n.logger.Warn("firewall rule install failed",
				"instance_id", n.InstanceID, "chain", rule.Chain, "error", err)
			continue
		}
		n.rules = append(n.rules, rule)
	}

	n.state = Wired
	return nil
}

// Destroy removes installed rules, deletes the tap device, and returns the
// subnet to the pool. Safe to call from any state, and idempotent: every
// substep is best-effort, logged on failure, never aborting the rest.
func (n *RuntimeNetwork) Destroy(ctx context.Context) {
	for _, rule := range n.rules {
		if err := n.runOp(ctx, func(ctx context.Context) error {
			return n.ops.RuleDel(ctx, rule)
		}); err != nil {
			n.logger.Warn("firewall rule removal failed",
				"instance_id", n.InstanceID, "chain", rule.Chain, "error", err)
		}
	}
	n.rules = nil

	if n.state >= TapUp {
		if err := n.runOp(ctx, func(ctx context.Context) error {
			return n.ops.TapDel(ctx, n.TapName)
		}); err != nil {
			n.logger.Warn("tap delete failed", "instance_id", n.InstanceID, "tap", n.TapName, "error", err)
		}
	}

	if n.state >= Allocated {
		n.pool.Release(n.Subnet)
	}

	n.state = Destroyed
}
