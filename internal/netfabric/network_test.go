package netfabric

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRuntimeNetworkFullLifecycle(t *testing.T) {
	ops := newFakeOps()
	pool, err := NewIPPool("10.0.0.0/24")
	if err != nil {
		t.Fatalf("NewIPPool: %v", err)
	}

	n := New("instance-a", ops, pool, testLogger())
	if err := n.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if n.state != TapUp {
		t.Fatalf("state after Init = %v, want TapUp", n.state)
	}
	if !ops.taps[n.TapName] {
		t.Errorf("tap %q not created", n.TapName)
	}

	if err := n.Preboot(context.Background()); err != nil {
		t.Fatalf("Preboot: %v", err)
	}
	if n.state != Wired {
		t.Fatalf("state after Preboot = %v, want Wired", n.state)
	}
	if ops.addrs[n.TapName] != n.Subnet.HostCIDR() {
		t.Errorf("tap addr = %q, want %q", ops.addrs[n.TapName], n.Subnet.HostCIDR())
	}
	if !ops.up[n.TapName] {
		t.Error("tap not brought up")
	}
	if len(ops.rules) != 3 {
		t.Errorf("installed %d firewall rules, want 3", len(ops.rules))
	}

	n.Destroy(context.Background())
	if n.state != Destroyed {
		t.Fatalf("state after Destroy = %v, want Destroyed", n.state)
	}
	if ops.taps[n.TapName] {
		t.Error("tap still present after Destroy")
	}
	if len(ops.rules) != 0 {
		t.Errorf("%d firewall rules remain after Destroy, want 0", len(ops.rules))
	}

	// The subnet must be available for reuse.
	pool2Subnet, err := pool.Lease()
	if err != nil {
		t.Fatalf("Lease after Destroy: %v", err)
	}
	if pool2Subnet.HostIP.String() != n.Subnet.HostIP.String() {
		t.Errorf("released subnet not reused: got %s, want %s", pool2Subnet.HostIP, n.Subnet.HostIP)
	}
}

func TestRuntimeNetworkInitFailureReleasesSubnet(t *testing.T) {
	ops := newFakeOps()
	ops.tapAddErr = errFake
	pool, err := NewIPPool("10.0.0.0/30")
	if err != nil {
		t.Fatalf("NewIPPool: %v", err)
	}

	n := New("instance-b", ops, pool, testLogger())
	if err := n.Init(context.Background()); err == nil {
		t.Fatal("expected Init to fail")
	}
	if n.state != Uninitialized {
		t.Errorf("state after failed Init = %v, want Uninitialized", n.state)
	}

	// The single /30's only subnet must have been released back to the pool.
	if _, err := pool.Lease(); err != nil {
		t.Errorf("Lease after failed Init: %v, want subnet to have been released", err)
	}
}

func TestRuntimeNetworkPrebootPartialRuleFailureDoesNotAbort(t *testing.T) {
	ops := newFakeOps()
	ops.ruleAddErr = map[string]error{"FORWARD": errFake}
	pool, err := NewIPPool("10.0.0.0/24")
	if err != nil {
		t.Fatalf("NewIPPool: %v", err)
	}

	n := New("instance-c", ops, pool, testLogger())
	if err := n.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := n.Preboot(context.Background()); err != nil {
		t.Fatalf("Preboot should not fail on a single rule error: %v", err)
	}
	if n.state != Wired {
		t.Fatalf("state = %v, want Wired even with a partial rule failure", n.state)
	}
	// Only the POSTROUTING rule (not tagged FORWARD) should have installed.
	if len(ops.rules) != 1 {
		t.Errorf("installed %d rules, want 1 (two FORWARD rules should have failed)", len(ops.rules))
	}
}
