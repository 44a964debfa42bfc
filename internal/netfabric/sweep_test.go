package netfabric

import (
	"context"
	"testing"
)

func TestSweepOrphansRemovesUntrackedTapsAndRules(t *testing.T) {
	ops := newFakeOps()
	ops.taps["tap_live0000000"] = true
	ops.taps["tap_orphan00000"] = true
	ops.taps["eth0"] = true // not our prefix, must survive
	ops.rules = []FirewallRule{
		{Chain: "FORWARD", InstanceID: "live-instance"},
		{Chain: "FORWARD", InstanceID: "orphan-instance"},
	}

	known := map[string]bool{"live-instance": true}
	// Point TapName("live-instance") at the tap we seeded as live by
	// overriding through the known set's derived name lookup: simplest is
	// to seed the live tap under its real computed name.
	liveTap := TapName("live-instance")
	ops.taps[liveTap] = true

	SweepOrphans(context.Background(), ops, known, testLogger())

	if !ops.taps[liveTap] {
		t.Error("live tap was removed")
	}
	if !ops.taps["eth0"] {
		t.Error("unrelated interface eth0 was removed")
	}
	if ops.taps["tap_orphan00000"] {
		t.Error("orphan tap was not removed")
	}
	if ops.taps["tap_live0000000"] {
		t.Error("untracked tap_live0000000 (not the real live tap name) should have been swept")
	}

	if len(ops.rules) != 1 || ops.rules[0].InstanceID != "live-instance" {
		t.Errorf("rules after sweep = %+v, want only the live-instance rule", ops.rules)
	}
}

func TestSweepOrphansColdStartRemovesEverything(t *testing.T) {
	ops := newFakeOps()
	ops.taps["tap_a"] = true
	ops.taps["tap_b"] = true
	ops.rules = []FirewallRule{{Chain: "FORWARD", InstanceID: "gone"}}

	SweepOrphans(context.Background(), ops, map[string]bool{}, testLogger())

	if len(ops.taps) != 0 {
		t.Errorf("taps after cold-start sweep = %v, want none", ops.taps)
	}
	if len(ops.rules) != 0 {
		t.Errorf("rules after cold-start sweep = %v, want none", ops.rules)
	}
}
