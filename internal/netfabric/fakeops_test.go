package netfabric

import (
	"context"
	"sync"
)

// fakeOps is the HostOps test double: it records every call instead of
// touching the host.
type fakeOps struct {
	mu sync.Mutex

	taps         map[string]bool
	addrs        map[string]string
	up           map[string]bool
	rules        []FirewallRule
	defaultRoute string
	tapAddErr    error
	ruleAddErr   map[string]error // chain -> error, fails only that chain
	failAddrAdd  bool
}

func newFakeOps() *fakeOps {
	return &fakeOps{
		taps:         make(map[string]bool),
		addrs:        make(map[string]string),
		up:           make(map[string]bool),
		defaultRoute: "eth0",
	}
}

func (f *fakeOps) TapAdd(ctx context.Context, tapName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tapAddErr != nil {
		return f.tapAddErr
	}
	f.taps[tapName] = true
	return nil
}

func (f *fakeOps) TapDel(ctx context.Context, tapName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.taps, tapName)
	delete(f.addrs, tapName)
	delete(f.up, tapName)
	return nil
}

func (f *fakeOps) AddrAdd(ctx context.Context, tapName, cidr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAddrAdd {
		return errFake
	}
	f.addrs[tapName] = cidr
	return nil
}

func (f *fakeOps) LinkUp(ctx context.Context, tapName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.up[tapName] = true
	return nil
}

func (f *fakeOps) RuleAdd(ctx context.Context, rule FirewallRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ruleAddErr[rule.Chain]; err != nil {
		return err
	}
	f.rules = append(f.rules, rule)
	return nil
}

func (f *fakeOps) RuleDel(ctx context.Context, rule FirewallRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.rules[:0]
	for _, r := range f.rules {
		if r.InstanceID == rule.InstanceID && r.Chain == rule.Chain && r.Table == rule.Table {
			continue
		}
		kept = append(kept, r)
	}
	f.rules = kept
	return nil
}

func (f *fakeOps) DefaultRouteInterface(ctx context.Context) (string, error) {
	return f.defaultRoute, nil
}

func (f *fakeOps) ListTapsWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for name := range f.taps {
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			names = append(names, name)
		}
	}
	return names, nil
}

func (f *fakeOps) ListTaggedRules(ctx context.Context, tagPrefix string) ([]FirewallRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FirewallRule, len(f.rules))
	copy(out, f.rules)
	return out, nil
}

type fakeError string

func (e fakeError) Error() string { return string(e) }

var errFake = fakeError("fake host op failure")
