package model

import (
	"regexp"
	"testing"
)

// crockfordBase32 matches valid ULID strings (26 chars, Crockford Base32 alphabet).
var crockfordBase32 = regexp.MustCompile(`^[0123456789ABCDEFGHJKMNPQRSTVWXYZ]{26}$`)

func TestNewIDFormat(t *testing.T) {
	id := NewID()
	if !crockfordBase32.MatchString(id) {
		t.Errorf("NewID() = %q, does not match Crockford Base32 ULID format", id)
	}
}

func TestNewIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("NewID() produced duplicate: %s", id)
		}
		seen[id] = true
	}
}

func validFunctionDef() WorkloadDefinition {
	return WorkloadDefinition{
		APIVersion: APIVersion,
		Kind:       KindFunction,
		Name:       "hello",
		Spec: WorkloadSpecBody{
			Function: &FunctionSpec{RootfsURL: "http://registry/rootfs.ext4"},
		},
	}
}

func TestValidateAcceptsWellFormedDefinitions(t *testing.T) {
	fn := validFunctionDef()
	if err := fn.Validate(); err != nil {
		t.Errorf("function definition: %v", err)
	}

	pods := WorkloadDefinition{
		APIVersion: APIVersion,
		Kind:       KindPods,
		Name:       "web",
		Spec: WorkloadSpecBody{
			Containers: []ContainerSpec{{Name: "main", Image: "busybox"}},
		},
	}
	if err := pods.Validate(); err != nil {
		t.Errorf("pods definition: %v", err)
	}
}

func TestValidateRejectsSlashInName(t *testing.T) {
	def := validFunctionDef()
	def.Name = "ns/hello"
	if err := def.Validate(); err == nil {
		t.Error("expected name with '/' to be rejected")
	}
}

func TestValidateRejectsBadShapes(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*WorkloadDefinition)
	}{
		{"wrong api_version", func(d *WorkloadDefinition) { d.APIVersion = "v1" }},
		{"empty name", func(d *WorkloadDefinition) { d.Name = "" }},
		{"unknown kind", func(d *WorkloadDefinition) { d.Kind = "cronjobs" }},
		{"function without spec", func(d *WorkloadDefinition) { d.Spec.Function = nil }},
		{"function without url", func(d *WorkloadDefinition) { d.Spec.Function.RootfsURL = "" }},
		{"pods without containers", func(d *WorkloadDefinition) {
			d.Kind = KindPods
			d.Spec.Containers = nil
		}},
	}
	for _, tc := range cases {
		def := validFunctionDef()
		tc.mutate(&def)
		if err := def.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestValidTransition(t *testing.T) {
	allowed := []struct{ from, to string }{
		{StatusScheduled, StatusPending},
		{StatusScheduled, StatusFailed},
		{StatusPending, StatusRunning},
		{StatusPending, StatusFailed},
		{StatusRunning, StatusTerminated},
		{StatusRunning, StatusFailed},
	}
	for _, tr := range allowed {
		if !ValidTransition(tr.from, tr.to) {
			t.Errorf("ValidTransition(%q, %q) = false, want true", tr.from, tr.to)
		}
	}

	denied := []struct{ from, to string }{
		{StatusTerminated, StatusRunning},
		{StatusFailed, StatusPending},
		{StatusRunning, StatusScheduled},
		{StatusPending, StatusTerminated},
	}
	for _, tr := range denied {
		if ValidTransition(tr.from, tr.to) {
			t.Errorf("ValidTransition(%q, %q) = true, want false", tr.from, tr.to)
		}
	}
}

func TestRootfsURL(t *testing.T) {
	fn := validFunctionDef()
	if got := fn.RootfsURL(); got != "http://registry/rootfs.ext4" {
		t.Errorf("RootfsURL() = %q", got)
	}

	pods := WorkloadDefinition{Kind: KindPods}
	if got := pods.RootfsURL(); got != "" {
		t.Errorf("RootfsURL() on pods = %q, want empty", got)
	}
}
