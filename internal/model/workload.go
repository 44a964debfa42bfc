package model

import (
	"fmt"
	"strings"
)

// Workload kinds.
const (
	KindPods     = "pods"
	KindFunction = "function"
)

// APIVersion is the only WorkloadDefinition schema version this agent
// understands.
const APIVersion = "v0"

// ContainerSpec describes a single container within a "pods" workload.
type ContainerSpec struct {
	Name    string   `json:"name"`
	Image   string   `json:"image"`
	Command []string `json:"command,omitempty"`
}

// FunctionSpec describes the rootfs a "function" workload boots from.
type FunctionSpec struct {
	RootfsURL string `json:"rootfs_url"`
}

// WorkloadSpecBody holds the kind-specific payload of a WorkloadDefinition.
// Exactly one of Containers or Function is populated, per Kind.
type WorkloadSpecBody struct {
	Containers []ContainerSpec `json:"containers,omitempty"`
	Function   *FunctionSpec   `json:"function,omitempty"`
}

// WorkloadDefinition is the declarative specification of a workload, as
// submitted to the control plane and later embedded, serialized, inside an
// InstanceScheduling message.
type WorkloadDefinition struct {
	APIVersion string           `json:"api_version"`
	Kind       string           `json:"kind"`
	Name       string           `json:"name"`
	Spec       WorkloadSpecBody `json:"spec"`
}

// RootfsURL returns the function spec's rootfs URL, or "" if this
// definition is not a function workload or carries no function spec.
func (d *WorkloadDefinition) RootfsURL() string {
	if d.Spec.Function == nil {
		return ""
	}
	return d.Spec.Function.RootfsURL
}

// Validate checks the structural invariants every WorkloadDefinition must
// satisfy before it is persisted or scheduled: a known API version, a known
// kind, a non-empty name without '/', and a spec body matching the declared
// kind. The name is not otherwise checked against DNS-label rules.
func (d *WorkloadDefinition) Validate() error {
	if d.APIVersion != APIVersion {
		return fmt.Errorf("unsupported api_version %q", d.APIVersion)
	}
	if d.Name == "" {
		return fmt.Errorf("name must not be empty")
	}
	if strings.Contains(d.Name, "/") {
		return fmt.Errorf("name %q must not contain '/'", d.Name)
	}
	switch d.Kind {
	case KindPods:
		if len(d.Spec.Containers) == 0 {
			return fmt.Errorf("pods workload %q has no containers", d.Name)
		}
	case KindFunction:
		if d.Spec.Function == nil || d.Spec.Function.RootfsURL == "" {
			return fmt.Errorf("function workload %q is missing spec.function.rootfs_url", d.Name)
		}
	default:
		return fmt.Errorf("unknown kind %q", d.Kind)
	}
	return nil
}
