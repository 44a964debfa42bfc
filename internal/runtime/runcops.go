package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rik-org/riklet/internal/model"
)

// execRunc drives the `runc` CLI directly (via os/exec, in the same style
// netfabric.execOps shells out to ip/iptables) against OCI bundles
// assembled under bundleRoot. It has no image-layer resolution: spec.Image
// is expected to already be an unpacked rootfs directory path, and
// spec.Command becomes the bundle's process args verbatim.
type execRunc struct {
	bundleRoot string
}

// NewExecRunc returns the real ContainerOps implementation, writing OCI
// bundles under bundleRoot and driving them with the host's runc binary.
func NewExecRunc(bundleRoot string) ContainerOps {
	return execRunc{bundleRoot: bundleRoot}
}

func (r execRunc) bundleDir(containerID string) string {
	return filepath.Join(r.bundleRoot, containerID)
}

// minimalSpec is the small subset of an OCI runtime config.json this
// runtime needs: a root filesystem path and a process argv. No resource
// limits, no namespaces beyond the host defaults.
type minimalSpec struct {
	OCIVersion string      `json:"ociVersion"`
	Root       specRoot    `json:"root"`
	Process    specProcess `json:"process"`
}

type specRoot struct {
	Path     string `json:"path"`
	Readonly bool   `json:"readonly"`
}

type specProcess struct {
	Args []string `json:"args"`
	Cwd  string   `json:"cwd"`
}

func (r execRunc) Create(ctx context.Context, containerID string, spec model.ContainerSpec) error {
	bundle := r.bundleDir(containerID)
	if err := os.MkdirAll(bundle, 0o755); err != nil {
		return fmt.Errorf("mkdir bundle %s: %w", bundle, err)
	}

	args := spec.Command
	if len(args) == 0 {
		args = []string{"/bin/sh"}
	}
	cfg := minimalSpec{
		OCIVersion: "1.0.2",
		Root:       specRoot{Path: spec.Image, Readonly: false},
		Process:    specProcess{Args: args, Cwd: "/"},
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(bundle, "config.json"), data, 0o644); err != nil {
		return fmt.Errorf("write config.json: %w", err)
	}

	return runRunc(ctx, "create", "--bundle", bundle, containerID)
}

func (r execRunc) Start(ctx context.Context, containerID string) error {
	return runRunc(ctx, "start", containerID)
}

func (r execRunc) Kill(ctx context.Context, containerID string) error {
	if err := runRunc(ctx, "kill", containerID, "KILL"); err != nil {
		return err
	}
	return runRunc(ctx, "delete", "--force", containerID)
}

func runRunc(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "runc", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("runc %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(output)), err)
	}
	return nil
}
