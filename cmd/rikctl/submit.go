package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rik-org/riklet/internal/model"
)

// manifest mirrors model.WorkloadDefinition's shape as YAML, the format
// operators actually hand-write; rikctl's only job is to convert it to the
// JSON the control plane's wire format expects.
type manifest struct {
	APIVersion string `yaml:"api_version"`
	Kind       string `yaml:"kind"`
	Name       string `yaml:"name"`
	Spec       struct {
		Containers []manifestContainer `yaml:"containers"`
		Function   *manifestFunction   `yaml:"function"`
	} `yaml:"spec"`
}

type manifestContainer struct {
	Name    string   `yaml:"name"`
	Image   string   `yaml:"image"`
	Command []string `yaml:"command"`
}

type manifestFunction struct {
	RootfsURL string `yaml:"rootfs_url"`
}

func (m manifest) toDefinition() model.WorkloadDefinition {
	def := model.WorkloadDefinition{
		APIVersion: m.APIVersion,
		Kind:       m.Kind,
		Name:       m.Name,
	}
	for _, c := range m.Spec.Containers {
		def.Spec.Containers = append(def.Spec.Containers, model.ContainerSpec{
			Name:    c.Name,
			Image:   c.Image,
			Command: c.Command,
		})
	}
	if m.Spec.Function != nil {
		def.Spec.Function = &model.FunctionSpec{RootfsURL: m.Spec.Function.RootfsURL}
	}
	return def
}

func submitCmd(controllerURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <file.yaml>",
		Short: "Submit a workload manifest to the control plane",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(*controllerURL, args[0])
		},
	}
}

func runSubmit(controllerURL, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}

	def := m.toDefinition()
	if err := def.Validate(); err != nil {
		return fmt.Errorf("invalid workload definition: %w", err)
	}

	body, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("encode definition: %w", err)
	}

	resp, err := http.Post(controllerURL+"/v1/workloads/", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("submit workload: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("control plane returned %d: %s", resp.StatusCode, respBody)
	}

	fmt.Printf("workload %q submitted\n", def.Name)
	return nil
}
