// Command rikctl is the control-plane CLI: one verb, submit, that converts
// a YAML workload manifest to the wire JSON WorkloadDefinition and POSTs it
// to the control plane.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var controllerURL string

	root := &cobra.Command{
		Use:   "rikctl",
		Short: "rikctl manages workloads on a rik control plane",
	}
	root.PersistentFlags().StringVar(&controllerURL, "controller", getEnvOrDefault("RIK_CONTROLLER_URL", "http://localhost:8080"), "control plane base URL")

	root.AddCommand(submitCmd(&controllerURL))
	return root
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
