// Command rik-controller is the control plane: a chi HTTP façade over a
// SQLite-backed workload store, a round-robin scheduler, and an SSE status
// broker.
package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/rik-org/riklet/internal/config"
	"github.com/rik-org/riklet/internal/controlplane"
)

// envWorkers lists worker gRPC addresses the scheduler dials, comma
// separated. Required for the scheduler to have anything to pick from.
const envWorkers = "RIK_CONTROLLER_WORKERS"

func main() {
	cfg := config.LoadControllerConfig()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("rik-controller: starting", "listen_addr", cfg.ListenAddr, "db_path", cfg.DBPath)

	store, err := controlplane.NewStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	var workers []string
	if v := os.Getenv(envWorkers); v != "" {
		for _, w := range strings.Split(v, ",") {
			if w = strings.TrimSpace(w); w != "" {
				workers = append(workers, w)
			}
		}
	}
	scheduler := controlplane.NewScheduler(workers)
	broker := controlplane.NewStatusBroker()

	srv := controlplane.NewServer(cfg.ListenAddr, store, scheduler, broker, logger)
	if err := srv.Run(context.Background()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
