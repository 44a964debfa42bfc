// Command riklet is the worker agent: it listens for scheduling decisions
// over gRPC, realizes each as a microVM or container instance, and exposes
// Prometheus metrics on its own listener.
package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rik-org/riklet/internal/agent"
	"github.com/rik-org/riklet/internal/config"
	"github.com/rik-org/riklet/internal/imagecache"
	"github.com/rik-org/riklet/internal/metrics"
	"github.com/rik-org/riklet/internal/netfabric"
	"github.com/rik-org/riklet/internal/runtime"
	"github.com/rik-org/riklet/internal/transport/schedgrpc"
)

func main() {
	cfg := config.LoadAgentConfig()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("riklet: starting",
		"grpc_addr", cfg.GRPCListenAddr,
		"ip_pool_cidr", cfg.IPPoolCIDR,
		"cache_root", cfg.CacheRoot,
	)

	pool, err := netfabric.NewIPPool(cfg.IPPoolCIDR)
	if err != nil {
		log.Fatalf("parse ip_pool_cidr %q: %v", cfg.IPPoolCIDR, err)
	}

	ops := netfabric.NewExecOps()
	fetcher := imagecache.New(cfg.CacheRoot, cfg.FetchTimeout, logger)
	runc := runtime.NewExecRunc(cfg.FirecrackerWorkspace)
	manager := runtime.NewManager(cfg, fetcher, pool, ops, runc, logger)
	a := agent.New(manager, ops, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("riklet: sweeping orphaned host resources")
	a.Sweep(ctx)

	// Drain status events to the log until a real push-back transport to
	// the control plane exists; the agent's channel is otherwise
	// unconsumed.
	go func() {
		for ev := range a.StatusEvents() {
			logger.Info("status transition", "instance_id", ev.InstanceID, "status", ev.Status, "reason", ev.Reason)
		}
	}()

	if cfg.MetricsListenAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			logger.Info("riklet: metrics listening", "addr", cfg.MetricsListenAddr)
			if err := http.ListenAndServe(cfg.MetricsListenAddr, mux); err != nil {
				logger.Error("metrics listener stopped", "error", err)
			}
		}()
	}

	lis, err := net.Listen("tcp", cfg.GRPCListenAddr)
	if err != nil {
		log.Fatalf("listen on %s: %v", cfg.GRPCListenAddr, err)
	}

	srv := schedgrpc.NewServer(a.Handle)
	go func() {
		<-ctx.Done()
		logger.Info("riklet: shutting down")
		srv.GracefulStop()
		a.Stop(context.Background())
	}()

	logger.Info("riklet: grpc listening", "addr", cfg.GRPCListenAddr)
	if err := srv.Serve(lis); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
