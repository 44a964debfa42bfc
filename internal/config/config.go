// Package config loads agent and control-plane configuration from
// environment variables and builds the structured loggers the rest of the
// repository shares.
package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envLogLevel = "RIK_LOG_LEVEL"
)

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func logLevelFromEnv() slog.Level {
	if v := os.Getenv(envLogLevel); v != "" {
		return parseLogLevel(v)
	}
	return slog.LevelInfo
}

// NewLogger creates a structured JSON logger writing to w at the given level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// Agent-level environment variable names.
const (
	envFirecrackerLocation  = "RIK_FIRECRACKER_LOCATION"
	envKernelLocation       = "RIK_KERNEL_LOCATION"
	envFirecrackerWorkspace = "RIK_FIRECRACKER_WORKSPACE"
	envIPPoolCIDR           = "RIK_IP_POOL_CIDR"
	envCacheRoot            = "RIK_CACHE_ROOT"
	envFetchTimeout         = "RIK_FETCH_TIMEOUT_SECONDS"
	envFirecrackerTimeout   = "RIK_FIRECRACKER_TIMEOUT_SECONDS"
	envNetlinkTimeout       = "RIK_NETLINK_TIMEOUT_SECONDS"
	envGRPCListenAddr       = "RIK_GRPC_LISTEN_ADDR"
	envMetricsListenAddr    = "RIK_AGENT_METRICS_ADDR"

	defaultFirecrackerWorkspace = "/srv/firecracker"
	defaultIPPoolCIDR           = "10.0.0.0/16"
	defaultCacheRoot            = "/tmp"
	defaultFetchTimeout         = 120 * time.Second
	defaultFirecrackerTimeout   = 30 * time.Second
	defaultNetlinkTimeout       = 5 * time.Second
	defaultGRPCListenAddr       = ":9090"
)

// AgentConfig holds the worker agent's configuration knobs.
type AgentConfig struct {
	FirecrackerLocation  string
	KernelLocation       string
	FirecrackerWorkspace string
	IPPoolCIDR           string
	CacheRoot            string

	FetchTimeout       time.Duration
	FirecrackerTimeout time.Duration
	NetlinkTimeout     time.Duration

	GRPCListenAddr    string
	MetricsListenAddr string

	LogLevel slog.Level
}

// LoadAgentConfig reads the worker agent configuration from environment
// variables, applying sensible defaults for anything unset.
func LoadAgentConfig() AgentConfig {
	cfg := AgentConfig{
		FirecrackerWorkspace: defaultFirecrackerWorkspace,
		IPPoolCIDR:           defaultIPPoolCIDR,
		CacheRoot:            defaultCacheRoot,
		FetchTimeout:         defaultFetchTimeout,
		FirecrackerTimeout:   defaultFirecrackerTimeout,
		NetlinkTimeout:       defaultNetlinkTimeout,
		GRPCListenAddr:       defaultGRPCListenAddr,
		LogLevel:             logLevelFromEnv(),
	}

	if v := os.Getenv(envFirecrackerLocation); v != "" {
		cfg.FirecrackerLocation = v
	}
	if v := os.Getenv(envKernelLocation); v != "" {
		cfg.KernelLocation = v
	}
	if v := os.Getenv(envFirecrackerWorkspace); v != "" {
		cfg.FirecrackerWorkspace = v
	}
	if v := os.Getenv(envIPPoolCIDR); v != "" {
		cfg.IPPoolCIDR = v
	}
	if v := os.Getenv(envCacheRoot); v != "" {
		cfg.CacheRoot = v
	}
	if v := os.Getenv(envMetricsListenAddr); v != "" {
		cfg.MetricsListenAddr = v
	}
	if v := os.Getenv(envGRPCListenAddr); v != "" {
		cfg.GRPCListenAddr = v
	}
	if d, ok := secondsFromEnv(envFetchTimeout); ok {
		cfg.FetchTimeout = d
	}
	if d, ok := secondsFromEnv(envFirecrackerTimeout); ok {
		cfg.FirecrackerTimeout = d
	}
	if d, ok := secondsFromEnv(envNetlinkTimeout); ok {
		cfg.NetlinkTimeout = d
	}

	return cfg
}

func secondsFromEnv(name string) (time.Duration, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

// Control-plane environment variable names.
const (
	envListenAddr = "RIK_CONTROLLER_LISTEN_ADDR"
	envDBPath     = "RIK_CONTROLLER_DB_PATH"

	defaultListenAddr = ":8080"
	defaultDBPath     = "rik-controller.db"
)

// ControllerConfig holds the control plane's configuration knobs.
type ControllerConfig struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level
}

// LoadControllerConfig reads control-plane configuration from environment
// variables with sensible defaults.
func LoadControllerConfig() ControllerConfig {
	cfg := ControllerConfig{
		ListenAddr: defaultListenAddr,
		DBPath:     defaultDBPath,
		LogLevel:   logLevelFromEnv(),
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}

	return cfg
}
