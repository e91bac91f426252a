// Package nexus exposes the queue worker supervisor for embedding in other
// Go programs. The nexus command is a thin CLI over the same API.
package nexus

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/nexus/internal/config"
	"github.com/loykin/nexus/internal/env"
	"github.com/loykin/nexus/internal/history"
	"github.com/loykin/nexus/internal/history/factory"
	"github.com/loykin/nexus/internal/metrics"
	"github.com/loykin/nexus/internal/registry"
	iapi "github.com/loykin/nexus/internal/server"
	"github.com/loykin/nexus/internal/supervisor"
	"github.com/loykin/nexus/internal/worker"
)

// Re-export core types for external consumers.

type Definition = worker.Definition

type Options = supervisor.Options

type Snapshot = supervisor.Snapshot

type InstanceStatus = supervisor.InstanceStatus

type InstanceInfo = supervisor.InstanceInfo

type Config = cfg.Config

type Registry = registry.Registry

type HistorySink = history.Sink

// HTTPConfig configures NewHTTPServer (listen address, base path, token, TLS).
type HTTPConfig = iapi.Config

var (
	ErrConfigurationMissing = supervisor.ErrConfigurationMissing
	ErrAlreadyRunning       = supervisor.ErrAlreadyRunning
	ErrNoInstancesStarted   = supervisor.ErrNoInstancesStarted
)

// Supervisor is a thin facade over internal/supervisor.
type Supervisor struct{ inner *supervisor.Supervisor }

func New(opts Options) *Supervisor { return &Supervisor{inner: supervisor.New(opts)} }

// Start launches defs, or only the definition named only when it is set.
func (s *Supervisor) Start(ctx context.Context, defs []Definition, only string) (int, error) {
	selected, err := supervisor.Select(defs, only)
	if err != nil {
		return 0, err
	}
	return s.inner.Start(ctx, selected)
}

func (s *Supervisor) Run(ctx context.Context) error { return s.inner.Run(ctx) }
func (s *Supervisor) Shutdown()                     { s.inner.Shutdown() }
func (s *Supervisor) Snapshot() Snapshot            { return s.inner.Snapshot() }

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// OpenRegistry opens a JSON file registry, or SQLite for "sqlite://" DSNs.
func OpenRegistry(dsn string) (Registry, error) { return registry.Open(dsn) }

// NewEnv returns the process environment as the base layer for workers.
func NewEnv() *env.Env { return env.FromOS() }

// NewHistory creates a recorder delivering lifecycle events to the sinks
// named by dsns (sqlite://, postgres://, clickhouse://).
func NewHistory(runID string, dsns []string) (*history.Recorder, error) {
	sinks, err := factory.NewSinks(dsns)
	if err != nil {
		return nil, err
	}
	return history.NewRecorder(nil, runID, sinks...), nil
}

// Status, IsRunning and Stop act on a fleet through its registry only.

func Status(ctx context.Context, reg Registry) ([]InstanceInfo, error) {
	return supervisor.FleetStatus(ctx, reg, time.Now())
}

func IsRunning(ctx context.Context, reg Registry) (bool, error) {
	return supervisor.IsRunning(ctx, reg)
}

func Stop(ctx context.Context, reg Registry, pidFile string, grace time.Duration) (int, error) {
	return supervisor.StopFleet(ctx, reg, pidFile, grace, nil)
}

// NewHTTPServer serves /status, /healthz and /metrics for s.
func NewHTTPServer(c HTTPConfig, s *Supervisor) (*iapi.Server, error) {
	return iapi.NewServer(c, s.inner, nil)
}

// Handler returns the status router for mounting in an existing mux.
func Handler(basePath string, s *Supervisor) http.Handler {
	return iapi.NewRouter(s.inner, basePath, nil).Handler()
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
