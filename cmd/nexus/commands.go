package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/nexus/internal/config"
	"github.com/loykin/nexus/internal/env"
	"github.com/loykin/nexus/internal/history"
	"github.com/loykin/nexus/internal/history/factory"
	"github.com/loykin/nexus/internal/logger"
	"github.com/loykin/nexus/internal/metrics"
	"github.com/loykin/nexus/internal/procinfo"
	"github.com/loykin/nexus/internal/registry"
	"github.com/loykin/nexus/internal/server"
	"github.com/loykin/nexus/internal/supervisor"
	"github.com/loykin/nexus/pkg/client"
	"github.com/loykin/nexus/pkg/template"
)

type command struct {
	out    io.Writer
	errOut io.Writer
	now    func() time.Time
}

func newCommand(out, errOut io.Writer) *command {
	return &command{out: out, errOut: errOut, now: time.Now}
}

// session holds what every action needs: the config, a logger and the
// registry. close releases them.
type session struct {
	cfg    *config.Config
	log    *slog.Logger
	reg    registry.Registry
	ui     *ui
	closer io.Closer
}

func (s *session) close() {
	_ = s.reg.Close()
	_ = s.closer.Close()
}

func (c *command) open(f RootFlags) (*session, error) {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return nil, err
	}
	lc := cfg.Log
	lc.NoColor = lc.NoColor || f.NoColor
	log, closer := logger.New(lc, c.errOut)

	reg, err := registry.Open(cfg.Registry)
	if err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("open registry: %w", err)
	}
	return &session{cfg: cfg, log: log, reg: reg, ui: newUI(c.out, f.NoColor), closer: closer}, nil
}

// Start launches the fleet and supervises it until ctx is cancelled.
func (c *command) Start(ctx context.Context, f RootFlags) error {
	s, err := c.open(f)
	if err != nil {
		return err
	}
	defer s.close()

	defs, warnings, err := s.cfg.Definitions()
	if err != nil {
		return fmt.Errorf("invalid worker configuration: %w", err)
	}
	for _, w := range warnings {
		s.log.Warn("incomplete worker configuration", "detail", w)
	}
	selected, err := supervisor.Select(defs, f.Worker)
	if err != nil {
		return c.explain(s, err)
	}

	running, err := supervisor.IsRunning(ctx, s.reg)
	if err != nil {
		return err
	}
	if running {
		if !f.streaming() {
			return c.explain(s, supervisor.ErrAlreadyRunning)
		}
		s.ui.Warning("Stopping existing workers...")
		if _, err := supervisor.StopFleet(ctx, s.reg, s.cfg.PIDFile, s.cfg.StopGrace, s.log); err != nil {
			return err
		}
	}

	globalEnv, err := s.cfg.GlobalEnv()
	if err != nil {
		return err
	}
	e := env.FromOS()
	e.SetList(globalEnv)

	sinks, err := factory.NewSinks(s.cfg.History)
	if err != nil {
		return err
	}
	rec := history.NewRecorder(s.log, uuid.NewString(), sinks...)

	if s.cfg.Metrics.Enabled || s.cfg.HTTP.Listen != "" {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			s.log.Warn("metrics disabled", "error", err)
		}
	}

	opts := s.cfg.Options()
	opts.Stream = f.Log
	opts.Watch = f.Watch
	opts.Detailed = f.Detailed
	opts.NoColor = f.NoColor
	opts.Logger = s.log
	opts.Output = c.out
	opts.Registry = s.reg
	opts.History = rec
	opts.Env = e

	sup := supervisor.New(opts)
	n, err := sup.Start(ctx, selected)
	if err != nil {
		_ = rec.Close()
		return c.explain(s, err)
	}
	s.ui.Success(fmt.Sprintf("Started %d worker process(es)", n))
	if f.Watch {
		paths, exts := s.cfg.WatchDefaults()
		s.ui.Info("Watching " + strings.Join(paths, ", ") + " for ." + strings.Join(exts, ", .") + " changes")
	}
	if !opts.Streaming() {
		s.ui.Subtle("Press Ctrl+C to stop. Use `nexus status` to inspect workers.")
	}

	if s.cfg.HTTP.Listen != "" {
		srv, err := server.NewServer(s.cfg.HTTP, sup, s.log)
		if err != nil {
			s.log.Error("status server unavailable", "listen", s.cfg.HTTP.Listen, "error", err)
		} else {
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(sctx)
			}()
		}
	}

	err = sup.Run(ctx)
	s.ui.Info("All workers stopped")
	return err
}

// Stop stops a fleet recorded in the registry.
func (c *command) Stop(ctx context.Context, f RootFlags) error {
	s, err := c.open(f)
	if err != nil {
		return err
	}
	defer s.close()
	return c.stop(ctx, s)
}

func (c *command) stop(ctx context.Context, s *session) error {
	n, err := supervisor.StopFleet(ctx, s.reg, s.cfg.PIDFile, s.cfg.StopGrace, s.log)
	if err != nil {
		return err
	}
	if n == 0 {
		s.ui.Warning("No worker processes found to stop.")
		return nil
	}
	s.ui.Success(fmt.Sprintf("Stopped %d worker process(es)", n))
	return nil
}

// Restart stops whatever is running, waits briefly and starts the fleet.
func (c *command) Restart(ctx context.Context, f RootFlags) error {
	s, err := c.open(f)
	if err != nil {
		return err
	}
	err = c.stop(ctx, s)
	s.close()
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return nil
	case <-time.After(restartPause):
	}
	return c.Start(ctx, f)
}

// Status prints the registered instances.
func (c *command) Status(ctx context.Context, f RootFlags) error {
	s, err := c.open(f)
	if err != nil {
		return err
	}
	defer s.close()

	var rows []supervisor.InstanceInfo
	if f.APIURL != "" {
		rows, err = c.remoteStatus(ctx, s, f)
	} else {
		rows, err = supervisor.FleetStatus(ctx, s.reg, c.now())
	}
	if err != nil {
		return err
	}
	if len(rows) == 0 && f.Output == "table" {
		s.ui.Warning("No queue workers are currently running.")
		return nil
	}
	return printStatus(c.out, rows, f.Output, f.NoColor)
}

// remoteStatus asks a status server for the fleet. Memory is only known to
// the host running the workers, so it reads as N/A.
func (c *command) remoteStatus(ctx context.Context, s *session, f RootFlags) ([]supervisor.InstanceInfo, error) {
	token := f.APIToken
	if token == "" {
		token = s.cfg.HTTP.Auth.Token
	}
	cl, err := client.New(client.Config{
		BaseURL:  f.APIURL,
		Timeout:  f.APITimeout,
		Token:    token,
		Logger:   s.log,
		Insecure: f.Insecure,
	})
	if err != nil {
		return nil, err
	}
	fleet, err := cl.Status(ctx, client.StatusQuery{Worker: f.Worker})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", f.APIURL, err)
	}
	now := c.now()
	rows := make([]supervisor.InstanceInfo, 0, len(fleet.Instances))
	for _, in := range fleet.Instances {
		row := supervisor.InstanceInfo{
			Name:    in.Name,
			PID:     in.PID,
			Running: in.Running,
			Memory:  procinfo.NotAvailable,
			Uptime:  procinfo.NotAvailable,
		}
		if in.Running && !in.StartedAt.IsZero() {
			row.Uptime = procinfo.FormatUptime(now.Sub(in.StartedAt))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Init writes a starter config file. The target is --config, or nexus.<format>
// in the working directory.
func (c *command) Init(f RootFlags) error {
	u := newUI(c.out, f.NoColor)
	gen := template.NewGenerator()
	t, err := gen.Generate(template.TemplateType(f.Template), supervisor.DefaultPrefix)
	if err != nil {
		return err
	}
	format := template.Format(f.Format)
	b, err := gen.Render(t, format)
	if err != nil {
		return err
	}

	path := f.ConfigPath
	if path == "" {
		path = strings.TrimSuffix(config.DefaultFile, filepath.Ext(config.DefaultFile)) + "." + string(format)
	}
	if _, err := os.Stat(path); err == nil && !f.Force {
		u.Warning(path + " already exists. Use --force to overwrite it.")
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return err
	}
	u.Success("Wrote " + path)
	names := make([]string, 0, len(t.Workers))
	for name := range t.Workers {
		names = append(names, name)
	}
	sort.Strings(names)
	u.Subtle("Workers: " + strings.Join(names, ", ") + ". Run `nexus` to start them.")
	return nil
}

// explain prints the user-facing hint for a fatal error and returns it.
func (c *command) explain(s *session, err error) error {
	var nf *supervisor.WorkerNotFoundError
	var conflict *supervisor.InstanceNameConflictError
	switch {
	case errors.Is(err, supervisor.ErrConfigurationMissing):
		s.ui.Error("Queue worker configuration not found!")
		if s.cfg.Path == "" {
			s.ui.Subtle("Create " + config.DefaultFile + " or point --config / $" + config.EnvConfigPath + " at a config file.")
		} else {
			s.ui.Subtle("Add a [workers.<name>] table to " + s.cfg.Path + ".")
		}
	case errors.As(err, &nf):
		s.ui.Error("Worker configuration not found for: " + nf.Name)
		s.ui.Subtle("Available workers: " + strings.Join(nf.Available, ", "))
	case errors.As(err, &conflict):
		s.ui.Error("Workers " + conflict.Workers[0] + " and " + conflict.Workers[1] + " both define instance " + conflict.Instance)
		s.ui.Subtle("Rename one of the [workers.<name>] tables.")
	case errors.Is(err, supervisor.ErrAlreadyRunning):
		s.ui.Warning("Queue workers are already running. Use --restart to restart them.")
	case errors.Is(err, supervisor.ErrNoInstancesStarted):
		s.ui.Error("No workers started! Check your configuration.")
	}
	return err
}
