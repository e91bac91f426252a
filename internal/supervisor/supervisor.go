// Package supervisor runs a fleet of queue worker processes: it launches
// every instance, relaunches the ones that die, restarts the fleet on
// external request and streams worker output.
//
// All fleet state is owned by the goroutine that calls Start and Run.
// Other goroutines only see the immutable Snapshot published after every
// loop iteration.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/nexus/internal/history"
	"github.com/loykin/nexus/internal/logstream"
	"github.com/loykin/nexus/internal/metrics"
	"github.com/loykin/nexus/internal/procinfo"
	"github.com/loykin/nexus/internal/registry"
	"github.com/loykin/nexus/internal/watch"
	"github.com/loykin/nexus/internal/worker"
)

type Supervisor struct {
	opts Options
	log  *slog.Logger

	instances map[string]*Instance
	order     []string

	fleetStartedAt  time.Time
	lastSignalCheck time.Time
	lastWatchScan   time.Time
	lastMemorySweep time.Time

	signal   watch.SignalFile
	scanner  *watch.Scanner
	baseline watch.Snapshot
	notifier *watch.Notifier

	formatter *logstream.Formatter

	snapshot atomic.Pointer[Snapshot]
	shutOnce sync.Once
}

// New prepares a supervisor. Nothing is started until Start.
func New(opts Options) *Supervisor {
	opts = opts.withDefaults()
	s := &Supervisor{
		opts:      opts,
		log:       opts.Logger,
		instances: make(map[string]*Instance),
		signal:    watch.SignalFile{Path: opts.SignalFile},
	}
	opts.Env.Set("APP_ENV", opts.Environment)
	if opts.Streaming() {
		s.formatter = logstream.NewFormatter(logstream.NewRenderer(opts.Output, opts.NoColor), opts.Detailed)
	}
	if opts.Watch {
		s.scanner = watch.NewScanner(opts.BasePath, opts.WatchPaths, opts.WatchExtensions)
	}
	s.publish(time.Now())
	return s
}

// Options returns the effective options after defaults.
func (s *Supervisor) Options() Options { return s.opts }

// Start launches every instance of defs. Instances that fail their start
// probe are logged and skipped; only a fleet with no instance at all is an
// error. It returns the number of started instances.
func (s *Supervisor) Start(ctx context.Context, defs []worker.Definition) (int, error) {
	s.fleetStartedAt = time.Now()
	started := 0
	for _, def := range defs {
		for _, name := range def.InstanceNames() {
			if _, dup := s.instances[name]; dup {
				s.log.Error("duplicate instance name, skipping", "instance", name, "worker", def.Name)
				continue
			}
			inst, err := s.launch(def, name, logstream.ColorFor(name))
			if err != nil {
				continue
			}
			s.instances[name] = inst
			s.order = append(s.order, name)
			started++
			s.log.Info("started worker", "instance", name, "pid", inst.PID())
		}
	}
	if started == 0 {
		return 0, ErrNoInstancesStarted
	}

	s.saveRegistry(ctx)
	if s.opts.PIDFile != "" {
		if err := registry.WritePIDFile(s.opts.PIDFile, os.Getpid()); err != nil {
			s.log.Warn("failed to write supervisor pid file", "path", s.opts.PIDFile, "error", err)
		}
	}
	if s.scanner != nil {
		s.baseline = s.scanner.Scan()
		s.lastWatchScan = time.Now()
		if s.opts.WatchNotify {
			n, err := watch.NewNotifier(s.scanner.Dirs(), s.log)
			if err != nil {
				s.log.Warn("file notifications unavailable, polling only", "error", err)
			} else {
				s.notifier = n
			}
		}
	}
	s.lastSignalCheck = time.Now()
	s.publish(time.Now())
	return started, nil
}

// Run drives the loop until ctx is cancelled, then shuts the fleet down.
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Shutdown()
			return nil
		case <-ticker.C:
			s.tick(ctx, time.Now())
		}
	}
}

// tick is one loop iteration: liveness, then the signal file, then file
// changes, then log draining.
func (s *Supervisor) tick(ctx context.Context, now time.Time) {
	s.checkLiveness(ctx, now)

	if s.opts.AutoRestart && now.Sub(s.lastSignalCheck) >= s.opts.SignalInterval {
		s.lastSignalCheck = now
		if s.signal.ModifiedAfter(s.fleetStartedAt) {
			s.log.Info("restart signal detected, restarting workers", "file", s.signal.Path)
			s.restartAll(ctx, TriggerSignal)
		}
	}

	if s.scanner != nil && (s.notifier.Dirty() || now.Sub(s.lastWatchScan) >= s.opts.WatchInterval) {
		s.lastWatchScan = now
		s.checkFiles(ctx)
	}

	if s.formatter != nil {
		s.drain(ctx, now)
	}
	s.publish(now)
}

func (s *Supervisor) checkLiveness(ctx context.Context, now time.Time) {
	for _, name := range s.order {
		inst := s.instances[name]
		if inst.down {
			if !now.Before(inst.nextAttempt) {
				s.relaunch(ctx, inst, TriggerCrash)
			}
			continue
		}
		if inst.proc.Alive() {
			if inst.streak > 0 && now.Sub(inst.StartedAt) >= s.opts.CrashWindow {
				inst.streak = 0
			}
			continue
		}
		s.handleCrash(ctx, inst, now)
	}
}

// handleCrash reports a dead instance and relaunches it now or, inside a
// crash loop, schedules the relaunch.
func (s *Supervisor) handleCrash(ctx context.Context, inst *Instance, now time.Time) {
	if s.formatter != nil {
		s.flush(inst)
	}
	exitErr := inst.proc.ExitErr()
	s.log.Warn("worker has stopped, restarting", "instance", inst.Name, "pid", inst.proc.PID(), "exit", exitString(exitErr))
	metrics.IncCrash(inst.Def.Name)
	s.record(history.EventCrash, inst, TriggerCrash, exitErr)

	if now.Sub(inst.StartedAt) < s.opts.CrashWindow {
		inst.streak++
	} else {
		inst.streak = 1
	}
	if d := s.backoff(inst.streak); d > 0 {
		inst.down = true
		inst.nextAttempt = now.Add(d)
		s.log.Warn("worker is crashing repeatedly, delaying restart", "instance", inst.Name, "crashes", inst.streak, "delay", d)
		return
	}
	s.relaunch(ctx, inst, TriggerCrash)
}

// backoff returns the delay before the next relaunch for a crash streak.
func (s *Supervisor) backoff(streak int) time.Duration {
	t := s.opts.CrashThreshold
	if t <= 0 || streak < t {
		return 0
	}
	d := time.Second
	for i := t; i < streak && d < s.opts.MaxBackoff; i++ {
		d *= 2
	}
	if d > s.opts.MaxBackoff {
		d = s.opts.MaxBackoff
	}
	return d
}

// relaunch replaces inst with a fresh process keeping its name and color and
// rewrites the registry.
func (s *Supervisor) relaunch(ctx context.Context, inst *Instance, trigger Trigger) {
	if inst.proc != nil && !inst.proc.Exited() {
		if trigger == TriggerCrash {
			s.reap(inst)
		} else {
			s.stopInstance(inst)
		}
	}
	next, err := s.launch(inst.Def, inst.Name, inst.Color)
	if err != nil {
		inst.down = true
		inst.streak++
		d := s.backoff(inst.streak)
		if d <= 0 {
			d = time.Second
		}
		inst.nextAttempt = time.Now().Add(d)
		return
	}
	next.restarts = inst.restarts + 1
	next.streak = inst.streak
	s.instances[inst.Name] = next
	metrics.IncRestart(inst.Def.Name, string(trigger))
	s.record(history.EventRestart, next, trigger, nil)
	s.log.Info("restarted worker", "instance", next.Name, "pid", next.PID())
	if trigger == TriggerCrash {
		s.saveRegistry(ctx)
	}
}

const reapTimeout = time.Second

// reap waits for a crashed child that liveness already saw dead (a zombie
// not yet collected by its waiter). It is not a stop: nothing is recorded.
func (s *Supervisor) reap(inst *Instance) {
	select {
	case <-inst.proc.Done():
		return
	case <-time.After(reapTimeout):
	}
	s.log.Warn("crashed worker not reaped in time, killing", "instance", inst.Name, "pid", inst.proc.PID())
	inst.proc.Kill()
	select {
	case <-inst.proc.Done():
	case <-time.After(reapTimeout):
	}
}

// restartAll stops every instance in parallel, relaunches them and resets
// the fleet start time.
func (s *Supervisor) restartAll(ctx context.Context, trigger Trigger) {
	metrics.IncFleetRestart(string(trigger))
	var wg sync.WaitGroup
	for _, name := range s.order {
		inst := s.instances[name]
		if inst.proc == nil || inst.proc.Exited() {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.stopInstance(inst)
		}()
	}
	wg.Wait()
	for _, name := range s.order {
		inst := s.instances[name]
		if s.formatter != nil && inst.proc != nil {
			s.flush(inst)
		}
		inst.streak = 0
		inst.down = false
		s.relaunch(ctx, inst, trigger)
	}
	s.fleetStartedAt = time.Now()
	s.saveRegistry(ctx)
}

func (s *Supervisor) checkFiles(ctx context.Context) {
	cur := s.scanner.Scan()
	changes := watch.Diff(s.baseline, cur)
	if changes.Empty() {
		return
	}
	s.log.Info("file changes detected", "count", changes.Len(), "files", strings.Join(changes.Summary(3), ", "))
	s.log.Info("reloading workers")
	s.restartAll(ctx, TriggerWatch)
	s.baseline = cur
}

// stopInstance is safe to call from helper goroutines: it only touches the
// instance's own process.
func (s *Supervisor) stopInstance(inst *Instance) {
	if killed := inst.proc.Stop(s.opts.StopGrace); killed {
		s.log.Warn("worker did not exit in time, killed", "instance", inst.Name, "pid", inst.proc.PID(), "grace", s.opts.StopGrace)
	}
	metrics.IncStop(inst.Def.Name)
	s.record(history.EventStop, inst, "", nil)
}

// Shutdown stops every instance, removes the registry and closes the
// history recorder. It runs once.
func (s *Supervisor) Shutdown() {
	s.shutOnce.Do(func() {
		s.log.Info("stopping workers", "count", len(s.order))
		var wg sync.WaitGroup
		for _, name := range s.order {
			inst := s.instances[name]
			if inst.proc == nil || inst.proc.Exited() {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.stopInstance(inst)
			}()
		}
		wg.Wait()
		if s.formatter != nil {
			for _, name := range s.order {
				s.flush(s.instances[name])
			}
		}
		for _, name := range s.order {
			metrics.ForgetInstance(name)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if s.opts.Registry != nil {
			if err := s.opts.Registry.Remove(ctx); err != nil {
				s.log.Warn("failed to remove registry", "location", s.opts.Registry.Location(), "error", err)
			}
		}
		if s.opts.PIDFile != "" {
			_ = registry.RemovePIDFile(s.opts.PIDFile)
		}
		if err := s.notifier.Close(); err != nil {
			s.log.Debug("closing file watcher", "error", err)
		}
		if err := s.opts.History.Close(); err != nil {
			s.log.Warn("closing history sinks", "error", err)
		}
		s.publish(time.Now())
	})
}

// Snapshot returns the state published by the last loop iteration.
func (s *Supervisor) Snapshot() Snapshot {
	if p := s.snapshot.Load(); p != nil {
		return *p
	}
	return Snapshot{}
}

// Instance returns the current instance called name. Loop goroutine only.
func (s *Supervisor) Instance(name string) (*Instance, bool) {
	inst, ok := s.instances[name]
	return inst, ok
}

// PIDs maps instance names to the PIDs of live processes.
func (s *Supervisor) PIDs() registry.Snapshot {
	out := registry.Snapshot{}
	for _, name := range s.order {
		if pid := s.instances[name].PID(); pid > 0 {
			out[name] = pid
		}
	}
	return out
}

func (s *Supervisor) saveRegistry(ctx context.Context) {
	if s.opts.Registry == nil {
		return
	}
	if err := s.opts.Registry.Save(ctx, s.PIDs()); err != nil {
		s.log.Warn("failed to write registry", "location", s.opts.Registry.Location(), "error", err)
	}
}

func (s *Supervisor) publish(now time.Time) {
	snap := &Snapshot{FleetStartedAt: s.fleetStartedAt, UpdatedAt: now}
	running := map[string]int{}
	for _, name := range s.order {
		st := s.instances[name].status()
		snap.Instances = append(snap.Instances, st)
		n := running[st.Worker]
		if st.Running {
			n++
		}
		running[st.Worker] = n
	}
	s.snapshot.Store(snap)

	if !metrics.Enabled() {
		return
	}
	for w, n := range running {
		metrics.SetRunningInstances(w, n)
	}
	if now.Sub(s.lastMemorySweep) >= s.opts.SignalInterval {
		s.lastMemorySweep = now
		for _, st := range snap.Instances {
			if !st.Running {
				continue
			}
			if mb, ok := procinfo.MemoryMB(st.PID); ok {
				metrics.SetInstanceMemory(st.Name, mb)
			}
		}
	}
}

func exitString(err error) string {
	if err == nil {
		return "exit status 0"
	}
	return fmt.Sprint(err)
}
