package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/loykin/nexus/internal/process"
	"github.com/loykin/nexus/internal/procinfo"
	"github.com/loykin/nexus/internal/registry"
)

// The functions below work from the registry alone so a second invocation
// of the CLI can inspect or stop a fleet it did not start.

// InstanceInfo is one row of the out-of-band status table.
type InstanceInfo struct {
	Name    string `json:"name" yaml:"name"`
	PID     int    `json:"pid" yaml:"pid"`
	Running bool   `json:"running" yaml:"running"`
	Memory  string `json:"memory" yaml:"memory"`
	Uptime  string `json:"uptime" yaml:"uptime"`
}

// FleetStatus probes every instance in the registry. An empty result means
// no fleet is recorded. A corrupt registry reads as empty.
func FleetStatus(ctx context.Context, reg registry.Registry, now time.Time) ([]InstanceInfo, error) {
	snap, err := reg.Load(ctx)
	if err != nil && !errors.Is(err, registry.ErrCorrupt) {
		return nil, err
	}
	out := make([]InstanceInfo, 0, len(snap))
	for _, name := range snap.Names() {
		info := procinfo.Probe(snap[name], now)
		out = append(out, InstanceInfo{
			Name:    name,
			PID:     info.PID,
			Running: info.Alive,
			Memory:  info.Memory(),
			Uptime:  info.UptimeString(),
		})
	}
	return out, nil
}

// IsRunning reports whether any registered instance is alive.
func IsRunning(ctx context.Context, reg registry.Registry) (bool, error) {
	snap, err := reg.Load(ctx)
	if err != nil && !errors.Is(err, registry.ErrCorrupt) {
		return false, err
	}
	for _, pid := range snap {
		if procinfo.Alive(pid) {
			return true, nil
		}
	}
	return false, nil
}

// StopFleet stops a fleet started by another process. The supervisor itself
// is asked to shut down first so it does not relaunch what is being stopped;
// whatever is still alive afterwards gets SIGTERM, then SIGKILL after grace.
// The registry and pid file are removed. It returns how many registered
// instances were alive.
func StopFleet(ctx context.Context, reg registry.Registry, pidFile string, grace time.Duration, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	snap, err := reg.Load(ctx)
	if err != nil && !errors.Is(err, registry.ErrCorrupt) {
		return 0, err
	}
	alive := map[string]int{}
	for name, pid := range snap {
		if procinfo.Alive(pid) {
			alive[name] = pid
		}
	}

	if pidFile != "" {
		if pid, err := registry.ReadPIDFile(pidFile); err == nil && pid > 0 && pid != os.Getpid() && procinfo.Alive(pid) {
			logger.Info("stopping supervisor", "pid", pid)
			_ = process.Terminate(pid)
			waitGone(ctx, []int{pid}, grace)
		}
	}

	var pending []int
	for _, name := range sortedNames(alive) {
		pid := alive[name]
		if !procinfo.Alive(pid) {
			logger.Info("stopped worker", "instance", name, "pid", pid)
			continue
		}
		if err := process.Terminate(pid); err != nil {
			logger.Warn("failed to signal worker", "instance", name, "pid", pid, "error", err)
		}
		pending = append(pending, pid)
	}
	if left := waitGone(ctx, pending, grace); len(left) > 0 {
		for _, pid := range left {
			logger.Warn("worker did not exit in time, killing", "pid", pid)
			_ = process.Kill(pid)
		}
		waitGone(ctx, left, 2*time.Second)
	}

	if err := reg.Remove(ctx); err != nil {
		logger.Warn("failed to remove registry", "location", reg.Location(), "error", err)
	}
	if pidFile != "" {
		_ = registry.RemovePIDFile(pidFile)
	}
	return len(alive), nil
}

// waitGone polls until every pid has exited or d elapsed and returns the
// ones still alive.
func waitGone(ctx context.Context, pids []int, d time.Duration) []int {
	deadline := time.Now().Add(d)
	for {
		var left []int
		for _, pid := range pids {
			if procinfo.Alive(pid) {
				left = append(left, pid)
			}
		}
		if len(left) == 0 || !time.Now().Before(deadline) {
			return left
		}
		select {
		case <-ctx.Done():
			return left
		case <-time.After(50 * time.Millisecond):
		}
		pids = left
	}
}

func sortedNames(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
