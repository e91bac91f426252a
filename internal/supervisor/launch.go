package supervisor

import (
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/loykin/nexus/internal/history"
	"github.com/loykin/nexus/internal/metrics"
	"github.com/loykin/nexus/internal/process"
	"github.com/loykin/nexus/internal/worker"
)

// Select returns all definitions, or only the one called only. The result is
// sorted by name so instances launch in a stable order. Definitions whose
// instance names overlap are rejected even when only one is selected, since
// both share the registry.
func Select(defs []worker.Definition, only string) ([]worker.Definition, error) {
	if len(defs) == 0 {
		return nil, ErrConfigurationMissing
	}
	sorted := append([]worker.Definition(nil), defs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	owner := make(map[string]string)
	for _, d := range sorted {
		for _, name := range d.InstanceNames() {
			if prev, ok := owner[name]; ok && prev != d.Name {
				return nil, &InstanceNameConflictError{Instance: name, Workers: [2]string{prev, d.Name}}
			}
			owner[name] = d.Name
		}
	}
	if only == "" {
		return sorted, nil
	}
	names := make([]string, 0, len(sorted))
	for _, d := range sorted {
		if d.Name == only {
			return []worker.Definition{d}, nil
		}
		names = append(names, d.Name)
	}
	return nil, &WorkerNotFoundError{Name: only, Available: names}
}

// launch spawns one instance of def and waits StartProbe to see it running.
func (s *Supervisor) launch(def worker.Definition, name string, color lipgloss.Color) (*Instance, error) {
	outW, errW, err := s.opts.LogFiles.Writers(name)
	if err != nil {
		s.log.Warn("instance log files disabled", "instance", name, "error", err)
	}
	dir := def.WorkDir
	if dir == "" {
		dir = s.opts.BasePath
	}
	p, err := process.Start(process.Spec{
		Name:        name,
		Args:        def.Args(s.opts.Prefix, name, s.opts.Verbose()),
		Dir:         dir,
		Env:         s.opts.Env.Merge(def.Env),
		Stdout:      outW,
		Stderr:      errW,
		BufferLimit: s.opts.BufferLimit,
	})
	if err != nil {
		return nil, s.launchFailed(def, name, &ProcessStartError{Instance: name, Err: err})
	}
	if !p.WaitAlive(s.opts.StartProbe) {
		// let the reaper finish copying what the child wrote
		select {
		case <-p.Done():
		case <-time.After(500 * time.Millisecond):
		}
		return nil, s.launchFailed(def, name, &ProcessStartError{Instance: name, Stderr: p.Stderr().Pending(), Err: p.ExitErr()})
	}

	inst := &Instance{
		Name:      name,
		Def:       def,
		Color:     color,
		StartedAt: p.StartedAt(),
		proc:      p,
	}
	metrics.IncStart(def.Name)
	s.record(history.EventStart, inst, "", nil)
	return inst, nil
}

func (s *Supervisor) launchFailed(def worker.Definition, name string, err *ProcessStartError) error {
	s.log.Error("failed to start worker", "instance", name, "error", err.Err, "stderr", strings.TrimSpace(err.Stderr))
	metrics.IncLaunchFailure(def.Name)
	s.opts.History.Record(history.Event{
		Type:     history.EventLaunchFailure,
		Instance: name,
		Worker:   def.Name,
		Queue:    def.Queue,
		Error:    err.Error(),
	})
	return err
}

func (s *Supervisor) record(t history.EventType, inst *Instance, reason Trigger, err error) {
	e := history.Event{
		Type:     t,
		Instance: inst.Name,
		Worker:   inst.Def.Name,
		Queue:    inst.Def.Queue,
		PID:      inst.PID(),
		Reason:   string(reason),
	}
	if inst.proc != nil && e.PID == 0 {
		e.PID = inst.proc.PID()
	}
	if err != nil {
		e.Error = err.Error()
	}
	s.opts.History.Record(e)
}
