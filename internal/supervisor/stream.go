package supervisor

import (
	"context"
	"fmt"
	"time"
)

// drain writes complete output lines of every instance to Output. An
// instance found dead while draining goes through crash handling right away
// so its last lines are not lost behind the next liveness pass.
func (s *Supervisor) drain(ctx context.Context, now time.Time) {
	for _, name := range s.order {
		inst := s.instances[name]
		if inst.proc == nil || inst.down {
			continue
		}
		s.emit(inst, inst.proc.Stdout().Lines(), false)
		s.emit(inst, inst.proc.Stderr().Lines(), true)
		s.reportDropped(inst)
		if inst.proc.Exited() {
			s.handleCrash(ctx, inst, now)
		}
	}
}

// flush writes everything the instance's process left behind, including a
// trailing partial line.
func (s *Supervisor) flush(inst *Instance) {
	if inst.proc == nil || s.formatter == nil {
		return
	}
	s.emit(inst, inst.proc.Stdout().Flush(), false)
	s.emit(inst, inst.proc.Stderr().Flush(), true)
	s.reportDropped(inst)
}

// reportDropped warns when the instance's output buffers overflowed since
// the last report.
func (s *Supervisor) reportDropped(inst *Instance) {
	total := inst.proc.Stdout().Dropped() + inst.proc.Stderr().Dropped()
	if total <= inst.dropped {
		return
	}
	s.log.Warn("worker output dropped, buffer full", "instance", inst.Name, "bytes", total-inst.dropped, "total", total)
	inst.dropped = total
}

func (s *Supervisor) emit(inst *Instance, lines []string, stderr bool) {
	for _, line := range lines {
		out, ok := s.formatter.Format(inst.Name, inst.Color, line, stderr)
		if !ok {
			continue
		}
		if _, err := fmt.Fprintln(s.opts.Output, out); err != nil {
			s.log.Debug("writing worker output", "instance", inst.Name, "error", err)
			return
		}
	}
}
