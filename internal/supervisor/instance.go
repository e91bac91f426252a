package supervisor

import (
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/loykin/nexus/internal/process"
	"github.com/loykin/nexus/internal/worker"
)

// Trigger names why an instance was restarted.
type Trigger string

const (
	TriggerCrash  Trigger = "crash"
	TriggerSignal Trigger = "signal"
	TriggerWatch  Trigger = "watch"
)

// Instance is one spawned worker process. It is owned by the supervisor loop
// and replaced, never mutated in place, when its process is relaunched.
type Instance struct {
	Name      string
	Def       worker.Definition
	Color     lipgloss.Color
	StartedAt time.Time

	proc        *process.Process
	restarts    int
	streak      int       // consecutive crashes within the crash window
	down        bool      // crashed, waiting for nextAttempt
	nextAttempt time.Time // earliest relaunch while down
	dropped     int64     // output bytes already reported as dropped
}

// PID of the current process, 0 while down.
func (i *Instance) PID() int {
	if i.proc == nil || i.down {
		return 0
	}
	return i.proc.PID()
}

// InstanceStatus is a read-only view of an Instance.
type InstanceStatus struct {
	Name        string    `json:"name" yaml:"name"`
	Worker      string    `json:"worker" yaml:"worker"`
	Queue       string    `json:"queue" yaml:"queue"`
	Connection  string    `json:"connection" yaml:"connection"`
	PID         int       `json:"pid" yaml:"pid"`
	Running     bool      `json:"running" yaml:"running"`
	StartedAt   time.Time `json:"started_at" yaml:"started_at"`
	Restarts    int       `json:"restarts" yaml:"restarts"`
	NextAttempt time.Time `json:"next_attempt,omitzero" yaml:"next_attempt,omitempty"`
}

// Snapshot is the fleet state published after every loop iteration.
type Snapshot struct {
	FleetStartedAt time.Time        `json:"fleet_started_at" yaml:"fleet_started_at"`
	UpdatedAt      time.Time        `json:"updated_at" yaml:"updated_at"`
	Instances      []InstanceStatus `json:"instances" yaml:"instances"`
}

func (i *Instance) status() InstanceStatus {
	st := InstanceStatus{
		Name:       i.Name,
		Worker:     i.Def.Name,
		Queue:      i.Def.Queue,
		Connection: i.Def.Connection,
		PID:        i.PID(),
		StartedAt:  i.StartedAt,
		Restarts:   i.restarts,
	}
	if i.down {
		st.NextAttempt = i.nextAttempt
	} else if i.proc != nil {
		st.Running = i.proc.Alive()
	}
	return st
}
