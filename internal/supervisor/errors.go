package supervisor

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfigurationMissing means no worker definitions were configured.
	ErrConfigurationMissing = errors.New("queue worker configuration not found")
	// ErrAlreadyRunning means a registry lists at least one live worker.
	ErrAlreadyRunning = errors.New("queue workers are already running, use --restart to restart them")
	// ErrNoInstancesStarted means every launch of the fleet failed.
	ErrNoInstancesStarted = errors.New("no workers started, check your configuration")
)

// WorkerNotFoundError is returned when a requested worker is not configured.
type WorkerNotFoundError struct {
	Name      string
	Available []string
}

func (e *WorkerNotFoundError) Error() string {
	msg := "worker configuration not found for: " + e.Name
	if len(e.Available) > 0 {
		msg += " (available workers: " + strings.Join(e.Available, ", ") + ")"
	}
	return msg
}

// ProcessStartError reports an instance that was not running right after
// spawn. Stderr holds whatever the process wrote before it died.
type ProcessStartError struct {
	Instance string
	Stderr   string
	Err      error
}

func (e *ProcessStartError) Error() string {
	msg := fmt.Sprintf("failed to start worker %s", e.Instance)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ProcessStartError) Unwrap() error { return e.Err }

// InstanceNameConflictError reports two workers that would both run an
// instance with the same name, e.g. worker "default" with two processes and
// a worker called "default-1".
type InstanceNameConflictError struct {
	Instance string
	Workers  [2]string
}

func (e *InstanceNameConflictError) Error() string {
	return fmt.Sprintf("workers %q and %q both produce instance %q, rename one of them",
		e.Workers[0], e.Workers[1], e.Instance)
}
