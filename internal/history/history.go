// Package history exports worker lifecycle events to external stores.
package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart         EventType = "start"
	EventStop          EventType = "stop"
	EventCrash         EventType = "crash"
	EventRestart       EventType = "restart"
	EventLaunchFailure EventType = "launch_failure"
)

// Event is one lifecycle transition of a worker instance.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	RunID      string    `json:"run_id"`
	Instance   string    `json:"instance"`
	Worker     string    `json:"worker"`
	Queue      string    `json:"queue"`
	PID        int       `json:"pid"`
	Reason     string    `json:"reason,omitempty"` // restart trigger: crash, signal, watch
	Error      string    `json:"error,omitempty"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

const (
	queueSize   = 256
	sendTimeout = 5 * time.Second
)

// Recorder fans events out to sinks from a background goroutine so that a
// slow store never delays the caller. A nil *Recorder discards events.
type Recorder struct {
	sinks  []Sink
	logger *slog.Logger
	runID  string

	ch        chan Event
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

// NewRecorder starts delivering to sinks. runID tags every event of this
// supervisor run.
func NewRecorder(logger *slog.Logger, runID string, sinks ...Sink) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		sinks:  sinks,
		logger: logger,
		runID:  runID,
		ch:     make(chan Event, queueSize),
		done:   make(chan struct{}),
	}
	go r.loop()
	return r
}

// Record queues e. Events are dropped, with a warning, when the queue is full.
// Record must not be called concurrently with Close.
func (r *Recorder) Record(e Event) {
	if r == nil || len(r.sinks) == 0 || r.closed.Load() {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if e.RunID == "" {
		e.RunID = r.runID
	}
	select {
	case r.ch <- e:
	default:
		r.logger.Warn("history queue full, dropping event", "type", e.Type, "instance", e.Instance)
	}
}

func (r *Recorder) loop() {
	defer close(r.done)
	for e := range r.ch {
		for _, s := range r.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			if err := s.Send(ctx, e); err != nil {
				r.logger.Warn("history sink send failed", "type", e.Type, "instance", e.Instance, "error", err)
			}
			cancel()
		}
	}
}

// Close delivers queued events and closes all sinks.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		close(r.ch)
		<-r.done
		for _, s := range r.sinks {
			if err := s.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
