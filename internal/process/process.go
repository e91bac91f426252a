// Package process spawns one child in its own process group and captures its
// output for incremental draining.
package process

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/loykin/nexus/internal/procinfo"
)

// Spec describes how to launch a child.
type Spec struct {
	Name string
	Args []string // argv, Args[0] is the program
	Dir  string
	Env  []string // full environment; nil inherits the parent's

	// Optional writers that receive a copy of the child's output, e.g.
	// rotated log files. They are closed after the child exits.
	Stdout io.WriteCloser
	Stderr io.WriteCloser

	// BufferLimit bounds unread captured output per stream.
	BufferLimit int
}

// Process is a started child. All methods are safe for concurrent use.
type Process struct {
	name      string
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time
	stdout    *Output
	stderr    *Output

	done    chan struct{} // closed once cmd.Wait returns
	mu      sync.Mutex
	exitErr error
}

// Start launches the child described by spec and returns without waiting for
// it. A single goroutine reaps the child.
func Start(spec Spec) (*Process, error) {
	if len(spec.Args) == 0 || spec.Args[0] == "" {
		return nil, errors.New("process: empty command")
	}
	// #nosec G204 -- argv comes from operator configuration
	cmd := exec.Command(spec.Args[0], spec.Args[1:]...)
	cmd.Dir = spec.Dir
	if spec.Env != nil {
		cmd.Env = spec.Env
	}
	configureSysProcAttr(cmd)
	// pipes left open by grandchildren must not block the reaper forever
	cmd.WaitDelay = time.Second

	p := &Process{
		name:   spec.Name,
		cmd:    cmd,
		stdout: newOutput(spec.BufferLimit),
		stderr: newOutput(spec.BufferLimit),
		done:   make(chan struct{}),
	}
	cmd.Stdout = tee(p.stdout, spec.Stdout)
	cmd.Stderr = tee(p.stderr, spec.Stderr)

	if err := cmd.Start(); err != nil {
		closeQuietly(spec.Stdout)
		closeQuietly(spec.Stderr)
		return nil, fmt.Errorf("start %s: %w", spec.Name, err)
	}
	p.pid = cmd.Process.Pid
	p.startedAt = time.Now()

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()
		closeQuietly(spec.Stdout)
		closeQuietly(spec.Stderr)
		close(p.done)
	}()
	return p, nil
}

func (p *Process) Name() string         { return p.name }
func (p *Process) PID() int             { return p.pid }
func (p *Process) StartedAt() time.Time { return p.startedAt }
func (p *Process) Stdout() *Output      { return p.stdout }
func (p *Process) Stderr() *Output      { return p.stderr }

// Done is closed after the child has exited and been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

// ExitErr returns the error from cmd.Wait once the child has exited.
func (p *Process) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// Exited reports whether the child has been reaped.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Alive reports whether the child is still running. A child that exited but
// is not yet reaped is not alive.
func (p *Process) Alive() bool {
	if p.Exited() {
		return false
	}
	return procinfo.Alive(p.pid)
}

// WaitAlive polls for d and reports whether the child survived it.
func (p *Process) WaitAlive(d time.Duration) bool {
	if d <= 0 {
		return p.Alive()
	}
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if !p.Alive() {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
	return p.Alive()
}

// Stop sends SIGTERM to the child's process group and waits up to grace for
// it to exit, then sends SIGKILL. It reports whether SIGKILL was needed.
func (p *Process) Stop(grace time.Duration) bool {
	if p.Exited() {
		return false
	}
	_ = Terminate(p.pid)
	select {
	case <-p.done:
		return false
	case <-time.After(grace):
	}
	_ = Kill(p.pid)
	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
	}
	return true
}

// Kill sends SIGKILL to the child's process group and waits briefly for it to
// be reaped.
func (p *Process) Kill() {
	if p.Exited() {
		return
	}
	_ = Kill(p.pid)
	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
	}
}

func tee(buf *Output, w io.WriteCloser) io.Writer {
	if w == nil {
		return buf
	}
	return io.MultiWriter(buf, w)
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
