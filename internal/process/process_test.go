package process

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sh/sleep on Unix-like systems")
	}
}

func waitUntil(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestStartEmptyCommand(t *testing.T) {
	if _, err := Start(Spec{Name: "x"}); err == nil {
		t.Fatalf("expected error for empty argv")
	}
}

func TestStartMissingBinary(t *testing.T) {
	_, err := Start(Spec{Name: "x", Args: []string{"/definitely/not/here"}})
	if err == nil {
		t.Fatalf("expected error for missing binary")
	}
}

func TestStartCapturesOutput(t *testing.T) {
	requireUnix(t)
	p, err := Start(Spec{Name: "out", Args: []string{"/bin/sh", "-c", "echo one; echo two; echo oops 1>&2; printf partial"}})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("process did not exit")
	}
	if got := p.Stdout().Lines(); strings.Join(got, ",") != "one,two" {
		t.Fatalf("stdout lines = %q", got)
	}
	if got := p.Stdout().Flush(); len(got) != 1 || got[0] != "partial" {
		t.Fatalf("flush = %q", got)
	}
	if got := p.Stderr().Pending(); got != "oops\n" {
		t.Fatalf("stderr pending = %q", got)
	}
	if p.Alive() {
		t.Fatalf("exited process reported alive")
	}
}

func TestWaitAliveDetectsQuickExit(t *testing.T) {
	requireUnix(t)
	p, err := Start(Spec{Name: "quick", Args: []string{"/bin/sh", "-c", "exit 3"}})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if p.WaitAlive(300 * time.Millisecond) {
		t.Fatalf("quickly exiting process reported alive")
	}
	<-p.Done()
	if p.ExitErr() == nil {
		t.Fatalf("expected exit error")
	}
}

func TestStopTerminatesGroup(t *testing.T) {
	requireUnix(t)
	p, err := Start(Spec{Name: "sleeper", Args: []string{"/bin/sh", "-c", "sleep 30"}})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !p.WaitAlive(100 * time.Millisecond) {
		t.Fatalf("sleeper should be alive")
	}
	if killed := p.Stop(5 * time.Second); killed {
		t.Fatalf("SIGTERM should have been enough")
	}
	if !p.Exited() {
		t.Fatalf("process still running after Stop")
	}
}

func TestStopEscalatesToKill(t *testing.T) {
	requireUnix(t)
	p, err := Start(Spec{Name: "stubborn", Args: []string{"/bin/sh", "-c", "trap '' TERM; while true; do sleep 0.05; done"}})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !p.WaitAlive(200 * time.Millisecond) {
		t.Fatalf("stubborn should be alive")
	}
	if killed := p.Stop(200 * time.Millisecond); !killed {
		t.Fatalf("expected SIGKILL escalation")
	}
	if !waitUntil(t, 2*time.Second, p.Exited) {
		t.Fatalf("process survived SIGKILL")
	}
}

type closeRecorder struct {
	f      *os.File
	closed bool
}

func (c *closeRecorder) Write(p []byte) (int, error) { return c.f.Write(p) }
func (c *closeRecorder) Close() error                { c.closed = true; return c.f.Close() }

func TestTeeWritersReceiveOutputAndAreClosed(t *testing.T) {
	requireUnix(t)
	path := filepath.Join(t.TempDir(), "out.log")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	rec := &closeRecorder{f: f}
	p, err := Start(Spec{Name: "tee", Args: []string{"/bin/sh", "-c", "echo hello"}, Stdout: rec})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	<-p.Done()
	if !rec.closed {
		t.Fatalf("tee writer not closed after exit")
	}
	b, _ := os.ReadFile(path)
	if string(b) != "hello\n" {
		t.Fatalf("tee content = %q", string(b))
	}
	if got := p.Stdout().Lines(); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("buffer lines = %q", got)
	}
}

func TestEnvAndDir(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	p, err := Start(Spec{
		Name: "env",
		Args: []string{"/bin/sh", "-c", "echo $FOO; pwd"},
		Dir:  dir,
		Env:  []string{"FOO=bar", "PATH=/usr/bin:/bin"},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	<-p.Done()
	lines := p.Stdout().Lines()
	if len(lines) != 2 || lines[0] != "bar" {
		t.Fatalf("unexpected output %q", lines)
	}
	want, _ := filepath.EvalSymlinks(dir)
	got, _ := filepath.EvalSymlinks(lines[1])
	if got != want {
		t.Fatalf("dir = %q, want %q", got, want)
	}
}
