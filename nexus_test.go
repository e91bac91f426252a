package nexus

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func requireUnix(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func sleeperDef(name string, processes int) Definition {
	return Definition{
		Name: name, Queue: name, Connection: "database",
		Tries: 1, Timeout: 60, Sleep: 1, Memory: 64, Processes: processes,
		MaxJobs: 10, MaxTime: 60,
		Command: []string{"/bin/sh", "-c", "sleep 30"},
	}
}

func TestFacadeStartStatusStop(t *testing.T) {
	requireUnix(t)
	ctx := context.Background()
	reg, err := OpenRegistry(filepath.Join(t.TempDir(), "nexus.pids"))
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	defer func() { _ = reg.Close() }()

	s := New(Options{Registry: reg, StopGrace: 2 * time.Second, Env: NewEnv()})
	defer s.Shutdown()
	n, err := s.Start(ctx, []Definition{sleeperDef("default", 2), sleeperDef("emails", 1)}, "emails")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 instance, got %d", n)
	}

	running, err := IsRunning(ctx, reg)
	if err != nil || !running {
		t.Fatalf("expected running fleet: %v %v", running, err)
	}
	rows, err := Status(ctx, reg)
	if err != nil || len(rows) != 1 || rows[0].Name != "emails" || !rows[0].Running {
		t.Fatalf("status = %+v err = %v", rows, err)
	}

	rec := httptest.NewRecorder()
	Handler("/api", s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	var snap Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil || len(snap.Instances) != 1 {
		t.Fatalf("http status = %s err = %v", rec.Body.String(), err)
	}

	stopped, err := Stop(ctx, reg, "", 2*time.Second)
	if err != nil || stopped != 1 {
		t.Fatalf("stop = %d err = %v", stopped, err)
	}
}

func TestFacadeErrors(t *testing.T) {
	s := New(Options{})
	if _, err := s.Start(context.Background(), nil, ""); !errors.Is(err, ErrConfigurationMissing) {
		t.Fatalf("expected ErrConfigurationMissing, got %v", err)
	}
	if _, err := NewHistory("run", []string{"bogus://x"}); err == nil {
		t.Fatalf("expected unsupported DSN error")
	}
	h, err := NewHistory("run", nil)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	_ = h.Close()
}

func TestRegisterMetrics(t *testing.T) {
	if err := RegisterMetrics(prometheus.NewRegistry()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := RegisterMetricsDefault(); err != nil {
		t.Fatalf("register default: %v", err)
	}
}
