package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/nexus/internal/auth"
	"github.com/loykin/nexus/internal/config"
	"github.com/loykin/nexus/internal/process"
	"github.com/loykin/nexus/internal/registry"
	"github.com/loykin/nexus/internal/server"
	"github.com/loykin/nexus/internal/supervisor"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix sh/sleep")
	}
}

// writeConfig writes a config rooted at a fresh directory and returns its
// path and the registry location.
func writeConfig(t *testing.T, workers string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := `
base_path = "` + dir + `"
start_probe = "50ms"
stop_grace = "2s"
command = ["/bin/sh", "-c", "sleep 30"]

[log]
level = "error"
` + workers
	p := filepath.Join(dir, "nexus.toml")
	if err := os.WriteFile(p, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	return p, filepath.Join(dir, "storage", "app", "nexus.pids")
}

const twoDefaults = `
[workers.default]
queue = "default"
processes = 2
`

func testCommand() (*command, *bytes.Buffer) {
	var out bytes.Buffer
	return newCommand(&out, &bytes.Buffer{}), &out
}

func TestStatusNoWorkers(t *testing.T) {
	cfg, _ := writeConfig(t, twoDefaults)
	c, out := testCommand()
	if err := c.Status(context.Background(), RootFlags{ConfigPath: cfg, Output: "table", NoColor: true}); err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out.String(), "No queue workers are currently running.") {
		t.Fatalf("unexpected output: %s", out.String())
	}
}

func TestStartMissingConfiguration(t *testing.T) {
	cfg, _ := writeConfig(t, "")
	c, out := testCommand()
	err := c.Start(context.Background(), RootFlags{ConfigPath: cfg, NoColor: true})
	if !errors.Is(err, supervisor.ErrConfigurationMissing) {
		t.Fatalf("expected ErrConfigurationMissing, got %v", err)
	}
	if !strings.Contains(out.String(), "configuration not found") {
		t.Fatalf("missing hint: %s", out.String())
	}
}

func TestStartUnknownWorker(t *testing.T) {
	cfg, _ := writeConfig(t, twoDefaults+"\n[workers.emails]\nqueue = \"emails\"\n")
	c, out := testCommand()
	err := c.Start(context.Background(), RootFlags{ConfigPath: cfg, Worker: "nope", NoColor: true})
	var nf *supervisor.WorkerNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected WorkerNotFoundError, got %v", err)
	}
	if !strings.Contains(out.String(), "Available workers: default, emails") {
		t.Fatalf("missing available list: %s", out.String())
	}
}

func waitRegistry(t *testing.T, path string, n int) registry.Snapshot {
	t.Helper()
	reg := registry.NewFile(path)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if snap, err := reg.Load(context.Background()); err == nil && len(snap) == n {
			return snap
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("registry never reached %d entries", n)
	return nil
}

func TestStartStatusAndShutdown(t *testing.T) {
	requireUnix(t)
	cfg, regPath := writeConfig(t, twoDefaults)
	flags := RootFlags{ConfigPath: cfg, Output: "table", NoColor: true}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, out := testCommand()
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, flags) }()

	snap := waitRegistry(t, regPath, 2)
	if snap["default-1"] == 0 || snap["default-2"] == 0 {
		t.Fatalf("unexpected registry: %v", snap)
	}

	// a plain second start refuses
	c2, out2 := testCommand()
	if err := c2.Start(context.Background(), flags); !errors.Is(err, supervisor.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if !strings.Contains(out2.String(), "already running") {
		t.Fatalf("missing warning: %s", out2.String())
	}

	c3, out3 := testCommand()
	jsonFlags := flags
	jsonFlags.Output = "json"
	if err := c3.Status(context.Background(), jsonFlags); err != nil {
		t.Fatalf("status: %v", err)
	}
	var rows []supervisor.InstanceInfo
	if err := json.Unmarshal(out3.Bytes(), &rows); err != nil {
		t.Fatalf("decode status: %v (%s)", err, out3.String())
	}
	if len(rows) != 2 || !rows[0].Running || rows[0].Name != "default-1" {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("start returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("supervisor did not shut down")
	}
	if !strings.Contains(out.String(), "Started 2 worker process(es)") {
		t.Fatalf("unexpected output: %s", out.String())
	}
	if _, err := os.Stat(regPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("registry should be removed, stat err = %v", err)
	}
}

func TestStopCommand(t *testing.T) {
	requireUnix(t)
	cfg, regPath := writeConfig(t, twoDefaults)
	flags := RootFlags{ConfigPath: cfg, NoColor: true}

	c, out := testCommand()
	if err := c.Stop(context.Background(), flags); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !strings.Contains(out.String(), "No worker processes found to stop.") {
		t.Fatalf("unexpected output: %s", out.String())
	}

	p, err := process.Start(process.Spec{Name: "default", Args: []string{"/bin/sh", "-c", "sleep 30"}})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	t.Cleanup(p.Kill)
	if err := registry.NewFile(regPath).Save(context.Background(), registry.Snapshot{"default": p.PID()}); err != nil {
		t.Fatalf("save registry: %v", err)
	}

	c, out = testCommand()
	if err := c.Stop(context.Background(), flags); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !strings.Contains(out.String(), "Stopped 1 worker process(es)") {
		t.Fatalf("unexpected output: %s", out.String())
	}
	select {
	case <-p.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("worker still running")
	}
}

func TestPrintStatusFormats(t *testing.T) {
	rows := []supervisor.InstanceInfo{
		{Name: "default-1", PID: 101, Running: true, Memory: "12.5 MB", Uptime: "3m"},
		{Name: "default-2", PID: 102, Running: false, Memory: "N/A", Uptime: "N/A"},
	}

	var buf bytes.Buffer
	if err := printStatus(&buf, rows, "table", true); err != nil {
		t.Fatalf("table: %v", err)
	}
	for _, want := range []string{"Worker", "PID", "Status", "Memory", "Uptime", "default-1", "Running", "Stopped", "12.5 MB"} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("table missing %q:\n%s", want, buf.String())
		}
	}

	buf.Reset()
	if err := printStatus(&buf, rows, "yaml", true); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if !strings.Contains(buf.String(), "name: default-2") || !strings.Contains(buf.String(), "running: false") {
		t.Fatalf("unexpected yaml:\n%s", buf.String())
	}

	if err := printStatus(&buf, rows, "xml", true); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestRootFlags(t *testing.T) {
	cfg, _ := writeConfig(t, twoDefaults)

	c, out := testCommand()
	root := buildRoot(c)
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--status", "--config", cfg, "--no-color"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), "No queue workers are currently running.") {
		t.Fatalf("unexpected output: %s", out.String())
	}

	root = buildRoot(c)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--status", "--stop", "--config", cfg})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected mutually exclusive flag error")
	}
}

type staticSource supervisor.Snapshot

func (s staticSource) Snapshot() supervisor.Snapshot { return supervisor.Snapshot(s) }

func TestRemoteStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mw, err := auth.NewMiddleware(auth.Config{Token: "remote"})
	if err != nil {
		t.Fatalf("middleware: %v", err)
	}
	src := staticSource{Instances: []supervisor.InstanceStatus{
		{Name: "default-1", Worker: "default", PID: 4242, Running: true, StartedAt: time.Now().Add(-2 * time.Minute)},
		{Name: "emails", Worker: "emails", PID: 4243, Running: false},
	}}
	ts := httptest.NewServer(server.NewRouter(src, "", nil).WithAuth(mw).Handler())
	defer ts.Close()

	cfg, _ := writeConfig(t, twoDefaults)
	flags := RootFlags{ConfigPath: cfg, Output: "json", NoColor: true, APIURL: ts.URL, APITimeout: 2 * time.Second}

	c, _ := testCommand()
	if err := c.Status(context.Background(), flags); err == nil {
		t.Fatalf("expected unauthorized error")
	}

	flags.APIToken = "remote"
	flags.Worker = "default"
	c, out := testCommand()
	if err := c.Status(context.Background(), flags); err != nil {
		t.Fatalf("status: %v", err)
	}
	var rows []supervisor.InstanceInfo
	if err := json.Unmarshal(out.Bytes(), &rows); err != nil {
		t.Fatalf("decode: %v (%s)", err, out.String())
	}
	if len(rows) != 1 || rows[0].PID != 4242 || rows[0].Uptime != "2m" || rows[0].Memory != "N/A" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestInitWritesLoadableConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nexus.toml")
	flags := RootFlags{ConfigPath: path, Template: "multi", Format: "toml", NoColor: true}

	c, out := testCommand()
	if err := c.Init(flags); err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out.String(), "Workers: default, emails, reports") {
		t.Fatalf("unexpected output: %s", out.String())
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load generated config: %v", err)
	}
	defs, warnings, err := cfg.Definitions()
	if err != nil || len(warnings) != 0 {
		t.Fatalf("definitions: %v %v", err, warnings)
	}
	if len(defs) != 3 || defs[2].Name != "reports" || defs[2].Timeout != 600 {
		t.Fatalf("unexpected defs: %+v", defs)
	}

	c, _ = testCommand()
	if err := c.Init(flags); err == nil {
		t.Fatalf("expected error for existing file")
	}
	flags.Force = true
	flags.Template = "basic"
	if err := c.Init(flags); err != nil {
		t.Fatalf("init --force: %v", err)
	}
}
