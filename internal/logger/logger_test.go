package logger

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// helper to close non-nil closers and ignore errors
func closeIf(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

func TestWritersWithDir(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: filepath.Join(dir, "logs")}
	outW, errW, err := cfg.Writers("default-1")
	if err != nil {
		t.Fatalf("Writers error: %v", err)
	}
	if outW == nil || errW == nil {
		t.Fatalf("expected both writers non-nil when Dir is set")
	}
	_, _ = outW.Write([]byte("hello-out\n"))
	_, _ = errW.Write([]byte("hello-err\n"))
	closeIf(outW)
	closeIf(errW)
	for _, name := range []string{"default-1.stdout.log", "default-1.stderr.log"} {
		if _, err := os.Stat(filepath.Join(dir, "logs", name)); err != nil {
			t.Fatalf("log not created: %s: %v", name, err)
		}
	}
}

func TestWritersWithoutDir(t *testing.T) {
	outW, errW, err := Config{}.Writers("x")
	if err != nil || outW != nil || errW != nil {
		t.Fatalf("expected no writers without Dir, got %v %v %v", outW, errW, err)
	}
	if _, _, err := (Config{Dir: t.TempDir()}).Writers("../x"); err == nil {
		t.Fatalf("expected error for path-like instance name")
	}
}

func TestValOr(t *testing.T) {
	if valOr(0, 5) != 5 || valOr(-1, 5) != 5 || valOr(3, 5) != 3 {
		t.Fatalf("valOr mismatch")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestColorHandlerKeepsColorWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewColorTextHandler(&buf, nil, false)).With("worker", "default")
	l.Warn("restarting")
	out := buf.String()
	if !strings.Contains(out, "\033[33mWARN\033[0m") {
		t.Fatalf("expected colored level, got %q", out)
	}
	if !strings.Contains(out, "worker=default") {
		t.Fatalf("expected attrs, got %q", out)
	}
	if strings.Contains(out, "time=") {
		t.Fatalf("time should be omitted, got %q", out)
	}
	if !strings.HasPrefix(out, "\033[33mWARN\033[0m  msg=restarting") || strings.Contains(out, "level=") {
		t.Fatalf("level should lead the line once, got %q", out)
	}
}

func TestNewConsoleMessageNotEscaped(t *testing.T) {
	var buf bytes.Buffer
	l, closer := New(Config{Level: "info"}, &buf)
	defer closeIf(closer)
	l.Info("started worker", "instance", "default-1")
	out := buf.String()
	if !strings.Contains(out, `msg="started worker" instance=default-1`) {
		t.Fatalf("message should be plain, got %q", out)
	}
	if strings.Contains(out, `\x1b`) || strings.Count(out, "INFO") != 1 {
		t.Fatalf("escaped or duplicated level in %q", out)
	}
	if strings.Count(out, "\n") != 1 {
		t.Fatalf("expected a single line, got %q", out)
	}
}

func TestNewWithFileWritesPlainText(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "nexus.log")
	l, closer := New(Config{File: path, Level: "debug"}, &console)
	l.Debug("hello", "k", "v")
	closeIf(closer)

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), "msg=hello") || strings.Contains(string(b), "\033[") {
		t.Fatalf("unexpected file content %q", string(b))
	}
	if !strings.Contains(console.String(), "hello") {
		t.Fatalf("console missing record: %q", console.String())
	}
}
