package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/nexus/internal/history"
)

func TestSinkWritesEvents(t *testing.T) {
	ctx := context.Background()
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "history.db")
	sink, err := New(dsn)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	events := []history.Event{
		{Type: history.EventStart, OccurredAt: time.Now(), RunID: "r1", Instance: "default-1", Worker: "default", Queue: "default", PID: 100},
		{Type: history.EventCrash, OccurredAt: time.Now(), RunID: "r1", Instance: "default-1", Worker: "default", Queue: "default", PID: 100, Error: "exit status 1"},
		{Type: history.EventRestart, OccurredAt: time.Now(), RunID: "r1", Instance: "default-1", Worker: "default", Queue: "default", PID: 101, Reason: "crash"},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("send %s: %v", e.Type, err)
		}
	}

	var count int
	if err := sink.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM worker_history WHERE instance = ?`, "default-1").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 rows, got %d", count)
	}

	var reason string
	if err := sink.db.QueryRowContext(ctx, `SELECT reason FROM worker_history WHERE type = 'restart'`).Scan(&reason); err != nil {
		t.Fatalf("reason: %v", err)
	}
	if reason != "crash" {
		t.Fatalf("reason = %q", reason)
	}
}

func TestNewEmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
	if _, err := New("sqlite://"); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestInMemory(t *testing.T) {
	sink, err := New("sqlite://:memory:")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = sink.Close() }()
	if err := sink.Send(context.Background(), history.Event{Type: history.EventStop, Instance: "x", Worker: "x"}); err != nil {
		t.Fatalf("send: %v", err)
	}
}
