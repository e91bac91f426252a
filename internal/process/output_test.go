package process

import (
	"strings"
	"testing"
)

func TestOutputLinesKeepsPartial(t *testing.T) {
	o := newOutput(0)
	_, _ = o.Write([]byte("first\nsec"))
	if got := o.Lines(); len(got) != 1 || got[0] != "first" {
		t.Fatalf("lines = %q", got)
	}
	if got := o.Lines(); got != nil {
		t.Fatalf("partial line returned early: %q", got)
	}
	_, _ = o.Write([]byte("ond\r\nthird\n"))
	if got := o.Lines(); strings.Join(got, "|") != "second|third" {
		t.Fatalf("lines = %q", got)
	}
	if o.Pending() != "" {
		t.Fatalf("pending = %q", o.Pending())
	}
}

func TestOutputFlush(t *testing.T) {
	o := newOutput(0)
	if o.Flush() != nil {
		t.Fatalf("empty flush should be nil")
	}
	_, _ = o.Write([]byte("a\nb"))
	if got := o.Flush(); strings.Join(got, "|") != "a|b" {
		t.Fatalf("flush = %q", got)
	}
}

func TestOutputLimitDropsOldest(t *testing.T) {
	o := newOutput(8)
	_, _ = o.Write([]byte("0123456789\n"))
	if o.Dropped() != 3 {
		t.Fatalf("dropped = %d", o.Dropped())
	}
	if o.Pending() != "3456789\n" {
		t.Fatalf("pending = %q", o.Pending())
	}
}
