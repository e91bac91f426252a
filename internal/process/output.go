package process

import (
	"bytes"
	"strings"
	"sync"
)

// DefaultBufferLimit bounds the unread output kept per stream.
const DefaultBufferLimit = 256 * 1024

// Output collects a child's stream so it can be drained incrementally. It is
// written by os/exec copy goroutines and read by the supervisor loop.
type Output struct {
	mu      sync.Mutex
	buf     []byte
	limit   int
	dropped int64
}

func newOutput(limit int) *Output {
	if limit <= 0 {
		limit = DefaultBufferLimit
	}
	return &Output{limit: limit}
}

// Write appends p. When unread data exceeds the limit the oldest bytes are
// discarded; Write never blocks the child.
func (o *Output) Write(p []byte) (int, error) {
	o.mu.Lock()
	o.buf = append(o.buf, p...)
	if over := len(o.buf) - o.limit; over > 0 {
		o.dropped += int64(over)
		o.buf = append(o.buf[:0:0], o.buf[over:]...)
	}
	o.mu.Unlock()
	return len(p), nil
}

// Lines returns the complete lines written since the last call. A trailing
// partial line stays buffered until its newline arrives or Flush is called.
func (o *Output) Lines() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	i := bytes.LastIndexByte(o.buf, '\n')
	if i < 0 {
		return nil
	}
	chunk := string(o.buf[:i])
	o.buf = append(o.buf[:0:0], o.buf[i+1:]...)
	return splitLines(chunk)
}

// Flush returns everything still buffered, including a partial last line.
func (o *Output) Flush() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.buf) == 0 {
		return nil
	}
	chunk := strings.TrimSuffix(string(o.buf), "\n")
	o.buf = nil
	return splitLines(chunk)
}

// Pending returns the unread data without consuming it.
func (o *Output) Pending() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return string(o.buf)
}

// Dropped reports how many bytes were discarded because nobody read them.
func (o *Output) Dropped() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}

func splitLines(s string) []string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
