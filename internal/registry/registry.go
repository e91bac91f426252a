// Package registry persists the instance name to PID mapping of a running
// fleet so that later invocations can find, report on and stop it.
package registry

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// Snapshot maps instance names to process ids.
type Snapshot map[string]int

// Names returns the instance names in sorted order.
func (s Snapshot) Names() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ErrCorrupt is returned by Load together with an empty snapshot when the
// stored data cannot be decoded.
var ErrCorrupt = errors.New("registry: corrupt data")

// Registry stores the latest Snapshot. Save replaces the whole mapping.
// Load on a registry that was never written or was removed returns an empty
// snapshot and no error.
type Registry interface {
	Save(ctx context.Context, s Snapshot) error
	Load(ctx context.Context) (Snapshot, error)
	Remove(ctx context.Context) error
	Location() string
	Close() error
}

// Open selects a backend from dsn:
//   - "sqlite://<path>" stores the mapping in a SQLite table
//   - anything else is a path to a JSON file
func Open(dsn string) (Registry, error) {
	d := strings.TrimSpace(dsn)
	if d == "" {
		return nil, errors.New("registry: empty location")
	}
	if strings.HasPrefix(strings.ToLower(d), "sqlite://") {
		return OpenSQLite(d[len("sqlite://"):])
	}
	return NewFile(d), nil
}
