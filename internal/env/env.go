// Package env composes the environment handed to worker processes.
package env

import (
	"os"
	"sort"
	"strings"
)

type Vars map[string]string

// Env layers configured variables over the supervisor's own environment.
type Env struct {
	base   Vars // snapshot of os.Environ
	global Vars // host-wide overrides from configuration
}

// FromOS snapshots the current process environment as the base layer.
func FromOS() *Env {
	return &Env{base: Parse(os.Environ()), global: Vars{}}
}

// Empty starts from no base variables at all.
func Empty() *Env { return &Env{base: Vars{}, global: Vars{}} }

// Set adds a host-wide override.
func (e *Env) Set(k, v string) {
	if k == "" {
		return
	}
	e.global[k] = v
}

// SetList adds host-wide overrides from "K=V" entries.
func (e *Env) SetList(kvs []string) {
	for k, v := range Parse(kvs) {
		e.global[k] = v
	}
}

// Merge returns the sorted "K=V" environment for one worker: base, then
// host-wide overrides, then perWorker entries. ${VAR} references are expanded
// against the composed set, one level deep.
func (e *Env) Merge(perWorker []string) []string {
	m := make(Vars, len(e.base)+len(e.global)+len(perWorker))
	for k, v := range e.base {
		m[k] = v
	}
	for k, v := range e.global {
		m[k] = v
	}
	for k, v := range Parse(perWorker) {
		m[k] = v
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	sort.Strings(out)
	return out
}

// Parse turns "K=V" entries into a map, skipping malformed ones.
func Parse(kvs []string) Vars {
	m := make(Vars, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		m[k] = v
	}
	return m
}

func expand(s string, m Vars) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, func(name string) string {
		if v, ok := m[name]; ok {
			return v
		}
		return "${" + name + "}"
	})
}
