// Package watch detects the two external restart requests: a touched
// restart-signal file and changed application source files.
package watch

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Defaults for the file-change trigger.
var (
	DefaultPaths      = []string{"app", "config", "routes", "database/migrations", "resources/views"}
	DefaultExtensions = []string{"php", "env"}
)

// Snapshot maps a path relative to the scan root to its modification time.
type Snapshot map[string]time.Time

// Scanner walks Paths below Root and records files whose extension is in
// Extensions.
type Scanner struct {
	Root       string
	Paths      []string
	Extensions []string
}

// NewScanner applies the defaults for empty paths and extensions.
func NewScanner(root string, paths, extensions []string) *Scanner {
	if len(paths) == 0 {
		paths = DefaultPaths
	}
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	exts := make([]string, 0, len(extensions))
	for _, e := range extensions {
		if e = strings.TrimPrefix(strings.TrimSpace(e), "."); e != "" {
			exts = append(exts, e)
		}
	}
	return &Scanner{Root: root, Paths: paths, Extensions: exts}
}

// Dirs returns the absolute watched directories that exist.
func (s *Scanner) Dirs() []string {
	var out []string
	for _, p := range s.Paths {
		full := s.abs(p)
		if fi, err := os.Stat(full); err == nil && fi.IsDir() {
			out = append(out, full)
		}
	}
	return out
}

// Scan records the current modification times. Missing directories and
// files that vanish during the walk are skipped.
func (s *Scanner) Scan() Snapshot {
	snap := Snapshot{}
	for _, dir := range s.Dirs() {
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				// unreadable subtree
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() || !s.matches(d.Name()) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			snap[s.rel(path)] = info.ModTime()
			return nil
		})
	}
	return snap
}

func (s *Scanner) matches(name string) bool {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if ext == "" {
		return false
	}
	for _, e := range s.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func (s *Scanner) abs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.Root, p)
}

func (s *Scanner) rel(path string) string {
	if r, err := filepath.Rel(s.Root, path); err == nil {
		return filepath.ToSlash(r)
	}
	return filepath.ToSlash(path)
}

// Changes is the difference between two snapshots.
type Changes struct {
	Changed []string // new or modified
	Deleted []string
}

// Diff compares old with cur. Both lists are sorted.
func Diff(old, cur Snapshot) Changes {
	var c Changes
	for p, mt := range cur {
		if prev, ok := old[p]; !ok || !prev.Equal(mt) {
			c.Changed = append(c.Changed, p)
		}
	}
	for p := range old {
		if _, ok := cur[p]; !ok {
			c.Deleted = append(c.Deleted, p)
		}
	}
	sort.Strings(c.Changed)
	sort.Strings(c.Deleted)
	return c
}

func (c Changes) Empty() bool { return len(c.Changed) == 0 && len(c.Deleted) == 0 }

func (c Changes) Len() int { return len(c.Changed) + len(c.Deleted) }

// Lines lists changed paths followed by "<path> (deleted)" entries.
func (c Changes) Lines() []string {
	out := make([]string, 0, c.Len())
	out = append(out, c.Changed...)
	for _, d := range c.Deleted {
		out = append(out, d+" (deleted)")
	}
	return out
}

// Summary returns at most limit lines, plus "... and N more files" when
// entries were left out.
func (c Changes) Summary(limit int) []string {
	lines := c.Lines()
	if limit <= 0 || len(lines) <= limit {
		return lines
	}
	out := append([]string(nil), lines[:limit]...)
	return append(out, "... and "+strconv.Itoa(len(lines)-limit)+" more files")
}
