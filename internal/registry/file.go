package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// File is a Registry backed by a single JSON object file such as
// {"default-1": 1234, "test": 1240}.
type File struct {
	path string
}

func NewFile(path string) *File { return &File{path: path} }

func (f *File) Location() string { return f.path }

// Save writes the snapshot through a temporary file and rename so readers
// never observe a partial file.
func (f *File) Save(_ context.Context, s Snapshot) error {
	if s == nil {
		s = Snapshot{}
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp registry: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close registry: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace registry: %w", err)
	}
	return nil
}

func (f *File) Load(_ context.Context) (Snapshot, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, nil
		}
		return Snapshot{}, err
	}
	if strings.TrimSpace(string(b)) == "" {
		return Snapshot{}, nil
	}
	var s Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, f.path, err)
	}
	if s == nil {
		s = Snapshot{}
	}
	return s, nil
}

func (f *File) Remove(_ context.Context) error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (f *File) Close() error { return nil }
