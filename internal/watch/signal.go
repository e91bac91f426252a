package watch

import (
	"os"
	"time"
)

// SignalFile is a file whose modification time requests a fleet restart,
// e.g. the framework's queue restart marker touched by a deployment.
type SignalFile struct {
	Path string
}

// ModifiedAfter reports whether the file exists and its mtime is strictly
// newer than t.
func (s SignalFile) ModifiedAfter(t time.Time) bool {
	if s.Path == "" {
		return false
	}
	fi, err := os.Stat(s.Path)
	if err != nil {
		return false
	}
	return fi.ModTime().After(t)
}
