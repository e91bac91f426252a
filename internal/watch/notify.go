package watch

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Notifier marks the watched tree dirty when fsnotify reports an event so a
// scan can run before the next poll interval. Scans stay authoritative;
// the notifier only makes them happen sooner.
type Notifier struct {
	w      *fsnotify.Watcher
	dirty  atomic.Bool
	logger *slog.Logger
	done   chan struct{}
}

// NewNotifier watches every directory below dirs recursively.
func NewNotifier(dirs []string, logger *slog.Logger) (*Notifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	n := &Notifier{w: w, logger: logger, done: make(chan struct{})}
	for _, d := range dirs {
		if err := n.addRecursive(d); err != nil {
			logger.Warn("failed to watch directory", "path", d, "error", err)
		}
	}
	go n.loop()
	return n, nil
}

// addRecursive adds a directory and all its subdirectories to the watcher
func (n *Notifier) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(info.Name(), ".") {
			return filepath.SkipDir
		}
		return n.w.Add(path)
	})
}

func (n *Notifier) loop() {
	defer close(n.done)
	for {
		select {
		case ev, ok := <-n.w.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					_ = n.addRecursive(ev.Name)
				}
			}
			n.dirty.Store(true)
		case err, ok := <-n.w.Errors:
			if !ok {
				return
			}
			n.logger.Debug("file watcher error", "error", err)
			n.dirty.Store(true)
		}
	}
}

// Dirty reports whether an event arrived since the last call and resets the
// flag.
func (n *Notifier) Dirty() bool {
	if n == nil {
		return false
	}
	return n.dirty.Swap(false)
}

func (n *Notifier) Close() error {
	if n == nil {
		return nil
	}
	err := n.w.Close()
	<-n.done
	return err
}
