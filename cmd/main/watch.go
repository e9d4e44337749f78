package main

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

type fileStamp struct {
	size    int64
	modTime time.Time
}

// Watcher calls onChange when a file under a directory tree is added, removed
// or modified. Events arriving within the delay of each other are coalesced
// into one call. When file notifications are unavailable the tree is polled
// every delay instead.
type Watcher struct {
	root     string
	delay    time.Duration
	onChange func()
	logger   *slog.Logger

	fw   *fsnotify.Watcher
	last map[string]fileStamp
}

// NewWatcher creates a Watcher over root. The current state of the tree is
// the baseline; onChange is only called for later changes.
func NewWatcher(root string, delay time.Duration, logger *slog.Logger, onChange func()) *Watcher {
	w := &Watcher{
		root:     root,
		delay:    delay,
		onChange: onChange,
		logger:   logger,
	}
	fw, err := fsnotify.NewWatcher()
	if err == nil {
		if err = addTree(fw, root); err != nil {
			fw.Close()
		}
	}
	if err != nil {
		logger.Warn("File notifications unavailable, polling source directory", "dir", root, "error", err)
		w.last = w.snapshot()
		return w
	}
	w.fw = fw
	return w
}

// addTree watches dir and every directory below it. fsnotify does not
// recurse on its own.
func addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}

// Run delivers changes until ctx is cancelled, then releases the watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.Close()
	if w.fw == nil {
		w.runPolling(ctx)
		return
	}
	w.logger.Info("Watching source directory", "dir", w.root, "delay", w.delay)

	timer := time.NewTimer(w.delay)
	timer.Stop()
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addTree(w.fw, ev.Name); err != nil {
						w.logger.Warn("Failed to watch new directory", "dir", ev.Name, "error", err)
					}
				}
			}
			w.logger.Debug("Source file changed", "path", ev.Name, "op", ev.Op.String())
			timer.Reset(w.delay)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("File watcher error", "dir", w.root, "error", err)
		case <-timer.C:
			w.onChange()
		}
	}
}

// Close stops file notifications. It is safe to call more than once.
func (w *Watcher) Close() error {
	if w.fw == nil {
		return nil
	}
	return w.fw.Close()
}

func (w *Watcher) runPolling(ctx context.Context) {
	ticker := time.NewTicker(w.delay)
	defer ticker.Stop()
	w.logger.Info("Polling source directory", "dir", w.root, "interval", w.delay)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.poll() {
				w.onChange()
			}
		}
	}
}

// poll takes a new snapshot and reports whether it differs from the last one.
func (w *Watcher) poll() bool {
	current := w.snapshot()
	changed := len(current) != len(w.last)
	if !changed {
		for path, stamp := range current {
			prev, ok := w.last[path]
			if !ok || prev.size != stamp.size || !prev.modTime.Equal(stamp.modTime) {
				changed = true
				w.logger.Debug("Source file changed", "path", path)
				break
			}
		}
	}
	w.last = current
	return changed
}

func (w *Watcher) snapshot() map[string]fileStamp {
	out := make(map[string]fileStamp)
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out[path] = fileStamp{size: info.Size(), modTime: info.ModTime()}
		return nil
	})
	if err != nil {
		w.logger.Warn("Failed to scan source directory", "dir", w.root, "error", err)
	}
	return out
}
