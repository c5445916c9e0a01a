package detector

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FsWatcher abstracts filesystem event monitoring, satisfied by
// *fsnotify.Watcher; tests inject a fake. Grounded on the teacher's
// observer_local.go FsWatcher interface.
type FsWatcher interface {
	Add(name string) error
	Remove(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsnotifyWrapper struct{ w *fsnotify.Watcher }

func (fw *fsnotifyWrapper) Add(name string) error         { return fw.w.Add(name) }
func (fw *fsnotifyWrapper) Remove(name string) error       { return fw.w.Remove(name) }
func (fw *fsnotifyWrapper) Close() error                  { return fw.w.Close() }
func (fw *fsnotifyWrapper) Events() <-chan fsnotify.Event { return fw.w.Events }
func (fw *fsnotifyWrapper) Errors() <-chan error          { return fw.w.Errors }

// sweepInterval is how often the pending-rename table is swept for
// timed-out entries while Watch is running.
const sweepInterval = 2 * time.Second

// WatcherFactory constructs a FsWatcher; overridable in tests.
type WatcherFactory func() (FsWatcher, error)

var defaultWatcherFactory WatcherFactory = func() (FsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &fsnotifyWrapper{w: w}, nil
}

// Watch monitors the folder for changes via fsnotify and sends classified
// LocalChange values to out until ctx is canceled. It also runs the
// pending-rename sweep on sweepInterval.
func (d *Detector) Watch(ctx context.Context, out chan<- LocalChange) error {
	return d.WatchWith(ctx, defaultWatcherFactory, out)
}

// WatchWith is Watch with an injectable watcher factory, for tests.
func (d *Detector) WatchWith(ctx context.Context, factory WatcherFactory, out chan<- LocalChange) error {
	watcher, err := factory()
	if err != nil {
		return fmt.Errorf("detector: creating filesystem watcher: %w", err)
	}
	defer watcher.Close()

	if err := d.addWatchesRecursive(watcher); err != nil {
		return fmt.Errorf("detector: adding initial watches: %w", err)
	}

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events():
			if !ok {
				return nil
			}

			d.handleWatchEvent(ctx, watcher, ev, out)

		case err, ok := <-watcher.Errors():
			if !ok {
				return nil
			}

			d.logger.Warn("filesystem watcher error", slog.String("error", err.Error()))

		case <-ticker.C:
			changes, err := d.Sweep(ctx)
			if err != nil {
				d.logger.Warn("pending-rename sweep failed", slog.String("error", err.Error()))
				continue
			}

			for _, c := range changes {
				d.trySend(ctx, out, c)
			}
		}
	}
}

func (d *Detector) handleWatchEvent(ctx context.Context, watcher FsWatcher, ev fsnotify.Event, out chan<- LocalChange) {
	op := classifyOp(ev.Op)

	change, err := d.HandleRawEvent(ctx, ev.Name, op)
	if err != nil {
		d.logger.Warn("classifying event failed", slog.String("path", ev.Name), slog.String("error", err.Error()))
		return
	}

	if ev.Op&fsnotify.Create != 0 {
		if info, statErr := statDir(ev.Name); statErr == nil && info {
			if addErr := watcher.Add(ev.Name); addErr != nil {
				d.logger.Warn("failed to add watch for new directory", slog.String("path", ev.Name), slog.String("error", addErr.Error()))
			}
		}
	}

	if change != nil {
		d.trySend(ctx, out, *change)
	}
}

// trySend sends without blocking; a full channel drops the event, relying
// on the periodic sweep/full-reconcile pass for eventual consistency
// (grounded on the teacher's LocalObserver.trySend).
func (d *Detector) trySend(ctx context.Context, out chan<- LocalChange, change LocalChange) {
	select {
	case out <- change:
	case <-ctx.Done():
	default:
		d.logger.Warn("change channel full, dropping event", slog.String("path", change.Path), slog.String("kind", change.Kind.String()))
	}
}

func (d *Detector) addWatchesRecursive(watcher FsWatcher) error {
	return filepath.WalkDir(d.root, func(fsPath string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			d.logger.Warn("walk error during watch setup", slog.String("path", fsPath), slog.String("error", walkErr.Error()))
			return nil
		}

		if !entry.IsDir() {
			return nil
		}

		relPath, relErr := canonicalPath(d.root, fsPath)
		if relErr == nil && d.ignore.Match(relPath) {
			return filepath.SkipDir
		}

		if err := watcher.Add(fsPath); err != nil {
			d.logger.Warn("failed to add watch", slog.String("path", fsPath), slog.String("error", err.Error()))
		}

		return nil
	})
}

func classifyOp(op fsnotify.Op) Op {
	switch {
	case op&fsnotify.Remove != 0:
		return OpRemove
	case op&fsnotify.Rename != 0:
		return OpRename
	default:
		return OpWrite
	}
}

func statDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}

	return info.IsDir(), nil
}
