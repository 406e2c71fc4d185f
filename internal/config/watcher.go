package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ReloadEvent reports that a watched file in the bot home changed.
type ReloadEvent struct {
	Path string
	Op   fsnotify.Op
}

// Watcher watches the hot-reloadable files in the bot home directory: the
// prompt-contract overrides. Consumers drain Events and re-apply.
type Watcher struct {
	homeDir string
	files   []string
	logger  *slog.Logger
	events  chan ReloadEvent
}

// NewWatcher builds a watcher over the named files (relative to homeDir).
func NewWatcher(homeDir string, files []string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		homeDir: homeDir,
		files:   files,
		logger:  logger.With("component", "config"),
		events:  make(chan ReloadEvent, 16),
	}
}

// Events returns the change channel. Closed when the watcher stops.
func (w *Watcher) Events() <-chan ReloadEvent {
	return w.events
}

// Start begins watching until ctx is cancelled. Files that do not exist yet
// are still reported once created, since the watch is on the directory.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory rather than individual files so create/rename
	// (editors writing via temp files) still produce events.
	if err := fsw.Add(w.homeDir); err != nil {
		fsw.Close()
		return err
	}

	watched := make(map[string]struct{}, len(w.files))
	for _, f := range w.files {
		watched[filepath.Join(w.homeDir, f)] = struct{}{}
	}

	go func() {
		defer fsw.Close()
		defer close(w.events)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if _, ok := watched[filepath.Clean(ev.Name)]; !ok {
					continue
				}
				select {
				case w.events <- ReloadEvent{Path: ev.Name, Op: ev.Op}:
				default:
				}
				w.logger.Info("watched file changed", "path", ev.Name, "op", ev.Op.String())
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.logger.Error("file watcher error", "error", err)
			}
		}
	}()
	return nil
}
