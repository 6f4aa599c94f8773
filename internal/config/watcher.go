package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the domain configuration file whenever it changes on
// disk, pushing each successful reload onto Updates. Failed reloads are
// logged and skipped — the last good Resolved stays in effect.
type Watcher struct {
	path    string
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	Updates chan *Resolved
	doneCh  chan struct{}
}

// NewWatcher starts watching the directory containing path (fsnotify
// watches directories, not individual files, so editors that replace the
// file via rename-over still trigger an event).
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	return &Watcher{
		path:    path,
		logger:  logger,
		watcher: fsw,
		Updates: make(chan *Resolved, 1),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins watching until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)
	defer w.watcher.Close()

	var debounce *time.Timer
	debounced := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, func() {
				select {
				case debounced <- struct{}{}:
				default:
				}
			})
		case <-debounced:
			cfg, err := Load(w.path)
			if err != nil {
				w.logger.Warn("config reload failed, keeping previous configuration", "path", w.path, "error", err)
				continue
			}
			select {
			case w.Updates <- cfg:
			default:
				<-w.Updates
				w.Updates <- cfg
			}
			w.logger.Info("config reloaded", "path", w.path)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

// Stop blocks until the watch loop exits.
func (w *Watcher) Stop() {
	<-w.doneCh
}
