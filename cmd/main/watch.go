package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/CTAG07/babbler/pkg/markov"
)

// modelWatcher reloads the model file into a chain whenever it changes on
// disk. A file that fails to load is logged and the current model is kept.
type modelWatcher struct {
	path     string
	chain    *markov.Chain
	debounce time.Duration
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
}

// newModelWatcher starts watching the directory holding path. Watching the
// directory rather than the file survives atomic replacement by rename.
func newModelWatcher(path string, chain *markov.Chain, debounce time.Duration, logger *slog.Logger) (*modelWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		_ = watcher.Close()
		return nil, err
	}
	if err = watcher.Add(filepath.Dir(absPath)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(absPath), err)
	}
	return &modelWatcher{
		path:     absPath,
		chain:    chain,
		debounce: debounce,
		logger:   logger,
		watcher:  watcher,
	}, nil
}

// Run processes file events until ctx is cancelled or the watcher is closed.
func (mw *modelWatcher) Run(ctx context.Context) {
	timer := time.NewTimer(mw.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-mw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != mw.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				timer.Reset(mw.debounce)
			}

		case err, ok := <-mw.watcher.Errors:
			if !ok {
				return
			}
			mw.logger.WarnContext(ctx, "Model watcher error", "error", err)

		case <-timer.C:
			mw.reload(ctx)
		}
	}
}

func (mw *modelWatcher) reload(ctx context.Context) {
	if err := mw.chain.LoadFile(ctx, mw.path); err != nil {
		mw.logger.WarnContext(ctx, "Model reload failed, keeping current model",
			slog.String("path", mw.path),
			slog.Any("error", err),
		)
	}
}

// Close stops watching.
func (mw *modelWatcher) Close() error {
	return mw.watcher.Close()
}
