// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package supervisor

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce collapses the burst of events a file copy produces.
const DefaultWatchDebounce = 500 * time.Millisecond

// ResourceWatcher watches the engine directory and calls onChange after the
// executable or the weights file is written, created, renamed or removed.
//
// Events are debounced. If onChange fails (typically because a search is in
// flight) it is retried after another debounce period until it succeeds or
// the watcher stops.
//
// Thread Safety:
//
//	Run should be called once. Close is safe to call multiple times.
type ResourceWatcher struct {
	dir      string
	names    map[string]struct{}
	onChange func(ctx context.Context) error
	debounce time.Duration
	logger   *slog.Logger
	watcher  *fsnotify.Watcher

	closeOnce sync.Once
}

// NewResourceWatcher watches the files locator resolves to.
//
// Inputs:
//
//	locator - Directory and file names to watch.
//	debounce - Quiet period before onChange runs. Zero uses DefaultWatchDebounce.
//	onChange - Called from Run's goroutine.
//	logger - Nil uses slog.Default().
func NewResourceWatcher(locator DirLocator, debounce time.Duration, onChange func(ctx context.Context) error, logger *slog.Logger) (*ResourceWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	exe := locator.Executable
	if exe == "" {
		exe = DefaultExecutableName
	}
	weights := locator.Weights
	if weights == "" {
		weights = DefaultWeightsName
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(locator.Dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	return &ResourceWatcher{
		dir:      filepath.Clean(locator.Dir),
		names:    map[string]struct{}{exe: {}, weights: {}},
		onChange: onChange,
		debounce: debounce,
		logger:   logger,
		watcher:  w,
	}, nil
}

// Run handles events until ctx ends or the watcher is closed.
func (w *ResourceWatcher) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	w.logger.Debug("watching engine resources", slog.String("dir", w.dir))
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("engine resource changed",
				slog.String("path", event.Name),
				slog.String("op", event.Op.String()),
			)
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("engine resource watcher error", slog.String("error", err.Error()))

		case <-timer.C:
			if err := w.onChange(ctx); err != nil {
				w.logger.Info("engine reload deferred", slog.String("error", err.Error()))
				timer.Reset(w.debounce)
				continue
			}
			w.logger.Info("engine resources changed, engine will relaunch on next use")

		case <-ctx.Done():
			return
		}
	}
}

func (w *ResourceWatcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(filepath.Dir(event.Name)) != w.dir {
		return false
	}
	if _, ok := w.names[filepath.Base(event.Name)]; !ok {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0
}

// Close stops watching.
func (w *ResourceWatcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.watcher.Close()
	})
	return err
}
