// Copyright 2025 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bootstrap

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/abcxyz/pkg/logging"
)

// DefaultDebounce coalesces the bursts of events written by editors and
// config management tools.
const DefaultDebounce = 500 * time.Millisecond

// ReloadFunc receives the result of every load.
type ReloadFunc func(ctx context.Context, connections []*Connection, err error)

// Watcher reloads the connections of a directory whenever it changes.
type Watcher struct {
	loader   *Loader
	dir      string
	debounce time.Duration
	onReload ReloadFunc

	current atomic.Pointer[[]*Connection]
}

// NewWatcher creates a Watcher. onReload may be nil.
func NewWatcher(loader *Loader, dir string, debounce time.Duration, onReload ReloadFunc) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		loader:   loader,
		dir:      dir,
		debounce: debounce,
		onReload: onReload,
	}
}

// Connections returns the connections of the last load.
func (w *Watcher) Connections() []*Connection {
	if c := w.current.Load(); c != nil {
		return *c
	}
	return nil
}

// Run loads the directory once and then on every change until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	dir, err := w.loader.resolve(w.dir)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch connections directory %s: %w", dir, err)
	}

	w.reload(ctx, dir)

	debounceTimer := time.NewTimer(0)
	<-debounceTimer.C
	defer debounceTimer.Stop()
	needsReload := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				logger.DebugContext(ctx, "connection file changed",
					"file", event.Name,
					"op", event.Op.String())
				needsReload = true
				debounceTimer.Reset(w.debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.ErrorContext(ctx, "connection watcher error", "error", err)
		case <-debounceTimer.C:
			if needsReload {
				w.reload(ctx, dir)
				needsReload = false
			}
		}
	}
}

func (w *Watcher) reload(ctx context.Context, dir string) {
	logger := logging.FromContext(ctx)

	connections, err := w.loader.Load(dir)
	w.current.Store(&connections)
	if err != nil {
		logger.ErrorContext(ctx, "invalid connection definitions", "dir", dir, "error", err)
	} else {
		logger.InfoContext(ctx, "loaded connections", "dir", dir, "count", len(connections))
	}
	if w.onReload != nil {
		w.onReload(ctx, connections, err)
	}
}
