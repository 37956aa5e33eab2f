// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orchestrator

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kbrag/kbrag/internal/rerrors"
)

// FileWatcher watches a directory tree for changes matching a glob pattern
// and feeds Orchestrator.IngestDocument/removeDocument on each event.
//
// Adapted from T v2/rag/watcher.go's FileWatcher: same fsnotify setup,
// recursive directory add, and debounced event coalescing, re-keyed from a
// generic DocumentEvent channel into direct calls against this package's
// Orchestrator.
type FileWatcher struct {
	orch          *Orchestrator
	watcher       *fsnotify.Watcher
	basePath      string
	pattern       string
	debounceDelay time.Duration

	mu         sync.Mutex
	isWatching bool
	cancel     context.CancelFunc
}

// NewFileWatcher returns a watcher over root, matching files against
// pattern the same way IngestDirectory does.
func NewFileWatcher(orch *Orchestrator, root, pattern string) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, rerrors.NewDocumentStoreError(DocumentCollection, "new_watcher", err)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		w.Close()
		return nil, rerrors.NewDocumentStoreError(DocumentCollection, "resolve_path", err)
	}
	return &FileWatcher{
		orch:          orch,
		watcher:       w,
		basePath:      absRoot,
		pattern:       pattern,
		debounceDelay: 200 * time.Millisecond,
	}, nil
}

// Start begins watching. It blocks until ctx is cancelled or Stop is
// called, running the event loop on the calling goroutine; callers
// typically invoke this with `go`.
func (fw *FileWatcher) Start(ctx context.Context) error {
	fw.mu.Lock()
	if fw.isWatching {
		fw.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	fw.cancel = cancel
	fw.isWatching = true
	fw.mu.Unlock()

	if err := fw.addRecursive(fw.basePath); err != nil {
		return rerrors.NewDocumentStoreError(DocumentCollection, "setup_watch", err)
	}

	slog.Info("started directory watch", "path", fw.basePath, "pattern", fw.pattern)
	fw.watchEvents(ctx)
	return nil
}

// Stop ends the watch loop and releases the underlying fsnotify watcher.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if !fw.isWatching {
		return nil
	}
	fw.cancel()
	fw.isWatching = false
	return fw.watcher.Close()
}

func (fw *FileWatcher) addRecursive(root string) error {
	if err := fw.watcher.Add(root); err != nil {
		return err
	}
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != root {
			if err := fw.watcher.Add(path); err != nil {
				slog.Warn("failed to watch directory", "path", path, "error", err)
			}
		}
		return nil
	})
}

func (fw *FileWatcher) matches(path string) bool {
	if fw.pattern == "" {
		return true
	}
	ok, err := filepath.Match(fw.pattern, filepath.Base(path))
	return err == nil && ok
}

func (fw *FileWatcher) watchEvents(ctx context.Context) {
	pending := make(map[string]fsnotify.Event)
	var pendingMu sync.Mutex
	var debounce *time.Timer

	flush := func() {
		pendingMu.Lock()
		events := pending
		pending = make(map[string]fsnotify.Event)
		pendingMu.Unlock()
		for _, ev := range events {
			fw.handle(ctx, ev)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			flush()
			return

		case ev, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			if !fw.matches(ev.Name) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() && ev.Op&fsnotify.Create != 0 {
					if err := fw.watcher.Add(ev.Name); err != nil {
						slog.Warn("failed to watch new directory", "path", ev.Name, "error", err)
					}
				}
				continue
			}

			pendingMu.Lock()
			pending[ev.Name] = ev
			pendingMu.Unlock()

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(fw.debounceDelay, flush)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("directory watch error", "path", fw.basePath, "error", err)
		}
	}
}

func (fw *FileWatcher) handle(ctx context.Context, ev fsnotify.Event) {
	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		if _, err := fw.orch.IngestDocument(ctx, ev.Name, false); err != nil {
			slog.Warn("watch re-ingest failed", "path", ev.Name, "error", err)
		}

	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if err := fw.orch.removeDocument(ctx, ev.Name); err != nil {
			slog.Warn("watch removal failed", "path", ev.Name, "error", err)
		}
	}
}
