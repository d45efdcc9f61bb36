package analytics

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultReloadDebounce = 250 * time.Millisecond

// Watcher reloads a MemoryStore whenever its catalog file changes on disk.
type Watcher struct {
	store    *MemoryStore
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

// NewWatcher watches the directory holding path so that editor rename-and-replace saves are seen.
func NewWatcher(store *MemoryStore, path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve catalog path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create catalog watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch catalog directory: %w", err)
	}

	return &Watcher{
		store:    store,
		path:     abs,
		debounce: defaultReloadDebounce,
		watcher:  fsw,
	}, nil
}

// Run processes file events until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			if err := w.store.Reload(w.path); err != nil {
				log.Printf("[catalog] reload %s failed, keeping previous catalog: %v", w.path, err)
				continue
			}
			log.Printf("[catalog] reloaded %s (%d models)", w.path, len(w.store.List()))

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[catalog] watcher error: %v", err)
		}
	}
}
