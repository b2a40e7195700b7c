package schemafs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolstats/core"
)

// DebounceDelay is how long changes are collected before the store reloads.
var DebounceDelay = 500 * time.Millisecond

// Watch reloads store whenever a file changes under dir, until ctx is done.
// onChange receives the report types touched by the changes once the reload succeeded.
func Watch(ctx context.Context, store *Store, dir string, logger core.Logger, onChange func(reportTypes ...string)) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating schema watcher")
	}
	err = filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return fsw.Add(p)
		}
		return nil
	})
	if err != nil {
		_ = fsw.Close()
		return errors.Wrapf(err, "watching %s", dir)
	}

	w := &watcher{store: store, dir: dir, fsw: fsw, logger: logger, onChange: onChange, pending: make(map[string]bool)}
	go w.run(ctx)
	return nil
}

type watcher struct {
	store    *Store
	dir      string
	fsw      *fsnotify.Watcher
	logger   core.Logger
	onChange func(reportTypes ...string)

	mu      sync.Mutex
	pending map[string]bool
}

func (w *watcher) run(ctx context.Context) {
	defer w.fsw.Close()
	ticker := time.NewTicker(DebounceDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(evt)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("schemafs.watch: "+err.Error(), err)
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *watcher) handle(evt fsnotify.Event) {
	if evt.Has(fsnotify.Create) {
		if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
			_ = w.fsw.Add(evt.Name)
		}
	}
	rel, err := filepath.Rel(w.dir, evt.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	reportType := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]
	w.mu.Lock()
	w.pending[reportType] = true
	w.mu.Unlock()
}

func (w *watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	types := make([]string, 0, len(w.pending))
	for t := range w.pending {
		types = append(types, t)
	}
	w.pending = make(map[string]bool)
	w.mu.Unlock()

	if err := w.store.Reload(); err != nil {
		w.logger.Error("schemafs.reload: "+err.Error(), err)
		return
	}
	w.logger.Info("schemafs: reloaded " + strings.Join(types, ", "))
	if w.onChange != nil {
		w.onChange(types...)
	}
}
