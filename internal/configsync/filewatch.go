package configsync

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// FileWatcher calls back when the options file is written or replaced. The
// parent directory is watched so atomic renames are seen too.
type FileWatcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
}

func NewFileWatcher(path string, debounce time.Duration, logger *slog.Logger) *FileWatcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileWatcher{path: filepath.Clean(path), debounce: debounce, logger: logger}
}

// Run blocks until ctx is cancelled.
func (w *FileWatcher) Run(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	var (
		mu      sync.Mutex
		pending *time.Timer
	)
	defer func() {
		mu.Lock()
		if pending != nil {
			pending.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			w.logger.Debug("options file changed", "path", event.Name, "op", event.Op.String())

			mu.Lock()
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(w.debounce, func() {
				if ctx.Err() == nil {
					onChange()
				}
			})
			mu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("options watcher error", "err", err)
		}
	}
}
