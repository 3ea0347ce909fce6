package state

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchFile invokes onChange (debounced) whenever path is written, created or
// replaced. The parent directory is watched so atomic rename saves are seen.
// It blocks until ctx is done.
func WatchFile(ctx context.Context, path string, debounce time.Duration, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, onChange)
			mu.Unlock()
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("File watcher error", "path", abs, "error", werr)
		}
	}
}

// credentialsDebounce collapses the write bursts of one atomic save.
const credentialsDebounce = 200 * time.Millisecond

// WatchCredentials reloads the store after every external edit of its file
// and hands the result to onChange. Unreadable intermediate states are logged
// and skipped. It blocks until ctx is done.
func WatchCredentials(ctx context.Context, store *FileCredentialStore, onChange func(Credentials)) error {
	return WatchFile(ctx, store.Path(), credentialsDebounce, func() {
		c, err := store.Load()
		if err != nil {
			slog.Warn("Failed to reload credentials", "path", store.Path(), "error", err)
			return
		}
		onChange(c)
	})
}
