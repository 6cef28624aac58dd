// Package fswatch wraps fsnotify with the handling a single watched file
// needs: editors and sync tools often save by renaming a temp file over the
// original, which drops the inotify watch, so the parent directory is watched
// and events are filtered by name.
package fswatch

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/m-mizutani/goerr/v2"
)

// DefaultDebounce coalesces the burst of events a single save produces.
const DefaultDebounce = 200 * time.Millisecond

// Watch calls onChange after path is written, created or replaced. Bursts of
// events within debounce are reported once. Watch blocks until ctx is
// cancelled.
func Watch(ctx context.Context, path string, debounce time.Duration, onChange func()) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return goerr.Wrap(err, "resolve watch path", goerr.V("path", path))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return goerr.Wrap(err, "create fsnotify watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return goerr.Wrap(err, "watch directory", goerr.V("dir", filepath.Dir(abs)))
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			onChange()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("fswatch: watcher error", "path", abs, "err", err)
		}
	}
}
