package session

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/abworrall/cmdphot/pkg/photom"
)

// LabelsWatcher calls OnChange once at startup, and again whenever the
// labels file is written. Bursts of events (editors often write a file
// in several steps) are collapsed into one call. Calls run one at a
// time on the goroutine that called Run.
type LabelsWatcher struct {
	Filename string
	Delay    time.Duration
	OnChange func(ctx context.Context) error
}

func NewLabelsWatcher(filename string, onChange func(ctx context.Context) error) *LabelsWatcher {
	return &LabelsWatcher{Filename: filename, Delay: 200 * time.Millisecond, OnChange: onChange}
}

// Run watches the directory holding the labels file (so that files
// replaced by rename are still seen) until ctx is done. It does not
// return while an OnChange call is in progress.
func (w *LabelsWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("labels watcher: failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.Filename)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("labels watcher: failed to watch %s: %w", dir, err)
	}

	w.fire(ctx)

	var debounce *time.Timer
	var pending <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
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
			if filepath.Base(event.Name) != filepath.Base(w.Filename) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(w.Delay)
			pending = debounce.C

		case <-pending:
			pending = nil
			w.fire(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			photom.Log.Warn().Err(err).Str("file", w.Filename).Msg("labels watcher error")
		}
	}
}

func (w *LabelsWatcher) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := w.OnChange(ctx); err != nil {
		photom.Log.Error().Err(err).Str("file", w.Filename).Msg("labels update failed")
		return
	}
	photom.Log.Info().Str("file", w.Filename).Msg("labels applied")
}
