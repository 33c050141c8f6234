package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/removin/removin/internal/filehandler"
)

// defaultPollInterval is how often the directory is rescanned.
const defaultPollInterval = 5 * time.Second

// Watcher reports image files appearing in a directory. Implementations
// call onFile with the bare file name; duplicate reports are expected and
// deduplicated by the caller.
type Watcher interface {
	Watch(ctx context.Context, dir string, onFile func(name string)) error
}

// snapshot lists the image file names currently in dir.
func snapshot(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filehandler.IsImage(filepath.Ext(e.Name())) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// PollingWatcher detects new files by rescanning the directory on a fixed
// interval. It works on any filesystem, including network mounts where
// change notification is unreliable.
type PollingWatcher struct {
	// Interval between scans; defaults to 5 seconds.
	Interval time.Duration
}

var _ Watcher = (*PollingWatcher)(nil)

// Watch rescans dir until ctx is done, reporting every image file seen.
func (w *PollingWatcher) Watch(ctx context.Context, dir string, onFile func(name string)) error {
	interval := w.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			names, err := snapshot(dir)
			if err != nil {
				log.Warn().Err(err).Str("dir", dir).Msg("Directory scan failed")
				continue
			}
			for _, name := range names {
				onFile(name)
			}
		}
	}
}

// NotifyingWatcher uses filesystem change notification for low-latency
// detection, with a polling safety net for events the platform drops.
type NotifyingWatcher struct {
	// PollInterval configures the fallback scanner; defaults to 10 seconds.
	PollInterval time.Duration
}

var _ Watcher = (*NotifyingWatcher)(nil)

// Available reports whether change notification can be used on this system.
func (w *NotifyingWatcher) Available() bool {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return false
	}
	fw.Close()
	return true
}

// Watch reports image files from filesystem events until ctx is done.
func (w *NotifyingWatcher) Watch(ctx context.Context, dir string, onFile func(name string)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	interval := w.PollInterval
	if interval <= 0 {
		interval = 2 * defaultPollInterval
	}
	fallback := &PollingWatcher{Interval: interval}
	go func() {
		// Safety net: rescan occasionally in case events are dropped.
		_ = fallback.Watch(ctx, dir, onFile)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			name := filepath.Base(event.Name)
			if filehandler.IsImage(filepath.Ext(name)) {
				onFile(name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Str("dir", dir).Msg("Filesystem watcher error")
		}
	}
}
