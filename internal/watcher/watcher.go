// Package watcher reports changes to the orion settings file.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce coalesces editor save bursts into one callback.
const DefaultDebounce = 250 * time.Millisecond

const relevantOps = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

// snapshot identifies one version of the file. A missing file is its own version.
type snapshot struct {
	digest  uint64
	present bool
}

func readSnapshot(path string) snapshot {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Debug().Err(err).Str("path", path).Msg("Settings file unreadable")
		}
		return snapshot{}
	}
	return snapshot{digest: xxhash.Sum64(data), present: true}
}

// Watcher calls onChange after the file's content changes, it is created, or
// it is removed. Saves that leave the bytes unchanged are ignored. The parent
// directory is watched so atomic rename-style saves are seen. onChange runs
// on the watcher goroutine and must not call Stop.
type Watcher struct {
	path     string
	onChange func()
	fsw      *fsnotify.Watcher

	mu       sync.Mutex
	debounce time.Duration
	last     snapshot
	started  bool
	stopped  bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a watcher for path. Nothing is observed until Start.
func New(path string, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:     filepath.Clean(path),
		onChange: onChange,
		fsw:      fsw,
		debounce: DefaultDebounce,
	}, nil
}

// SetDebounce overrides the debounce interval. Call before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	w.debounce = d
	w.mu.Unlock()
}

// Start begins watching. The parent directory must exist. Calling Start on a
// running watcher is a no-op.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return nil
	}
	if err := w.fsw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.last = readSnapshot(w.path)

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.started = true
	go w.loop(ctx, w.debounce)
	return nil
}

// Stop ends watching and releases the fsnotify handle. It is safe to call
// more than once and without Start.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := w.fsw.Close()
	if done != nil {
		<-done
	}
	return err
}

func (w *Watcher) loop(ctx context.Context, debounce time.Duration) {
	defer close(w.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op&relevantOps == 0 {
				continue
			}
			log.Debug().Str("path", w.path).Str("op", ev.Op.String()).Msg("Settings file event")
			timer.Reset(debounce)

		case <-timer.C:
			w.check(ctx)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Str("path", w.path).Msg("Settings watcher error")
		}
	}
}

// check compares the current file with the last seen version and fires
// onChange when they differ.
func (w *Watcher) check(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	cur := readSnapshot(w.path)
	w.mu.Lock()
	changed := cur != w.last
	w.last = cur
	w.mu.Unlock()
	if !changed {
		log.Debug().Str("path", w.path).Msg("Settings file touched without content change")
		return
	}
	log.Info().Str("path", w.path).Bool("present", cur.present).Msg("Settings file changed")
	if w.onChange != nil {
		w.onChange()
	}
}
