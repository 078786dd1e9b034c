package manifest

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ChangeCallback is called with the manifest path after it changed
type ChangeCallback func(path string)

// Watcher reports edits of one manifest file. It watches the parent
// directory so editors that replace the file by rename are seen too.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	callback ChangeCallback
	logger   *zap.SugaredLogger
	debounce time.Duration

	timer *time.Timer
	mu    sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates a watcher for the manifest at path
func NewWatcher(path string, callback ChangeCallback, logger *zap.SugaredLogger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, err
	}

	return &Watcher{
		watcher:  watcher,
		path:     abs,
		callback: callback,
		logger:   logger,
		debounce: 500 * time.Millisecond, // Debounce rapid changes
		done:     make(chan struct{}),
	}, nil
}

// SetDebounce sets how long the file must be quiet before the callback runs
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// Start begins watching for file changes
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	go func() {
		defer close(w.done)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handleEvent(event)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warnw("manifest watch error", "path", w.path, "error", err)
			}
		}
	}()
}

// Stop stops watching and waits for the event loop to exit
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.watcher.Close()
	if w.cancel != nil {
		<-w.done
	}

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	// Reset or start debounce timer
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	if w.callback != nil {
		w.callback(w.path)
	}
}
