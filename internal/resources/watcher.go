package resources

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeHandler is invoked, debounced, when a watched path's resource
// changes. Callers wire this to emit eventbus.TopicResourceUpdated.
type ChangeHandler func(path string)

// Watcher re-announces file-backed resources when they change on disk,
// grounded on the teacher's skills.Manager watch loop: one fsnotify.Watcher,
// a per-event debounce timer so a burst of writes collapses into one
// refresh, and directories discovered via Create events get their own
// watch added on the fly.
type Watcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onChange ChangeHandler

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a Watcher with the given debounce window. debounce <=
// 0 defaults to 250ms, matching the teacher's skills.Manager default.
func NewWatcher(debounce time.Duration, onChange ChangeHandler) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	return &Watcher{watcher: fsw, debounce: debounce, onChange: onChange}, nil
}

// Add registers path (file or directory) for change notifications.
func (w *Watcher) Add(path string) error {
	return w.watcher.Add(path)
}

// Start begins the watch loop in a background goroutine. Calling Start
// twice without an intervening Close is a programming error.
func (w *Watcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	go w.loop(ctx)
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	var mu sync.Mutex
	pending := make(map[string]*time.Timer)
	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := pending[path]; ok {
			t.Stop()
		}
		pending[path] = time.AfterFunc(w.debounce, func() { w.onChange(path) })
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				schedule(event.Name)
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the watch loop and releases the underlying fsnotify.Watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.mu.Unlock()
	w.wg.Wait()
	return w.watcher.Close()
}
