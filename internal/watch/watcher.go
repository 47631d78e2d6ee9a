// Package watch reloads the dashboard data when its source file changes.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/KaramelBytes/crashlens/internal/logging"
)

// DefaultDebounce coalesces the burst of events editors and exporters
// produce for a single save.
const DefaultDebounce = 250 * time.Millisecond

// Watcher calls OnChange after the watched file is written, created,
// renamed or removed.
type Watcher struct {
	path     string
	onChange func()
	log      *slog.Logger
	debounce time.Duration

	done chan struct{}
}

// New returns a watcher for path. A nil logger discards output.
func New(path string, onChange func(), log *slog.Logger) *Watcher {
	if log == nil {
		log = logging.Discard()
	}
	return &Watcher{path: filepath.Clean(path), onChange: onChange, log: log, debounce: DefaultDebounce, done: make(chan struct{})}
}

// SetDebounce overrides the quiet period before OnChange fires.
func (w *Watcher) SetDebounce(d time.Duration) { w.debounce = d }

// Start watches the file's directory, so replacing the file by rename is
// seen too. Events are handled until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.log.Info("watching data file", "path", w.path)
	go w.loop(ctx, fw)
	return nil
}

// Done is closed once the event loop has stopped.
func (w *Watcher) Done() <-chan struct{} { return w.done }

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	defer close(w.done)
	defer fw.Close()

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	fire := func() {
		w.log.Info("data file changed, cache invalidated", "path", w.path)
		w.onChange()
	}
	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
			return
		case evt, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != w.path {
				continue
			}
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Rename) && !evt.Has(fsnotify.Remove) {
				continue
			}
			w.log.Debug("data file event", "op", evt.Op.String())
			mu.Lock()
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", "error", err)
		}
	}
}
