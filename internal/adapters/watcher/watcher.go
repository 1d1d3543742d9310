// Package watcher reports changes to granule files in the destination directory.
package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before an event is delivered.
const DefaultDebounce = 500 * time.Millisecond

// Event is a debounced change to one granule file.
type Event struct {
	Name      string // Base name of the file
	Path      string
	Operation Operation
}

// Operation represents the type of file operation.
type Operation int

// File operation types.
const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Handler is called for every debounced event.
type Handler func(ctx context.Context, event Event) error

// Config holds watcher configuration.
type Config struct {
	Dir      string
	Debounce time.Duration
}

// Watcher watches the destination directory for granule file changes.
// Partial downloads and bookkeeping files are ignored.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	handler   Handler
	logger    *slog.Logger
	dir       string
	debounce  time.Duration

	mu      sync.Mutex
	pending map[string]*pendingEvent
	wg      sync.WaitGroup
}

type pendingEvent struct {
	seen time.Time
	op   Operation
}

// New creates a new file watcher.
func New(cfg Config, handler Handler, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		handler:   handler,
		logger:    logger,
		dir:       cfg.Dir,
		debounce:  cfg.Debounce,
		pending:   make(map[string]*pendingEvent),
	}, nil
}

// Start begins watching the directory until ctx is canceled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	absDir, err := filepath.Abs(w.dir)
	if err != nil {
		return err
	}
	if err := w.fsWatcher.Add(absDir); err != nil {
		return err
	}
	w.logger.Info("watching destination", "path", absDir, "debounce", w.debounce)

	w.wg.Add(1)
	go w.loop(ctx)

	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounce / 5)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.record(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)

		case <-ticker.C:
			for _, e := range w.due(time.Now()) {
				w.deliver(ctx, e)
			}
		}
	}
}

// record merges an fsnotify event into the pending set.
func (w *Watcher) record(event fsnotify.Event) {
	if !isGranuleFile(event.Name) {
		return
	}
	op := toOperation(event.Op)
	w.logger.Debug("file event", "path", event.Name, "op", event.Op.String())

	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.pending[event.Name]
	if !ok {
		w.pending[event.Name] = &pendingEvent{seen: time.Now(), op: op}
		return
	}
	p.seen = time.Now()
	p.op = merge(p.op, op)
}

// due removes and returns the events that have been quiet for the debounce period.
func (w *Watcher) due(now time.Time) []Event {
	w.mu.Lock()
	defer w.mu.Unlock()

	var ready []Event
	for path, p := range w.pending {
		if now.Sub(p.seen) < w.debounce {
			continue
		}
		delete(w.pending, path)
		ready = append(ready, Event{Name: filepath.Base(path), Path: path, Operation: p.op})
	}
	return ready
}

func (w *Watcher) deliver(ctx context.Context, e Event) {
	w.logger.Info("granule file changed", "file", e.Name, "operation", e.Operation.String())
	if err := w.handler(ctx, e); err != nil {
		w.logger.Error("handler error", "file", e.Name, "operation", e.Operation.String(), "error", err)
	}
}

// merge combines two operations seen for the same file within one debounce period.
func merge(prev, next Operation) Operation {
	switch {
	case prev == OpDelete && next == OpCreate:
		return OpCreate
	case next == OpDelete:
		return OpDelete
	case prev == OpCreate:
		return OpCreate
	default:
		return next
	}
}

// toOperation converts fsnotify.Op to our Operation type. A rename moves
// the file out of the destination, so it counts as a delete.
func toOperation(op fsnotify.Op) Operation {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return OpDelete
	case op.Has(fsnotify.Create):
		return OpCreate
	default:
		return OpModify
	}
}

// isGranuleFile reports whether path names a downloaded data file, sidecar or preview.
func isGranuleFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hdf", ".xml", ".jpg", ".jpeg":
		return !strings.HasPrefix(filepath.Base(path), ".")
	default:
		return false
	}
}
