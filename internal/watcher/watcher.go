// Package watcher ingests files dropped into watched directories.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/shiori/internal/ingest"
	"github.com/hyperjump/shiori/pkg/utils"
)

const (
	defaultDebounce = 400 * time.Millisecond
	queueSize       = 256
)

// Ingester is what the watcher hands changed files to.
type Ingester interface {
	IngestFile(ctx context.Context, path string) (*ingest.FileResult, error)
	Allowed(path string) bool
}

// Watcher debounces fsnotify events under its roots and ingests new or
// changed files one at a time. Removed files are only logged: the index is
// append-only, so their entries stay searchable.
type Watcher struct {
	roots     []string
	recursive bool
	ingester  Ingester
	debounce  time.Duration
	logger    *zap.Logger

	mu       sync.Mutex
	ctx      context.Context
	fsw      *fsnotify.Watcher
	timers   map[string]*time.Timer
	started  bool
	queue    chan string
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a logger for watcher events.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a path must stay quiet before it is ingested.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New creates a watcher over roots. Missing roots are created on Start.
func New(roots []string, recursive bool, ingester Ingester, opts ...Option) *Watcher {
	w := &Watcher{
		roots:     append([]string(nil), roots...),
		recursive: recursive,
		ingester:  ingester,
		debounce:  defaultDebounce,
		timers:    make(map[string]*time.Timer),
		queue:     make(chan string, queueSize),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = utils.OrNop(w.logger)
	return w
}

// Start begins watching. Events are processed until ctx is cancelled or
// Stop is called; ingestion runs under ctx.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, root := range w.roots {
		if err := w.addRoot(fsw, root); err != nil {
			_ = fsw.Close()
			return err
		}
	}
	w.fsw = fsw
	w.ctx = ctx
	w.started = true
	w.logger.Info("watcher started", zap.Strings("roots", w.roots), zap.Bool("recursive", w.recursive))

	w.wg.Add(2)
	go w.run(ctx, fsw)
	go w.work(ctx)
	return nil
}

func (w *Watcher) addRoot(fsw *fsnotify.Watcher, root string) error {
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	if !w.recursive {
		return fsw.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) work(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case path := <-w.queue:
			res, err := w.ingester.IngestFile(ctx, path)
			if err != nil {
				w.logger.Warn("watcher ingest failed", zap.String("path", path), zap.Error(err))
				continue
			}
			w.logger.Debug("watcher ingested file",
				zap.String("path", path),
				zap.Int("chunks", res.Chunks),
				zap.Bool("skipped", res.Skipped))
		}
	}
}

func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, ev fsnotify.Event) {
	path := ev.Name
	if !w.underRoot(path) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))

	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			if w.recursive {
				w.handleNewDirectory(fsw, path)
			}
			return
		}
		if w.ingester.Allowed(path) {
			w.schedule(path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.cancel(path)
		if w.ingester.Allowed(path) {
			w.logger.Info("watched file removed; its index entries remain", zap.String("path", path))
		}
	}
}

// handleNewDirectory watches a directory created or moved under a root and
// schedules the files already inside it.
func (w *Watcher) handleNewDirectory(fsw *fsnotify.Watcher, dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := fsw.Add(path); err != nil {
				w.logger.Warn("watcher failed to add directory", zap.String("path", path), zap.Error(err))
			}
			return nil
		}
		if w.ingester.Allowed(path) {
			w.schedule(path)
		}
		return nil
	})
}

func (w *Watcher) underRoot(path string) bool {
	clean := filepath.Clean(path)
	for _, root := range w.roots {
		if inDir(filepath.Clean(root), clean) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// schedule (re)starts the quiet period for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.enqueue(path)
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
}

// enqueue hands path to the worker. It reports false once the watcher is
// stopped, its context is cancelled, or it was never started.
func (w *Watcher) enqueue(path string) bool {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return false
	}
	select {
	case w.queue <- path:
		return true
	case <-w.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// SyncExisting queues every allowed file already present under the roots.
// It blocks while the queue is full and returns early once the watcher
// stops; call it after Start, typically in its own goroutine.
func (w *Watcher) SyncExisting() {
	for _, root := range w.roots {
		root = filepath.Clean(root)
		stopped := false
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if path != root && !w.recursive {
					return filepath.SkipDir
				}
				return nil
			}
			if w.ingester.Allowed(path) && !w.enqueue(path) {
				stopped = true
				return filepath.SkipAll
			}
			return nil
		})
		if stopped {
			return
		}
	}
}

// Stop stops watching, drops pending debounced paths and waits for an
// in-flight ingestion to finish.
func (w *Watcher) Stop() {
	w.mu.Lock()
	started := w.started
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
	if !started {
		return
	}
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.fsw.Close()
	})
	w.wg.Wait()
}
