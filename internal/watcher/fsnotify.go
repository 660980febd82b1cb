package watcher

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches plugin roots with fsnotify.
type Watcher struct {
	mu sync.RWMutex

	// fsnotify watcher
	fsw *fsnotify.Watcher

	// Configuration
	config Config

	// Watched roots and every directory below them, mapped to their root
	roots map[string]bool
	dirs  map[string]string

	// Output channels
	events chan Event
	errors chan error

	// Stats
	totalEvents int64
	totalErrors int64

	// Lifecycle
	closed   bool
	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

// New creates a watcher and starts its event loop.
func New(opts ...Option) (*Watcher, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	bufSize := config.BufferSize
	if bufSize <= 0 {
		bufSize = 100
	}

	w := &Watcher{
		fsw:     fsw,
		config:  config,
		roots:   make(map[string]bool),
		dirs:    make(map[string]string),
		events:  make(chan Event, bufSize),
		errors:  make(chan error, bufSize),
		closeCh: make(chan struct{}),
	}

	w.closedWg.Add(1)
	go w.processLoop()

	return w, nil
}

// Watch starts watching root and every directory below it.
func (w *Watcher) Watch(root string) error {
	root, err := canonical(root)
	if err != nil {
		return err
	}

	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrPathNotExist
		}
		return err
	}
	if !info.IsDir() {
		return errors.New("watch root must be a directory")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if w.roots[root] {
		return ErrAlreadyWatching
	}

	w.roots[root] = true
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip unreadable entries
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && w.shouldIgnore(p) {
			return filepath.SkipDir
		}
		return w.addDirLocked(p, root)
	})
	if err != nil {
		w.removeRootLocked(root)
		return err
	}
	return nil
}

// Unwatch stops watching root and its subdirectories.
func (w *Watcher) Unwatch(root string) error {
	root, err := canonical(root)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if !w.roots[root] {
		return ErrNotWatching
	}

	w.removeRootLocked(root)
	return nil
}

// removeRootLocked drops root and its directories. Caller holds w.mu.
func (w *Watcher) removeRootLocked(root string) {
	for dir, owner := range w.dirs {
		if owner == root {
			_ = w.fsw.Remove(dir)
			delete(w.dirs, dir)
		}
	}
	delete(w.roots, root)
}

// IsWatching returns true if root is a watched plugin root.
func (w *Watcher) IsWatching(root string) bool {
	root, err := canonical(root)
	if err != nil {
		return false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.roots[root]
}

// Roots returns the watched roots, sorted.
func (w *Watcher) Roots() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	roots := make([]string, 0, len(w.roots))
	for r := range w.roots {
		roots = append(roots, r)
	}
	sort.Strings(roots)
	return roots
}

// Events returns the event channel.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the error channel.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// TotalEvents returns the number of events delivered.
func (w *Watcher) TotalEvents() int64 {
	return atomic.LoadInt64(&w.totalEvents)
}

// TotalErrors returns the number of errors seen, including dropped events.
func (w *Watcher) TotalErrors() int64 {
	return atomic.LoadInt64(&w.totalErrors)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	w.closedWg.Wait()

	close(w.events)
	close(w.errors)

	return w.fsw.Close()
}

// processLoop handles incoming fsnotify events.
func (w *Watcher) processLoop() {
	defer w.closedWg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case fsEvent, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFSEvent(fsEvent)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			atomic.AddInt64(&w.totalErrors, 1)
			w.sendError(err)
		}
	}
}

// handleFSEvent converts an fsnotify event and attributes it to a root.
func (w *Watcher) handleFSEvent(fsEvent fsnotify.Event) {
	op := convertOp(fsEvent.Op)
	if op == 0 {
		return
	}
	if w.shouldIgnore(fsEvent.Name) {
		return
	}

	w.mu.Lock()
	root, ok := w.dirs[filepath.Dir(fsEvent.Name)]
	if !ok {
		root, ok = w.dirs[fsEvent.Name]
	}
	if ok && (op.Has(OpRemove) || op.Has(OpRename)) {
		if _, watched := w.dirs[fsEvent.Name]; watched && fsEvent.Name != root {
			delete(w.dirs, fsEvent.Name)
		}
	}
	// New subdirectories are watched so changes inside them are seen.
	if ok && op.Has(OpCreate) && !w.closed {
		if info, err := os.Stat(fsEvent.Name); err == nil && info.IsDir() {
			_ = w.addDirLocked(fsEvent.Name, root)
		}
	}
	w.mu.Unlock()

	if !ok {
		return
	}
	if w.config.Ops != 0 && op&w.config.Ops == 0 {
		return
	}

	w.sendEvent(Event{
		Root:      root,
		Path:      fsEvent.Name,
		Op:        op,
		Timestamp: time.Now(),
	})
}

// addDirLocked adds dir under root. Caller holds w.mu.
func (w *Watcher) addDirLocked(dir, root string) error {
	if _, ok := w.dirs[dir]; ok {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	w.dirs[dir] = root
	return nil
}

// convertOp converts fsnotify.Op to watcher.Op.
func convertOp(fsOp fsnotify.Op) Op {
	var op Op
	if fsOp.Has(fsnotify.Create) {
		op |= OpCreate
	}
	if fsOp.Has(fsnotify.Write) {
		op |= OpWrite
	}
	if fsOp.Has(fsnotify.Remove) {
		op |= OpRemove
	}
	if fsOp.Has(fsnotify.Rename) {
		op |= OpRename
	}
	if fsOp.Has(fsnotify.Chmod) {
		op |= OpChmod
	}
	return op
}

// shouldIgnore checks if a path should be ignored.
func (w *Watcher) shouldIgnore(path string) bool {
	if !w.config.IgnoreHidden {
		return false
	}
	base := filepath.Base(path)
	return len(base) > 0 && base[0] == '.'
}

// sendEvent sends an event to the output channel.
func (w *Watcher) sendEvent(event Event) {
	select {
	case w.events <- event:
		atomic.AddInt64(&w.totalEvents, 1)
	default:
		// Channel full, drop event
		atomic.AddInt64(&w.totalErrors, 1)
	}
}

// sendError sends an error to the output channel.
func (w *Watcher) sendError(err error) {
	select {
	case w.errors <- err:
	default:
	}
}

// canonical makes path absolute and resolves symlinks, matching the paths
// the plugin loader keys its state by.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}
	return abs, nil
}
