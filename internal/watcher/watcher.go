// Package watcher watches a local fragments file and reports, debounced,
// when it has been rewritten.
package watcher

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/bimview/internal/log"
	"github.com/zjrosen/bimview/internal/pubsub"
)

// EventType distinguishes watcher events.
type EventType int

const (
	// FileChanged means the watched file settled after one or more writes.
	FileChanged EventType = iota
	// WatcherError carries an fsnotify error. Watching continues.
	WatcherError
)

// WatcherEvent is published on the watcher's broker.
type WatcherEvent struct {
	Type  EventType
	Path  string
	Error error
}

// Watcher monitors one file for changes.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	debounce  time.Duration
	broker    *pubsub.Broker[WatcherEvent]

	once sync.Once
	done chan struct{}
	wg   sync.WaitGroup
}

// Config holds watcher configuration options.
type Config struct {
	Path        string
	DebounceDur time.Duration
}

// DefaultConfig returns sensible defaults for the watcher.
func DefaultConfig(path string) Config {
	return Config{
		Path:        path,
		DebounceDur: 500 * time.Millisecond,
	}
}

// New creates a watcher for cfg.Path. Call Start to begin watching.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	return &Watcher{
		fsWatcher: fsw,
		path:      filepath.Clean(cfg.Path),
		debounce:  cfg.DebounceDur,
		broker:    pubsub.NewBroker[WatcherEvent](),
		done:      make(chan struct{}),
	}, nil
}

// Broker delivers FileChanged and WatcherError events.
func (w *Watcher) Broker() *pubsub.Broker[WatcherEvent] { return w.broker }

// Path returns the watched file.
func (w *Watcher) Path() string { return w.path }

// Start watches the directory containing the file, so that editors which
// replace the file by rename are still seen.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := w.fsWatcher.Add(dir); err != nil {
		return fmt.Errorf("watching directory %s: %w", dir, err)
	}
	log.Debug(log.CatWatcher, "Watching fragments file", "path", w.path, "debounce", w.debounce)

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop terminates the watcher, waits for its goroutine and closes the
// broker. Safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
		w.wg.Wait()
		w.broker.Close()
	})
	return err
}

// loop processes file system events with debouncing.
func (w *Watcher) loop() {
	defer w.wg.Done()
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.isRelevantEvent(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			log.Debug(log.CatWatcher, "Fragments file changed", "path", w.path)
			w.broker.Publish(pubsub.UpdatedEvent, WatcherEvent{Type: FileChanged, Path: w.path})

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.ErrorErr(log.CatWatcher, "File watcher error", err, "path", w.path)
			w.broker.Publish(pubsub.UpdatedEvent, WatcherEvent{Type: WatcherError, Path: w.path, Error: err})

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// isRelevantEvent checks if the event should trigger a reload.
func (w *Watcher) isRelevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return false
	}
	return filepath.Clean(event.Name) == w.path
}
