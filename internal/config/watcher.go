package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/j-veylop/pipeline-monitor-tui/internal/logger"
)

const debounceInterval = 100 * time.Millisecond

// Watcher reloads the configuration when its .env file changes.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(*Config, error)

	mu            sync.Mutex
	debounceTimer *time.Timer
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// Watch starts watching path. onChange receives the reloaded configuration or
// the error that prevented loading it.
func Watch(path string, onChange func(*Config, error)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory so editors that replace the file are noticed.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		if closeErr := fw.Close(); closeErr != nil {
			logger.Error("failed to close watcher", "error", closeErr)
		}
		return nil, err
	}

	w := &Watcher{
		path:     path,
		watcher:  fw,
		onChange: onChange,
		stopChan: make(chan struct{}),
	}
	go w.watchLoop()
	return w, nil
}

// watchLoop handles file system events with debouncing.
func (w *Watcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			w.mu.Lock()
			if w.debounceTimer != nil {
				w.debounceTimer.Stop()
			}
			w.debounceTimer = time.AfterFunc(debounceInterval, w.reload)
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("config watcher error", "error", err)

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) reload() {
	select {
	case <-w.stopChan:
		return
	default:
	}

	cfg, err := Reload(w.path)
	if err != nil {
		logger.Warn("config reload failed", "path", w.path, "error", err)
	} else {
		logger.Info("config reloaded", "path", w.path)
	}
	w.onChange(cfg, err)
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.stopOnce.Do(func() { close(w.stopChan) })

	w.mu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.mu.Unlock()

	return w.watcher.Close()
}
