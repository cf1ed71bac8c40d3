package credential

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/bhandras/bazaar/pkg/logger"
)

// Watcher reports changes to a credential file. The directory is watched
// rather than the file so that atomic replaces and deletes are seen.
type Watcher struct {
	fs     *fsnotify.Watcher
	target string

	changes chan struct{}
	done    chan struct{}
	once    sync.Once
}

// Watch starts watching path. The parent directory is created if needed.
func Watch(path string) (*Watcher, error) {
	target, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve credential path: %w", err)
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create credential dir: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{
		fs:      fsw,
		target:  target,
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Changes delivers a signal after the credential file is written, replaced or
// removed. Bursts coalesce into a single pending signal.
func (w *Watcher) Changes() <-chan struct{} { return w.changes }

// Close stops the watcher. The Changes channel is closed once the watch loop
// exits.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fs.Close()
	})
	return err
}

func (w *Watcher) run() {
	defer close(w.changes)
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
				!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			logger.Debugf("credential: %s", ev.Op)
			select {
			case w.changes <- struct{}{}:
			default:
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logger.Warnf("credential: watch error: %v", err)
		}
	}
}
