package catalog

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"testforge/pkg/logging"
)

// Watcher reloads the on-disk index whenever cases.index changes,
// letting a long-lived `status --watch` observer pick up progress from a
// session it isn't itself driving.
type Watcher struct {
	fw  *fsnotify.Watcher
	dir string
}

// WatchIndex starts watching dir for changes to cases.index. The caller
// must call Close when done.
func WatchIndex(dir string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{fw: fw, dir: dir}, nil
}

// Events yields a fresh Index every time cases.index is rewritten.
// Malformed intermediate writes are logged and skipped rather than
// propagated, since a concurrent writer may be mid-rewrite.
func (w *Watcher) Events() <-chan Index {
	out := make(chan Index)
	go func() {
		defer close(out)
		target := filepath.Join(w.dir, "cases.index")
		for {
			select {
			case ev, ok := <-w.fw.Events:
				if !ok {
					return
				}
				if ev.Name != target || (ev.Op&(fsnotify.Write|fsnotify.Create) == 0) {
					continue
				}
				idx, err := ReadIndex(w.dir)
				if err != nil {
					logging.Warn("catalog", "watch: skipping unreadable index update: %v", err)
					continue
				}
				out <- idx
			case err, ok := <-w.fw.Errors:
				if !ok {
					return
				}
				logging.Warn("catalog", "watch: fsnotify error: %v", err)
			}
		}
	}()
	return out
}

// Close stops the watcher.
func (w *Watcher) Close() error { return w.fw.Close() }
