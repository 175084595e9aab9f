package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports changes to a configuration file. It watches the parent
// directory so that editors replacing the file by rename are noticed.
type Watcher struct {
	w    *fsnotify.Watcher
	name string
}

// NewWatcher starts watching the named file.
func NewWatcher(name string) (*Watcher, error) {
	name, err := filepath.Abs(name)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(name)); err != nil {
		_ = w.Close()
		return nil, err
	}
	return &Watcher{w: w, name: name}, nil
}

// Run calls onChange for every write, create or rename of the watched file
// until the context is canceled or the watcher fails.
func (w *Watcher) Run(ctx context.Context, onChange func()) error {
	const ops = fsnotify.Write | fsnotify.Create | fsnotify.Rename
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) == w.name && ev.Op&ops != 0 {
				onChange()
			}
		case err, ok := <-w.w.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.w.Close()
}
