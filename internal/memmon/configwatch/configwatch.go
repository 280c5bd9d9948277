// Package configwatch hot-reloads the memory accounting subsystem's
// source-root marker list from a JSON config file, the same role
// internal/runtime/vfs's FSNotifyWatcher plays for the teacher's
// virtual filesystem: watch one path, translate fsnotify events into a
// small typed channel, and let the caller decide what to do with them.
package configwatch

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/cubrid-go/memmon/internal/memmon"
)

// fileConfig is the on-disk schema this watcher understands. It only
// ever controls fingerprint derivation (spec.md §3, §9's open question
// on basename extraction); it cannot enable/disable the subsystem or
// touch any already-assigned StatID.
type fileConfig struct {
	SourceRootMarkers []string `json:"source_root_markers"`
}

// Watcher watches a JSON config file and applies SourceRootMarkers
// changes to a *memmon.ProcessState as they land on disk.
type Watcher struct {
	path  string
	state *memmon.ProcessState
	fw    *fsnotify.Watcher
	errC  chan error
	done  chan struct{}
}

// New starts watching path for changes, applying its current contents
// to state immediately and on every subsequent write.
func New(path string, state *memmon.ProcessState) (*Watcher, error) {
	if state == nil {
		return nil, fmt.Errorf("configwatch: nil process state")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("configwatch: creating watcher: %w", err)
	}

	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, fmt.Errorf("configwatch: watching %s: %w", path, err)
	}

	w := &Watcher{
		path:  path,
		state: state,
		fw:    fw,
		errC:  make(chan error, 1),
		done:  make(chan struct{}),
	}

	if err := w.reload(); err != nil {
		// A bad initial file is reported but not fatal: the process
		// keeps whatever markers it was configured with at Initialize.
		w.reportErr(err)
	}

	go w.loop()

	return w, nil
}

// Errors returns a channel of reload errors (malformed JSON, file
// removed, etc). Never blocks the watch loop: a full buffer drops the
// error on the floor rather than stalling reloads.
func (w *Watcher) Errors() <-chan error { return w.errC }

// Close stops the watcher and releases its fsnotify handle.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if err := w.reload(); err != nil {
				w.reportErr(err)
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}

			w.reportErr(err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("configwatch: reading %s: %w", w.path, err)
	}

	var cfg fileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("configwatch: parsing %s: %w", w.path, err)
	}

	if len(cfg.SourceRootMarkers) > 0 {
		w.state.SetSourceRootMarkers(cfg.SourceRootMarkers)
	}

	return nil
}

func (w *Watcher) reportErr(err error) {
	select {
	case w.errC <- err:
	default:
	}
}
