package workspace

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// vanishWatcher reports when the sandbox root itself is removed or renamed.
type vanishWatcher struct {
	root     string
	watcher  *fsnotify.Watcher
	onVanish func(string)
	log      *slog.Logger
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func watchRoot(root string, onVanish func(string), log *slog.Logger) (*vanishWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(root); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", root, err)
	}

	vw := &vanishWatcher{
		root:     filepath.Clean(root),
		watcher:  w,
		onVanish: onVanish,
		log:      log,
		done:     make(chan struct{}),
	}
	vw.wg.Add(1)
	go vw.eventLoop()
	return vw, nil
}

// Stop ends the event loop and releases the watch.
func (vw *vanishWatcher) Stop() error {
	var err error
	vw.stopOnce.Do(func() {
		close(vw.done)
		vw.wg.Wait()
		err = vw.watcher.Close()
	})
	return err
}

func (vw *vanishWatcher) eventLoop() {
	defer vw.wg.Done()

	for {
		select {
		case <-vw.done:
			return

		case event, ok := <-vw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != vw.root {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				// The callback takes the manager lock, which Stop may be waiting under.
				go vw.onVanish(vw.root)
				return
			}

		case err, ok := <-vw.watcher.Errors:
			if !ok {
				return
			}
			vw.log.Warn("watcher error", "sandbox", vw.root, "error", err)
		}
	}
}
