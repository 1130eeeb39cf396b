// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package dataset

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchSettle is how long the plot directory must be quiet before changed
// files are reloaded. Writers emit several events per file.
const watchSettle = 300 * time.Millisecond

// Watch reloads a dataset whenever its plot file is written, created or
// renamed into place. The watcher stops when ctx is cancelled.
func (s *Store) Watch(ctx context.Context, wg *sync.WaitGroup) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err = watcher.Add(s.dir); err != nil {
		watcher.Close()
		return err
	}

	byFile := make(map[string]string, len(s.defs))
	for id, def := range s.defs {
		byFile[def.File] = id
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer watcher.Close()

		pending := make(map[string]struct{})
		settle := time.NewTimer(watchSettle)
		if !settle.Stop() {
			<-settle.C
		}

		for {
			select {
			case <-ctx.Done():
				log.Debugf("Stopped watching %s", s.dir)
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				id, found := byFile[filepath.Base(ev.Name)]
				if !found {
					continue
				}
				log.Tracef("%v", ev)
				pending[id] = struct{}{}
				resetTimer(settle, watchSettle)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Errorf("Plot directory watcher: %v", err)
			case <-settle.C:
				for id := range pending {
					_, err := s.Reload(id)
					switch {
					case errors.Is(err, ErrReloadInProgress):
						log.Debugf("Reload of %s already running", id)
					case err != nil:
						log.Errorf("Failed to reload %s data: %v", id, err)
					}
				}
				pending = make(map[string]struct{})
			}
		}
	}()

	log.Infof("Watching %s for plot data updates", s.dir)
	return nil
}

// resetTimer restarts t to fire after d. A tick from before the reset that
// was not received is discarded.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
