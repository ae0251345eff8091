package profiles

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceInterval = 500 * time.Millisecond

// Watch reloads the profile set when the directory changes. Events are
// debounced so a burst of writes triggers a single reload.
func (s *Store) Watch() error {
	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsW.Add(s.dir); err != nil {
		fsW.Close()
		return err
	}

	s.watchMu.Lock()
	s.fsWatcher = fsW
	s.cancel = make(chan struct{})
	s.watchMu.Unlock()

	go s.watchLoop(fsW, s.cancel)
	return nil
}

func (s *Store) watchLoop(fsW *fsnotify.Watcher, cancel chan struct{}) {
	var timer *time.Timer

	for {
		select {
		case <-cancel:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-fsW.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}

			// Debounce: reset timer on each event.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceInterval, func() {
				if err := s.reload(); err != nil {
					log.Printf("profiles: reload: %v", err)
					return
				}
				log.Printf("profiles: reloaded %d profile(s)", len(s.Names()))
			})

		case err, ok := <-fsW.Errors:
			if !ok {
				return
			}
			log.Printf("profiles: watch error: %v", err)
		}
	}
}

// Close stops the directory watcher, if one was started.
func (s *Store) Close() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.fsWatcher != nil {
		close(s.cancel)
		s.fsWatcher.Close()
		s.fsWatcher = nil
	}
}

// watchState keeps fsnotify concerns out of loader.go. Embedded in Store.
type watchState struct {
	watchMu   sync.Mutex
	fsWatcher *fsnotify.Watcher
	cancel    chan struct{}
}
