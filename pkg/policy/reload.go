package policy

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	sharederrors "github.com/jordigilh/sentinel-gate/pkg/shared/errors"
	"github.com/jordigilh/sentinel-gate/pkg/shared/logging"
)

// debounceWindow coalesces bursts of filesystem events (editors often write
// a temp file then rename it over the target) into a single reload.
const debounceWindow = 250 * time.Millisecond

// Store holds the current Document behind an atomic pointer, so readers
// never block on a reload in progress and a reload never observes a torn
// write. Reload() is also available for an explicit, synchronous refresh.
type Store struct {
	path    string
	current atomic.Pointer[Document]
	logger  *logrus.Logger
}

// NewStore loads path and returns a Store snapshotting it.
func NewStore(path string, logger *logrus.Logger) (*Store, error) {
	doc, err := Load(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path, logger: logger}
	s.current.Store(doc)
	return s, nil
}

// Current returns the most recently published Document snapshot.
func (s *Store) Current() *Document {
	return s.current.Load()
}

// Reload re-reads the policy file and publishes a new snapshot if its hash
// differs from the current one. It is idempotent: calling it with an
// unchanged file is a no-op beyond the re-read and hash comparison.
func (s *Store) Reload() error {
	doc, err := Load(s.path)
	if err != nil {
		return err
	}
	if doc.Hash() == s.current.Load().Hash() {
		return nil
	}
	s.current.Store(doc)
	if s.logger != nil {
		s.logger.WithFields(logging.PolicyFields("reload", "").ToLogrus()).Info("policy reloaded")
	}
	return nil
}

// Watch starts an fsnotify watcher on the policy file's directory and
// calls Reload (debounced) whenever the file is written or renamed over.
// It runs until stop is closed.
func (s *Store) Watch(stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return sharederrors.FailedToWithDetails("start policy watcher", "policy", s.path, err)
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return sharederrors.FailedToWithDetails("watch policy directory", "policy", dir, err)
	}

	go s.watchLoop(watcher, stop)
	return nil
}

func (s *Store) watchLoop(watcher *fsnotify.Watcher, stop <-chan struct{}) {
	defer watcher.Close()

	var mu sync.Mutex
	var timer *time.Timer

	scheduleReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounceWindow, func() {
			if err := s.Reload(); err != nil && s.logger != nil {
				s.logger.WithFields(logging.PolicyFields("reload", "").Error(err).ToLogrus()).
					Warn("policy reload failed, keeping previous snapshot")
			}
		})
	}

	for {
		select {
		case <-stop:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				scheduleReload()
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}
