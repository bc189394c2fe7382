package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Store holds the rule configuration backed by a JSON file. It serves reads
// from memory and can watch the file for external edits.
type Store struct {
	path string
	log  *logrus.Logger

	mu  sync.RWMutex
	cfg Config
}

// NewStore loads the configuration from path, or starts from the defaults
// when the file does not exist yet. An empty path disables persistence.
func NewStore(path string, log *logrus.Logger) (*Store, error) {
	s := &Store{path: path, log: log, cfg: DefaultConfig()}
	if path == "" {
		return s, nil
	}
	if err := s.loadFile(); err != nil {
		if os.IsNotExist(err) {
			log.WithField("path", path).Info("Rule config not found, using defaults")
			return s, nil
		}
		return nil, err
	}
	return s, nil
}

// Get returns the current configuration.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Set replaces the configuration and persists it when a path is configured.
func (s *Store) Set(cfg Config) error {
	if s.path != "" {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding rule config: %w", err)
		}
		tmp := s.path + ".tmp"
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return fmt.Errorf("writing rule config: %w", err)
		}
		if err := os.Rename(tmp, s.path); err != nil {
			return fmt.Errorf("replacing rule config: %w", err)
		}
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.log.WithField("version", cfg.Version).Info("Rule config updated")
	return nil
}

// Watch reloads the configuration whenever the file changes, until ctx is
// done. It watches the parent directory so atomic replaces are seen.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return err
	}
	s.log.WithField("path", s.path).Info("Watching rule config for changes")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != s.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.loadFile(); err != nil {
				s.log.WithError(err).Warn("Rule config reload failed, keeping previous rules")
				continue
			}
			s.log.Info("Rule config reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.WithError(err).Error("Rule config watcher error")
		}
	}
}

func (s *Store) loadFile() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parsing rule config %s: %w", s.path, err)
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}
