// Package fs provides a file system-based credential store for onesession.
//
// The session is a flat JSON object in a single file. Every process opening the
// same path shares it; changes made by other processes are picked up with
// fsnotify and delivered to subscribers key by key.
package fs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/panyam/onesession/client"
)

// DefaultFileName is used when no explicit path is given
const DefaultFileName = "session.json"

// FSCredentialStore stores credentials as a JSON file on the filesystem
type FSCredentialStore struct {
	mu       sync.Mutex
	path     string
	snapshot map[string]string // last file contents this handle has seen or written

	listeners client.Listeners
	watcher   *fsnotify.Watcher
	done      chan struct{}
	closed    bool
}

var _ client.KeyValueStore = (*FSCredentialStore)(nil)

// NewFSCredentialStore creates a new FS-based credential store.
// If path is empty, defaults to ~/.config/<appName>/session.json
func NewFSCredentialStore(path string, appName string) (*FSCredentialStore, error) {
	if path == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("could not determine config directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
		if appName == "" {
			appName = "onesession"
		}
		path = filepath.Join(configDir, appName, DefaultFileName)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid store path: %w", err)
	}

	store := &FSCredentialStore{
		path: abs,
		done: make(chan struct{}),
	}

	snapshot, err := store.load()
	if err != nil {
		return nil, err
	}
	store.snapshot = snapshot

	return store, nil
}

// load reads entries from disk. A missing file is an empty store.
func (s *FSCredentialStore) load() (map[string]string, error) {
	entries := make(map[string]string)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	if len(data) == 0 {
		return entries, nil
	}

	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	if entries == nil {
		entries = make(map[string]string)
	}
	return entries, nil
}

func (s *FSCredentialStore) save(entries map[string]string) error {
	// Ensure directory exists with restricted permissions
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}

	return writeAtomicFile(s.path, data)
}

func (s *FSCredentialStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return "", false, err
	}
	v, ok := entries[key]
	return v, ok, nil
}

func (s *FSCredentialStore) Set(key, value string) error {
	return s.update(client.Change{Key: key, Value: value, Present: true})
}

func (s *FSCredentialStore) Remove(key string) error {
	return s.update(client.Change{Key: key})
}

// update applies a read-modify-write of the file. Changes made by other
// processes that this handle has not reported yet are published first, so they
// are not swallowed by our own snapshot update.
func (s *FSCredentialStore) update(c client.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	for _, pending := range client.Diff(s.snapshot, entries) {
		s.listeners.Publish(pending)
	}

	if c.Present {
		entries[c.Key] = c.Value
	} else {
		if _, ok := entries[c.Key]; !ok {
			s.snapshot = entries
			return nil
		}
		delete(entries, c.Key)
	}

	if err := s.save(entries); err != nil {
		return err
	}
	s.snapshot = entries
	return nil
}

// Subscribe starts watching the file on first use
func (s *FSCredentialStore) Subscribe(fn func(client.Change)) (func(), error) {
	if err := s.startWatching(); err != nil {
		return nil, err
	}
	return s.listeners.Add(fn), nil
}

func (s *FSCredentialStore) startWatching() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}
	if s.watcher != nil {
		return nil
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory: atomic renames replace the file itself
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	s.watcher = watcher

	go s.watch(watcher)
	return nil
}

func (s *FSCredentialStore) watch(watcher *fsnotify.Watcher) {
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				s.refresh()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Str("path", s.path).Msg("session file watcher error")
		}
	}
}

// refresh reloads the file and publishes whatever differs from the snapshot
func (s *FSCredentialStore) refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("ignoring unreadable session file")
		return
	}
	for _, c := range client.Diff(s.snapshot, entries) {
		s.listeners.Publish(c)
	}
	s.snapshot = entries
}

// Close stops the watcher and all subscribers
func (s *FSCredentialStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	watcher := s.watcher
	s.mu.Unlock()

	s.listeners.Close()
	if watcher != nil {
		return watcher.Close()
	}
	return nil
}

// Path returns the path to the session file
func (s *FSCredentialStore) Path() string {
	return s.path
}
