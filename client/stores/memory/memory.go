// Package memory provides an in-process credential store. A Medium plays the role
// of storage shared by several contexts; each call to Open returns a handle for
// one context.
package memory

import (
	"sync"

	"github.com/panyam/onesession/client"
)

// Medium is the shared key-value space
type Medium struct {
	mu      sync.RWMutex
	entries map[string]string
	handles map[*Store]struct{}
}

// NewMedium creates an empty medium
func NewMedium() *Medium {
	return &Medium{
		entries: make(map[string]string),
		handles: make(map[*Store]struct{}),
	}
}

// Open returns a new handle on the medium
func (m *Medium) Open() *Store {
	s := &Store{medium: m}
	m.mu.Lock()
	m.handles[s] = struct{}{}
	m.mu.Unlock()
	return s
}

// Snapshot returns a copy of all entries
func (m *Medium) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}

func (m *Medium) write(origin *Store, c client.Change) {
	m.mu.Lock()
	if c.Present {
		m.entries[c.Key] = c.Value
	} else {
		delete(m.entries, c.Key)
	}
	others := make([]*Store, 0, len(m.handles))
	for h := range m.handles {
		if h != origin {
			others = append(others, h)
		}
	}
	m.mu.Unlock()

	for _, h := range others {
		h.listeners.Publish(c)
	}
}

// Store is one context's handle on a Medium. It implements client.KeyValueStore.
type Store struct {
	medium    *Medium
	listeners client.Listeners
}

var _ client.KeyValueStore = (*Store)(nil)

func (s *Store) Get(key string) (string, bool, error) {
	s.medium.mu.RLock()
	defer s.medium.mu.RUnlock()
	v, ok := s.medium.entries[key]
	return v, ok, nil
}

func (s *Store) Set(key, value string) error {
	s.medium.write(s, client.Change{Key: key, Value: value, Present: true})
	return nil
}

func (s *Store) Remove(key string) error {
	s.medium.write(s, client.Change{Key: key})
	return nil
}

func (s *Store) Subscribe(fn func(client.Change)) (func(), error) {
	return s.listeners.Add(fn), nil
}

// Close detaches the handle from the medium and stops its subscribers
func (s *Store) Close() error {
	s.medium.mu.Lock()
	delete(s.medium.handles, s)
	s.medium.mu.Unlock()
	s.listeners.Close()
	return nil
}
