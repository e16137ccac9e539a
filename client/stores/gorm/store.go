//go:build !wasm
// +build !wasm

package gorm

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/panyam/onesession/client"
)

// DefaultPollInterval is how often a subscribed handle re-reads the table
const DefaultPollInterval = time.Second

// AutoMigrate runs database migrations for the credential store
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&CredentialEntryModel{})
}

// Store implements client.KeyValueStore using GORM
type Store struct {
	db           *gorm.DB
	pollInterval time.Duration

	mu        sync.Mutex
	snapshot  map[string]string
	listeners client.Listeners
	polling   bool
	closed    bool
	done      chan struct{}
}

var _ client.KeyValueStore = (*Store)(nil)

// Option configures a Store
type Option func(*Store)

// WithPollInterval sets how often the table is checked for foreign writes
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// NewStore migrates the schema and opens a handle on db
func NewStore(db *gorm.DB, opts ...Option) (*Store, error) {
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate credential store: %w", err)
	}

	s := &Store{
		db:           db,
		pollInterval: DefaultPollInterval,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	snapshot, err := s.load()
	if err != nil {
		return nil, err
	}
	s.snapshot = snapshot
	return s, nil
}

func (s *Store) load() (map[string]string, error) {
	var models []CredentialEntryModel
	if err := s.db.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to load credential entries: %w", err)
	}
	out := make(map[string]string, len(models))
	for _, m := range models {
		out[m.Key] = m.Value
	}
	return out, nil
}

// byKey quotes the column, "key" is reserved in some dialects
func byKey(key string) clause.Eq {
	return clause.Eq{Column: clause.Column{Name: "key"}, Value: key}
}

func (s *Store) Get(key string) (string, bool, error) {
	var model CredentialEntryModel
	err := s.db.Where(byKey(key)).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return model.Value, true, nil
}

func (s *Store) Set(key, value string) error {
	return s.update(client.Change{Key: key, Value: value, Present: true})
}

func (s *Store) Remove(key string) error {
	return s.update(client.Change{Key: key})
}

// update writes one row and folds it into the snapshot so the next poll does
// not report it back. Foreign changes seen on the way are published first.
func (s *Store) update(c client.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load()
	if err != nil {
		return err
	}
	for _, pending := range client.Diff(s.snapshot, current) {
		s.listeners.Publish(pending)
	}

	if c.Present {
		model := &CredentialEntryModel{Key: c.Key, Value: c.Value}
		err = s.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(model).Error
		if err == nil {
			current[c.Key] = c.Value
		}
	} else {
		err = s.db.Where(byKey(c.Key)).Delete(&CredentialEntryModel{}).Error
		if err == nil {
			delete(current, c.Key)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", c.Key, err)
	}

	s.snapshot = current
	return nil
}

// Subscribe starts the poller on first use
func (s *Store) Subscribe(fn func(client.Change)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if !s.polling {
		s.polling = true
		go s.poll()
	}
	return s.listeners.Add(fn), nil
}

func (s *Store) poll() {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.refresh()
		}
	}
}

func (s *Store) refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	current, err := s.load()
	if err != nil {
		log.Warn().Err(err).Msg("credential store poll failed")
		return
	}
	for _, c := range client.Diff(s.snapshot, current) {
		s.listeners.Publish(c)
	}
	s.snapshot = current
}

// Close stops polling. The *gorm.DB is owned by the caller.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	s.listeners.Close()
	return nil
}
