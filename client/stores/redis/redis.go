// Package redis provides a Redis-backed credential store. Entries live under
// <prefix>:<key>; every write is also published on <prefix>:changes so that
// other handles on the same keyspace can follow along.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/panyam/onesession/client"
)

// DefaultPrefix namespaces keys when no prefix is configured
const DefaultPrefix = "onesession"

// DefaultTimeout bounds each Redis round trip
const DefaultTimeout = 5 * time.Second

// changeMessage is the payload published on the changes channel
type changeMessage struct {
	Origin  string `json:"origin"`
	Key     string `json:"key"`
	Value   string `json:"value,omitempty"`
	Present bool   `json:"present"`
}

// Store implements client.KeyValueStore on top of a Redis client
type Store struct {
	rdb     redis.UniversalClient
	prefix  string
	origin  string
	timeout time.Duration

	mu        sync.Mutex
	pubsub    *redis.PubSub
	listeners client.Listeners
	closed    bool
}

var _ client.KeyValueStore = (*Store)(nil)

// Option configures a Store
type Option func(*Store)

// WithPrefix sets the key/channel prefix
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithTimeout bounds each Redis call
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewStore creates a handle using rdb. Each handle gets its own origin ID so
// its own writes are never delivered back to it.
func NewStore(rdb redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		rdb:     rdb,
		prefix:  DefaultPrefix,
		origin:  uuid.NewString(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(k string) string {
	return s.prefix + ":" + k
}

func (s *Store) channel() string {
	return s.prefix + ":changes"
}

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *Store) Get(key string) (string, bool, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	v, err := s.rdb.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) Set(key, value string) error {
	return s.write(client.Change{Key: key, Value: value, Present: true})
}

func (s *Store) Remove(key string) error {
	return s.write(client.Change{Key: key})
}

// write updates the key and publishes the change in one MULTI/EXEC
func (s *Store) write(c client.Change) error {
	payload, err := json.Marshal(changeMessage{
		Origin:  s.origin,
		Key:     c.Key,
		Value:   c.Value,
		Present: c.Present,
	})
	if err != nil {
		return fmt.Errorf("failed to encode change: %w", err)
	}

	ctx, cancel := s.ctx()
	defer cancel()

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if c.Present {
			pipe.Set(ctx, s.key(c.Key), c.Value, 0)
		} else {
			pipe.Del(ctx, s.key(c.Key))
		}
		pipe.Publish(ctx, s.channel(), payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis write %s: %w", c.Key, err)
	}
	return nil
}

// Subscribe opens the pub/sub connection on first use. It returns once Redis
// has confirmed the subscription, so no later write can be missed.
func (s *Store) Subscribe(fn func(client.Change)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	if s.pubsub == nil {
		ctx, cancel := s.ctx()
		defer cancel()

		pubsub := s.rdb.Subscribe(context.Background(), s.channel())
		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			return nil, fmt.Errorf("redis subscribe: %w", err)
		}
		s.pubsub = pubsub
		go s.receive(pubsub.Channel())
	}

	return s.listeners.Add(fn), nil
}

func (s *Store) receive(ch <-chan *redis.Message) {
	for msg := range ch {
		var m changeMessage
		if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
			log.Warn().Err(err).Str("channel", msg.Channel).Msg("ignoring malformed change message")
			continue
		}
		if m.Origin == s.origin {
			continue
		}
		s.listeners.Publish(client.Change{Key: m.Key, Value: m.Value, Present: m.Present})
	}
}

// Close stops the subscription. The Redis client itself is owned by the caller.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pubsub := s.pubsub
	s.mu.Unlock()

	s.listeners.Close()
	if pubsub != nil {
		return pubsub.Close()
	}
	return nil
}
