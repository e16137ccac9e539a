package onesession

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/panyam/onesession/client"
	"github.com/panyam/onesession/internal/metrics"
)

var (
	// ErrNoSession is returned by Token when the context is signed out
	ErrNoSession = errors.New("no active session")

	// ErrIncompleteSession is returned by Establish when token or email is empty
	ErrIncompleteSession = errors.New("session requires both token and email")
)

// Session is the authenticated identity of one context. The zero value is
// signed out.
type Session struct {
	Token string
	Email string
}

// Authenticated reports whether a bearer token is present
func (s Session) Authenticated() bool {
	return s.Token != ""
}

// Paired reports whether token and email agree on presence. A session
// received from another context can be briefly unpaired because the two keys
// are written and delivered separately.
func (s Session) Paired() bool {
	return (s.Token == "") == (s.Email == "")
}

// SessionReader is the read side of a SessionContext
type SessionReader interface {
	Current() Session
}

// SessionContext is the authoritative in-memory session of one execution
// context, backed by a client.KeyValueStore shared with its siblings.
//
// Reads never touch the store. Establish and Clear write the store first and
// then memory, under one lock, so Current never sees the store ahead of memory.
// Changes written by other contexts are applied key by key as they arrive.
type SessionContext struct {
	store client.KeyValueStore

	mu      sync.RWMutex
	session Session

	lmu       sync.Mutex
	nextID    int
	listeners map[int]func(Session)

	unsubscribe func()
	closeOnce   sync.Once
}

var _ SessionReader = (*SessionContext)(nil)
var _ oauth2.TokenSource = (*SessionContext)(nil)

// NewSessionContext rehydrates the session from store and subscribes to
// changes made by other contexts. Close releases the subscription.
func NewSessionContext(store client.KeyValueStore) (*SessionContext, error) {
	sc := &SessionContext{
		store:     store,
		listeners: make(map[int]func(Session)),
	}

	// Subscribe before reading so no foreign write falls between the two
	unsubscribe, err := store.Subscribe(sc.applyChange)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to credential changes: %w", err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	token, _, err := store.Get(client.KeyToken)
	if err != nil {
		unsubscribe()
		return nil, fmt.Errorf("failed to read %s: %w", client.KeyToken, err)
	}
	email, _, err := store.Get(client.KeyEmail)
	if err != nil {
		unsubscribe()
		return nil, fmt.Errorf("failed to read %s: %w", client.KeyEmail, err)
	}
	sc.session = Session{Token: token, Email: email}
	sc.unsubscribe = unsubscribe
	return sc, nil
}

// Current returns the in-memory session
func (sc *SessionContext) Current() Session {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.session
}

// Establish persists token and email and then makes them current. If the
// store rejects a write, memory is left as it was.
func (sc *SessionContext) Establish(token, email string) error {
	if token == "" || email == "" {
		return ErrIncompleteSession
	}

	sc.mu.Lock()
	if err := sc.store.Set(client.KeyToken, token); err != nil {
		sc.mu.Unlock()
		return fmt.Errorf("failed to persist %s: %w", client.KeyToken, err)
	}
	if err := sc.store.Set(client.KeyEmail, email); err != nil {
		sc.mu.Unlock()
		return fmt.Errorf("failed to persist %s: %w", client.KeyEmail, err)
	}
	sc.session = Session{Token: token, Email: email}
	current := sc.session
	sc.mu.Unlock()

	metrics.SessionChanges.WithLabelValues(metrics.SourceLocal, "establish").Inc()
	log.Debug().Str("email", email).Msg("session established")
	sc.notify(current)
	return nil
}

// Clear removes both entries from the store and signs this context out.
// Memory is cleared even when a removal fails; the store errors are returned.
func (sc *SessionContext) Clear() error {
	sc.mu.Lock()
	err := errors.Join(
		sc.store.Remove(client.KeyToken),
		sc.store.Remove(client.KeyEmail),
	)
	sc.session = Session{}
	sc.mu.Unlock()

	metrics.SessionChanges.WithLabelValues(metrics.SourceLocal, "clear").Inc()
	if err != nil {
		log.Warn().Err(err).Msg("session cleared in memory but not fully in store")
	} else {
		log.Debug().Msg("session cleared")
	}
	sc.notify(Session{})
	return err
}

// applyChange folds one foreign write into memory. Only the notified field
// changes.
func (sc *SessionContext) applyChange(c client.Change) {
	value := ""
	if c.Present {
		value = c.Value
	}

	sc.mu.Lock()
	switch c.Key {
	case client.KeyToken:
		sc.session.Token = value
	case client.KeyEmail:
		sc.session.Email = value
	default:
		sc.mu.Unlock()
		return
	}
	current := sc.session
	sc.mu.Unlock()

	metrics.SessionChanges.WithLabelValues(metrics.SourceRemote, c.Key).Inc()
	log.Debug().Str("key", c.Key).Bool("present", c.Present).Msg("session changed in another context")
	sc.notify(current)
}

// OnChange registers fn to be called with the new session after every change,
// local or foreign. fn runs without any SessionContext lock held.
func (sc *SessionContext) OnChange(fn func(Session)) (cancel func()) {
	sc.lmu.Lock()
	id := sc.nextID
	sc.nextID++
	sc.listeners[id] = fn
	sc.lmu.Unlock()

	return func() {
		sc.lmu.Lock()
		delete(sc.listeners, id)
		sc.lmu.Unlock()
	}
}

func (sc *SessionContext) notify(s Session) {
	sc.lmu.Lock()
	fns := make([]func(Session), 0, len(sc.listeners))
	for _, fn := range sc.listeners {
		fns = append(fns, fn)
	}
	sc.lmu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// Token implements oauth2.TokenSource with the current bearer token
func (sc *SessionContext) Token() (*oauth2.Token, error) {
	s := sc.Current()
	if !s.Authenticated() {
		return nil, ErrNoSession
	}
	return &oauth2.Token{AccessToken: s.Token, TokenType: "Bearer"}, nil
}

// HTTPClient returns a client whose requests carry the current bearer token.
// Requests made while signed out go out without credentials.
func (sc *SessionContext) HTTPClient(base http.RoundTripper) *http.Client {
	return &http.Client{Transport: client.NewAuthTransportWithBase(base, sc)}
}

// Close stops listening for foreign changes. It is safe to call more than once.
func (sc *SessionContext) Close() error {
	sc.closeOnce.Do(func() {
		if sc.unsubscribe != nil {
			sc.unsubscribe()
		}
		sc.lmu.Lock()
		sc.listeners = make(map[int]func(Session))
		sc.lmu.Unlock()
	})
	return nil
}
