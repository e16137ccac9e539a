package onesession

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panyam/onesession/client"
	"github.com/panyam/onesession/client/stores/memory"
)

func newTestSession(t *testing.T, store client.KeyValueStore) *SessionContext {
	t.Helper()
	sc, err := NewSessionContext(store)
	require.NoError(t, err)
	t.Cleanup(func() { sc.Close() })
	return sc
}

// failingStore wraps a store and rejects writes to selected keys
type failingStore struct {
	client.KeyValueStore
	failSet    map[string]bool
	failRemove map[string]bool
}

func (f *failingStore) Set(key, value string) error {
	if f.failSet[key] {
		return errors.New("disk full")
	}
	return f.KeyValueStore.Set(key, value)
}

func (f *failingStore) Remove(key string) error {
	if f.failRemove[key] {
		return errors.New("read-only medium")
	}
	return f.KeyValueStore.Remove(key)
}

func TestSessionContext_EstablishThenCurrent(t *testing.T) {
	tests := []struct{ token, email string }{
		{"abc", "a@x.com"},
		{"eyJhbGciOiJIUzI1NiJ9.e30.sig", "someone+tag@example.org"},
		{"  spaced  ", "ünïcode@x.com"},
	}

	for _, tt := range tests {
		sc := newTestSession(t, memory.NewMedium().Open())
		require.NoError(t, sc.Establish(tt.token, tt.email))
		assert.Equal(t, Session{Token: tt.token, Email: tt.email}, sc.Current())
	}
}

func TestSessionContext_EstablishRequiresBoth(t *testing.T) {
	medium := memory.NewMedium()
	sc := newTestSession(t, medium.Open())

	assert.ErrorIs(t, sc.Establish("", "a@x.com"), ErrIncompleteSession)
	assert.ErrorIs(t, sc.Establish("abc", ""), ErrIncompleteSession)
	assert.Equal(t, Session{}, sc.Current())
	assert.Empty(t, medium.Snapshot())
}

func TestSessionContext_ClearAlwaysSignsOut(t *testing.T) {
	medium := memory.NewMedium()
	sc := newTestSession(t, medium.Open())

	// From signed out
	require.NoError(t, sc.Clear())
	assert.Equal(t, Session{}, sc.Current())

	// From signed in
	require.NoError(t, sc.Establish("abc", "a@x.com"))
	require.NoError(t, sc.Clear())
	assert.Equal(t, Session{}, sc.Current())
	assert.Empty(t, medium.Snapshot())
}

func TestSessionContext_RehydratesFromStore(t *testing.T) {
	medium := memory.NewMedium()

	first := newTestSession(t, medium.Open())
	require.NoError(t, first.Establish("abc", "a@x.com"))
	require.NoError(t, first.Close())

	reloaded := newTestSession(t, medium.Open())
	assert.Equal(t, Session{Token: "abc", Email: "a@x.com"}, reloaded.Current())
}

func TestSessionContext_PerKeyChangeFromAnotherContext(t *testing.T) {
	medium := memory.NewMedium()
	tab1 := newTestSession(t, medium.Open())
	require.NoError(t, tab1.Establish("abc", "a@x.com"))

	tab2 := newTestSession(t, medium.Open())
	require.Equal(t, Session{Token: "abc", Email: "a@x.com"}, tab2.Current())

	// Only the token entry is rewritten: the email stays as it was until its
	// own notification arrives, and the session is transiently unpaired.
	raw := medium.Open()
	defer raw.Close()
	require.NoError(t, raw.Set(client.KeyToken, "def"))
	assert.Eventually(t, func() bool {
		return tab2.Current() == Session{Token: "def", Email: "a@x.com"}
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, raw.Remove(client.KeyEmail))
	assert.Eventually(t, func() bool {
		return tab2.Current() == Session{Token: "def"}
	}, time.Second, 5*time.Millisecond)
	assert.False(t, tab2.Current().Paired())
	assert.True(t, tab2.Current().Authenticated())
}

func TestSessionContext_SignoutPropagates(t *testing.T) {
	medium := memory.NewMedium()
	tab1 := newTestSession(t, medium.Open())
	tab2 := newTestSession(t, medium.Open())

	require.NoError(t, tab1.Establish("abc", "a@x.com"))
	assert.Eventually(t, func() bool {
		return tab2.Current() == Session{Token: "abc", Email: "a@x.com"}
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, tab2.Clear())
	assert.Eventually(t, func() bool {
		return tab1.Current() == Session{}
	}, time.Second, 5*time.Millisecond)
}

func TestSessionContext_OnChange(t *testing.T) {
	medium := memory.NewMedium()
	tab1 := newTestSession(t, medium.Open())
	tab2 := newTestSession(t, medium.Open())

	var mu sync.Mutex
	var local, remote []Session
	cancelLocal := tab1.OnChange(func(s Session) {
		mu.Lock()
		local = append(local, s)
		mu.Unlock()
	})
	defer cancelLocal()
	tab2.OnChange(func(s Session) {
		// Reading back from inside a listener must not deadlock
		_ = tab2.Current()
		mu.Lock()
		remote = append(remote, s)
		mu.Unlock()
	})

	require.NoError(t, tab1.Establish("abc", "a@x.com"))

	mu.Lock()
	assert.Equal(t, []Session{{Token: "abc", Email: "a@x.com"}}, local)
	mu.Unlock()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(remote) == 2 && remote[1] == Session{Token: "abc", Email: "a@x.com"}
	}, time.Second, 5*time.Millisecond)

	cancelLocal()
	require.NoError(t, tab1.Clear())
	mu.Lock()
	assert.Len(t, local, 1)
	mu.Unlock()
}

func TestSessionContext_StoreWriteFailureLeavesMemory(t *testing.T) {
	store := &failingStore{
		KeyValueStore: memory.NewMedium().Open(),
		failSet:       map[string]bool{client.KeyEmail: true},
	}
	sc := newTestSession(t, store)

	err := sc.Establish("abc", "a@x.com")
	require.Error(t, err)
	assert.Equal(t, Session{}, sc.Current())
}

func TestSessionContext_ClearFailureStillClearsMemory(t *testing.T) {
	inner := memory.NewMedium().Open()
	store := &failingStore{KeyValueStore: inner}
	sc := newTestSession(t, store)
	require.NoError(t, sc.Establish("abc", "a@x.com"))

	store.failRemove = map[string]bool{client.KeyToken: true}
	assert.Error(t, sc.Clear())
	assert.Equal(t, Session{}, sc.Current())

	_, ok, _ := inner.Get(client.KeyEmail)
	assert.False(t, ok)
}

func TestSessionContext_CloseStopsFollowing(t *testing.T) {
	medium := memory.NewMedium()
	tab1 := newTestSession(t, medium.Open())
	tab2 := newTestSession(t, medium.Open())

	require.NoError(t, tab2.Close())
	require.NoError(t, tab2.Close())
	require.NoError(t, tab1.Establish("abc", "a@x.com"))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, Session{}, tab2.Current())
}

func TestSessionContext_TokenSource(t *testing.T) {
	sc := newTestSession(t, memory.NewMedium().Open())

	_, err := sc.Token()
	assert.ErrorIs(t, err, ErrNoSession)

	var lastAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastAuth = r.Header.Get("Authorization")
	}))
	defer server.Close()

	httpClient := sc.HTTPClient(nil)
	resp, err := httpClient.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, lastAuth)

	require.NoError(t, sc.Establish("abc", "a@x.com"))
	tok, err := sc.Token()
	require.NoError(t, err)
	assert.Equal(t, "abc", tok.AccessToken)

	resp, err = httpClient.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "Bearer abc", lastAuth)
}

func TestSession_Paired(t *testing.T) {
	assert.True(t, Session{}.Paired())
	assert.True(t, Session{Token: "abc", Email: "a@x.com"}.Paired())
	assert.False(t, Session{Token: "abc"}.Paired())
	assert.False(t, Session{Email: "a@x.com"}.Paired())
	assert.False(t, Session{Email: "a@x.com"}.Authenticated())
}
