package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panyam/onesession/client"
)

type recorder struct {
	mu      sync.Mutex
	changes []client.Change
}

func (r *recorder) add(c client.Change) {
	r.mu.Lock()
	r.changes = append(r.changes, c)
	r.mu.Unlock()
}

func (r *recorder) get() []client.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]client.Change(nil), r.changes...)
}

func TestStore_GetSetRemove(t *testing.T) {
	s := NewMedium().Open()
	defer s.Close()

	_, ok, err := s.Get(client.KeyToken)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(client.KeyToken, "abc"))
	v, ok, err := s.Get(client.KeyToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	require.NoError(t, s.Remove(client.KeyToken))
	require.NoError(t, s.Remove(client.KeyToken))
	_, ok, _ = s.Get(client.KeyToken)
	assert.False(t, ok)
}

func TestStore_NotifiesOtherHandlesOnly(t *testing.T) {
	m := NewMedium()
	a, b := m.Open(), m.Open()
	defer a.Close()
	defer b.Close()

	var seenA, seenB recorder
	cancelA, _ := a.Subscribe(seenA.add)
	defer cancelA()
	cancelB, _ := b.Subscribe(seenB.add)
	defer cancelB()

	require.NoError(t, a.Set(client.KeyToken, "abc"))
	require.NoError(t, a.Remove(client.KeyEmail))

	assert.Eventually(t, func() bool { return len(seenB.get()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []client.Change{
		{Key: client.KeyToken, Value: "abc", Present: true},
		{Key: client.KeyEmail},
	}, seenB.get())

	// Writes never echo back to the writer
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, seenA.get())

	// Both handles share the same entries
	v, ok, _ := b.Get(client.KeyToken)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)
	assert.Equal(t, map[string]string{client.KeyToken: "abc"}, m.Snapshot())
}

func TestStore_ClosedHandleStopsReceiving(t *testing.T) {
	m := NewMedium()
	a, b := m.Open(), m.Open()
	defer a.Close()

	var seen recorder
	_, _ = b.Subscribe(seen.add)
	require.NoError(t, b.Close())

	require.NoError(t, a.Set(client.KeyToken, "abc"))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, seen.get())
}
