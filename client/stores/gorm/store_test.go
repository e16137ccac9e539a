//go:build !wasm
// +build !wasm

package gorm

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/panyam/onesession/client"
)

func openTestDB(t *testing.T, path string) *gorm.DB {
	t.Helper()
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

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
	db := openTestDB(t, filepath.Join(t.TempDir(), "session.db"))
	s, err := NewStore(db)
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.Get(client.KeyToken)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(client.KeyToken, "abc"))
	require.NoError(t, s.Set(client.KeyToken, "def"))

	v, ok, err := s.Get(client.KeyToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "def", v)

	var count int64
	db.Model(&CredentialEntryModel{}).Count(&count)
	assert.Equal(t, int64(1), count)

	require.NoError(t, s.Remove(client.KeyToken))
	require.NoError(t, s.Remove(client.KeyToken))
	_, ok, _ = s.Get(client.KeyToken)
	assert.False(t, ok)
}

func TestStore_PollingNotifiesOtherHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	writer, err := NewStore(openTestDB(t, path), WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)
	defer writer.Close()
	reader, err := NewStore(openTestDB(t, path), WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)
	defer reader.Close()

	var seenReader, seenWriter recorder
	cancel, err := reader.Subscribe(seenReader.add)
	require.NoError(t, err)
	defer cancel()
	cancelW, err := writer.Subscribe(seenWriter.add)
	require.NoError(t, err)
	defer cancelW()

	require.NoError(t, writer.Set(client.KeyToken, "abc"))
	assert.Eventually(t, func() bool {
		got := seenReader.get()
		return len(got) == 1 && got[0] == client.Change{Key: client.KeyToken, Value: "abc", Present: true}
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, writer.Remove(client.KeyToken))
	assert.Eventually(t, func() bool {
		got := seenReader.get()
		return len(got) == 2 && got[1] == client.Change{Key: client.KeyToken}
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, seenWriter.get())
}

func TestStore_SubscribeAfterClose(t *testing.T) {
	s, err := NewStore(openTestDB(t, filepath.Join(t.TempDir(), "session.db")))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Subscribe(func(client.Change) {})
	assert.Error(t, err)
}
