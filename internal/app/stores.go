package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/glebarez/sqlite"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/panyam/onesession"
	"github.com/panyam/onesession/client"
	fsstore "github.com/panyam/onesession/client/stores/fs"
	gormstore "github.com/panyam/onesession/client/stores/gorm"
	"github.com/panyam/onesession/client/stores/memory"
	redisstore "github.com/panyam/onesession/client/stores/redis"
	"github.com/panyam/onesession/internal/config"
)

// openStore opens the configured credential store. The returned closer also
// releases any client the store was built on.
func openStore(c config.Store) (client.KeyValueStore, func() error, error) {
	switch c.Backend {
	case config.BackendMemory:
		store := memory.NewMedium().Open()
		return store, store.Close, nil

	case config.BackendFS:
		store, err := fsstore.NewFSCredentialStore(c.Path, "onesession")
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	case config.BackendRedis:
		rdb := goredis.NewClient(&goredis.Options{Addr: c.RedisAddr})
		store := redisstore.NewStore(rdb, redisstore.WithPrefix(c.RedisPrefix))
		return store, func() error {
			return errors.Join(store.Close(), rdb.Close())
		}, nil

	case config.BackendGORM:
		db, err := openSQLite(c.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		store, err := gormstore.NewStore(db, gormstore.WithPollInterval(c.PollInterval))
		if err != nil {
			return nil, nil, err
		}
		return store, func() error {
			err := store.Close()
			if sqlDB, dbErr := db.DB(); dbErr == nil {
				err = errors.Join(err, sqlDB.Close())
			}
			return err
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", c.Backend)
}

func openSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_pragma=busy_timeout(5000)"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return db, nil
}

// openSession builds the session context and flows from cfg. Call the
// returned func when done.
func openSession() (*onesession.Flows, func(), error) {
	store, closeStore, err := openStore(cfg.Store)
	if err != nil {
		return nil, nil, err
	}

	session, err := onesession.NewSessionContext(store)
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	flows := &onesession.Flows{
		Client:  newAuthClient(),
		Session: session,
	}
	return flows, func() {
		session.Close()
		closeStore()
	}, nil
}

func newAuthClient() *client.AuthClient {
	opts := []client.ClientOption{client.WithAPIPrefix(cfg.APIPrefix)}
	if cfg.Timeout > 0 {
		opts = append(opts, client.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	return client.NewAuthClient(cfg.ServerURL, opts...)
}
