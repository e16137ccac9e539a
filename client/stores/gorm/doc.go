//go:build !wasm
// +build !wasm

// Package gorm provides a GORM-based credential store for onesession.
// It supports any database that GORM supports (PostgreSQL, MySQL, SQLite, etc.),
// which lets several machines or containers share one session.
//
// # Database Schema
//
// The package auto-migrates a single table:
//   - credential_entries: one row per persisted key ("token", "email")
//
// # Change notification
//
// SQL databases have no portable change feed, so each handle polls the table
// and diffs it against the last state it has seen or written.
//
// # Usage
//
//	db, _ := gorm.Open(sqlite.Open("session.db"), &gorm.Config{})
//	store, _ := gormstore.NewStore(db, gormstore.WithPollInterval(time.Second))
package gorm
