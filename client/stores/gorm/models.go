//go:build !wasm
// +build !wasm

package gorm

import (
	"time"
)

// CredentialEntryModel is the GORM model for one persisted session key
type CredentialEntryModel struct {
	Key       string    `gorm:"primaryKey;size:64"`
	Value     string    `gorm:"type:text"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (CredentialEntryModel) TableName() string {
	return "credential_entries"
}
