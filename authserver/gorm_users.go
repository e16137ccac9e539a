//go:build !wasm
// +build !wasm

package authserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// UserModel is the GORM model for users
type UserModel struct {
	Email        string    `gorm:"primaryKey;size:255"`
	PasswordHash string    `gorm:"size:255;not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (UserModel) TableName() string {
	return "users"
}

// GORMUserStore implements UserStore using GORM
type GORMUserStore struct {
	db *gorm.DB
}

var _ UserStore = (*GORMUserStore)(nil)

// NewGORMUserStore migrates the users table and returns a store on db
func NewGORMUserStore(db *gorm.DB) (*GORMUserStore, error) {
	if err := db.AutoMigrate(&UserModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate users: %w", err)
	}
	return &GORMUserStore{db: db}, nil
}

func (s *GORMUserStore) CreateUser(ctx context.Context, user User) error {
	model := &UserModel{
		Email:        NormalizeEmail(user.Email),
		PasswordHash: user.PasswordHash,
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&UserModel{}).Where("email = ?", model.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateEmail
		}
		err := tx.Create(model).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEmail
		}
		return err
	})
}

func (s *GORMUserStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	var model UserModel
	err := s.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &User{
		Email:        model.Email,
		PasswordHash: model.PasswordHash,
		CreatedAt:    model.CreatedAt,
	}, nil
}
