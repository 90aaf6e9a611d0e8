package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"questlog/internal/apperr"
	"questlog/internal/db/dberr"

	"gorm.io/gorm"
)

var (
	ErrEmailTaken         = apperr.Conflict("email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = apperr.NotFound("user not found")
)

// MinPasswordLen is the shortest password Register accepts.
const MinPasswordLen = 8

type User struct {
	ID           uint64    `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `gorm:"not null" json:"createdAt"`
}

type Service struct {
	DB *gorm.DB
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// Register inserts the user and lets the unique index on email decide races.
func (s *Service) Register(ctx context.Context, email, password string) (*User, error) {
	email = normalizeEmail(email)
	issues := map[string]string{}
	if email == "" || !strings.Contains(email, "@") {
		issues["email"] = "must be a valid address"
	}
	if len(password) < MinPasswordLen {
		issues["password"] = fmt.Sprintf("must be at least %d characters", MinPasswordLen)
	}
	if len(issues) > 0 {
		return nil, apperr.Validation("invalid input", issues)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := User{Email: email, PasswordHash: hash}
	if err := s.DB.WithContext(ctx).Create(&u).Error; err != nil {
		if dberr.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &u, nil
}

// Login returns ErrInvalidCredentials for both unknown emails and wrong
// passwords.
func (s *Service) Login(ctx context.Context, email, password string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	var u User
	if err := s.DB.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !ComparePassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return &u, nil
}

func (s *Service) Get(ctx context.Context, id uint64) (*User, error) {
	var u User
	if err := s.DB.WithContext(ctx).First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}
