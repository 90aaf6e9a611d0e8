package character

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
	ErrNotFound = apperr.NotFound("character not found")
	ErrExists   = apperr.Conflict("user already has a character")
)

// Character is the user's single persona; the unique index on user_id is
// what keeps it single.
type Character struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	UserID    uint64    `gorm:"uniqueIndex;not null" json:"userId"`
	Name      string    `gorm:"type:varchar(120);not null" json:"name"`
	Class     string    `gorm:"type:varchar(60);not null;default:''" json:"class"`
	Backstory string    `gorm:"type:text;not null;default:''" json:"backstory"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`
}

// Summary is the one-line description handed to the extractor.
func (c Character) Summary() string {
	s := c.Name
	if c.Class != "" {
		s += ", " + c.Class
	}
	if c.Backstory != "" {
		s += ". " + c.Backstory
	}
	return s
}

type Service struct {
	DB *gorm.DB
}

func (s *Service) Create(ctx context.Context, userID uint64, name, class, backstory string) (*Character, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Field("name", "required")
	}
	c := Character{
		UserID:    userID,
		Name:      name,
		Class:     strings.TrimSpace(class),
		Backstory: strings.TrimSpace(backstory),
	}
	if err := s.DB.WithContext(ctx).Create(&c).Error; err != nil {
		if dberr.IsUniqueViolation(err) {
			return nil, ErrExists
		}
		return nil, fmt.Errorf("create character: %w", err)
	}
	return &c, nil
}

func (s *Service) Get(ctx context.Context, userID uint64) (*Character, error) {
	var c Character
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}
