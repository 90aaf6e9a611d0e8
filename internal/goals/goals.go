package goals

import (
	"context"
	"strings"
	"time"

	"questlog/internal/apperr"
	"questlog/internal/tags"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	StatusActive   = "active"
	StatusDone     = "done"
	StatusArchived = "archived"
)

type Goal struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	UserID      uint64    `gorm:"index;not null" json:"userId"`
	Title       string    `gorm:"type:varchar(200);not null" json:"title"`
	Description string    `gorm:"type:text;not null;default:''" json:"description"`
	Status      string    `gorm:"type:varchar(16);not null;default:'active';index" json:"status"`
	CreatedAt   time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"not null" json:"updatedAt"`

	Tags []tags.Tag `gorm:"-" json:"tags,omitempty"`
}

type Service struct {
	DB *gorm.DB
}

type CreateInput struct {
	Title       string
	Description string
	Tags        []string
}

// Create stores the goal and links its tags through the association table.
func (s *Service) Create(ctx context.Context, userID uint64, in CreateInput) (*Goal, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Field("title", "required")
	}
	g := Goal{
		UserID:      userID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Status:      StatusActive,
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&g).Error; err != nil {
			return err
		}
		linked, err := tags.Apply(tx, userID, in.Tags, tags.SourceUserSet)
		if err != nil {
			return err
		}
		for _, t := range linked {
			gt := tags.GoalTag{GoalID: g.ID, TagID: t.ID, UserID: userID}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&gt).Error; err != nil {
				return err
			}
		}
		g.Tags = linked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Service) List(ctx context.Context, userID uint64) ([]Goal, error) {
	var out []Goal
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Order("id desc").Find(&out).Error
	return out, err
}

// ActiveTitles feeds the extraction context.
func (s *Service) ActiveTitles(ctx context.Context, userID uint64) ([]string, error) {
	var titles []string
	err := s.DB.WithContext(ctx).Model(&Goal{}).
		Where("user_id = ? AND status = ?", userID, StatusActive).
		Order("id asc").
		Pluck("title", &titles).Error
	return titles, err
}
