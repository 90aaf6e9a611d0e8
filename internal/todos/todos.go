package todos

import (
	"context"
	"errors"
	"strings"
	"time"

	"questlog/internal/apperr"
	"questlog/internal/jobs"

	"gorm.io/gorm"
)

// TTL is how long a to-do spawned from a journal stays actionable.
const TTL = 24 * time.Hour

var ErrNotFound = apperr.NotFound("todo not found")

type SimpleTodo struct {
	ID              uint64     `gorm:"primaryKey" json:"id"`
	UserID          uint64     `gorm:"index;not null" json:"userId"`
	Description     string     `gorm:"type:text;not null" json:"description"`
	Completed       bool       `gorm:"not null;default:false" json:"completed"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	ExpiresAt       *time.Time `gorm:"index" json:"expirationTime,omitempty"`
	Expired         bool       `gorm:"not null;default:false" json:"expired"`
	SourceJournalID *uint64    `gorm:"index" json:"sourceJournalId,omitempty"`
	CreatedAt       time.Time  `gorm:"not null" json:"createdAt"`
}

// Spawn creates one to-do per non-empty description, each expiring exactly
// TTL after now, and schedules its expiry job in the same transaction.
func Spawn(tx *gorm.DB, userID uint64, journalID *uint64, descriptions []string, now time.Time) ([]SimpleTodo, error) {
	out := make([]SimpleTodo, 0, len(descriptions))
	expires := now.Add(TTL)
	for _, d := range descriptions {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		t := SimpleTodo{
			UserID:          userID,
			Description:     d,
			ExpiresAt:       &expires,
			SourceJournalID: journalID,
			CreatedAt:       now,
		}
		if err := tx.Create(&t).Error; err != nil {
			return nil, err
		}
		if err := jobs.Enqueue(tx, userID, jobs.TypeTodoExpire, map[string]any{"todo_id": t.ID}, expires); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

type Service struct {
	DB *gorm.DB
}

// ListActive is the on-read filter: incomplete, not swept and not past
// expiry.
func (s *Service) ListActive(ctx context.Context, userID uint64, now time.Time) ([]SimpleTodo, error) {
	var out []SimpleTodo
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND completed = ? AND expired = ?", userID, false, false).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("id asc").
		Find(&out).Error
	return out, err
}

func (s *Service) Create(ctx context.Context, userID uint64, description string) (*SimpleTodo, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, apperr.Field("description", "required")
	}
	t := SimpleTodo{UserID: userID, Description: description}
	if err := s.DB.WithContext(ctx).Create(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// Complete marks the to-do done. Completing twice is a no-op.
func (s *Service) Complete(ctx context.Context, userID, id uint64) (*SimpleTodo, error) {
	var t SimpleTodo
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&t).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if t.Completed {
			return nil
		}
		now := time.Now()
		t.Completed = true
		t.CompletedAt = &now
		return tx.Model(&t).Updates(map[string]any{"completed": true, "completed_at": now}).Error
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}
