package family

import (
	"context"
	"errors"
	"strings"
	"time"

	"questlog/internal/apperr"
	"questlog/internal/leveling"
	"questlog/internal/resolve"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound               = apperr.NotFound("family member not found")
	ErrInsufficientExperience = apperr.InsufficientExperience("Not enough XP")
)

// Member is a relationship the user tracks. Connection experience moves the
// same way a skill stat's total does, through ledger grants.
type Member struct {
	ID                uint64     `gorm:"primaryKey" json:"id"`
	UserID            uint64     `gorm:"index;not null" json:"userId"`
	Name              string     `gorm:"type:varchar(120);not null" json:"name"`
	NameKey           string     `gorm:"type:varchar(120);not null;index" json:"-"`
	Relationship      string     `gorm:"type:varchar(60);not null;default:''" json:"relationship"`
	ConnectionXP      int64      `gorm:"column:connection_xp;not null;default:0" json:"connectionXp"`
	ConnectionLevel   int        `gorm:"not null;default:1" json:"connectionLevel"`
	LastInteractionAt *time.Time `json:"lastInteractionAt,omitempty"`
	CreatedAt         time.Time  `gorm:"not null" json:"createdAt"`
	UpdatedAt         time.Time  `gorm:"not null" json:"updatedAt"`
}

func (Member) TableName() string { return "family_members" }

type Service struct {
	DB    *gorm.DB
	Curve leveling.Curve
}

func (s *Service) Create(ctx context.Context, userID uint64, name, relationship string) (*Member, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Field("name", "required")
	}
	m := Member{
		UserID:          userID,
		Name:            name,
		NameKey:         resolve.Key(name),
		Relationship:    strings.TrimSpace(relationship),
		ConnectionLevel: 1,
	}
	if err := s.DB.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Service) List(ctx context.Context, userID uint64) ([]Member, error) {
	var out []Member
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Order("name_key asc").Find(&out).Error
	return out, err
}

func (s *Service) Get(ctx context.Context, userID, id uint64) (*Member, error) {
	return find(s.DB.WithContext(ctx), userID, id)
}

func find(tx *gorm.DB, userID, id uint64) (*Member, error) {
	var m Member
	if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

type LevelUpResult struct {
	Member    *Member `json:"member"`
	LeveledUp bool    `json:"leveledUp"`
}

// LevelUp advances the connection level by one when the accumulated
// connection experience allows it.
func (s *Service) LevelUp(ctx context.Context, userID, id uint64) (*LevelUpResult, error) {
	var out LevelUpResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := find(tx.Clauses(clause.Locking{Strength: "UPDATE"}), userID, id)
		if err != nil {
			return err
		}
		if !s.Curve.Or().CanLevelUp(m.ConnectionLevel, m.ConnectionXP) {
			return ErrInsufficientExperience
		}
		m.ConnectionLevel++
		if err := tx.Model(m).Update("connection_level", m.ConnectionLevel).Error; err != nil {
			return err
		}
		out = LevelUpResult{Member: m, LeveledUp: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
