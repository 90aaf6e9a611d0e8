package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"questlog/internal/apperr"

	"gorm.io/gorm"
)

var (
	ErrNegativeAmount = apperr.Field("amount", "must be >= 0")
	ErrUnknownTarget  = apperr.Field("targetType", "unknown target type")
	ErrUnknownSource  = apperr.Field("sourceType", "unknown source type")
	ErrTargetNotFound = apperr.NotFound("grant target not found")
)

type GrantInput struct {
	UserID     uint64
	TargetType TargetType
	TargetID   uint64
	Amount     int64
	SourceType SourceType
	SourceID   *uint64
	Reason     string
}

func (in GrantInput) validate() error {
	if in.Amount < 0 {
		return ErrNegativeAmount
	}
	if !in.TargetType.Valid() {
		return ErrUnknownTarget
	}
	if !in.SourceType.Valid() {
		return ErrUnknownSource
	}
	return nil
}

// Record appends a grant and bumps the target's cumulative counter using the
// caller's transaction. The counter update doubles as the ownership check, so
// a grant is never written for a target the user does not own.
func Record(tx *gorm.DB, in GrantInput) (*Grant, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := time.Now()

	var res *gorm.DB
	switch in.TargetType {
	case TargetSkillStat:
		res = tx.Table("skill_stats").
			Where("id = ? AND user_id = ?", in.TargetID, in.UserID).
			Updates(map[string]any{
				"total_xp":   gorm.Expr("total_xp + ?", in.Amount),
				"updated_at": now,
			})
	case TargetRelationship:
		res = tx.Table("family_members").
			Where("id = ? AND user_id = ?", in.TargetID, in.UserID).
			Updates(map[string]any{
				"connection_xp":       gorm.Expr("connection_xp + ?", in.Amount),
				"last_interaction_at": now,
				"updated_at":          now,
			})
	case TargetContentTag:
		// tags keep their own usage counter; the grant is provenance only
		var n int64
		res = tx.Table("tags").Where("id = ? AND user_id = ?", in.TargetID, in.UserID).Count(&n)
		if res.Error == nil {
			res.RowsAffected = n
		}
	}
	if res.Error != nil {
		return nil, fmt.Errorf("bump %s %d: %w", in.TargetType, in.TargetID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrTargetNotFound
	}

	g := Grant{
		UserID:     in.UserID,
		TargetType: in.TargetType,
		TargetID:   in.TargetID,
		Amount:     in.Amount,
		SourceType: in.SourceType,
		SourceID:   in.SourceID,
		Reason:     strings.TrimSpace(in.Reason),
		CreatedAt:  now,
	}
	if err := tx.Create(&g).Error; err != nil {
		return nil, fmt.Errorf("insert grant: %w", err)
	}
	return &g, nil
}

// DeleteForTargets removes the grants of deleted entities.
func DeleteForTargets(tx *gorm.DB, userID uint64, tt TargetType, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	return tx.Where("user_id = ? AND target_type = ? AND target_id IN ?", userID, tt, ids).
		Delete(&Grant{}).Error
}

type Service struct {
	DB *gorm.DB
}

// Grant records a single grant in its own transaction.
func (s *Service) Grant(ctx context.Context, in GrantInput) (*Grant, error) {
	var g *Grant
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		g, err = Record(tx, in)
		return err
	})
	return g, err
}

// History lists grants for one target, newest first.
func (s *Service) History(ctx context.Context, userID uint64, tt TargetType, targetID uint64) ([]Grant, error) {
	var out []Grant
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND target_type = ? AND target_id = ?", userID, tt, targetID).
		Order("id desc").
		Find(&out).Error
	return out, err
}

// Sum derives a target's total from the ledger.
func (s *Service) Sum(ctx context.Context, userID uint64, tt TargetType, targetID uint64) (int64, error) {
	var total int64
	err := s.DB.WithContext(ctx).Model(&Grant{}).
		Where("user_id = ? AND target_type = ? AND target_id = ?", userID, tt, targetID).
		Select("coalesce(sum(amount), 0)").
		Scan(&total).Error
	return total, err
}
