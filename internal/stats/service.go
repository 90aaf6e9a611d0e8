package stats

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"questlog/internal/apperr"
	"questlog/internal/db/dberr"
	"questlog/internal/ledger"
	"questlog/internal/leveling"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound               = apperr.NotFound("stat not found")
	ErrDuplicateName          = apperr.Conflict("stat already exists")
	ErrInsufficientExperience = apperr.InsufficientExperience("Not enough XP")
)

type Service struct {
	DB    *gorm.DB
	Curve leveling.Curve
}

func (s *Service) Create(ctx context.Context, userID uint64, name, description string) (*SkillStat, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Field("name", "required")
	}
	st := SkillStat{
		UserID:      userID,
		Name:        name,
		NameKey:     NameKey(name),
		Description: strings.TrimSpace(description),
		Level:       1,
	}
	if err := s.DB.WithContext(ctx).Create(&st).Error; err != nil {
		if dberr.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%q: %w", name, ErrDuplicateName)
		}
		return nil, err
	}
	return &st, nil
}

func (s *Service) List(ctx context.Context, userID uint64) ([]SkillStat, error) {
	var out []SkillStat
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Order("name_key asc").Find(&out).Error
	return out, err
}

func (s *Service) Get(ctx context.Context, userID, id uint64) (*SkillStat, error) {
	return find(s.DB.WithContext(ctx), userID, id)
}

func find(tx *gorm.DB, userID, id uint64) (*SkillStat, error) {
	var st SkillStat
	if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&st).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &st, nil
}

type GrantResult struct {
	Grant      *ledger.Grant `json:"grant"`
	Stat       *SkillStat    `json:"stat"`
	CanLevelUp bool          `json:"canLevelUp"`
}

// GrantXP records a ledger grant against the stat and returns the updated
// stat with its level-up eligibility.
func (s *Service) GrantXP(ctx context.Context, userID, id uint64, amount int64, source ledger.SourceType, reason string) (*GrantResult, error) {
	if source == "" {
		source = ledger.SourceAdhoc
	}
	var out GrantResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := ledger.Record(tx, ledger.GrantInput{
			UserID:     userID,
			TargetType: ledger.TargetSkillStat,
			TargetID:   id,
			Amount:     amount,
			SourceType: source,
			Reason:     reason,
		})
		if errors.Is(err, ledger.ErrTargetNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		st, err := find(tx, userID, id)
		if err != nil {
			return err
		}
		out = GrantResult{Grant: g, Stat: st, CanLevelUp: s.Curve.Or().CanLevelUp(st.Level, st.TotalXP)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type LevelUpResult struct {
	Stat      *SkillStat `json:"stat"`
	LeveledUp bool       `json:"leveledUp"`
}

// LevelUp advances the stat by exactly one level when its total meets the
// next threshold. Surplus experience is kept; callers advance again with
// another call.
func (s *Service) LevelUp(ctx context.Context, userID, id uint64) (*LevelUpResult, error) {
	var out LevelUpResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st, err := find(tx.Clauses(clause.Locking{Strength: "UPDATE"}), userID, id)
		if err != nil {
			return err
		}
		if !s.Curve.Or().CanLevelUp(st.Level, st.TotalXP) {
			return ErrInsufficientExperience
		}
		st.Level++
		if err := tx.Model(st).Update("level", st.Level).Error; err != nil {
			return err
		}
		out = LevelUpResult{Stat: st, LeveledUp: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) Progress(st *SkillStat) leveling.Progress {
	return s.Curve.Or().Progress(st.Level, st.TotalXP)
}

// Delete removes the stat together with its ledger rows.
func (s *Service) Delete(ctx context.Context, userID, id uint64) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&SkillStat{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return ledger.DeleteForTargets(tx, userID, ledger.TargetSkillStat, []uint64{id})
	})
}
