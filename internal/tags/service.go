package tags

import (
	"context"
	"fmt"
	"time"

	"questlog/internal/apperr"
	"questlog/internal/ledger"
	"questlog/internal/logging"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrEmptyName   = apperr.Field("name", "empty after normalization")
	ErrNameTooLong = apperr.Field("name", "longer than 64 characters")
)

// Merger folds near-duplicate candidate names into an existing vocabulary and
// returns the names that are genuinely new.
type Merger interface {
	MergeTags(ctx context.Context, existing, candidates []string) ([]string, error)
}

type Service struct {
	DB           *gorm.DB
	Merger       Merger
	MergeTimeout time.Duration
	Log          *zap.Logger
}

// CreateOrGet inserts the normalized tag or, when the user already has it,
// bumps its usage counter. Either way the current row is returned.
func CreateOrGet(tx *gorm.DB, userID uint64, raw string, source Source) (*Tag, error) {
	name := Normalize(raw)
	if name == "" {
		return nil, ErrEmptyName
	}
	if !Fits(name) {
		return nil, ErrNameTooLong
	}
	now := time.Now()
	t := Tag{
		UserID:     userID,
		Name:       name,
		Source:     source,
		UsageCount: 1,
		Status:     StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "name"}},
		DoUpdates: clause.Assignments(map[string]any{
			"usage_count": gorm.Expr("tags.usage_count + 1"),
			"updated_at":  now,
		}),
	}).Create(&t).Error
	if err != nil {
		return nil, fmt.Errorf("upsert tag %q: %w", name, err)
	}

	// re-read: on conflict the returned id is not reliable across dialects
	var cur Tag
	if err := tx.Where("user_id = ? AND name = ?", userID, name).First(&cur).Error; err != nil {
		return nil, err
	}
	return &cur, nil
}

// Apply create-or-gets every name inside tx. Names that normalize to empty
// are skipped.
func Apply(tx *gorm.DB, userID uint64, names []string, source Source) ([]Tag, error) {
	out := make([]Tag, 0, len(names))
	for _, n := range NormalizeAll(names) {
		t, err := CreateOrGet(tx, userID, n, source)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}

// CreateBatch stores tags the user typed directly.
func (s *Service) CreateBatch(ctx context.Context, userID uint64, raw []string) ([]Tag, error) {
	var out []Tag
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = Apply(tx, userID, raw, SourceUserSet)
		return err
	})
	return out, err
}

func (s *Service) List(ctx context.Context, userID uint64) ([]Tag, error) {
	var out []Tag
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).
		Order("usage_count desc, name asc").
		Find(&out).Error
	return out, err
}

func (s *Service) ExistingNames(ctx context.Context, userID uint64) ([]string, error) {
	var names []string
	err := s.DB.WithContext(ctx).Model(&Tag{}).
		Where("user_id = ?", userID).
		Order("name asc").
		Pluck("name", &names).Error
	return names, err
}

// Deduplicate returns the candidate names that should become new tags.
// It never fails: when the semantic merge is unavailable it falls back to a
// case-insensitive exact match against existing.
func (s *Service) Deduplicate(ctx context.Context, existing, candidates []string, userID uint64) []string {
	cands := NormalizeAll(candidates)
	if len(cands) == 0 {
		return []string{}
	}
	known := NormalizeAll(existing)
	if len(known) == 0 {
		return cands
	}

	if s.Merger != nil {
		mctx, cancel := context.WithTimeout(ctx, s.mergeTimeout())
		merged, err := s.Merger.MergeTags(mctx, known, cands)
		cancel()
		if err == nil {
			return withoutKnown(onlyCandidates(NormalizeAll(merged), cands), known)
		}
		logging.OrNop(s.Log).Warn("tag merge failed, using exact match",
			zap.Uint64("user_id", userID), zap.Int("candidates", len(cands)), zap.Error(err))
	}
	return withoutKnown(cands, known)
}

func (s *Service) mergeTimeout() time.Duration {
	if s.MergeTimeout <= 0 {
		return 15 * time.Second
	}
	return s.MergeTimeout
}

// onlyCandidates drops merged names the caller never proposed.
func onlyCandidates(merged, cands []string) []string {
	set := make(map[string]struct{}, len(cands))
	for _, c := range cands {
		set[c] = struct{}{}
	}
	out := make([]string, 0, len(merged))
	for _, m := range merged {
		if _, ok := set[m]; ok {
			out = append(out, m)
		}
	}
	return out
}

func withoutKnown(names, known []string) []string {
	set := make(map[string]struct{}, len(known))
	for _, k := range known {
		set[k] = struct{}{}
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := set[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// Resolution splits suggested names into those to create and those that
// exactly match the existing vocabulary.
type Resolution struct {
	New     []string
	Matched []string
}

func (r Resolution) All() []string {
	return append(append([]string{}, r.Matched...), r.New...)
}

// Resolve runs the deduplication outside any transaction so the merge call
// never holds database locks.
func (s *Service) Resolve(ctx context.Context, userID uint64, candidates []string) (Resolution, error) {
	if len(NormalizeAll(candidates)) == 0 {
		return Resolution{}, nil
	}
	existing, err := s.ExistingNames(ctx, userID)
	if err != nil {
		return Resolution{}, err
	}
	res := Resolution{New: s.Deduplicate(ctx, existing, candidates, userID)}
	known := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		known[e] = struct{}{}
	}
	for _, c := range NormalizeAll(candidates) {
		if _, ok := known[c]; ok {
			res.Matched = append(res.Matched, c)
		}
	}
	return res, nil
}

// CreateDeduplicated loads the user's vocabulary, deduplicates candidates
// against it and stores the survivors as discovered tags.
func (s *Service) CreateDeduplicated(ctx context.Context, userID uint64, candidates []string) ([]Tag, error) {
	existing, err := s.ExistingNames(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := s.Deduplicate(ctx, existing, candidates, userID)
	if len(names) == 0 {
		return []Tag{}, nil
	}
	var out []Tag
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		out, err = Apply(tx, userID, names, SourceDiscovered)
		return err
	})
	return out, err
}

const unusedCond = "NOT EXISTS (SELECT 1 FROM goal_tags gt WHERE gt.tag_id = tags.id)"

// DeleteUnused removes the user's tags that no association references, along
// with their provenance grants. Associations from any user keep a tag alive.
func (s *Service) DeleteUnused(ctx context.Context, userID uint64) (int64, error) {
	var removed int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint64
		if err := tx.Model(&Tag{}).
			Where("user_id = ?", userID).
			Where(unusedCond).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := ledger.DeleteForTargets(tx, userID, ledger.TargetContentTag, ids); err != nil {
			return err
		}
		res := tx.Where("user_id = ? AND id IN ?", userID, ids).Where(unusedCond).Delete(&Tag{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		return nil
	})
	return removed, err
}
