// Package profile assembles the read-only user context the extractor and the
// chat responder work from.
package profile

import (
	"context"
	"errors"
	"fmt"

	"questlog/internal/character"
	"questlog/internal/extract"
	"questlog/internal/family"
	"questlog/internal/goals"
	"questlog/internal/resolve"
	"questlog/internal/stats"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Loader struct {
	DB *gorm.DB
}

// Load reads character, goals, family and stats concurrently. A missing
// character is not an error.
func (l *Loader) Load(ctx context.Context, userID uint64) (extract.UserContext, error) {
	var uc extract.UserContext
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		c, err := (&character.Service{DB: l.DB}).Get(gctx, userID)
		if errors.Is(err, character.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load character: %w", err)
		}
		uc.Character = c.Summary()
		return nil
	})
	g.Go(func() error {
		titles, err := (&goals.Service{DB: l.DB}).ActiveTitles(gctx, userID)
		if err != nil {
			return fmt.Errorf("load goals: %w", err)
		}
		uc.Goals = titles
		return nil
	})
	g.Go(func() error {
		members, err := (&family.Service{DB: l.DB}).List(gctx, userID)
		if err != nil {
			return fmt.Errorf("load family: %w", err)
		}
		refs := make([]extract.FamilyRef, len(members))
		for i, m := range members {
			refs[i] = extract.FamilyRef{ID: m.ID, Name: m.Name, Relationship: m.Relationship}
		}
		uc.Family = refs
		return nil
	})
	g.Go(func() error {
		list, err := (&stats.Service{DB: l.DB}).List(gctx, userID)
		if err != nil {
			return fmt.Errorf("load stats: %w", err)
		}
		refs := make([]resolve.Ref, len(list))
		for i, s := range list {
			refs[i] = resolve.Ref{ID: s.ID, Name: s.Name}
		}
		uc.Stats = refs
		return nil
	})

	if err := g.Wait(); err != nil {
		return extract.UserContext{}, err
	}
	return uc, nil
}

// StatIDByName resolves a stat by its display name, ignoring case and
// whitespace differences.
func (l *Loader) StatIDByName(ctx context.Context, userID uint64, name string) (uint64, bool, error) {
	return l.idByName(ctx, &stats.SkillStat{}, userID, name)
}

// FamilyIDByName returns the oldest member whose name matches.
func (l *Loader) FamilyIDByName(ctx context.Context, userID uint64, name string) (uint64, bool, error) {
	return l.idByName(ctx, &family.Member{}, userID, name)
}

func (l *Loader) idByName(ctx context.Context, model any, userID uint64, name string) (uint64, bool, error) {
	key := resolve.Key(name)
	if key == "" {
		return 0, false, nil
	}
	var ids []uint64
	err := l.DB.WithContext(ctx).Model(model).
		Where("user_id = ? AND name_key = ?", userID, key).
		Order("id asc").Limit(1).Pluck("id", &ids).Error
	if err != nil {
		return 0, false, err
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	return ids[0], true, nil
}
