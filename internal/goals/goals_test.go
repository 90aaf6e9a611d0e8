package goals_test

import (
	"context"
	"testing"

	"questlog/internal/apperr"
	"questlog/internal/goals"
	"questlog/internal/tags"
	"questlog/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateLinksTags(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	svc := &goals.Service{DB: db}

	g, err := svc.Create(ctx, 1, goals.CreateInput{Title: " Run a 10k ", Tags: []string{"Fitness", "fitness", " "}})
	require.NoError(t, err)
	assert.Equal(t, "Run a 10k", g.Title)
	require.Len(t, g.Tags, 1)
	assert.Equal(t, "fitness", g.Tags[0].Name)
	assert.Equal(t, tags.SourceUserSet, g.Tags[0].Source)

	var links int64
	require.NoError(t, db.Model(&tags.GoalTag{}).Where("goal_id = ?", g.ID).Count(&links).Error)
	assert.Equal(t, int64(1), links)

	_, err = svc.Create(ctx, 1, goals.CreateInput{Title: "  "})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestActiveTitles(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	svc := &goals.Service{DB: db}

	first, err := svc.Create(ctx, 1, goals.CreateInput{Title: "Read more"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, 1, goals.CreateInput{Title: "Sleep earlier"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, 2, goals.CreateInput{Title: "Someone else's"})
	require.NoError(t, err)
	require.NoError(t, db.Model(&goals.Goal{}).Where("id = ?", first.ID).Update("status", goals.StatusDone).Error)

	titles, err := svc.ActiveTitles(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Sleep earlier"}, titles)
}
