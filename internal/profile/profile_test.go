package profile_test

import (
	"context"
	"testing"

	"questlog/internal/character"
	"questlog/internal/extract"
	"questlog/internal/family"
	"questlog/internal/goals"
	"questlog/internal/profile"
	"questlog/internal/resolve"
	"questlog/internal/stats"
	"questlog/internal/testutil"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAssemblesContext(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)

	_, err := (&character.Service{DB: db}).Create(ctx, 1, "Mira", "Ranger", "")
	require.NoError(t, err)
	_, err = (&goals.Service{DB: db}).Create(ctx, 1, goals.CreateInput{Title: "Sleep by 11"})
	require.NoError(t, err)
	sarah, err := (&family.Service{DB: db}).Create(ctx, 1, "Sarah", "sister")
	require.NoError(t, err)
	fit, err := (&stats.Service{DB: db}).Create(ctx, 1, "Fitness", "")
	require.NoError(t, err)
	_, err = (&stats.Service{DB: db}).Create(ctx, 2, "Cooking", "")
	require.NoError(t, err)

	uc, err := (&profile.Loader{DB: db}).Load(ctx, 1)
	require.NoError(t, err)

	want := extract.UserContext{
		Character: "Mira, Ranger",
		Goals:     []string{"Sleep by 11"},
		Family:    []extract.FamilyRef{{ID: sarah.ID, Name: "Sarah", Relationship: "sister"}},
		Stats:     []resolve.Ref{{ID: fit.ID, Name: "Fitness"}},
	}
	if diff := cmp.Diff(want, uc); diff != "" {
		t.Fatalf("context mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadWithoutCharacter(t *testing.T) {
	uc, err := (&profile.Loader{DB: testutil.OpenDB(t)}).Load(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, uc.Character)
	assert.Empty(t, uc.Stats)
}

func TestIDByName(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	l := &profile.Loader{DB: db}

	sarah, err := (&family.Service{DB: db}).Create(ctx, 1, "Sarah", "sister")
	require.NoError(t, err)
	dw, err := (&stats.Service{DB: db}).Create(ctx, 1, "Deep Work", "")
	require.NoError(t, err)

	id, ok, err := l.FamilyIDByName(ctx, 1, "  sarah")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, sarah.ID, id)

	id, ok, err = l.StatIDByName(ctx, 1, "DEEP   work")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, dw.ID, id)

	_, ok, err = l.FamilyIDByName(ctx, 2, "Sarah")
	require.NoError(t, err)
	assert.False(t, ok, "other users' members never resolve")

	_, ok, err = l.StatIDByName(ctx, 1, "")
	require.NoError(t, err)
	assert.False(t, ok)
}
