package ledger_test

import (
	"context"
	"testing"

	"questlog/internal/apperr"
	"questlog/internal/family"
	"questlog/internal/ledger"
	"questlog/internal/stats"
	"questlog/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrantBumpsCounterAndMatchesSum(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	st, err := (&stats.Service{DB: db}).Create(ctx, 1, "Fitness", "")
	require.NoError(t, err)

	svc := &ledger.Service{DB: db}
	for _, amt := range []int64{10, 0, 35} {
		_, err := svc.Grant(ctx, ledger.GrantInput{
			UserID: 1, TargetType: ledger.TargetSkillStat, TargetID: st.ID,
			Amount: amt, SourceType: ledger.SourceAdhoc, Reason: "practice",
		})
		require.NoError(t, err)
	}

	got, err := (&stats.Service{DB: db}).Get(ctx, 1, st.ID)
	require.NoError(t, err)
	sum, err := svc.Sum(ctx, 1, ledger.TargetSkillStat, st.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(45), got.TotalXP)
	assert.Equal(t, got.TotalXP, sum)

	hist, err := svc.History(ctx, 1, ledger.TargetSkillStat, st.ID)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, int64(35), hist[0].Amount)
}

func TestGrantRejectsNegativeAmount(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	st, err := (&stats.Service{DB: db}).Create(ctx, 1, "Fitness", "")
	require.NoError(t, err)

	_, err = (&ledger.Service{DB: db}).Grant(ctx, ledger.GrantInput{
		UserID: 1, TargetType: ledger.TargetSkillStat, TargetID: st.ID,
		Amount: -5, SourceType: ledger.SourceAdhoc,
	})
	require.ErrorIs(t, err, ledger.ErrNegativeAmount)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	var n int64
	require.NoError(t, db.Model(&ledger.Grant{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestGrantForeignTargetLeavesNoRow(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	st, err := (&stats.Service{DB: db}).Create(ctx, 1, "Fitness", "")
	require.NoError(t, err)

	_, err = (&ledger.Service{DB: db}).Grant(ctx, ledger.GrantInput{
		UserID: 2, TargetType: ledger.TargetSkillStat, TargetID: st.ID,
		Amount: 5, SourceType: ledger.SourceAdhoc,
	})
	require.ErrorIs(t, err, ledger.ErrTargetNotFound)

	var n int64
	require.NoError(t, db.Model(&ledger.Grant{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestRelationshipGrantTouchesLastInteraction(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	fam := &family.Service{DB: db}
	m, err := fam.Create(ctx, 1, "Sarah", "sister")
	require.NoError(t, err)
	require.Nil(t, m.LastInteractionAt)

	_, err = (&ledger.Service{DB: db}).Grant(ctx, ledger.GrantInput{
		UserID: 1, TargetType: ledger.TargetRelationship, TargetID: m.ID,
		Amount: 20, SourceType: ledger.SourceJournal, Reason: "long call",
	})
	require.NoError(t, err)

	got, err := fam.Get(ctx, 1, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), got.ConnectionXP)
	assert.NotNil(t, got.LastInteractionAt)
}

func TestGrantValidatesTypes(t *testing.T) {
	_, err := (&ledger.Service{DB: testutil.OpenDB(t)}).Grant(context.Background(), ledger.GrantInput{
		UserID: 1, TargetType: "planet", TargetID: 1, SourceType: ledger.SourceAdhoc,
	})
	assert.ErrorIs(t, err, ledger.ErrUnknownTarget)
}
