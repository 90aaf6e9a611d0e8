package journal_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"questlog/internal/apperr"
	"questlog/internal/attributes"
	"questlog/internal/extract"
	"questlog/internal/family"
	"questlog/internal/journal"
	"questlog/internal/ledger"
	"questlog/internal/profile"
	"questlog/internal/stats"
	"questlog/internal/tags"
	"questlog/internal/testutil"
	"questlog/internal/todos"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const day = "2024-05-01"

type env struct {
	db    *gorm.DB
	svc   *journal.Service
	fake  *extract.Fake
	stats *stats.Service
	fam   *family.Service
}

func newEnv(t *testing.T, db *gorm.DB) *env {
	t.Helper()
	fake := &extract.Fake{}
	return &env{
		db:   db,
		fake: fake,
		svc: &journal.Service{
			DB:             db,
			Extractor:      fake,
			Responder:      fake,
			Profile:        &profile.Loader{DB: db},
			Tags:           &tags.Service{DB: db, Merger: fake},
			ExtractTimeout: time.Second,
		},
		stats: &stats.Service{DB: db},
		fam:   &family.Service{DB: db},
	}
}

func (e *env) inReview(t *testing.T, userID uint64, date string, rating *int) *journal.Journal {
	t.Helper()
	ctx := context.Background()
	_, err := e.svc.Create(ctx, userID, journal.CreateInput{Date: date, InitialMessage: "Long day.", DayRating: rating})
	require.NoError(t, err)
	j, err := e.svc.StartReflection(ctx, userID, date)
	require.NoError(t, err)
	require.Equal(t, journal.StatusInReview, j.Status)
	return j
}

func (e *env) grantCount(t *testing.T, tt ledger.TargetType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&ledger.Grant{}).Where("target_type = ?", tt).Count(&n).Error)
	return n
}

func intPtr(v int) *int { return &v }

func TestFinishAppliesSignal(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testutil.OpenDB(t))
	stat, err := e.stats.Create(ctx, 1, "Fitness", "")
	require.NoError(t, err)
	sarah, err := e.fam.Create(ctx, 1, "Sarah", "sister")
	require.NoError(t, err)
	e.inReview(t, 1, day, intPtr(2))

	e.fake.Result = &extract.Metadata{
		Title:               "Morning run",
		Summary:             "Ran 5k, then called Sarah.",
		ToneTags:            []string{"Calm"},
		SuggestedTags:       []string{"Running", "family"},
		SuggestedStatTags:   map[uint64]extract.Suggestion{stat.ID: {XP: 25, Reason: "ran 5k"}},
		SuggestedFamilyTags: map[uint64]extract.Suggestion{sarah.ID: {XP: 10, Reason: "long call"}},
		SuggestedTodos:      []string{"Stretch"},
		SuggestedAttributes: []string{"disciplined"},
		InferredDayRating:   intPtr(4),
	}

	start := time.Now()
	j, err := e.svc.Finish(ctx, 1, day)
	require.NoError(t, err)

	assert.Equal(t, journal.StatusComplete, j.Status)
	assert.Equal(t, "Morning run", j.Title)
	require.NotNil(t, j.InferredDayRating)
	assert.Equal(t, 4, *j.InferredDayRating)
	require.NotNil(t, j.DayRating)
	assert.Equal(t, 2, *j.DayRating, "explicit rating is never overwritten")
	assert.Len(t, j.TagIDs, 2)

	var grants []ledger.Grant
	require.NoError(t, e.db.Where("target_type = ? AND target_id = ?", ledger.TargetSkillStat, stat.ID).Find(&grants).Error)
	require.Len(t, grants, 1)
	assert.Equal(t, int64(25), grants[0].Amount)
	assert.Equal(t, ledger.SourceJournal, grants[0].SourceType)

	gotStat, err := e.stats.Get(ctx, 1, stat.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(25), gotStat.TotalXP)

	gotSarah, err := e.fam.Get(ctx, 1, sarah.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), gotSarah.ConnectionXP)
	assert.NotNil(t, gotSarah.LastInteractionAt)

	var tagGrants []ledger.Grant
	require.NoError(t, e.db.Where("target_type = ?", ledger.TargetContentTag).Find(&tagGrants).Error)
	require.Len(t, tagGrants, 2)
	for _, g := range tagGrants {
		assert.Zero(t, g.Amount)
	}

	var spawned []todos.SimpleTodo
	require.NoError(t, e.db.Where("source_journal_id = ?", j.ID).Find(&spawned).Error)
	require.Len(t, spawned, 1)
	exp := *spawned[0].ExpiresAt
	assert.True(t, exp.After(start.Add(23*time.Hour)), "expires %v", exp)
	assert.True(t, exp.Before(start.Add(25*time.Hour)), "expires %v", exp)

	attrs, err := (&attributes.Service{DB: e.db}).List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, attrs, 1)
	assert.Equal(t, attributes.CategoryReflection, attrs[0].Category)
	assert.Equal(t, attributes.SourceJournalAnalysis, attrs[0].Source)

	req := e.fake.LastRequest()
	assert.NotEmpty(t, req.Transcript)
	assert.Len(t, req.Context.Stats, 1)
}

func TestFinishTwiceGrantsOnce(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testutil.OpenDB(t))
	stat, err := e.stats.Create(ctx, 1, "Fitness", "")
	require.NoError(t, err)
	e.inReview(t, 1, day, nil)
	e.fake.Result = &extract.Metadata{
		SuggestedStatTags: map[uint64]extract.Suggestion{stat.ID: {XP: 25}},
	}

	j, err := e.svc.Finish(ctx, 1, day)
	require.NoError(t, err)
	assert.Equal(t, journal.StatusComplete, j.Status)

	_, err = e.svc.Finish(ctx, 1, day)
	require.ErrorIs(t, err, journal.ErrAlreadyCompleted)
	assert.Contains(t, err.Error(), "already completed")

	assert.Equal(t, int64(1), e.grantCount(t, ledger.TargetSkillStat))
	assert.Equal(t, 1, e.fake.ExtractCalls())
}

func TestFinishDegradesWhenExtractionFails(t *testing.T) {
	tests := []struct {
		name  string
		setup func(e *env)
	}{
		{"error", func(e *env) { e.fake.Err = errors.New("model overloaded") }},
		{"timeout", func(e *env) {
			e.fake.Delay = time.Second
			e.svc.ExtractTimeout = 20 * time.Millisecond
		}},
		{"empty result", func(e *env) { e.fake.Result = &extract.Metadata{} }},
		{"no extractor", func(e *env) { e.svc.Extractor = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e := newEnv(t, testutil.OpenDB(t))
			stat, err := e.stats.Create(ctx, 1, "Fitness", "")
			require.NoError(t, err)
			e.inReview(t, 1, day, nil)
			tt.setup(e)
			if e.fake.Result == nil {
				e.fake.Result = &extract.Metadata{SuggestedStatTags: map[uint64]extract.Suggestion{stat.ID: {XP: 25}}}
			}

			j, err := e.svc.Finish(ctx, 1, day)
			require.NoError(t, err)
			assert.Equal(t, journal.StatusComplete, j.Status)
			assert.Nil(t, j.InferredDayRating)
			assert.Zero(t, e.grantCount(t, ledger.TargetSkillStat))
		})
	}
}

func TestFinishRejectsDraftAndMissing(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testutil.OpenDB(t))
	_, err := e.svc.Create(ctx, 1, journal.CreateInput{Date: day})
	require.NoError(t, err)

	_, err = e.svc.Finish(ctx, 1, day)
	assert.ErrorIs(t, err, journal.ErrNotInReview)

	_, err = e.svc.Finish(ctx, 1, "2024-05-02")
	assert.ErrorIs(t, err, journal.ErrNotFound)

	_, err = e.svc.Finish(ctx, 2, day)
	assert.ErrorIs(t, err, journal.ErrNotFound, "another user's journal looks missing")
	assert.Zero(t, e.fake.ExtractCalls())
}

func TestFinishSkipsDuplicateAttribute(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testutil.OpenDB(t))
	attrs := &attributes.Service{DB: e.db}
	_, err := attrs.Create(ctx, 1, attributes.CategoryReflection, "patient")
	require.NoError(t, err)
	stat, err := e.stats.Create(ctx, 1, "Fitness", "")
	require.NoError(t, err)
	e.inReview(t, 1, day, nil)
	e.fake.Result = &extract.Metadata{
		SuggestedStatTags:   map[uint64]extract.Suggestion{stat.ID: {XP: 15}},
		SuggestedTodos:      []string{"Plan tomorrow"},
		SuggestedAttributes: []string{"patient", "kind"},
	}

	_, err = e.svc.Finish(ctx, 1, day)
	require.NoError(t, err)

	list, err := attrs.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, int64(1), e.grantCount(t, ledger.TargetSkillStat))
}

func TestFinishIgnoresTargetsOwnedByOthers(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testutil.OpenDB(t))
	foreign, err := e.stats.Create(ctx, 2, "Fitness", "")
	require.NoError(t, err)
	e.inReview(t, 1, day, nil)
	e.fake.Result = &extract.Metadata{
		Title:             "Quiet day",
		SuggestedStatTags: map[uint64]extract.Suggestion{foreign.ID: {XP: 30}},
	}

	j, err := e.svc.Finish(ctx, 1, day)
	require.NoError(t, err)
	assert.Equal(t, journal.StatusComplete, j.Status)
	assert.Zero(t, e.grantCount(t, ledger.TargetSkillStat))

	got, err := e.stats.Get(ctx, 2, foreign.ID)
	require.NoError(t, err)
	assert.Zero(t, got.TotalXP)
}

func TestFinishReusesExistingTags(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testutil.OpenDB(t))
	tagSvc := &tags.Service{DB: e.db}
	existing, err := tags.CreateOrGet(e.db, 1, "family", tags.SourceUserSet)
	require.NoError(t, err)
	e.inReview(t, 1, day, nil)
	e.fake.Merged = []string{}
	e.fake.Result = &extract.Metadata{SuggestedTags: []string{"Family", "family time"}}

	j, err := e.svc.Finish(ctx, 1, day)
	require.NoError(t, err)
	assert.Equal(t, []uint64{existing.ID}, []uint64(j.TagIDs))

	names, err := tagSvc.ExistingNames(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"family"}, names)
}

func finishWithOverlongSuggestions(t *testing.T, e *env, userID uint64) {
	t.Helper()
	ctx := context.Background()
	stat, err := e.stats.Create(ctx, userID, "Focus", "")
	require.NoError(t, err)
	e.inReview(t, userID, day, nil)
	e.fake.Result = &extract.Metadata{
		Title:               strings.Repeat("t", journal.MaxTitleLen+50),
		SuggestedStatTags:   map[uint64]extract.Suggestion{stat.ID: {XP: 10}},
		SuggestedTags:       []string{strings.Repeat("x", tags.MaxNameLen+1), "deep work"},
		SuggestedAttributes: []string{strings.Repeat("y", attributes.MaxValueLen+1), "calm"},
	}

	j, err := e.svc.Finish(ctx, userID, day)
	require.NoError(t, err)
	assert.Equal(t, journal.StatusComplete, j.Status)
	assert.Len(t, []rune(j.Title), journal.MaxTitleLen)
	assert.Len(t, j.TagIDs, 1)

	names, err := e.svc.Tags.ExistingNames(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, []string{"deep work"}, names)

	attrs, err := (&attributes.Service{DB: e.db}).List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, attrs, 1)
	assert.Equal(t, "calm", attrs[0].Value)

	got, err := e.stats.Get(ctx, userID, stat.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.TotalXP)
}

func TestFinishDropsOverlongSuggestions(t *testing.T) {
	finishWithOverlongSuggestions(t, newEnv(t, testutil.OpenDB(t)), 1)
}

func TestFinishDropsOverlongSuggestionsPostgres(t *testing.T) {
	db := testutil.OpenPostgres(t)
	finishWithOverlongSuggestions(t, newEnv(t, db), uint64(time.Now().UnixNano()))
}

func TestFinishFailureLeavesNoPartialWrites(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	e := newEnv(t, db)
	stat, err := e.stats.Create(ctx, 1, "Fitness", "")
	require.NoError(t, err)
	e.inReview(t, 1, day, nil)
	e.fake.Result = &extract.Metadata{
		Title:               "Half done",
		SuggestedStatTags:   map[uint64]extract.Suggestion{stat.ID: {XP: 25}},
		SuggestedTags:       []string{"focus"},
		SuggestedTodos:      []string{"Stretch"},
		SuggestedAttributes: []string{"steady"},
	}

	boom := errors.New("boom")
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_todos", func(tx *gorm.DB) {
		if tx.Statement.Schema != nil && tx.Statement.Schema.Table == "simple_todos" {
			_ = tx.AddError(boom)
		}
	}))

	_, err = e.svc.Finish(ctx, 1, day)
	require.ErrorIs(t, err, boom)

	j, err := e.svc.Get(ctx, 1, day)
	require.NoError(t, err)
	assert.Equal(t, journal.StatusInReview, j.Status)
	assert.Empty(t, j.Title)
	assert.Nil(t, j.CompletedAt)

	assert.Zero(t, e.grantCount(t, ledger.TargetSkillStat))
	assert.Zero(t, e.grantCount(t, ledger.TargetContentTag))
	got, err := e.stats.Get(ctx, 1, stat.ID)
	require.NoError(t, err)
	assert.Zero(t, got.TotalXP)

	names, err := e.svc.Tags.ExistingNames(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, names)

	var todoRows int64
	require.NoError(t, db.Model(&todos.SimpleTodo{}).Count(&todoRows).Error)
	assert.Zero(t, todoRows)
}

func concurrentFinish(t *testing.T, e *env, userID uint64, date string) {
	t.Helper()
	ctx := context.Background()
	stat, err := e.stats.Create(ctx, userID, "Fitness", "")
	require.NoError(t, err)
	e.inReview(t, userID, date, nil)
	e.fake.Result = &extract.Metadata{SuggestedStatTags: map[uint64]extract.Suggestion{stat.ID: {XP: 20}}}

	var ok, already atomic.Int32
	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			_, err := e.svc.Finish(ctx, userID, date)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, journal.ErrAlreadyCompleted):
				already.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(1), already.Load())

	got, err := e.stats.Get(ctx, userID, stat.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), got.TotalXP)
}

func TestConcurrentFinishGrantsOnce(t *testing.T) {
	concurrentFinish(t, newEnv(t, testutil.OpenDB(t)), 1, day)
}

func TestConcurrentFinishPostgres(t *testing.T) {
	db := testutil.OpenPostgres(t)
	concurrentFinish(t, newEnv(t, db), uint64(time.Now().UnixNano()), day)
}

func TestCreateDuplicateDateConflicts(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testutil.OpenDB(t))
	_, err := e.svc.Create(ctx, 1, journal.CreateInput{Date: day})
	require.NoError(t, err)

	_, err = e.svc.Create(ctx, 1, journal.CreateInput{Date: day})
	require.ErrorIs(t, err, journal.ErrDateTaken)
	assert.Contains(t, err.Error(), "already exists")

	_, err = e.svc.Create(ctx, 2, journal.CreateInput{Date: day})
	assert.NoError(t, err)
}

func TestCreateValidates(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testutil.OpenDB(t))

	_, err := e.svc.Create(ctx, 1, journal.CreateInput{Date: "05/01/2024"})
	assert.ErrorIs(t, err, journal.ErrInvalidDate)
	_, err = e.svc.Create(ctx, 1, journal.CreateInput{Date: day, DayRating: intPtr(6)})
	assert.ErrorIs(t, err, journal.ErrInvalidRating)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestChatFlow(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testutil.OpenDB(t))
	_, err := e.svc.Create(ctx, 1, journal.CreateInput{Date: day})
	require.NoError(t, err)

	_, err = e.svc.Chat(ctx, 1, day, "hello")
	require.ErrorIs(t, err, journal.ErrNotInReview)

	started, err := e.svc.StartReflection(ctx, 1, day)
	require.NoError(t, err)
	seeded := len(started.Transcript)
	assert.Equal(t, extract.RoleSystem, started.Transcript[0].Role)
	assert.Equal(t, extract.RoleAssistant, started.Transcript[seeded-1].Role)

	_, err = e.svc.StartReflection(ctx, 1, day)
	assert.ErrorIs(t, err, journal.ErrAlreadyInReview)

	e.fake.ReplyText = "What made it good?"
	j, err := e.svc.Chat(ctx, 1, day, "It was good.")
	require.NoError(t, err)
	require.Len(t, j.Transcript, seeded+2)
	assert.Equal(t, "It was good.", j.Transcript[seeded].Content)
	assert.Equal(t, "What made it good?", j.Transcript[seeded+1].Content)

	stored, err := e.svc.Get(ctx, 1, day)
	require.NoError(t, err)
	assert.Len(t, stored.Transcript, seeded+2)

	_, err = e.svc.Chat(ctx, 1, day, "   ")
	assert.ErrorIs(t, err, journal.ErrEmptyMessage)
}

func TestDraftOnlyEditsAndDeletes(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, testutil.OpenDB(t))
	_, err := e.svc.Create(ctx, 1, journal.CreateInput{Date: day})
	require.NoError(t, err)

	msg := "Rewritten"
	j, err := e.svc.Update(ctx, 1, day, journal.UpdateInput{InitialMessage: &msg})
	require.NoError(t, err)
	assert.Equal(t, "Rewritten", j.InitialMessage)

	_, err = e.svc.StartReflection(ctx, 1, day)
	require.NoError(t, err)

	_, err = e.svc.Update(ctx, 1, day, journal.UpdateInput{InitialMessage: &msg})
	assert.ErrorIs(t, err, journal.ErrNotDraft)
	assert.ErrorIs(t, e.svc.Delete(ctx, 1, day), journal.ErrNotDraft)

	rated, err := e.svc.SetDayRating(ctx, 1, day, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, *rated.DayRating)
	_, err = e.svc.SetDayRating(ctx, 1, day, 0)
	assert.ErrorIs(t, err, journal.ErrInvalidRating)

	_, err = e.svc.Create(ctx, 1, journal.CreateInput{Date: "2024-05-02"})
	require.NoError(t, err)
	require.NoError(t, e.svc.Delete(ctx, 1, "2024-05-02"))
	_, err = e.svc.Get(ctx, 1, "2024-05-02")
	assert.ErrorIs(t, err, journal.ErrNotFound)
}
