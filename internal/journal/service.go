package journal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"questlog/internal/apperr"
	"questlog/internal/attributes"
	"questlog/internal/db/dberr"
	"questlog/internal/extract"
	"questlog/internal/ledger"
	"questlog/internal/logging"
	"questlog/internal/profile"
	"questlog/internal/tags"
	"questlog/internal/todos"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound      = apperr.NotFound("journal not found")
	ErrDateTaken     = apperr.Conflict("journal for this date already exists")
	ErrInvalidDate   = apperr.Field("date", "must be YYYY-MM-DD")
	ErrInvalidRating = apperr.Field("dayRating", "must be between 1 and 5")
	ErrEmptyMessage  = apperr.Field("content", "required")
)

const defaultExtractTimeout = 30 * time.Second

const openingPrompt = "You are a reflective journaling companion. Help the user look back on their day."

type Service struct {
	DB             *gorm.DB
	Extractor      extract.Extractor
	Responder      extract.Responder
	Profile        *profile.Loader
	Tags           *tags.Service
	ExtractTimeout time.Duration
	Log            *zap.Logger

	// Now is overridable in tests.
	Now func() time.Time
}

type CreateInput struct {
	Date           string
	InitialMessage string
	DayRating      *int
}

// Create relies on the (user_id, date) unique index so concurrent creates
// for the same date resolve to one success.
func (s *Service) Create(ctx context.Context, userID uint64, in CreateInput) (*Journal, error) {
	date, err := ParseDate(in.Date)
	if err != nil {
		return nil, err
	}
	if in.DayRating != nil && extract.ValidRating(in.DayRating) == nil {
		return nil, ErrInvalidRating
	}
	j := Journal{
		UserID:         userID,
		Date:           date,
		Status:         StatusDraft,
		InitialMessage: strings.TrimSpace(in.InitialMessage),
		DayRating:      in.DayRating,
	}
	if err := s.DB.WithContext(ctx).Create(&j).Error; err != nil {
		if dberr.IsUniqueViolation(err) {
			return nil, ErrDateTaken
		}
		return nil, fmt.Errorf("create journal: %w", err)
	}
	return &j, nil
}

func (s *Service) Get(ctx context.Context, userID uint64, date string) (*Journal, error) {
	return find(s.DB.WithContext(ctx), userID, date)
}

func find(tx *gorm.DB, userID uint64, date string) (*Journal, error) {
	d, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	var j Journal
	if err := tx.Where("user_id = ? AND date = ?", userID, d).First(&j).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

func findForUpdate(tx *gorm.DB, userID uint64, date string) (*Journal, error) {
	return find(tx.Clauses(clause.Locking{Strength: "UPDATE"}), userID, date)
}

// List returns the user's journals, newest date first.
func (s *Service) List(ctx context.Context, userID uint64) ([]Journal, error) {
	var out []Journal
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Order("date desc").Find(&out).Error
	return out, err
}

type UpdateInput struct {
	InitialMessage *string
	DayRating      *int
}

// Update edits a draft.
func (s *Service) Update(ctx context.Context, userID uint64, date string, in UpdateInput) (*Journal, error) {
	if in.DayRating != nil && extract.ValidRating(in.DayRating) == nil {
		return nil, ErrInvalidRating
	}
	var j *Journal
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if j, err = findForUpdate(tx, userID, date); err != nil {
			return err
		}
		if err := j.Status.Editable(); err != nil {
			return err
		}
		if in.InitialMessage != nil {
			j.InitialMessage = strings.TrimSpace(*in.InitialMessage)
		}
		if in.DayRating != nil {
			j.DayRating = in.DayRating
		}
		return tx.Save(j).Error
	})
	if err != nil {
		return nil, err
	}
	return j, nil
}

// SetDayRating records the user's own rating in any state. It is kept apart
// from the inferred rating written at finish.
func (s *Service) SetDayRating(ctx context.Context, userID uint64, date string, rating int) (*Journal, error) {
	if extract.ValidRating(&rating) == nil {
		return nil, ErrInvalidRating
	}
	var j *Journal
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if j, err = findForUpdate(tx, userID, date); err != nil {
			return err
		}
		j.DayRating = &rating
		return tx.Model(j).Update("day_rating", rating).Error
	})
	if err != nil {
		return nil, err
	}
	return j, nil
}

// Delete removes a draft.
func (s *Service) Delete(ctx context.Context, userID uint64, date string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		j, err := findForUpdate(tx, userID, date)
		if err != nil {
			return err
		}
		if err := j.Status.Editable(); err != nil {
			return err
		}
		return tx.Delete(j).Error
	})
}

// StartReflection moves a draft into review and seeds the transcript with a
// system turn, the user's initial message and an opening question.
func (s *Service) StartReflection(ctx context.Context, userID uint64, date string) (*Journal, error) {
	j, err := s.Get(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if _, err := j.Status.StartReflection(); err != nil {
		return nil, err
	}

	now := s.now()
	seed := []extract.Turn{newTurn(extract.RoleSystem, openingPrompt, now)}
	if j.InitialMessage != "" {
		seed = append(seed, newTurn(extract.RoleUser, j.InitialMessage, now))
	}
	opening, err := s.reply(ctx, userID, seed)
	if err != nil {
		s.log().Warn("opening question failed, using default",
			zap.Uint64("user_id", userID), zap.String("date", j.Date), zap.Error(err))
		opening, _ = extract.PromptResponder{}.Reply(ctx, seed, extract.UserContext{})
	}
	seed = append(seed, newTurn(extract.RoleAssistant, opening, s.now()))

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := findForUpdate(tx, userID, date)
		if err != nil {
			return err
		}
		next, err := cur.Status.StartReflection()
		if err != nil {
			return err
		}
		cur.Status = next
		cur.Transcript = seed
		j = cur
		return tx.Save(cur).Error
	})
	if err != nil {
		return nil, err
	}
	return j, nil
}

// Chat appends the user's turn and the assistant's reply. The reply is
// generated before any row is locked.
func (s *Service) Chat(ctx context.Context, userID uint64, date, content string) (*Journal, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	j, err := s.Get(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if err := j.Status.CanChat(); err != nil {
		return nil, err
	}

	userTurn := newTurn(extract.RoleUser, content, s.now())
	history := append(append([]extract.Turn{}, j.Transcript...), userTurn)
	answer, err := s.reply(ctx, userID, history)
	if err != nil {
		return nil, apperr.Upstream("assistant reply failed", err)
	}
	botTurn := newTurn(extract.RoleAssistant, answer, s.now())

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := findForUpdate(tx, userID, date)
		if err != nil {
			return err
		}
		if err := cur.Status.CanChat(); err != nil {
			return err
		}
		cur.Transcript = append(cur.Transcript, userTurn, botTurn)
		j = cur
		return tx.Model(cur).Update("transcript", cur.Transcript).Error
	})
	if err != nil {
		return nil, err
	}
	return j, nil
}

// Finish completes a journal in review and converts the extracted signal into
// grants, tags, to-dos and attributes in a single transaction. Extraction
// failures complete the journal without any signal.
func (s *Service) Finish(ctx context.Context, userID uint64, date string) (*Journal, error) {
	j, err := s.Get(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if _, err := j.Status.Finish(); err != nil {
		return nil, err
	}

	start := s.now()
	md := s.extract(ctx, userID, j)

	var resolved tags.Resolution
	if md != nil && s.Tags != nil {
		if resolved, err = s.Tags.Resolve(ctx, userID, md.SuggestedTags); err != nil {
			return nil, fmt.Errorf("resolve tags: %w", err)
		}
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := findForUpdate(tx, userID, date)
		if err != nil {
			return err
		}
		next, err := cur.Status.Finish()
		if err != nil {
			return err
		}
		cur.Status = next
		cur.CompletedAt = &start
		if md != nil {
			if err := s.applySignal(tx, cur, md, resolved, start); err != nil {
				return err
			}
		}
		j = cur
		return tx.Save(cur).Error
	})
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (s *Service) applySignal(tx *gorm.DB, j *Journal, md *extract.Metadata, resolved tags.Resolution, now time.Time) error {
	j.Title = truncate(strings.TrimSpace(md.Title), MaxTitleLen)
	j.Synopsis = strings.TrimSpace(md.Synopsis)
	j.Summary = strings.TrimSpace(md.Summary)
	j.ToneTags = tags.NormalizeAll(md.ToneTags)
	j.InferredDayRating = extract.ValidRating(md.InferredDayRating)

	if err := s.grantAll(tx, j, ledger.TargetSkillStat, md.SuggestedStatTags); err != nil {
		return err
	}
	if err := s.grantAll(tx, j, ledger.TargetRelationship, md.SuggestedFamilyTags); err != nil {
		return err
	}

	names := s.fitting(j, "tag", resolved.All(), tags.Fits)
	linked, err := tags.Apply(tx, j.UserID, names, tags.SourceDiscovered)
	if err != nil {
		return fmt.Errorf("apply tags: %w", err)
	}
	ids := make([]uint64, 0, len(linked))
	for _, t := range linked {
		_, err := ledger.Record(tx, ledger.GrantInput{
			UserID:     j.UserID,
			TargetType: ledger.TargetContentTag,
			TargetID:   t.ID,
			SourceType: ledger.SourceJournal,
			SourceID:   &j.ID,
			Reason:     "tagged in journal " + j.Date,
		})
		if err != nil {
			return fmt.Errorf("tag provenance %d: %w", t.ID, err)
		}
		ids = append(ids, t.ID)
	}
	j.TagIDs = ids

	if _, err := todos.Spawn(tx, j.UserID, &j.ID, md.SuggestedTodos, now); err != nil {
		return fmt.Errorf("spawn todos: %w", err)
	}

	attrs := s.fitting(j, "attribute", md.SuggestedAttributes, attributes.Fits)
	n, err := attributes.RecordBestEffort(tx, j.UserID, attributes.CategoryReflection,
		attrs, attributes.SourceJournalAnalysis)
	if err != nil {
		return fmt.Errorf("record attributes: %w", err)
	}
	if skipped := countNonEmpty(attrs) - int(n); skipped > 0 {
		s.log().Debug("skipped duplicate attributes", zap.Uint64("journal_id", j.ID), zap.Int("skipped", skipped))
	}
	return nil
}

// fitting drops suggestions too long for their column, logging each one.
func (s *Service) fitting(j *Journal, kind string, values []string, fits func(string) bool) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !fits(strings.TrimSpace(v)) {
			s.log().Warn("dropping over-long suggestion",
				zap.Uint64("journal_id", j.ID), zap.String("kind", kind), zap.Int("length", utf8.RuneCountInString(v)))
			continue
		}
		out = append(out, v)
	}
	return out
}

// grantAll records one grant per suggestion in ascending id order. Targets
// the user does not own are skipped.
func (s *Service) grantAll(tx *gorm.DB, j *Journal, tt ledger.TargetType, suggestions map[uint64]extract.Suggestion) error {
	ids := make([]uint64, 0, len(suggestions))
	for id := range suggestions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

	for _, id := range ids {
		sg := suggestions[id]
		amount := extract.ClampXP(sg.XP)
		if amount == 0 {
			continue
		}
		_, err := ledger.Record(tx, ledger.GrantInput{
			UserID:     j.UserID,
			TargetType: tt,
			TargetID:   id,
			Amount:     amount,
			SourceType: ledger.SourceJournal,
			SourceID:   &j.ID,
			Reason:     sg.Reason,
		})
		if errors.Is(err, ledger.ErrTargetNotFound) {
			s.log().Warn("skipping grant for unknown target",
				zap.String("target_type", string(tt)), zap.Uint64("target_id", id), zap.Uint64("journal_id", j.ID))
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// extract returns nil when there is no usable signal.
func (s *Service) extract(ctx context.Context, userID uint64, j *Journal) *extract.Metadata {
	if s.Extractor == nil {
		return nil
	}
	uc, err := s.userContext(ctx, userID)
	if err != nil {
		s.log().Warn("profile load failed, extracting without context", zap.Uint64("user_id", userID), zap.Error(err))
	}

	ectx, cancel := context.WithTimeout(ctx, s.extractTimeout())
	defer cancel()
	md, err := s.Extractor.Extract(ectx, extract.Request{Transcript: j.Transcript, Context: uc})
	if err != nil {
		s.log().Warn("extraction failed, finishing without signal",
			zap.Uint64("journal_id", j.ID), zap.Error(apperr.Upstream("extract metadata", err)))
		return nil
	}
	if md.Empty() {
		return nil
	}
	return md
}

func (s *Service) reply(ctx context.Context, userID uint64, transcript []extract.Turn) (string, error) {
	r := s.Responder
	if r == nil {
		r = extract.PromptResponder{}
	}
	uc, err := s.userContext(ctx, userID)
	if err != nil {
		return "", err
	}
	rctx, cancel := context.WithTimeout(ctx, s.extractTimeout())
	defer cancel()
	return r.Reply(rctx, transcript, uc)
}

func (s *Service) userContext(ctx context.Context, userID uint64) (extract.UserContext, error) {
	if s.Profile == nil {
		return extract.UserContext{}, nil
	}
	return s.Profile.Load(ctx, userID)
}

func (s *Service) extractTimeout() time.Duration {
	if s.ExtractTimeout <= 0 {
		return defaultExtractTimeout
	}
	return s.ExtractTimeout
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) log() *zap.Logger { return logging.OrNop(s.Log) }

func newTurn(role extract.Role, content string, at time.Time) extract.Turn {
	return extract.Turn{ID: uuid.NewString(), Role: role, Content: content, CreatedAt: at}
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:limit]))
}

func countNonEmpty(values []string) int {
	n := 0
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}
