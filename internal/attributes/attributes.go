package attributes

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"questlog/internal/apperr"
	"questlog/internal/db/dberr"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Source string

const (
	SourceUserSet         Source = "user_set"
	SourceGPTSummary      Source = "gpt_summary"
	SourceJournalAnalysis Source = "journal_analysis"
)

// CategoryReflection holds traits inferred from finished journals.
const CategoryReflection = "reflection"

// MaxValueLen matches the width of the value column.
const MaxValueLen = 200

var ErrExists = apperr.Conflict("attribute already exists")

// Fits reports whether a trimmed value fits the value column.
func Fits(value string) bool { return utf8.RuneCountInString(value) <= MaxValueLen }

type UserAttribute struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	UserID    uint64    `gorm:"not null;uniqueIndex:uq_user_attributes,priority:1" json:"userId"`
	Category  string    `gorm:"type:varchar(60);not null;uniqueIndex:uq_user_attributes,priority:2" json:"category"`
	Value     string    `gorm:"type:varchar(200);not null;uniqueIndex:uq_user_attributes,priority:3" json:"value"`
	Source    Source    `gorm:"type:varchar(32);not null" json:"source"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
}

// RecordBestEffort inserts one row per value and silently skips rows that
// collide with (user, category, value) or are too long to store. ON CONFLICT
// DO NOTHING keeps the surrounding transaction usable on postgres, where a
// failed insert would abort it. Returns how many rows were actually inserted.
func RecordBestEffort(tx *gorm.DB, userID uint64, category string, values []string, source Source) (int64, error) {
	var inserted int64
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || !Fits(v) {
			continue
		}
		a := UserAttribute{UserID: userID, Category: category, Value: v, Source: source}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&a)
		if res.Error != nil {
			return inserted, res.Error
		}
		inserted += res.RowsAffected
	}
	return inserted, nil
}

type Service struct {
	DB *gorm.DB
}

// Create stores an attribute the user set; duplicates are a conflict here.
func (s *Service) Create(ctx context.Context, userID uint64, category, value string) (*UserAttribute, error) {
	category, value = strings.TrimSpace(category), strings.TrimSpace(value)
	fields := map[string]string{}
	if category == "" {
		fields["category"] = "required"
	}
	if value == "" {
		fields["value"] = "required"
	} else if !Fits(value) {
		fields["value"] = "longer than 200 characters"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("invalid input", fields)
	}
	a := UserAttribute{UserID: userID, Category: category, Value: value, Source: SourceUserSet}
	if err := s.DB.WithContext(ctx).Create(&a).Error; err != nil {
		if dberr.IsUniqueViolation(err) {
			return nil, ErrExists
		}
		return nil, err
	}
	return &a, nil
}

func (s *Service) List(ctx context.Context, userID uint64) ([]UserAttribute, error) {
	var out []UserAttribute
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Order("category asc, value asc").Find(&out).Error
	return out, err
}
