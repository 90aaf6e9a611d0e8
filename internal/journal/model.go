package journal

import (
	"time"

	"questlog/internal/extract"

	"gorm.io/datatypes"
)

// DateLayout is the calendar-date form journals are keyed by.
const DateLayout = "2006-01-02"

// MaxTitleLen matches the width of the title column.
const MaxTitleLen = 200

// Journal is one entry per user per calendar date. Once complete, the
// summary fields are frozen.
type Journal struct {
	ID     uint64 `gorm:"primaryKey" json:"id"`
	UserID uint64 `gorm:"not null;uniqueIndex:uq_journals_user_date,priority:1" json:"userId"`
	Date   string `gorm:"type:varchar(10);not null;uniqueIndex:uq_journals_user_date,priority:2" json:"date"`
	Status Status `gorm:"type:varchar(16);not null;default:'draft'" json:"status"`

	InitialMessage string                           `gorm:"type:text;not null;default:''" json:"initialMessage"`
	Transcript     datatypes.JSONSlice[extract.Turn] `json:"transcript"`

	DayRating         *int `json:"dayRating"`
	InferredDayRating *int `json:"inferredDayRating"`

	Title    string                      `gorm:"type:varchar(200);not null;default:''" json:"title"`
	Synopsis string                      `gorm:"type:text;not null;default:''" json:"synopsis"`
	Summary  string                      `gorm:"type:text;not null;default:''" json:"summary"`
	ToneTags datatypes.JSONSlice[string] `json:"toneTags"`
	TagIDs   datatypes.JSONSlice[uint64] `gorm:"column:tag_ids" json:"tagIds"`

	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `gorm:"not null" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updatedAt"`
}

// ParseDate validates a YYYY-MM-DD string and returns its canonical form.
func ParseDate(s string) (string, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", ErrInvalidDate
	}
	return d.Format(DateLayout), nil
}
