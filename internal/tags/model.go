package tags

import (
	"strings"
	"time"
	"unicode/utf8"
)

type Source string

const (
	SourceUserSet    Source = "user_set"
	SourceDiscovered Source = "discovered"
)

const (
	StatusActive   = "active"
	StatusArchived = "archived"
)

// MaxNameLen matches the width of the name column.
const MaxNameLen = 64

// Fits reports whether a normalized name fits the name column.
func Fits(name string) bool { return utf8.RuneCountInString(name) <= MaxNameLen }

// Tag is a normalized tag per user.
type Tag struct {
	ID         uint64    `gorm:"primaryKey" json:"id"`
	UserID     uint64    `gorm:"not null;uniqueIndex:uq_tags_user_name,priority:1" json:"userId"`
	Name       string    `gorm:"type:varchar(64);not null;uniqueIndex:uq_tags_user_name,priority:2" json:"name"`
	Source     Source    `gorm:"type:varchar(16);not null" json:"source"`
	UsageCount int64     `gorm:"not null;default:1" json:"usageCount"`
	Status     string    `gorm:"type:varchar(16);not null;default:'active'" json:"status"`
	CreatedAt  time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"not null" json:"updatedAt"`
}

// GoalTag is the association join table of the general tagging system.
// A tag with no rows here is unused.
type GoalTag struct {
	GoalID uint64 `gorm:"primaryKey"`
	TagID  uint64 `gorm:"primaryKey;index"`
	UserID uint64 `gorm:"index;not null"`
}

// Normalize trims and lowercases a tag name. An empty result means the name
// must be dropped.
func Normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// NormalizeAll normalizes names, dropping empties and repeats while keeping
// first-seen order.
func NormalizeAll(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		n := Normalize(r)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
