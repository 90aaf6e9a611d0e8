package stats

import (
	"time"

	"questlog/internal/resolve"
)

// SkillStat names are unique per user ignoring case and surrounding space;
// NameKey holds the folded form the unique index is built on.
type SkillStat struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	UserID      uint64    `gorm:"not null;uniqueIndex:uq_skill_stats_user_name,priority:1" json:"userId"`
	Name        string    `gorm:"type:varchar(120);not null" json:"name"`
	NameKey     string    `gorm:"type:varchar(120);not null;uniqueIndex:uq_skill_stats_user_name,priority:2" json:"-"`
	Description string    `gorm:"type:text;not null;default:''" json:"description"`
	Level       int       `gorm:"not null;default:1" json:"level"`
	TotalXP     int64     `gorm:"column:total_xp;not null;default:0" json:"totalXp"`
	CreatedAt   time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"not null" json:"updatedAt"`
}

func NameKey(name string) string {
	return resolve.Key(name)
}
