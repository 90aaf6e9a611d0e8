package ledger

import "time"

type TargetType string

const (
	TargetSkillStat    TargetType = "skill_stat"
	TargetRelationship TargetType = "relationship"
	TargetContentTag   TargetType = "content_tag"
)

func (t TargetType) Valid() bool {
	switch t {
	case TargetSkillStat, TargetRelationship, TargetContentTag:
		return true
	}
	return false
}

type SourceType string

const (
	SourceJournal SourceType = "journal"
	SourceTask    SourceType = "task"
	SourceQuest   SourceType = "quest"
	SourceAdhoc   SourceType = "adhoc"
)

func (s SourceType) Valid() bool {
	switch s {
	case SourceJournal, SourceTask, SourceQuest, SourceAdhoc:
		return true
	}
	return false
}

// Grant is append-only. Rows are never updated; they go away only when the
// target entity is deleted.
type Grant struct {
	ID         uint64     `gorm:"primaryKey" json:"id"`
	UserID     uint64     `gorm:"index;not null" json:"userId"`
	TargetType TargetType `gorm:"type:varchar(32);not null;index:idx_grants_target,priority:1" json:"targetType"`
	TargetID   uint64     `gorm:"not null;index:idx_grants_target,priority:2" json:"targetId"`
	Amount     int64      `gorm:"not null" json:"amount"`
	SourceType SourceType `gorm:"type:varchar(32);not null" json:"sourceType"`
	SourceID   *uint64    `gorm:"index" json:"sourceId,omitempty"`
	Reason     string     `gorm:"type:text;not null;default:''" json:"reason"`
	CreatedAt  time.Time  `gorm:"not null" json:"createdAt"`
}

func (Grant) TableName() string { return "experience_grants" }
