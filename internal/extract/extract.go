// Package extract is the boundary to the text-analysis service that turns a
// reflective conversation into structured journal metadata.
package extract

import (
	"context"
	"time"

	"questlog/internal/resolve"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// Turn is one transcript entry.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type FamilyRef struct {
	ID           uint64 `json:"id"`
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
}

// UserContext is the read-only profile handed to the extractor.
type UserContext struct {
	Character string
	Goals     []string
	Family    []FamilyRef
	Stats     []resolve.Ref
}

func (uc UserContext) StatIndex() resolve.Index { return resolve.New(uc.Stats) }

func (uc UserContext) FamilyIndex() resolve.Index {
	refs := make([]resolve.Ref, len(uc.Family))
	for i, f := range uc.Family {
		refs[i] = resolve.Ref{ID: f.ID, Name: f.Name}
	}
	return resolve.New(refs)
}

type Request struct {
	Transcript []Turn
	Context    UserContext
}

type Suggestion struct {
	XP     int64  `json:"xp"`
	Reason string `json:"reason"`
}

// Metadata is the extractor's output. Map keys are entity ids; names are
// resolved before the result crosses this boundary.
type Metadata struct {
	Title               string
	Synopsis            string
	Summary             string
	ToneTags            []string
	SuggestedTags       []string
	SuggestedStatTags   map[uint64]Suggestion
	SuggestedFamilyTags map[uint64]Suggestion
	SuggestedTodos      []string
	SuggestedAttributes []string
	InferredDayRating   *int
}

// Empty reports whether m carries no usable signal at all.
func (m *Metadata) Empty() bool {
	if m == nil {
		return true
	}
	return m.Title == "" && m.Synopsis == "" && m.Summary == "" &&
		len(m.ToneTags) == 0 && len(m.SuggestedTags) == 0 &&
		len(m.SuggestedStatTags) == 0 && len(m.SuggestedFamilyTags) == 0 &&
		len(m.SuggestedTodos) == 0 && len(m.SuggestedAttributes) == 0 &&
		m.InferredDayRating == nil
}

type Extractor interface {
	Extract(ctx context.Context, req Request) (*Metadata, error)
}

type TagMerger interface {
	MergeTags(ctx context.Context, existing, candidates []string) ([]string, error)
}

// Responder writes the assistant side of the reflective chat.
type Responder interface {
	Reply(ctx context.Context, transcript []Turn, uc UserContext) (string, error)
}

// MaxXP caps a single suggested grant.
const MaxXP = 50

// ClampXP keeps a suggested amount within [0, MaxXP].
func ClampXP(xp int64) int64 {
	if xp < 0 {
		return 0
	}
	if xp > MaxXP {
		return MaxXP
	}
	return xp
}

// ValidRating returns r when it is within 1..5.
func ValidRating(r *int) *int {
	if r == nil || *r < 1 || *r > 5 {
		return nil
	}
	v := *r
	return &v
}
