package extract

import (
	"context"
	"testing"

	"questlog/internal/resolve"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() UserContext {
	return UserContext{
		Character: "A patient gardener",
		Stats:     []resolve.Ref{{ID: 7, Name: "Fitness"}, {ID: 8, Name: "Deep Work"}},
		Family:    []FamilyRef{{ID: 3, Name: "Sarah", Relationship: "sister"}},
	}
}

func TestParseExtraction(t *testing.T) {
	raw := "```json\n" + `{
		"title": " Morning run ",
		"summary": "Ran 5k and called Sarah.",
		"toneTags": ["calm"],
		"suggestedTags": ["running", "family time"],
		"statXp": [
			{"name": "fitness", "xp": 25, "reason": "ran 5k"},
			{"name": "FITNESS", "xp": 10, "reason": "duplicate"},
			{"name": "Cooking", "xp": 10, "reason": "unknown stat"},
			{"name": "deep work", "xp": 400, "reason": "too much"},
			{"name": "Deep Work", "xp": 5}
		],
		"familyXp": [{"name": "Sarah", "xp": -4, "reason": "negative"}],
		"todos": ["Stretch"],
		"dayRating": 4
	}` + "\n```"

	md, err := parseExtraction(raw, testContext())
	require.NoError(t, err)

	assert.Equal(t, "Morning run", md.Title)
	want := map[uint64]Suggestion{
		7: {XP: 25, Reason: "ran 5k"},
		8: {XP: MaxXP, Reason: "too much"},
	}
	if diff := cmp.Diff(want, md.SuggestedStatTags); diff != "" {
		t.Fatalf("stat suggestions mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, md.SuggestedFamilyTags)
	require.NotNil(t, md.InferredDayRating)
	assert.Equal(t, 4, *md.InferredDayRating)
	assert.False(t, md.Empty())
}

func TestParseExtractionRejectsOutOfRangeRating(t *testing.T) {
	md, err := parseExtraction(`{"dayRating": 9}`, UserContext{})
	require.NoError(t, err)
	assert.Nil(t, md.InferredDayRating)
	assert.True(t, md.Empty())
}

func TestParseExtractionInvalidJSON(t *testing.T) {
	_, err := parseExtraction("not json", UserContext{})
	assert.Error(t, err)
}

func TestClampXP(t *testing.T) {
	assert.Equal(t, int64(0), ClampXP(-1))
	assert.Equal(t, int64(0), ClampXP(0))
	assert.Equal(t, int64(30), ClampXP(30))
	assert.Equal(t, int64(MaxXP), ClampXP(51))
}

func TestPromptResponderCycles(t *testing.T) {
	var r PromptResponder
	first, err := r.Reply(context.Background(), nil, UserContext{})
	require.NoError(t, err)
	second, err := r.Reply(context.Background(), []Turn{{Role: RoleAssistant}, {Role: RoleUser}}, UserContext{})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}
