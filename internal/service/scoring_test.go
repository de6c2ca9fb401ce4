package service

import (
	"testing"

	"github.com/akkalaj75/hostelhub-v40/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterestScore(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"music", "travel"}, []string{"music", "travel"}, 1},
		{"case insensitive", []string{"Music"}, []string{"music"}, 1},
		{"partial overlap", []string{"music", "travel"}, []string{"travel", "coding"}, 0.5},
		{"uneven sizes", []string{"music"}, []string{"music", "travel", "coding"}, 1.0 / 3},
		{"disjoint", []string{"music"}, []string{"coding"}, 0},
		{"left empty", nil, []string{"coding"}, 0},
		{"right empty", []string{"coding"}, []string{}, 0},
		{"duplicates collapse", []string{"music", "MUSIC"}, []string{"music"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, InterestScore(tt.a, tt.b), 1e-9)
			assert.InDelta(t, InterestScore(tt.a, tt.b), InterestScore(tt.b, tt.a), 1e-9, "score must be symmetric")
		})
	}
}

func TestCompatible(t *testing.T) {
	self := &models.WaitingEntry{UserID: "me", GenderFilter: "female", CollegeFilter: "VIT AP"}
	blocked := func(id string) bool { return id == "troll" }

	tests := []struct {
		name      string
		candidate models.WaitingEntry
		want      bool
	}{
		{"same college", models.WaitingEntry{UserID: "a", GenderFilter: "female", CollegeFilter: "VIT AP"}, true},
		{"candidate any", models.WaitingEntry{UserID: "a", GenderFilter: "female", CollegeFilter: models.AnyCollege}, true},
		{"other college", models.WaitingEntry{UserID: "a", GenderFilter: "female", CollegeFilter: "MIT"}, false},
		{"gender mismatch", models.WaitingEntry{UserID: "a", GenderFilter: "male", CollegeFilter: "VIT AP"}, false},
		{"self", models.WaitingEntry{UserID: "me", GenderFilter: "female", CollegeFilter: "VIT AP"}, false},
		{"blocked", models.WaitingEntry{UserID: "troll", GenderFilter: "female", CollegeFilter: "VIT AP"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.candidate
			assert.Equal(t, tt.want, Compatible(self, &c, blocked))
		})
	}

	anySelf := &models.WaitingEntry{UserID: "me", GenderFilter: "female", CollegeFilter: models.AnyCollege}
	assert.True(t, Compatible(anySelf, &models.WaitingEntry{UserID: "a", GenderFilter: "female", CollegeFilter: "MIT"}, nil))
}

func TestRankCandidates_StableByScore(t *testing.T) {
	self := &models.WaitingEntry{UserID: "me", GenderFilter: "f", CollegeFilter: models.AnyCollege, Interests: []string{"music", "travel"}}
	candidates := []*models.WaitingEntry{
		{UserID: "oldest", GenderFilter: "f", CollegeFilter: models.AnyCollege},
		{UserID: "half", GenderFilter: "f", CollegeFilter: models.AnyCollege, Interests: []string{"travel", "coding"}},
		{UserID: "none", GenderFilter: "f", CollegeFilter: models.AnyCollege, Interests: []string{"food"}},
		{UserID: "full", GenderFilter: "f", CollegeFilter: models.AnyCollege, Interests: []string{"travel", "music"}},
		{UserID: "skip", GenderFilter: "m", CollegeFilter: models.AnyCollege, Interests: []string{"music"}},
	}

	ranked := RankCandidates(self, candidates, nil)
	require.Len(t, ranked, 4)

	var order []string
	for _, r := range ranked {
		order = append(order, r.Entry.UserID)
	}
	assert.Equal(t, []string{"full", "half", "oldest", "none"}, order)
}

func TestConversationStarters(t *testing.T) {
	t.Run("no common interests", func(t *testing.T) {
		got := ConversationStarters([]string{"music"}, []string{"coding"})
		require.Len(t, got, 3)
		for _, s := range got {
			assert.Contains(t, icebreakers, s)
		}
	})

	t.Run("topic starters", func(t *testing.T) {
		got := ConversationStarters([]string{"Music", "travel"}, []string{"travel", "music"})
		assert.Equal(t, topicStarters["music"], got)
	})

	t.Run("unknown shared interest", func(t *testing.T) {
		got := ConversationStarters([]string{"chess"}, []string{"Chess"})
		assert.Equal(t, []string{"I see we both like chess! Tell me more about that."}, got)
	})
}

func TestIcebreakers(t *testing.T) {
	got := Icebreakers(5)
	require.Len(t, got, 5)

	seen := make(map[string]bool)
	for _, s := range got {
		assert.False(t, seen[s], "duplicate icebreaker %q", s)
		seen[s] = true
	}
	assert.Len(t, Icebreakers(1000), len(icebreakers))
	assert.Empty(t, Icebreakers(-1))
	assert.Contains(t, icebreakers, RandomIcebreaker())
}
