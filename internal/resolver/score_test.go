package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/seattlelisted/listing-cli/internal/model"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func TestScoreCandidate(t *testing.T) {
	tests := []struct {
		name string
		c    model.Candidate
		want int
	}{
		{
			name: "no signal",
			c:    model.Candidate{},
			want: 0,
		},
		{
			name: "poi and establishment",
			c:    model.Candidate{Types: []string{"point_of_interest", "establishment"}},
			want: 100,
		},
		{
			name: "poi alone",
			c:    model.Candidate{Types: []string{"point_of_interest"}},
			want: 50,
		},
		{
			name: "establishment alone scores nothing",
			c:    model.Candidate{Types: []string{"establishment"}},
			want: 0,
		},
		{
			name: "rating bonus at threshold",
			c:    model.Candidate{Rating: floatPtr(4.0)},
			want: 10,
		},
		{
			name: "rating below threshold",
			c:    model.Candidate{Rating: floatPtr(3.9)},
			want: 0,
		},
		{
			name: "review volume is log scaled",
			c:    model.Candidate{RatingCount: intPtr(7)},
			want: 20, // floor(ln(8) * 10)
		},
		{
			name: "review volume bonus caps at 40",
			c:    model.Candidate{RatingCount: intPtr(100000)},
			want: 40,
		},
		{
			name: "everything stacks",
			c: model.Candidate{
				Types:       []string{"point_of_interest", "establishment"},
				Rating:      floatPtr(4.5),
				RatingCount: intPtr(100),
			},
			want: 150,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScoreCandidate(tt.c))
		})
	}
}

func TestRankCandidates(t *testing.T) {
	cands := []model.Candidate{
		{PlaceID: "b", Score: 50, RankInVariant: 1},
		{PlaceID: "a", Score: 150, RankInVariant: 2},
		{PlaceID: "d", Score: 50, RankInVariant: 0},
		{PlaceID: "c", Score: 150, RankInVariant: 0},
	}

	rankCandidates(cands)

	got := make([]string, len(cands))
	for i, c := range cands {
		got[i] = c.PlaceID
	}
	// Score descending, then the provider's own ordering.
	assert.Equal(t, []string{"c", "a", "d", "b"}, got)
}
