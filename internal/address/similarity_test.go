package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity_HouseNumberConflict(t *testing.T) {
	assert.Equal(t, 0, Similarity("100 Main St", "200 Main St"))
	assert.Equal(t, 0, Similarity("100 Main St, Seattle, WA", "101 Main St, Seattle, WA"))
}

func TestSimilarity_Identical(t *testing.T) {
	assert.Equal(t, 100, Similarity("123 Main St, Seattle, WA 98101", "123 Main St, Seattle, WA 98101"))
}

func TestSimilarity_Variants(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		min  int
	}{
		{"suffix abbreviation", "123 Main Street, Seattle, WA", "123 Main St, Seattle, WA", 100},
		{"unit suffix", "456 Oak Ave #12, Portland, OR", "456 Oak Ave, Portland, OR", 100},
		{"ordinal spelling", "501 Ninth Ave, Seattle", "501 9th Ave, Seattle", 100},
		{"trailing country", "100 Pine St, Seattle, WA, USA", "100 Pine St, Seattle, WA", 100},
		{"minor trailing difference", "123 Main St, Seattle, WA", "123 Main St, Seattle, WA 98101", 85},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.GreaterOrEqual(t, Similarity(tt.a, tt.b), tt.min)
		})
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"123 Main St, Seattle, WA", "123 Main Street Seattle"},
		{"456 Oak Ave, Portland", "456 Oak Avenue #3, Portland, OR"},
		{"742 Evergreen Ter", "742 Evergreen Terrace, Springfield"},
	}
	for _, p := range pairs {
		assert.Equal(t, Similarity(p[0], p[1]), Similarity(p[1], p[0]), "pair %v", p)
	}
}

func TestSimilarity_Unrelated(t *testing.T) {
	// No shared house number, so the hard reject does not fire, but the
	// overlap score must stay well below the match threshold.
	got := Similarity("Pike Place Market, Seattle", "Willamette Riverfront, Portland")
	assert.Less(t, got, 90)
}

func TestSimilarity_Empty(t *testing.T) {
	assert.Equal(t, 100, Similarity("", ""))
	assert.Equal(t, 0, Similarity("123 Main St", ""))
}
