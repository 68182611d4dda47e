package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercase and trim", "  123 Main St  ", "123mainstreet"},
		{"unit marker hash", "456 Oak Ave #12, Portland, OR", "456oakavenueportlandor"},
		{"unit marker apt", "456 Oak Ave Apt 5B, Portland, OR", "456oakavenueportlandor"},
		{"unit marker suite", "789 Pine St Suite 210", "789pinestreet"},
		{"country tokens", "100 Broad St, Seattle, WA, United States", "100broadstreetseattlewa"},
		{"usa token", "100 Broad St, Seattle, WA, USA", "100broadstreetseattlewa"},
		{"numeric ordinal", "501 9th Ave", "5019avenue"},
		{"word ordinal", "501 Ninth Ave", "5019avenue"},
		{"abbreviations", "1 Elm Blvd & 2 Cedar Rd", "1elmboulevard&2cedarroad"},
		{"hyphens and periods", "12-34 W. Galer St.", "1234wgalerstreet"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"123 Main St, Seattle, WA 98101",
		"456 Oak Ave #12, Portland, OR",
		"501 Ninth Avenue North",
		"",
		"no digits at all",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestNormalize_UnitSuffixMatchesStoredForm(t *testing.T) {
	withUnit := Normalize("456 Oak Ave #12, Portland, OR")
	without := Normalize("456 Oak Ave, Portland, OR")
	assert.Equal(t, without, withUnit)
}

func TestNormalizeForSimilarity(t *testing.T) {
	// Suffix words are stripped for scoring only.
	a := NormalizeForSimilarity("123 Main Street")
	b := NormalizeForSimilarity("123 Main St")
	assert.Equal(t, a, b)
	assert.NotContains(t, a, "street")
}

func TestNormalizeForSimilarity_NotUsedForExactMatch(t *testing.T) {
	// Different suffixes must stay distinct under the exact-match form.
	st := Normalize("100 5th St")
	ave := Normalize("100 5th Ave")
	assert.NotEqual(t, st, ave)

	// ...but collapse under the similarity form, which drops suffix tokens.
	assert.Equal(t, NormalizeForSimilarity("100 5th St"), NormalizeForSimilarity("100 5th Ave"))
}

func TestNormalizeExact_Directionals(t *testing.T) {
	a := NormalizeExact("2021 Dexter Ave North, Seattle")
	b := NormalizeExact("2021 Dexter Ave N, Seattle")
	assert.Equal(t, a, b)
}
