package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractZip(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"123 Main St, Seattle, WA 98101", "98101"},
		{"123 Main St, Seattle, WA 98101-2507", "98101"},
		{"123 Main St, Seattle", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ExtractZip(tt.input), "input %q", tt.input)
	}
}

func TestExtractHouseNumber(t *testing.T) {
	assert.Equal(t, "100", ExtractHouseNumber("100 Main St"))
	assert.Equal(t, "100", ExtractHouseNumber("  100 Main St"))
	assert.Equal(t, "", ExtractHouseNumber("Main St 100"))
	assert.Equal(t, "", ExtractHouseNumber(""))
}

func TestExtractDirection(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"2021 Dexter Ave N", "N"},
		{"2021 Dexter Ave North", "N"},
		{"501 9th Ave SW Apt 3", ""}, // two-letter directionals are out of scope
		{"100 E Pine St", "E"},
		{"100 Pine St", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ExtractDirection(tt.input), "input %q", tt.input)
	}
}

func TestExtractRouteKey(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"501 9th Ave", "9 ave"},
		{"501 Ninth Avenue", "9 ave"},
		{"100 James St, Seattle", "james st"},
		{"James Street", "james st"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ExtractRouteKey(tt.input), "input %q", tt.input)
	}
}

func TestHardConflict(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		conflict bool
	}{
		{"zip mismatch", "1 Main St, 98101", "1 Main St, 98102", true},
		{"zip one-sided", "1 Main St, 98101", "1 Main St", false},
		{"house mismatch", "100 Main St", "200 Main St", true},
		{"direction mismatch", "100 Main St N", "100 Main St S", true},
		{"route mismatch", "501 9th Ave", "501 8th Ave", true},
		{"agreement", "501 9th Ave, Seattle, WA 98101", "501 Ninth Avenue, Seattle, WA 98101", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.conflict, HardConflict(tt.a, tt.b))
		})
	}
}
