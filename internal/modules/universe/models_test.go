package universe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookbackDays(t *testing.T) {
	tests := []struct {
		window int
		want   int
	}{
		{365, 530}, // ceil(365 * 365 / 252) + 1
		{252, 366},
		{2, 4},
		{0, 0},
		{-5, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, LookbackDays(tt.window), "window %d", tt.window)
	}
}

func TestParseTickers(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"default universe", "QLD,SSO,DDM,UBT", []string{"QLD", "SSO", "DDM", "UBT"}},
		{"spacing and case", " qld , sso", []string{"QLD", "SSO"}},
		{"duplicates keep first", "SSO,QLD,sso", []string{"SSO", "QLD"}},
		{"empty entries", ",QLD,,", []string{"QLD"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseTickers(tt.input))
		})
	}
}
