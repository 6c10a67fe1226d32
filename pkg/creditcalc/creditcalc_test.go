package creditcalc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequiredCredits(t *testing.T) {
	cases := []struct {
		name     string
		text     string
		unitSize int
		want     int
	}{
		{"empty text still costs one credit", "", 1000, 1},
		{"under one unit", strings.Repeat("a", 500), 1000, 1},
		{"exact unit boundary", strings.Repeat("a", 1000), 1000, 1},
		{"just over a unit rounds up", strings.Repeat("a", 1001), 1000, 2},
		{"multiple units", strings.Repeat("a", 2500), 1000, 3},
		{"multibyte runes counted as codepoints", strings.Repeat("世", 1500), 1000, 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := RequiredCredits(tc.text, tc.unitSize)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRequiredCredits_InvalidUnitSize(t *testing.T) {
	_, err := RequiredCredits("hello", 0)
	assert.ErrorIs(t, err, ErrInvalidUnitSize)

	_, err = RequiredCredits("hello", -5)
	assert.ErrorIs(t, err, ErrInvalidUnitSize)
}
