// Package creditcalc computes the credit cost of a story for synthesis.
package creditcalc

import (
	"errors"
	"unicode/utf8"
)

// ErrInvalidUnitSize is returned when unit_size <= 0.
var ErrInvalidUnitSize = errors.New("creditcalc: unit_size must be positive")

// RequiredCredits returns max(1, ceil(len(text)/unitSize)), counting text
// length in codepoints (not bytes) so multilingual text prices fairly.
func RequiredCredits(text string, unitSize int) (int, error) {
	if unitSize <= 0 {
		return 0, ErrInvalidUnitSize
	}

	length := utf8.RuneCountInString(text)
	required := (length + unitSize - 1) / unitSize
	if required < 1 {
		required = 1
	}
	return required, nil
}
