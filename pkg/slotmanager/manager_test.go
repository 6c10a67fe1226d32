package slotmanager

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrConcurrencyConflict_WrapsCause(t *testing.T) {
	cause := errors.New("serialization_failure")
	err := ErrConcurrencyConflict{Cause: cause}

	assert.Contains(t, err.Error(), "serialization_failure")
	assert.ErrorIs(t, err, cause)
}
