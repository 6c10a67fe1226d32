package synthesis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrInFlightLimitExceeded_Error(t *testing.T) {
	err := ErrInFlightLimitExceeded{Limit: 3}
	assert.Contains(t, err.Error(), "3")
}
