package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("NARRATOR_MODE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "api", cfg.Mode)
	assert.Equal(t, 1000, cfg.CreditsUnitSize)
	assert.Equal(t, 500, cfg.SlotLimit)
	assert.Equal(t, "0.0.0.0:8080", cfg.ListenAddr())
}

func TestCreditSourcesPriority(t *testing.T) {
	cfg := &Config{CreditSourcesPriorityRaw: "event, monthly ,referral,add_on,free"}
	assert.Equal(t, []string{"event", "monthly", "referral", "add_on", "free"}, cfg.CreditSourcesPriority())
}

func TestCreditSourcesPriority_Empty(t *testing.T) {
	cfg := &Config{CreditSourcesPriorityRaw: ""}
	assert.Empty(t, cfg.CreditSourcesPriority())
}
