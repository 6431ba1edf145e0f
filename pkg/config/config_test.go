package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, DefaultEarnings(), cfg.Earnings)
	require.Equal(t, "postgres", cfg.Database.Type)
	require.Equal(t, int64(1), cfg.NodeID)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("EARNINGS_BASE_RATE", "0.02")
	t.Setenv("EARNINGS_GATING_CEILING", "5")
	t.Setenv("EARNINGS_GATING_WINDOW", "30m")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.InDelta(t, 0.02, cfg.Earnings.BaseRate, 1e-9)
	require.Equal(t, int64(5), cfg.Earnings.GatingCeiling)
	require.Equal(t, 30*time.Minute, cfg.Earnings.GatingWindow)
}

func TestEarningsValidate(t *testing.T) {
	e := DefaultEarnings()
	require.NoError(t, e.Validate())

	e.CompletionThreshold = 1.5
	require.Error(t, e.Validate())

	e = DefaultEarnings()
	e.GatingCeiling = 0
	require.Error(t, e.Validate())
}
