package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "clover-api", cfg.AppName)
	assert.Equal(t, 3*time.Second, cfg.StrategyTimeout)
	assert.Equal(t, 3, cfg.AutoSuggestionLimit)
	assert.Equal(t, 5, cfg.ManualSuggestionLimit)
	assert.Equal(t, 15, cfg.MatchReverseSubstringCap)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, []string{"GET", "POST", "PUT", "DELETE"}, cfg.AllowMethods)
}

func TestLoadEnvFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(file, []byte("STORE_DRIVER=memory\nSTRATEGY_TIMEOUT=750ms\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("STORE_DRIVER")
		os.Unsetenv("STRATEGY_TIMEOUT")
	})

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, 750*time.Millisecond, cfg.StrategyTimeout)
}

func TestLoadEnvironmentWins(t *testing.T) {
	t.Setenv("MATCH_REVERSE_SUBSTRING_CAP", "20")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.MatchReverseSubstringCap)
}
