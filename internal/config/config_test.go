package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ARGUS_DB_PATH", filepath.Join(t.TempDir(), "argus.db"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 60, cfg.Thresholds.PerIPPerMinute)
	assert.Equal(t, 10, cfg.Thresholds.Burst)
	assert.Equal(t, 100, cfg.Thresholds.DDoSVolumetric)
	assert.False(t, cfg.Thresholds.GeoFilterEnabled)
}

func TestLoadThresholdsOverlay(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "thresholds.yaml")
	require.NoError(t, os.WriteFile(file, []byte(
		"per_ip_per_minute: 120\nburst: 0\nallowed_countries: [\"us\", \"de\"]\n",
	), 0o600))

	t.Setenv("ARGUS_DB_PATH", filepath.Join(dir, "argus.db"))
	t.Setenv("ARGUS_THRESHOLDS", file)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 120, cfg.Thresholds.PerIPPerMinute)
	assert.Equal(t, 0, cfg.Thresholds.Burst)
	assert.Equal(t, []string{"US", "DE"}, cfg.Thresholds.AllowedCountries, "codes are upcased")
	// Untouched keys keep their defaults.
	assert.Equal(t, 1000, cfg.Thresholds.PerIPPerHour)
}

func TestThresholdsValidation(t *testing.T) {
	t.Run("non-positive limit rejected", func(t *testing.T) {
		th := DefaultThresholds()
		th.PerIPPerMinute = 0
		assert.Error(t, th.Validate())
	})

	t.Run("negative burst rejected, zero allowed", func(t *testing.T) {
		th := DefaultThresholds()
		th.Burst = -1
		assert.Error(t, th.Validate())

		th.Burst = 0
		assert.NoError(t, th.Validate())
	})

	t.Run("bogus country code rejected", func(t *testing.T) {
		th := DefaultThresholds()
		th.AllowedCountries = []string{"USA"}
		assert.Error(t, th.Validate())
	})

	t.Run("decreasing escalation tiers rejected", func(t *testing.T) {
		th := DefaultThresholds()
		th.Tier2Minutes = 5
		assert.Error(t, th.Validate())
	})
}

func TestAllowsCountry(t *testing.T) {
	th := DefaultThresholds()
	th.AllowedCountries = []string{"US", "CA"}

	assert.True(t, th.AllowsCountry("us"))
	assert.True(t, th.AllowsCountry(" CA "))
	assert.False(t, th.AllowsCountry("DE"))
	assert.False(t, th.AllowsCountry(""))
}
