package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfigFile(t *testing.T, dir string, doc map[string]interface{}) string {
	t.Helper()
	raw, err := yaml.Marshal(doc)
	require.NoError(t, err)
	path := filepath.Join(dir, "careoclock.yaml")
	require.NoError(t, os.WriteFile(path, raw, 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load("", dir)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Address)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0 6 * * *", cfg.Alerts.SweepSchedule)
	assert.Equal(t, 20.0, cfg.Alerts.SweepRatePerSec)
	assert.Equal(t, 2, cfg.Alerts.DispatchWorkers)
	assert.Equal(t, []string{"*"}, cfg.Security.AllowOrigins)

	// Storage paths are anchored under the data dir.
	assert.Equal(t, dir, cfg.Storage.DataDir)
	assert.Equal(t, filepath.Join(dir, "careoclock.db"), cfg.Storage.SQLitePath)
	assert.Equal(t, filepath.Join(dir, "badger"), cfg.Storage.BadgerPath)

	// A missing JWT secret gets generated rather than left empty.
	assert.Len(t, cfg.Security.JWTSecret, 32)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, map[string]interface{}{
		"server": map[string]interface{}{
			"port": 9090,
		},
		"alerts": map[string]interface{}{
			"sweep_schedule":     "30 7 * * *",
			"sweep_rate_per_sec": 5.0,
			"dispatch_workers":   4,
		},
		"security": map[string]interface{}{
			"jwt_secret": "configured-secret",
		},
		"predict": map[string]interface{}{
			"base_url": "http://localhost:5000",
			"timeout":  3,
		},
	})

	cfg, err := Load(path, dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "30 7 * * *", cfg.Alerts.SweepSchedule)
	assert.Equal(t, 5.0, cfg.Alerts.SweepRatePerSec)
	assert.Equal(t, 4, cfg.Alerts.DispatchWorkers)
	assert.Equal(t, "configured-secret", cfg.Security.JWTSecret)
	assert.Equal(t, "http://localhost:5000", cfg.Predict.BaseURL)
	assert.Equal(t, 3, cfg.Predict.Timeout)

	// Unset keys still fall back to defaults.
	assert.Equal(t, "0.0.0.0", cfg.Server.Address)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CAREOCLOCK_SERVER_PORT", "7070")
	t.Setenv("CAREOCLOCK_SECURITY_JWT_SECRET", "env-secret")
	t.Setenv("CAREOCLOCK_ALERTS_SWEEP_SCHEDULE", "15 */2 * * *")

	cfg, err := Load("", dir)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "env-secret", cfg.Security.JWTSecret)
	assert.Equal(t, "15 */2 * * *", cfg.Alerts.SweepSchedule)
}

func TestLoadRejectsBadSweepSchedule(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, map[string]interface{}{
		"alerts": map[string]interface{}{
			"sweep_schedule": "whenever",
		},
	})

	_, err := Load(path, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sweep_schedule")
}

func TestLoadNormalizesBadRates(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, map[string]interface{}{
		"alerts": map[string]interface{}{
			"sweep_rate_per_sec": -1.0,
			"dispatch_workers":   0,
		},
	})

	cfg, err := Load(path, dir)
	require.NoError(t, err)
	assert.Equal(t, 20.0, cfg.Alerts.SweepRatePerSec)
	assert.Equal(t, 2, cfg.Alerts.DispatchWorkers)
}
