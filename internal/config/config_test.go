package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFrom(t *testing.T, body string) *Config {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	return cfg
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg := loadFrom(t, `{}`)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Environment)
	assert.Equal(t, "localhost:6379", cfg.Redis.GetRedisAddr())
	assert.Equal(t, 24, cfg.JWT.ExpiryHours)
	require.NotNil(t, cfg.AI.Temperature)
	assert.Equal(t, 0.7, *cfg.AI.Temperature)
}

func TestLoadKeepsExplicitZeroTemperature(t *testing.T) {
	cfg := loadFrom(t, `{"ai": {"temperature": 0}}`)

	require.NotNil(t, cfg.AI.Temperature)
	assert.Equal(t, 0.0, *cfg.AI.Temperature)
}
