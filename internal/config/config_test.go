package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaultsAndEnv(t *testing.T) {
	t.Setenv("TELEHEALTH_JWT_SECRET", "access-secret")
	t.Setenv("TELEHEALTH_DB_HOST", "db.internal")
	t.Setenv("TELEHEALTH_DB_PORT", "6543")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, 30*time.Minute, cfg.RTC.TokenExpiry)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)

	ac := cfg.AuthConfig()
	assert.Equal(t, "access-secret", ac.RefreshSecret)
	assert.Equal(t, "access-secret", ac.RoomSecret)
	assert.Equal(t, 24*time.Hour, ac.AccessExpiry)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
server:
  port: 9090
jwt:
  secret: from-file
rtc:
  token_secret: room-secret
database:
  name: telehealth_test
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "telehealth_test", cfg.Database.Name)
	assert.Equal(t, "room-secret", cfg.AuthConfig().RoomSecret)
	assert.Contains(t, cfg.Database.DSN(), "dbname=telehealth_test")
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("TELEHEALTH_JWT_SECRET", "")
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
