package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	unsetEnv(t, "APP_ENV", "SERVER_PORT", "DATABASE_MAX_OPEN_CONNS", "DATABASE_CONN_MAX_LIFETIME", "OVERDUE_THRESHOLD_DAYS")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, 7*24*time.Hour, cfg.Notification.OverdueThreshold())
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("OVERDUE_THRESHOLD_DAYS", "3")
	t.Setenv("MANAGER_PHONES", "+911111111111,+922222222222")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 3*24*time.Hour, cfg.Notification.OverdueThreshold())
	assert.True(t, cfg.Auth.IsManagerPhone("+922222222222"))
	assert.False(t, cfg.Auth.IsManagerPhone("+933333333333"))
}

func TestLoadRejectsDefaultSecretInProduction(t *testing.T) {
	t.Setenv("APP_ENV", EnvProduction)
	unsetEnv(t, "JWT_SECRET")

	_, err := Load()
	assert.Error(t, err)
}

func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}
