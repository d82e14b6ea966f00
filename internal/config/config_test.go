package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	testAccessSecret  = "access-secret-0123456789-0123456789"
	testRefreshSecret = "refresh-secret-0123456789-0123456789"
)

func setRequiredSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("ACCESS_TOKEN_SECRET", testAccessSecret)
	t.Setenv("REFRESH_TOKEN_SECRET", testRefreshSecret)
}

func TestLoadDefaults(t *testing.T) {
	setRequiredSecrets(t)

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "8080", cfg.Server.Port)
	require.Equal(t, 15*time.Minute, cfg.Token.AccessExpiry)
	require.Equal(t, 7*24*time.Hour, cfg.Token.RefreshExpiry)
	require.Equal(t, "dynamodb", cfg.Store.Driver)
}

func TestLoadRequiresBothSecrets(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_SECRET", "")
	t.Setenv("REFRESH_TOKEN_SECRET", "")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("ACCESS_TOKEN_SECRET", testAccessSecret)
	_, err = Load()
	require.Error(t, err)
}

func TestLoadRejectsShortSecret(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_SECRET", "too-short")
	t.Setenv("REFRESH_TOKEN_SECRET", testRefreshSecret)

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsIdenticalSecrets(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_SECRET", testAccessSecret)
	t.Setenv("REFRESH_TOKEN_SECRET", testAccessSecret)

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsUnknownStoreDriver(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("TOKEN_STORE_DRIVER", "cassandra")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadParsesOverrides(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("ACCESS_TOKEN_EXPIRY", "5m")
	t.Setenv("TOKEN_STORE_DRIVER", "redis")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 5*time.Minute, cfg.Token.AccessExpiry)
	require.Equal(t, "redis", cfg.Store.Driver)
	require.Equal(t, 3, cfg.Redis.DB)
}
