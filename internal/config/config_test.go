package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voyagen/guidevault/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	os.Clearenv()

	c, err := Load()
	require.NoError(t, err)
	assert.Empty(t, c.DatabaseURL)
	assert.Equal(t, "8080", c.ServerPort)
	assert.Equal(t, "GuideVault/1.0", c.UserAgent)
	assert.Equal(t, 30*time.Second, c.Timeout)
	assert.Equal(t, int64(200<<20), c.MaxBodyBytes)
	assert.False(t, c.AllowPrivateNetworks)
	assert.Equal(t, 7*time.Second, c.SchedulerStartupDelay)
	assert.Equal(t, 4, c.RefreshConcurrency)
	assert.Empty(t, c.Accounts)
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	os.Clearenv()
	t.Setenv("DATABASE_URL", "postgres://u:p@db/guide")
	t.Setenv("FETCHER_TIMEOUT", "5s")
	t.Setenv("FETCHER_ALLOW_PRIVATE", "true")
	t.Setenv("SCHEDULER_STARTUP_DELAY", "1s")
	t.Setenv("SCHEDULER_TIMEZONE", "UTC")
	t.Setenv("XTREAM_URL", "http://provider.example")
	t.Setenv("XTREAM_USER", "u")
	t.Setenv("XTREAM_PASS", "p")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db/guide", c.DatabaseURL)
	assert.Equal(t, 5*time.Second, c.Timeout)
	assert.True(t, c.AllowPrivateNetworks)
	assert.Equal(t, 5*time.Second, c.SchedulerStartupDelay, "delay is clamped to the 5-10s window")
	assert.Equal(t, time.UTC, c.SchedulerLocation)

	acc, ok := c.Account(1)
	require.True(t, ok)
	assert.Equal(t, models.AccountXtream, acc.Kind)
	assert.Equal(t, "p", acc.Password)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	os.Clearenv()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("REDIS_URL=redis://cache:6379/0\nSERVER_PORT=9000\n"), 0o644))
	t.Setenv("SERVER_PORT", "9100")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis://cache:6379/0", c.RedisURL)
	assert.Equal(t, "9100", c.ServerPort, "existing variables win over .env")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	os.Clearenv()
	t.Setenv("REDIS_URL", "redis://env:6379/0")

	path := filepath.Join(dir, "guidevault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database_url: postgres://file/guide
timeout: 12s
scheduler_startup_delay: 9s
accounts:
  - id: 4
    name: main
    url: http://provider.example:8080
    username: alice
    password: secret
  - id: 5
    name: playlist
    kind: m3u
    url: http://provider.example/get.php
`), 0o644))

	c, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://file/guide", c.DatabaseURL)
	assert.Equal(t, "redis://env:6379/0", c.RedisURL)
	assert.Equal(t, 12*time.Second, c.Timeout)
	assert.Equal(t, 9*time.Second, c.SchedulerStartupDelay)
	require.Len(t, c.Accounts, 2)
	assert.Equal(t, models.AccountXtream, c.Accounts[0].Kind)
	assert.Equal(t, models.AccountM3U, c.Accounts[1].Kind)

	_, ok := c.Account(99)
	assert.False(t, ok)
}

func TestLoadFromFileRejectsBadAccounts(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	os.Clearenv()

	tests := map[string]string{
		"missing url":  "accounts:\n  - id: 1\n",
		"missing id":   "accounts:\n  - url: http://x\n",
		"duplicate id": "accounts:\n  - {id: 1, url: http://x}\n  - {id: 1, url: http://y}\n",
		"unknown kind": "accounts:\n  - {id: 1, url: http://x, kind: ftp}\n",
		"bad duration": "timeout: soon\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, "c.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := LoadFromFile(path)
			assert.Error(t, err)
		})
	}
}
