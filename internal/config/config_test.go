package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

var apiKeys = []string{
	"PORT", "TOTO_API_ADDR", "DATABASE_URL", "SUPABASE_URL", "SUPABASE_SERVICE_ROLE_KEY",
	"BOT_TOKEN", "DISCORD_BOT_TOKEN", "DISCORD_CHANNEL_ID", "TOTO_REFERRAL_BONUS",
	"TOTO_AUTO_MIGRATE", "TOTO_INIT_DATA_MAX_AGE", "TOTO_REQUEST_TIMEOUT",
}

func TestLoadAPIRequiresAStore(t *testing.T) {
	clearEnv(t, apiKeys...)
	_, err := LoadAPIFromEnv()
	assert.Error(t, err)

	t.Setenv("SUPABASE_URL", "https://x.supabase.co/")
	_, err = LoadAPIFromEnv()
	assert.Error(t, err)

	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "service")
	cfg, err := LoadAPIFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "https://x.supabase.co", cfg.SupabaseURL)
}

func TestLoadAPIDefaults(t *testing.T) {
	clearEnv(t, apiKeys...)
	t.Setenv("DATABASE_URL", "postgres://localhost/toto")
	t.Setenv("PORT", "9090")
	t.Setenv("TOTO_INIT_DATA_MAX_AGE", "24h")

	cfg, err := LoadAPIFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, int64(100), cfg.ReferralBonus)
	assert.True(t, cfg.AutoMigrate)
	assert.Equal(t, 24*time.Hour, cfg.InitDataMaxAge)
}

func TestLoadAPIValidation(t *testing.T) {
	clearEnv(t, apiKeys...)
	t.Setenv("DATABASE_URL", "postgres://localhost/toto")

	t.Setenv("TOTO_REFERRAL_BONUS", "-5")
	_, err := LoadAPIFromEnv()
	assert.Error(t, err)

	t.Setenv("TOTO_REFERRAL_BONUS", "10001")
	_, err = LoadAPIFromEnv()
	assert.Error(t, err)

	t.Setenv("TOTO_REFERRAL_BONUS", "250")
	t.Setenv("DISCORD_BOT_TOKEN", "tok")
	_, err = LoadAPIFromEnv()
	assert.Error(t, err)

	t.Setenv("DISCORD_CHANNEL_ID", "123")
	cfg, err := LoadAPIFromEnv()
	require.NoError(t, err)
	assert.Equal(t, int64(250), cfg.ReferralBonus)
}

func TestLoadClient(t *testing.T) {
	clearEnv(t, "TOTO_API_BASE_URL", "SUPABASE_URL", "SUPABASE_ANON_KEY", "TOTO_CACHE_BACKEND", "TOTO_SAVE_DEBOUNCE")
	cfg, err := LoadClientFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.CacheBackend)
	assert.Equal(t, time.Second, cfg.SaveDebounce)
	assert.False(t, cfg.RemoteConfigured())

	t.Setenv("TOTO_CACHE_BACKEND", "memcached")
	_, err = LoadClientFromEnv()
	assert.Error(t, err)

	t.Setenv("TOTO_CACHE_BACKEND", "Redis")
	t.Setenv("TOTO_SAVE_DEBOUNCE", "not-a-duration")
	cfg, err = LoadClientFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.CacheBackend)
	assert.Equal(t, time.Second, cfg.SaveDebounce)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("TOTO_DOTENV_PROBE=from-file\n"), 0o600))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
	t.Setenv("TOTO_DOTENV_PROBE", "")
	require.NoError(t, os.Unsetenv("TOTO_DOTENV_PROBE"))
	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("TOTO_DOTENV_PROBE"))
}
