package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"GEMINI_API_KEY", "GEMINI_BASE_URL", "GEMINI_API_VERSION", "GEMINI_IMAGE_MODEL", "GEMINI_BACKEND",
	"TELEGRAM_BOT_TOKEN", "WEB_ADDR", "LOG_LEVEL", "DEBUG", "PREFER_IPV4", "MAX_CONCURRENT",
	"BATCH_MAX_PARALLEL", "BATCH_INTERVAL_MS", "REQUEST_TIMEOUT_SECONDS", "HTTP_TIMEOUT_SECONDS",
	"SESSION_TTL_MINUTES", "MAX_UPLOAD_MB", "METRICS_NAMESPACE", "ALBUM_QUIET_MS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", " key ")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "key", cfg.GeminiAPIKey)
	assert.Equal(t, BackendREST, cfg.GeminiBackend)
	assert.Equal(t, "gemini-2.5-flash-image", cfg.GeminiImageModel)
	assert.Equal(t, ":8080", cfg.WebAddr)
	assert.Equal(t, 4, cfg.MaxConcurrent)
	assert.Equal(t, 0, cfg.BatchMaxParallel)
	assert.Equal(t, time.Duration(0), cfg.BatchInterval)
	assert.Equal(t, 240*time.Second, cfg.RequestTimeout)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, int64(25<<20), cfg.MaxUploadBytes)
	assert.Equal(t, 1200*time.Millisecond, cfg.AlbumQuiet)
	assert.True(t, cfg.PreferIPv4)
	assert.Error(t, cfg.RequireTelegram())
}

func TestLoad_RequiresAPIKey(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	assert.EqualError(t, err, "GEMINI_API_KEY is required")
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("GEMINI_BACKEND", "grpc")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ClampsAndParses(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("GEMINI_BACKEND", "SDK")
	t.Setenv("MAX_CONCURRENT", "0")
	t.Setenv("BATCH_MAX_PARALLEL", "-3")
	t.Setenv("BATCH_INTERVAL_MS", "250")
	t.Setenv("REQUEST_TIMEOUT_SECONDS", "-1")
	t.Setenv("SESSION_TTL_MINUTES", "not-a-number")
	t.Setenv("PREFER_IPV4", "false")
	t.Setenv("TELEGRAM_BOT_TOKEN", "tg")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendSDK, cfg.GeminiBackend)
	assert.Equal(t, 1, cfg.MaxConcurrent)
	assert.Equal(t, 0, cfg.BatchMaxParallel)
	assert.Equal(t, 250*time.Millisecond, cfg.BatchInterval)
	assert.Equal(t, 240*time.Second, cfg.RequestTimeout)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.False(t, cfg.PreferIPv4)
	assert.NoError(t, cfg.RequireTelegram())
}
