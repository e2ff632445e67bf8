package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("SLEEPSTAGE_TEST_STR", "x")
	t.Setenv("SLEEPSTAGE_TEST_INT", "12")
	t.Setenv("SLEEPSTAGE_TEST_BAD_INT", "twelve")
	t.Setenv("SLEEPSTAGE_TEST_DUR", "90s")

	assert.Equal(t, "x", GetEnv("SLEEPSTAGE_TEST_STR", "y"))
	assert.Equal(t, "y", GetEnv("SLEEPSTAGE_TEST_UNSET", "y"))
	assert.Equal(t, 12, GetEnvInt("SLEEPSTAGE_TEST_INT", 1))
	assert.Equal(t, 1, GetEnvInt("SLEEPSTAGE_TEST_BAD_INT", 1))
	assert.Equal(t, 90*time.Second, GetEnvDuration("SLEEPSTAGE_TEST_DUR", time.Second))
	assert.Equal(t, time.Second, GetEnvDuration("SLEEPSTAGE_TEST_STR", time.Second))
}

func TestFromEnv_defaults_and_overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("REDIS_TTL", "1h")
	t.Setenv("PORT", "")

	cfg := FromEnv()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "redis", cfg.StoreBackend)
	assert.Equal(t, time.Hour, cfg.RedisTTL)
	assert.Equal(t, "sleepstage/nights/+/samples", cfg.MQTTTopic)
}

func TestLoad_dotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("SLEEPSTAGE_DOTENV_KEY=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("SLEEPSTAGE_DOTENV_KEY") })

	require.NoError(t, Load(path))
	assert.Equal(t, "from-file", GetEnv("SLEEPSTAGE_DOTENV_KEY", ""))

	assert.Error(t, Load(filepath.Join(t.TempDir(), "missing.env")))
}
