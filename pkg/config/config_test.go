package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutEnvFile(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, SyncModeBestEffort, cfg.Sync.Mode)
	assert.False(t, cfg.Sync.Strict())
	assert.Equal(t, 100, cfg.Sync.ChunkSize)
	assert.Empty(t, cfg.Sync.OptionalFields)
	assert.Equal(t, 24*time.Hour, cfg.ResultCache.TTL)
}

func TestLoadReadsEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DB_DRIVER", "POSTGRES")
	t.Setenv("SYNC_MODE", "strict")
	t.Setenv("SYNC_BATCH_CHUNK_SIZE", "25")
	t.Setenv("SYNC_OPTIONAL_FIELDS_STUDENTS", "email, login_id ,")
	t.Setenv("RESULT_CACHE_TTL", "90m")
	t.Setenv("OTEL_SAMPLER_RATIO", "4")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://tracker.example.edu, https://admin.example.edu")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.True(t, cfg.Sync.Strict())
	assert.Equal(t, 25, cfg.Sync.ChunkSize)
	assert.Equal(t, []string{"email", "login_id"}, cfg.Sync.OptionalFields["students"])
	assert.Equal(t, 90*time.Minute, cfg.ResultCache.TTL)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRatio)
	assert.Equal(t, []string{"https://tracker.example.edu", "https://admin.example.edu"}, cfg.CORSOrigins)
}

func TestFromViperRejectsUnknownValues(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("DB_DRIVER", "mysql")
	_, err := fromViper(v)
	require.Error(t, err)

	v = viper.New()
	setDefaults(v)
	v.Set("SYNC_MODE", "yolo")
	_, err = fromViper(v)
	require.Error(t, err)
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("soon", time.Minute))
	assert.Equal(t, 2*time.Second, parseDuration("2s", time.Minute))
}

// chdir changes the working directory for the duration of the test,
// mirroring testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
