package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Database drivers understood by pkg/database.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Sync modes.
const (
	SyncModeStrict     = "strict"
	SyncModeBestEffort = "best_effort"
)

type Config struct {
	Env         string
	Port        int
	APIPrefix   string
	CORSOrigins []string

	Database    DatabaseConfig
	Redis       RedisConfig
	Log         LogConfig
	Sync        SyncConfig
	ResultCache ResultCacheConfig
	Tracing     TracingConfig
}

type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	SQLitePath   string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type LogConfig struct {
	Level  string
	Format string
}

// SyncConfig governs the reconciliation core.
type SyncConfig struct {
	Mode           string
	ChunkSize      int
	OptionalFields map[string][]string
}

// ResultCacheConfig toggles publication of sync results to Redis.
type ResultCacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled      bool
	ServiceName  string
	SampleRatio  float64
	OTLPEndpoint string
	Insecure     bool
}

// Strict reports whether any failure must roll back the whole batch.
func (c SyncConfig) Strict() bool {
	return c.Mode == SyncModeStrict
}

var syncEntities = []string{"courses", "students", "assignments", "enrollments"}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.CORSOrigins = splitAndTrim(v.GetString("CORS_ALLOWED_ORIGINS"))

	cfg.Database = DatabaseConfig{
		Driver:       strings.ToLower(v.GetString("DB_DRIVER")),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		SQLitePath:   v.GetString("DB_SQLITE_PATH"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}
	if cfg.Database.Driver != DriverPostgres && cfg.Database.Driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Database.Driver)
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	mode := strings.ToLower(v.GetString("SYNC_MODE"))
	if mode != SyncModeStrict && mode != SyncModeBestEffort {
		return nil, fmt.Errorf("unsupported SYNC_MODE %q", mode)
	}
	chunk := v.GetInt("SYNC_BATCH_CHUNK_SIZE")
	if chunk <= 0 {
		chunk = 100
	}
	optional := make(map[string][]string)
	for _, entity := range syncEntities {
		key := "SYNC_OPTIONAL_FIELDS_" + strings.ToUpper(entity)
		if fields := splitAndTrim(v.GetString(key)); len(fields) > 0 {
			optional[entity] = fields
		}
	}
	cfg.Sync = SyncConfig{Mode: mode, ChunkSize: chunk, OptionalFields: optional}

	cfg.ResultCache = ResultCacheConfig{
		Enabled: v.GetBool("ENABLE_RESULT_CACHE"),
		TTL:     parseDuration(v.GetString("RESULT_CACHE_TTL"), 24*time.Hour),
	}

	ratio := v.GetFloat64("OTEL_SAMPLER_RATIO")
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	cfg.Tracing = TracingConfig{
		Enabled:      v.GetBool("OTEL_ENABLED"),
		ServiceName:  v.GetString("OTEL_SERVICE_NAME"),
		SampleRatio:  ratio,
		OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Insecure:     v.GetBool("OTEL_EXPORTER_OTLP_INSECURE"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")

	v.SetDefault("DB_DRIVER", DriverSQLite)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "canvas_tracker")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_SQLITE_PATH", "./data/canvas_tracker.db")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SYNC_MODE", SyncModeBestEffort)
	v.SetDefault("SYNC_BATCH_CHUNK_SIZE", 100)
	for _, entity := range syncEntities {
		v.SetDefault("SYNC_OPTIONAL_FIELDS_"+strings.ToUpper(entity), "")
	}

	v.SetDefault("ENABLE_RESULT_CACHE", false)
	v.SetDefault("RESULT_CACHE_TTL", "24h")

	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "canvas-sync")
	v.SetDefault("OTEL_SAMPLER_RATIO", 0.1)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
