// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSOrigins() []string
}

// AIConfig provides settings for the LLM provider.
type AIConfig interface {
	GetAIAPIKey() string
	GetAIBaseURL() string
	GetAIModel() string
	GetAITimeout() time.Duration
	GetAIRequestsPerMinute() int
	IsAIEnabled() bool
}

// SchedulerConfig provides settings for the asynq worker and client.
type SchedulerConfig interface {
	GetRedisURL() string
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// MemoryConfig provides settings for conversation memory.
type MemoryConfig interface {
	GetRedisURL() string
	UseRedisMemory() bool
	GetMemoryTTL() time.Duration
}

// MinIOConfig provides settings for optional legacy attachment storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinIOBucketLegacyFiles() string
	IsMinIOEnabled() bool
}

// MigrationConfig provides settings for the legacy CSV migrator.
type MigrationConfig interface {
	GetLegacyCSVDir() string
	GetMigrationCompanyID() int64
	GetMigrationClinicID() int64
	IsMigrationParallel() bool
	GetMigrationWorkers() int
	IsMigrationPerf() bool
	IsReturnOnlyClients() bool
	IsKeepClients() bool
	GetCSVMaxRows() int
}

// Config is the concrete application configuration loaded from the environment.
type Config struct {
	Env             string
	HTTPAddr        string
	DatabaseURL     string
	JWTAccessSecret string
	CORSOrigins     []string

	AIAPIKey            string
	AIBaseURL           string
	AIModel             string
	AITimeout           time.Duration
	AIRequestsPerMinute int

	RedisURL         string
	AsynqQueueName   string
	AsynqConcurrency int
	MemoryRedis      bool
	MemoryTTL        time.Duration

	MinIOEndpoint         string
	MinIOAccessKey        string
	MinIOSecretKey        string
	MinIOUseSSL           bool
	MinIOBucketLegacyFile string

	LegacyCSVDir       string
	MigrationCompanyID int64
	MigrationClinicID  int64
	MigrationParallel  bool
	MigrationWorkers   int
	MigrationPerf      bool
	ReturnOnlyClients  bool
	KeepClients        bool
	CSVMaxRows         int
}

// Load reads config from the environment (with optional .env file).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:             getEnv("APP_ENV", "development"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		JWTAccessSecret: getEnv("JWT_ACCESS_SECRET", ""),
		CORSOrigins:     splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200")),

		AIAPIKey:            getEnv("AI_API_KEY", ""),
		AIBaseURL:           getEnv("AI_BASE_URL", "https://api.openai.com/v1"),
		AIModel:             getEnv("AI_MODEL", "gpt-4o"),
		AITimeout:           mustDuration(getEnv("AI_TIMEOUT", "60s")),
		AIRequestsPerMinute: getEnvInt("AI_REQUESTS_PER_MINUTE", 60),

		RedisURL:         getEnv("REDIS_URL", ""),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency: getEnvInt("ASYNQ_CONCURRENCY", 10),
		MemoryRedis:      boolEnv("AI_MEMORY_REDIS", false),
		MemoryTTL:        mustDuration(getEnv("AI_MEMORY_TTL", "60m")),

		MinIOEndpoint:         getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:        getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:        getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:           boolEnv("MINIO_USE_SSL", false),
		MinIOBucketLegacyFile: getEnv("MINIO_BUCKET_LEGACY_FILES", "legacy-files"),

		LegacyCSVDir:       getEnv("LEGACY_CSV_DIR", ""),
		MigrationCompanyID: getEnvInt64("COMPANY_ID", 0),
		MigrationClinicID:  getEnvInt64("CLINIC_ID", 0),
		MigrationParallel:  boolEnv("MIGRATION_PARALLEL", false),
		MigrationWorkers:   getEnvInt("MIGRATION_WORKERS", 4),
		MigrationPerf:      boolEnv("MIGRATION_PERF", false),
		ReturnOnlyClients:  boolEnv("RETURN_ONLY_CLIENTS", false),
		KeepClients:        boolEnv("KEEP_CLIENTS", false),
		CSVMaxRows:         getEnvInt("CSV_MAX_ROWS", 0),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) GetDatabaseURL() string            { return c.DatabaseURL }
func (c *Config) GetJWTAccessSecret() string        { return c.JWTAccessSecret }
func (c *Config) GetHTTPAddr() string               { return c.HTTPAddr }
func (c *Config) GetCORSOrigins() []string          { return c.CORSOrigins }
func (c *Config) GetAIAPIKey() string               { return c.AIAPIKey }
func (c *Config) GetAIBaseURL() string              { return c.AIBaseURL }
func (c *Config) GetAIModel() string                { return c.AIModel }
func (c *Config) GetAITimeout() time.Duration       { return c.AITimeout }
func (c *Config) GetAIRequestsPerMinute() int       { return c.AIRequestsPerMinute }
func (c *Config) IsAIEnabled() bool                 { return c.AIAPIKey != "" }
func (c *Config) GetRedisURL() string               { return c.RedisURL }
func (c *Config) GetAsynqQueueName() string         { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int          { return c.AsynqConcurrency }
func (c *Config) UseRedisMemory() bool              { return c.MemoryRedis && c.RedisURL != "" }
func (c *Config) GetMemoryTTL() time.Duration       { return c.MemoryTTL }
func (c *Config) GetMinIOEndpoint() string          { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string         { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string         { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool              { return c.MinIOUseSSL }
func (c *Config) GetMinIOBucketLegacyFiles() string { return c.MinIOBucketLegacyFile }
func (c *Config) IsMinIOEnabled() bool              { return c.MinIOEndpoint != "" }
func (c *Config) GetLegacyCSVDir() string           { return c.LegacyCSVDir }
func (c *Config) GetMigrationCompanyID() int64      { return c.MigrationCompanyID }
func (c *Config) GetMigrationClinicID() int64       { return c.MigrationClinicID }
func (c *Config) IsMigrationParallel() bool         { return c.MigrationParallel }
func (c *Config) GetMigrationWorkers() int          { return c.MigrationWorkers }
func (c *Config) IsMigrationPerf() bool             { return c.MigrationPerf }
func (c *Config) IsReturnOnlyClients() bool         { return c.ReturnOnlyClients }
func (c *Config) IsKeepClients() bool               { return c.KeepClients }
func (c *Config) GetCSVMaxRows() int                { return c.CSVMaxRows }

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt64(key string, fallback int64) int64 {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func boolEnv(key string, fallback bool) bool {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}
