package config

import "time"

// CollectorConfig holds runtime configuration for the collector service.
type CollectorConfig struct {
	Environment        string
	LogLevel           string
	Addr               string
	DatabaseURL        string
	MigrationsDir      string
	ViolationQueueSize int
	HealthPushEvery    time.Duration
	HealthWindow       time.Duration
	MaxPageSize        int
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
}

// LoadCollectorConfig constructs a CollectorConfig from environment variables.
func LoadCollectorConfig() CollectorConfig {
	return CollectorConfig{
		Environment:        GetString("APP_ENV", "development"),
		LogLevel:           GetString("LOG_LEVEL", "info"),
		Addr:               GetString("COLLECTOR_ADDR", ":8080"),
		DatabaseURL:        GetString("DATABASE_URL", "postgres://pulsewatch:pulsewatch@db:5432/pulsewatch?sslmode=disable"),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", "db/migrations"),
		ViolationQueueSize: GetInt("VIOLATION_QUEUE_SIZE", 256),
		HealthPushEvery:    GetSeconds("HEALTH_PUSH_SECONDS", 5),
		HealthWindow:       GetSeconds("HEALTH_WINDOW_SECONDS", 3600),
		MaxPageSize:        GetInt("MAX_PAGE_SIZE", 500),
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}
