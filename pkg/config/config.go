// Package config loads proxy-gateway configuration from the environment,
// and sets up zerolog according to it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds the configuration for the proxy-gateway and fsck binaries.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Retry    RetryConfig    `yaml:"retry"`
	Fsck     FsckConfig     `yaml:"fsck"`
	Logging  LoggingConfig  `yaml:"logging"`

	// MetadataBackend selects the metadata store implementation: "redis"
	// for the shared-cache-backed store, or "memory" for the in-process
	// double (single instance, no external dependency, state lost on
	// restart).
	MetadataBackend string `yaml:"metadata_backend"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// UpstreamConfig holds the upstream Maven repository this proxy fronts.
type UpstreamConfig struct {
	BaseURI string `yaml:"base_uri"`
}

// StorageConfig holds blob store configuration. Only the local filesystem
// variant is in scope; Type is retained so a future object-storage backend
// has somewhere to plug in without a breaking config change.
type StorageConfig struct {
	Type      string `yaml:"type"`
	LocalPath string `yaml:"local_path"`
}

// RedisConfig holds the Redis connection used by the shared-cache metadata
// store backend.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RetryConfig holds the failed-download backoff window.
type RetryConfig struct {
	Window time.Duration `yaml:"window"`
}

// FsckConfig holds the orphan sweeper's grace period and run cadence.
type FsckConfig struct {
	GracePeriod time.Duration `yaml:"grace_period"`
	Interval    time.Duration `yaml:"interval"`
	LogOnly     bool          `yaml:"log_only"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, console
}

// LoadFromEnv loads configuration from environment variables, falling back
// to defaults suitable for local development.
func LoadFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Upstream: UpstreamConfig{
			BaseURI: getEnv("UPSTREAM_BASE_URI", "https://repo1.maven.org/maven2/"),
		},
		Storage: StorageConfig{
			Type:      getEnv("STORAGE_TYPE", "local"),
			LocalPath: getEnv("STORAGE_LOCAL_PATH", "./artifacts"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Retry: RetryConfig{
			Window: getEnvDuration("RETRY_WINDOW", 300*time.Second),
		},
		Fsck: FsckConfig{
			GracePeriod: getEnvDuration("FSCK_GRACE_PERIOD", time.Hour),
			Interval:    getEnvDuration("FSCK_INTERVAL", 6*time.Hour),
			LogOnly:     getEnvBool("FSCK_LOG_ONLY", false),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		MetadataBackend: getEnv("METADATA_BACKEND", "redis"),
	}
}

// RedisAddr returns the Redis address in host:port form.
func (r *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// SetupLogging configures the global zerolog logger's level and writer
// according to cfg.
func (cfg *LoggingConfig) SetupLogging() {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// Helper functions for environment variable parsing.

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
