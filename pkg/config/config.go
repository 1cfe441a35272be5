package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/plugmart/plugmart/pkg/observability"
	"github.com/plugmart/plugmart/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Artifact storage configuration
	Storage storage.Config

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`

	// Allowed CORS origins for the marketplace UI
	CORSOrigins []string `yaml:"cors_origins"`

	// Maximum accepted upload size for plugin archives
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// DatabaseConfig holds SQL database configuration
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite3" (sqlite is for local development)
	Driver   string        `yaml:"driver"`
	URL      string        `yaml:"url"`
	MaxConns int           `yaml:"max_conns"`
	MinConns int           `yaml:"min_conns"`
	Timeout  time.Duration `yaml:"timeout"`
}

// RedisConfig holds Redis configuration. Redis is optional; when disabled
// the aggregate cache is skipped and download tokens live in memory.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables, optionally
// overlaid by a YAML file named in PLUGMART_CONFIG_FILE.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Storage:       loadStorageConfig(),
		Observability: loadObservabilityConfig(),
	}

	if path := getEnv("PLUGMART_CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, fmt.Errorf("failed to apply config file %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// fileConfig mirrors the YAML file layout; only present keys override env
type fileConfig struct {
	Server   *ServerConfig   `yaml:"server"`
	Database *DatabaseConfig `yaml:"database"`
	Redis    *RedisConfig    `yaml:"redis"`
}

// applyFile overlays settings from a YAML file on the loaded config
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if fc.Server != nil {
		c.Server = mergeServer(c.Server, *fc.Server)
	}
	if fc.Database != nil {
		c.Database = mergeDatabase(c.Database, *fc.Database)
	}
	if fc.Redis != nil {
		c.Redis = *fc.Redis
	}
	return nil
}

func mergeServer(base, overlay ServerConfig) ServerConfig {
	if overlay.Host != "" {
		base.Host = overlay.Host
	}
	if overlay.Port != "" {
		base.Port = overlay.Port
	}
	if overlay.HealthPort != "" {
		base.HealthPort = overlay.HealthPort
	}
	if overlay.ReadTimeout > 0 {
		base.ReadTimeout = overlay.ReadTimeout
	}
	if overlay.WriteTimeout > 0 {
		base.WriteTimeout = overlay.WriteTimeout
	}
	if overlay.IdleTimeout > 0 {
		base.IdleTimeout = overlay.IdleTimeout
	}
	if overlay.ShutdownTimeout > 0 {
		base.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if len(overlay.CORSOrigins) > 0 {
		base.CORSOrigins = overlay.CORSOrigins
	}
	if overlay.MaxUploadBytes > 0 {
		base.MaxUploadBytes = overlay.MaxUploadBytes
	}
	return base
}

func mergeDatabase(base, overlay DatabaseConfig) DatabaseConfig {
	if overlay.Driver != "" {
		base.Driver = overlay.Driver
	}
	if overlay.URL != "" {
		base.URL = overlay.URL
	}
	if overlay.MaxConns > 0 {
		base.MaxConns = overlay.MaxConns
	}
	if overlay.MinConns > 0 {
		base.MinConns = overlay.MinConns
	}
	if overlay.Timeout > 0 {
		base.Timeout = overlay.Timeout
	}
	return base
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("PLUGMART_HOST", "0.0.0.0"),
		Port:            getEnv("PLUGMART_PORT", "8080"),
		ReadTimeout:     getEnvDuration("PLUGMART_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("PLUGMART_WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:     getEnvDuration("PLUGMART_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("PLUGMART_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("PLUGMART_HEALTH_PORT", "9090"),
		CORSOrigins:     splitNonEmpty(getEnv("PLUGMART_CORS_ORIGINS", "*")),
		MaxUploadBytes:  getEnvInt64("PLUGMART_MAX_UPLOAD_BYTES", 50*1024*1024),
	}
}

// loadDatabaseConfig loads SQL database configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:   getEnv("PLUGMART_DB_DRIVER", "postgres"),
		URL:      getEnv("PLUGMART_DB_URL", "postgres://localhost/plugmart?sslmode=disable"),
		MaxConns: getEnvInt("PLUGMART_DB_MAX_CONNS", 20),
		MinConns: getEnvInt("PLUGMART_DB_MIN_CONNS", 2),
		Timeout:  getEnvDuration("PLUGMART_DB_TIMEOUT", 10*time.Second),
	}
}

// loadRedisConfig loads Redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:  getEnvBool("PLUGMART_REDIS_ENABLED", false),
		URL:      getEnv("PLUGMART_REDIS_URL", "redis://localhost:6379/0"),
		Password: getEnv("PLUGMART_REDIS_PASSWORD", ""),
		DB:       getEnvInt("PLUGMART_REDIS_DB", 0),
		PoolSize: getEnvInt("PLUGMART_REDIS_POOL_SIZE", 10),
	}
}

// loadStorageConfig loads artifact storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if storageType := getEnv("PLUGMART_STORAGE_TYPE", ""); storageType != "" {
		cfg.Type = storageType
	}
	if fsRoot := getEnv("PLUGMART_FILESYSTEM_ROOT", ""); fsRoot != "" {
		cfg.FilesystemRoot = fsRoot
	}
	if s3Endpoint := getEnv("PLUGMART_S3_ENDPOINT", ""); s3Endpoint != "" {
		cfg.S3Endpoint = s3Endpoint
	}
	if s3Region := getEnv("PLUGMART_S3_REGION", ""); s3Region != "" {
		cfg.S3Region = s3Region
	}
	if s3Bucket := getEnv("PLUGMART_S3_BUCKET", ""); s3Bucket != "" {
		cfg.S3Bucket = s3Bucket
	}
	if s3AccessKey := getEnv("PLUGMART_S3_ACCESS_KEY", ""); s3AccessKey != "" {
		cfg.S3AccessKey = s3AccessKey
	}
	if s3SecretKey := getEnv("PLUGMART_S3_SECRET_KEY", ""); s3SecretKey != "" {
		cfg.S3SecretKey = s3SecretKey
	}
	if s3UsePathStyle := getEnv("PLUGMART_S3_USE_PATH_STYLE", ""); s3UsePathStyle != "" {
		cfg.S3UsePathStyle = strings.ToLower(s3UsePathStyle) == "true"
	}

	return cfg
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           ParseLogLevel(getEnv("PLUGMART_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("PLUGMART_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("PLUGMART_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("PLUGMART_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("PLUGMART_OTEL_SERVICE_NAME", "plugmart"),
		OTelServiceVersion: getEnv("PLUGMART_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("PLUGMART_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite3)", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	switch c.Storage.Type {
	case "filesystem":
		if c.Storage.FilesystemRoot == "" {
			return fmt.Errorf("filesystem root is required for filesystem storage")
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be filesystem or s3)", c.Storage.Type)
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// ParseLogLevel parses a log level string
func ParseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
