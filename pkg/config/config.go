package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the configuration for the whole service
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	Upload   UploadConfig   `yaml:"upload"`
	PhotoAPI PhotoAPIConfig `yaml:"photo_api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StorageConfig holds temporary chunk storage configuration
type StorageConfig struct {
	Type      string `yaml:"type"` // local is the only supported type today
	LocalPath string `yaml:"local_path"`
}

// UploadConfig holds chunked upload pipeline settings
type UploadConfig struct {
	ChunkSize           int64         `yaml:"chunk_size"`
	MaxFileSize         int64         `yaml:"max_file_size"`
	MaxConcurrentChunks int           `yaml:"max_concurrent_chunks"`
	MaxChunkRetries     int           `yaml:"max_chunk_retries"`
	RetryBackoff        time.Duration `yaml:"retry_backoff"`
	OrphanAge           time.Duration `yaml:"orphan_age"`
	OrphanSweepInterval time.Duration `yaml:"orphan_sweep_interval"`
}

// PhotoAPIConfig holds settings for the external photo storage backend
type PhotoAPIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	TokenCacheTTL  time.Duration `yaml:"token_cache_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "wedding"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "wedding"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Storage: StorageConfig{
			Type:      getEnv("STORAGE_TYPE", "local"),
			LocalPath: getEnv("STORAGE_LOCAL_PATH", "./uploads"),
		},
		Upload: UploadConfig{
			ChunkSize:           getEnvInt64("UPLOAD_CHUNK_SIZE", 2*1024*1024),
			MaxFileSize:         getEnvInt64("UPLOAD_MAX_FILE_SIZE", 500*1024*1024),
			MaxConcurrentChunks: getEnvInt("UPLOAD_MAX_CONCURRENT_CHUNKS", 3),
			MaxChunkRetries:     getEnvInt("UPLOAD_MAX_CHUNK_RETRIES", 3),
			RetryBackoff:        getEnvDuration("UPLOAD_RETRY_BACKOFF", time.Second),
			OrphanAge:           getEnvDuration("UPLOAD_ORPHAN_AGE", 24*time.Hour),
			OrphanSweepInterval: getEnvDuration("UPLOAD_ORPHAN_SWEEP_INTERVAL", time.Hour),
		},
		PhotoAPI: PhotoAPIConfig{
			BaseURL:        getEnv("PHOTO_API_BASE_URL", "http://localhost:9090"),
			APIKey:         getEnv("PHOTO_API_KEY", ""),
			RequestTimeout: getEnvDuration("PHOTO_API_REQUEST_TIMEOUT", 2*time.Minute),
			MaxRetries:     getEnvInt("PHOTO_API_MAX_RETRIES", 4),
			TokenCacheTTL:  getEnvDuration("PHOTO_API_TOKEN_CACHE_TTL", 50*time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

// DatabaseURL returns a PostgreSQL connection string
func (d *DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// RedisAddr returns the Redis address
func (r *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Helper functions for environment variable parsing
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

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
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
