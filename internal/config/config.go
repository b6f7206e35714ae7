package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	WebSocket   WebSocketConfig
	CORS        CORSConfig
	Logging     LoggingConfig
	Sync        SyncConfig
	Maintenance MaintenanceConfig
	Revaluation RevaluationConfig
	Currency    CurrencyConfig
}

type ServerConfig struct {
	Port string
	Host string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type JWTConfig struct {
	Secret                 string
	Expiration             time.Duration
	RefreshTokenExpiration time.Duration
}

type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	MaxMessageSize  int64
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	MaxConnPerUser  int
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level string
}

// SyncConfig controls conflict handling. SourceDeviceID names the device
// whose edits win under the source_wins strategy; empty disables it.
type SyncConfig struct {
	SourceDeviceID string
}

// MaintenanceConfig drives the weekly conflict sweep: resolved records
// older than ResolvedRetentionDays are purged, open ones older than
// StaleOpenDays are marked ignored.
type MaintenanceConfig struct {
	ResolvedRetentionDays int
	StaleOpenDays         int
	Weekday               time.Weekday
	Hour                  int
}

type RevaluationConfig struct {
	BatchSize int
	// Tolerance is the minimum absolute change in converted amount that
	// counts as an update, as a decimal string.
	Tolerance string
}

type CurrencyConfig struct {
	ProviderBaseURL string
	Timeout         time.Duration
}

func Load() (*Config, error) {
	godotenv.Load()

	jwtExp, err := time.ParseDuration(getEnv("JWT_EXPIRATION", "15m"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRATION: %w", err)
	}

	refreshExp, err := time.ParseDuration(getEnv("REFRESH_TOKEN_EXPIRATION", "168h"))
	if err != nil {
		return nil, fmt.Errorf("invalid REFRESH_TOKEN_EXPIRATION: %w", err)
	}

	providerTimeout, err := time.ParseDuration(getEnv("CURRENCY_PROVIDER_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid CURRENCY_PROVIDER_TIMEOUT: %w", err)
	}

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "0.0.0.0"),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5984"),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "password"),
			Name:     getEnv("DB_NAME", "ledger"),
		},
		JWT: JWTConfig{
			Secret:                 getEnv("JWT_SECRET", "dev-secret-change-in-production"),
			Expiration:             jwtExp,
			RefreshTokenExpiration: refreshExp,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER_SIZE", 4096),
			WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER_SIZE", 4096),
			MaxMessageSize:  int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", 10485760)),
			WriteWait:       10 * time.Second,
			PongWait:        60 * time.Second,
			PingPeriod:      54 * time.Second,
			MaxConnPerUser:  getEnvAsInt("WS_MAX_CONN_PER_USER", 5),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Sync: SyncConfig{
			SourceDeviceID: getEnv("SYNC_SOURCE_DEVICE_ID", ""),
		},
		Maintenance: MaintenanceConfig{
			ResolvedRetentionDays: getEnvAsInt("MAINTENANCE_RESOLVED_RETENTION_DAYS", 30),
			StaleOpenDays:         getEnvAsInt("MAINTENANCE_STALE_OPEN_DAYS", 90),
			Weekday:               time.Weekday(getEnvAsInt("MAINTENANCE_WEEKDAY", int(time.Sunday))),
			Hour:                  getEnvAsInt("MAINTENANCE_HOUR", 4),
		},
		Revaluation: RevaluationConfig{
			BatchSize: getEnvAsInt("REVALUATION_BATCH_SIZE", 100),
			Tolerance: getEnv("REVALUATION_TOLERANCE", "0.01"),
		},
		Currency: CurrencyConfig{
			ProviderBaseURL: getEnv("CURRENCY_PROVIDER_URL", "http://localhost:9090"),
			Timeout:         providerTimeout,
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
