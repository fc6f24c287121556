package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Env      string
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	Auth     AuthConfig
	Log      LogConfig
	Rides    RidesConfig
	Seed     SeedConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host        string
	Port        string
	User        string
	Password    string
	DBName      string
	SSLMode     string
	AutoMigrate bool
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// AuthConfig holds token signing configuration.
type AuthConfig struct {
	JWTSecret string
	JWTTTL    time.Duration
	Issuer    string
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string
	Format string
}

// RidesConfig holds ride read settings.
type RidesConfig struct {
	CacheTTL     time.Duration
	EventsWindow time.Duration
}

// SeedConfig holds fixture seeding settings.
type SeedConfig struct {
	AdminPassword string
}

var defaults = map[string]any{
	"APP_ENV":                 "local",
	"SERVER_PORT":             "8080",
	"SERVER_READ_TIMEOUT":     "10s",
	"SERVER_WRITE_TIMEOUT":    "10s",
	"SERVER_SHUTDOWN_TIMEOUT": "5s",
	"CORS_ALLOWED_ORIGINS":    "*",
	"DB_HOST":                 "localhost",
	"DB_PORT":                 "5432",
	"DB_USER":                 "postgres",
	"DB_PASSWORD":             "postgres",
	"DB_NAME":                 "ridez",
	"DB_SSLMODE":              "disable",
	"DB_AUTO_MIGRATE":         false,
	"REDIS_ADDR":              "localhost:6379",
	"REDIS_PASSWORD":          "",
	"REDIS_DB":                0,
	"NEW_RELIC_APP_NAME":      "ridez",
	"NEW_RELIC_LICENSE_KEY":   "",
	"NEW_RELIC_ENABLED":       false,
	"JWT_SECRET":              "",
	"JWT_TTL":                 "1h",
	"JWT_ISSUER":              "ridez",
	"LOG_LEVEL":               "info",
	"LOG_FORMAT":              "json",
	"RIDE_CACHE_TTL":          "10s",
	"RIDE_EVENTS_WINDOW":      "24h",
	"SEED_ADMIN_PASSWORD":     "admin",
}

// Load loads configuration from environment variables. In the local
// environment a .env file in the working directory is read first.
func Load() *Config {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if v.GetString("APP_ENV") == "local" {
		// A missing .env is fine.
		_ = godotenv.Load()
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Env: v.GetString("APP_ENV"),
		Server: ServerConfig{
			Port:            v.GetString("SERVER_PORT"),
			ReadTimeout:     v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("SERVER_WRITE_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
			AllowedOrigins:  splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:        v.GetString("DB_HOST"),
			Port:        v.GetString("DB_PORT"),
			User:        v.GetString("DB_USER"),
			Password:    v.GetString("DB_PASSWORD"),
			DBName:      v.GetString("DB_NAME"),
			SSLMode:     v.GetString("DB_SSLMODE"),
			AutoMigrate: v.GetBool("DB_AUTO_MIGRATE"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		NewRelic: NewRelicConfig{
			AppName:    v.GetString("NEW_RELIC_APP_NAME"),
			LicenseKey: v.GetString("NEW_RELIC_LICENSE_KEY"),
			Enabled:    v.GetBool("NEW_RELIC_ENABLED"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("JWT_SECRET"),
			JWTTTL:    v.GetDuration("JWT_TTL"),
			Issuer:    v.GetString("JWT_ISSUER"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Rides: RidesConfig{
			CacheTTL:     v.GetDuration("RIDE_CACHE_TTL"),
			EventsWindow: v.GetDuration("RIDE_EVENTS_WINDOW"),
		},
		Seed: SeedConfig{
			AdminPassword: v.GetString("SEED_ADMIN_PASSWORD"),
		},
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
