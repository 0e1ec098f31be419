package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Events    EventsConfig    `mapstructure:"events"`
	Workers   WorkersConfig   `mapstructure:"workers"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RedisConfig holds Redis connection configuration. Redis is optional; with
// no address configured the service falls back to the in-process cache and
// skips the mutation event consumer.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig holds cache layer configuration
type CacheConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	GroupTTL       time.Duration `mapstructure:"group_ttl"`
	NearbyTTL      time.Duration `mapstructure:"nearby_ttl"`
	FeaturedTTL    time.Duration `mapstructure:"featured_ttl"`
	SustainableTTL time.Duration `mapstructure:"sustainable_ttl"`
	RelatedTTL     time.Duration `mapstructure:"related_ttl"`
	CategoryTTL    time.Duration `mapstructure:"category_ttl"`
}

// EngineConfig holds discovery engine tuning
type EngineConfig struct {
	MinRadiusKm        float64 `mapstructure:"min_radius_km"`
	MaxRadiusKm        float64 `mapstructure:"max_radius_km"`
	MaxLimit           int     `mapstructure:"max_limit"`
	HighSustainability float64 `mapstructure:"high_sustainability"`
	MidSustainability  float64 `mapstructure:"mid_sustainability"`
	NearDistanceKm     float64 `mapstructure:"near_distance_km"`
	MidDistanceKm      float64 `mapstructure:"mid_distance_km"`
}

// EventsConfig holds mutation event queue configuration
type EventsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	QueueKey string `mapstructure:"queue_key"`
}

// WorkersConfig holds background worker configuration
type WorkersConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	NumWorkers int           `mapstructure:"num_workers"`
	MaxTasks   int           `mapstructure:"max_tasks"`
	PollDelay  time.Duration `mapstructure:"poll_delay"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// AuthConfig holds service-to-service authentication configuration
type AuthConfig struct {
	InternalAPIKey string `mapstructure:"internal_api_key"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
}

var globalConfig *Config

// Load loads the configuration from file, .env, and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// Load .env file using godotenv
	if err := loadEnvFile(v); err != nil {
		// .env is optional, log but don't fail
		log.Warn().Err(err).Msg("Warning: .env file not loaded")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvPrefix("DEALS_SERVICE")

	// Bind env keys for nested config
	bindEnvVars(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	globalConfig = &cfg
	return &cfg, nil
}

// loadEnvFile loads .env file by parsing KEY=VALUE lines and setting them as environment variables
func loadEnvFile(v *viper.Viper) error {
	// Try to load .env file from various locations
	envPaths := []string{
		".",
		"./config",
	}

	for _, path := range envPaths {
		envFile := fmt.Sprintf("%s/.env", path)
		if _, err := os.Stat(envFile); err == nil {
			// Parse .env file and set environment variables
			if err := loadDotEnvFile(envFile); err == nil {
				return nil
			}
		}
	}
	return fmt.Errorf("no .env file found")
}

// loadDotEnvFile reads a .env file and sets environment variables
func loadDotEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			// Remove quotes if present
			value = strings.Trim(value, "\"'")
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

// bindEnvVars binds environment variables to config keys
func bindEnvVars(v *viper.Viper) {
	// Database
	v.BindEnv("database.url", "DATABASE_URL")

	// Redis
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.host", "HOST")

	// Auth
	v.BindEnv("auth.internal_api_key", "INTERNAL_API_KEY")

	// Logging
	v.BindEnv("logging.level", "LOG_LEVEL")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.max_conn_lifetime", 1*time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)

	// Redis defaults (empty addr = disabled)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)

	// Cache defaults
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.group_ttl", 24*time.Hour)
	v.SetDefault("cache.nearby_ttl", 5*time.Minute)
	v.SetDefault("cache.featured_ttl", 5*time.Minute)
	v.SetDefault("cache.sustainable_ttl", 1*time.Hour)
	v.SetDefault("cache.related_ttl", 30*time.Minute)
	v.SetDefault("cache.category_ttl", 10*time.Minute)

	// Engine defaults
	v.SetDefault("engine.min_radius_km", 0.1)
	v.SetDefault("engine.max_radius_km", 50.0)
	v.SetDefault("engine.max_limit", 100)
	v.SetDefault("engine.high_sustainability", 8.0)
	v.SetDefault("engine.mid_sustainability", 5.0)
	v.SetDefault("engine.near_distance_km", 2.0)
	v.SetDefault("engine.mid_distance_km", 5.0)

	// Events defaults
	v.SetDefault("events.enabled", true)
	v.SetDefault("events.queue_key", "deals:mutations")

	// Workers defaults
	v.SetDefault("workers.enabled", true)
	v.SetDefault("workers.num_workers", 2)
	v.SetDefault("workers.max_tasks", 5)
	v.SetDefault("workers.poll_delay", 5*time.Second)

	// Rate limit defaults
	v.SetDefault("rate_limit.requests_per_second", 10)
	v.SetDefault("rate_limit.burst_size", 20)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.no_color", false)
}

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// GetDatabaseURL returns the database URL from config or environment
func GetDatabaseURL() string {
	if cfg := Get(); cfg != nil && cfg.Database.URL != "" {
		return cfg.Database.URL
	}
	return os.Getenv("DATABASE_URL")
}
