package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server  ServerConfig
	Redis   RedisConfig
	JWT     JWTConfig
	Trading TradingConfig
	Price   PriceConfig
	CORS    CORSConfig
	Log     LogConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host string
	Port string
	Env  string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Prefix   string
}

// JWTConfig holds the secret shared with the platform that issues access tokens
type JWTConfig struct {
	Secret string
}

// TradingConfig controls the trade cycle scheduler
type TradingConfig struct {
	Interval        time.Duration
	AutoStart       bool
	LeaseTTL        time.Duration
	MinTradeSpacing time.Duration
}

// PriceConfig controls the asset price oracle
type PriceConfig struct {
	APIURL   string
	APIKey   string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("SERVER_ENV", "development"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Trading: TradingConfig{
			Interval:        time.Duration(getEnvAsInt("TRADING_INTERVAL_SECONDS", 300)) * time.Second,
			AutoStart:       getEnvAsBool("TRADING_AUTO_START", true),
			LeaseTTL:        time.Duration(getEnvAsInt("TRADING_LEASE_SECONDS", 240)) * time.Second,
			MinTradeSpacing: time.Duration(getEnvAsInt("TRADING_MIN_SPACING_SECONDS", 60)) * time.Second,
		},
		Price: PriceConfig{
			APIURL:   getEnv("PRICE_API_URL", "https://api.coingecko.com/api/v3"),
			APIKey:   getEnv("PRICE_API_KEY", ""),
			Timeout:  time.Duration(getEnvAsInt("PRICE_TIMEOUT_MS", 3000)) * time.Millisecond,
			CacheTTL: time.Duration(getEnvAsInt("PRICE_CACHE_SECONDS", 60)) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}, ","),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields and value ranges
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Trading.Interval <= 0 {
		return fmt.Errorf("TRADING_INTERVAL_SECONDS must be positive")
	}
	if c.Trading.LeaseTTL <= 0 {
		return fmt.Errorf("TRADING_LEASE_SECONDS must be positive")
	}
	if c.Trading.MinTradeSpacing < 0 {
		return fmt.Errorf("TRADING_MIN_SPACING_SECONDS must not be negative")
	}
	if c.Price.Timeout <= 0 {
		return fmt.Errorf("PRICE_TIMEOUT_MS must be positive")
	}
	return nil
}

// Address returns the full server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsProduction returns true if running in production mode
func (c *ServerConfig) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key string, defaultValue string) string {
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

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string, separator string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, separator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
