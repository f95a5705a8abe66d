package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	OTP       OTPConfig
	SMS       SMSConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	URL      string
	MaxConns int32
}

type RedisConfig struct {
	Endpoint string
	Password string
	DB       int
}

type JWTConfig struct {
	SecretKey     string
	SessionExpiry time.Duration
}

type OTPConfig struct {
	Length      int
	Expiry      time.Duration
	MaxAttempts int
	BlockTime   time.Duration
}

type SMSConfig struct {
	URL      string
	APIKey   string
	User     string
	Password string
	Sender   string
	Timeout  time.Duration
}

type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Window   time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: int32(getEnvAsInt("DATABASE_MAX_CONNS", 5)),
		},
		Redis: RedisConfig{
			Endpoint: getEnv("REDIS_ENDPOINT", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			SecretKey:     getEnv("JWT_SECRET_KEY", ""),
			SessionExpiry: getEnvAsDuration("SESSION_EXPIRY", 24*time.Hour),
		},
		OTP: OTPConfig{
			Length:      getEnvAsInt("OTP_LENGTH", 6),
			Expiry:      getEnvAsDuration("OTP_EXPIRY", 10*time.Minute),
			MaxAttempts: getEnvAsInt("OTP_MAX_ATTEMPTS", 5),
			BlockTime:   getEnvAsDuration("OTP_BLOCK_TIME", 2*time.Hour),
		},
		SMS: SMSConfig{
			URL:      getEnv("SMS_URL", "https://api.sms4free.co.il/ApiSMS/v2/SendSMS"),
			APIKey:   getEnv("SMS_API_KEY", ""),
			User:     getEnv("SMS_USER", ""),
			Password: getEnv("SMS_PASSWORD", ""),
			Sender:   getEnv("SMS_SENDER", ""),
			Timeout:  getEnvAsDuration("SMS_TIMEOUT", 10*time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled:  getEnvAsBool("RATE_LIMIT_ENABLED", true),
			Requests: getEnvAsInt("RATE_LIMIT_REQUESTS", 5),
			Window:   getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
	}

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	if cfg.JWT.SecretKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is required")
	}

	if len(cfg.JWT.SecretKey) < 32 {
		return nil, fmt.Errorf("JWT_SECRET_KEY must be at least 32 bytes (256 bits)")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
