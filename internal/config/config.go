package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	DynamoDB DynamoDBConfig
	Redis    RedisConfig
	Token    TokenConfig
	Store    StoreConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DynamoDBConfig struct {
	Endpoint  string
	Region    string
	TableName string
}

type RedisConfig struct {
	Endpoint string
	Password string
	DB       int
}

// TokenConfig holds the two signing secrets and the two expiry windows.
// Access and refresh tokens are signed with distinct secrets so a compromise
// of one cannot forge the other.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// StoreConfig selects the refresh-token store backend.
type StoreConfig struct {
	Driver string // "dynamodb" or "redis"
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		DynamoDB: DynamoDBConfig{
			Endpoint:  getEnv("DYNAMODB_ENDPOINT", ""),
			Region:    getEnv("DYNAMODB_REGION", "us-east-1"),
			TableName: getEnv("DYNAMODB_TABLE_NAME", "RentoraTable"),
		},
		Redis: RedisConfig{
			Endpoint: getEnv("REDIS_ENDPOINT", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Token: TokenConfig{
			AccessSecret:  getEnv("ACCESS_TOKEN_SECRET", ""),
			RefreshSecret: getEnv("REFRESH_TOKEN_SECRET", ""),
			AccessExpiry:  getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			RefreshExpiry: getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
		},
		Store: StoreConfig{
			Driver: getEnv("TOKEN_STORE_DRIVER", "dynamodb"),
		},
	}

	if cfg.Token.AccessSecret == "" {
		return nil, fmt.Errorf("ACCESS_TOKEN_SECRET environment variable is required")
	}

	if cfg.Token.RefreshSecret == "" {
		return nil, fmt.Errorf("REFRESH_TOKEN_SECRET environment variable is required")
	}

	if len(cfg.Token.AccessSecret) < 32 {
		return nil, fmt.Errorf("ACCESS_TOKEN_SECRET must be at least 32 bytes (256 bits)")
	}

	if len(cfg.Token.RefreshSecret) < 32 {
		return nil, fmt.Errorf("REFRESH_TOKEN_SECRET must be at least 32 bytes (256 bits)")
	}

	if cfg.Token.AccessSecret == cfg.Token.RefreshSecret {
		return nil, fmt.Errorf("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}

	if cfg.Store.Driver != "dynamodb" && cfg.Store.Driver != "redis" {
		return nil, fmt.Errorf("TOKEN_STORE_DRIVER must be \"dynamodb\" or \"redis\", got %q", cfg.Store.Driver)
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
