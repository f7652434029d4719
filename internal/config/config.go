package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	JWT      JWTConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	DeliveryLogPath    string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	DeliveryDriver     string // "nats" or "channel" (in-process, single instance)
}

type DatabaseConfig struct {
	Connection string
}

type JWTConfig struct {
	Secret       string
	TTLHours     int
	SessionHours int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log"),
			DeliveryLogPath:    getEnv("DELIVERY_LOG_PATH", "delivery.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			DeliveryDriver:     getEnv("DELIVERY_DRIVER", "nats"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		JWT: JWTConfig{
			Secret:       getEnv("JWT_SECRET", ""),
			TTLHours:     getEnvAsInt("JWT_TTL_HOURS", 24),
			SessionHours: getEnvAsInt("CHAT_SESSION_TTL_HOURS", 1),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}
