package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Version is reported by /health and /version.
const (
	Version    = "1.0.0"
	APIVersion = "1.0.0"
)

type Config struct {
	Port string
	Env  string

	// APIToken enables bearer auth on parse endpoints when non-empty.
	APIToken string

	MaxConcurrent int
	QueueSize     int
	MaxFileSize   int64
	TaskRetention time.Duration
	MaxTasks      int
	StallTimeout  time.Duration

	ModelsDir    string
	VLMServerURL string

	KafkaBrokers string
	KafkaTopic   string
	RedisAddr    string
	DatabaseURL  string
}

func Load() *Config {
	// A .env in the working directory overrides nothing already set.
	_ = godotenv.Load()

	return &Config{
		Port:          getEnv("SERVICE_PORT", "8000"),
		Env:           getEnv("ENV", "development"),
		APIToken:      getEnv("API_TOKEN", ""),
		MaxConcurrent: getEnvAsInt("MAX_CONCURRENT_REQUESTS", 2),
		QueueSize:     getEnvAsInt("TASK_QUEUE_SIZE", 32),
		MaxFileSize:   getEnvAsInt64("MAX_FILE_SIZE_MB", 100) * 1024 * 1024,
		TaskRetention: time.Duration(getEnvAsInt("TASK_EXPIRE_HOURS", 24)) * time.Hour,
		MaxTasks:      getEnvAsInt("MAX_TASKS", 1000),
		StallTimeout:  time.Duration(getEnvAsInt("STALL_TIMEOUT_MINUTES", 0)) * time.Minute,
		ModelsDir:     getEnv("MODELS_DIR", "/workspace/models"),
		VLMServerURL:  getEnv("VLM_SERVER_URL", ""),
		KafkaBrokers:  getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "parse_tasks"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}
