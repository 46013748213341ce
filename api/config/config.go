package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port        string
	Env         string
	EngineURL   string
	OutputRoot  string
	LibraryRoot string
	UploadDir   string
	ProgressDB  string
	MaxFileSize int64

	// QueueMode hands started jobs to workers over kafka instead of
	// running them inside the API process.
	QueueMode    bool
	KafkaBrokers string
	KafkaTopic   string

	DatabaseURL string
	RedisAddr   string
}

func Load() *Config {
	return &Config{
		Port:        getEnv("SERVICE_PORT", "8081"),
		Env:         getEnv("ENV", "development"),
		EngineURL:   getEnv("ENGINE_URL", "http://localhost:8000"),
		OutputRoot:  getEnv("OUTPUT_ROOT", "output"),
		LibraryRoot: getEnv("LIBRARY_ROOT", "library"),
		UploadDir:   getEnv("UPLOAD_DIR", "uploads"),
		ProgressDB:  getEnv("PROGRESS_DB", "library/progress.db"),
		MaxFileSize: getEnvAsInt64("MAX_FILE_SIZE", 100*1024*1024),

		QueueMode:    getEnvAsBool("QUEUE_MODE", false),
		KafkaBrokers: getEnv("KAFKA_BROKERS", "localhost:9092"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "colorize_jobs"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisAddr:   getEnv("REDIS_ADDR", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
