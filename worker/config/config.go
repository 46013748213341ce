package config

import (
	"os"
	"strconv"
)

type Config struct {
	EngineURL    string
	OutputRoot   string
	LibraryRoot  string
	ProgressDB   string
	InkThreshold int
	MaxSide      int
	MaskStrategy string
	KafkaBrokers string
	KafkaTopic   string
	KafkaEvents  string
	KafkaGroupID string
	DatabaseURL  string
	RedisAddr    string
	WorkerCount  int
}

func Load() *Config {
	return &Config{
		EngineURL:    getEnv("ENGINE_URL", "http://localhost:8000"),
		OutputRoot:   getEnv("OUTPUT_ROOT", "output"),
		LibraryRoot:  getEnv("LIBRARY_ROOT", "library"),
		ProgressDB:   getEnv("PROGRESS_DB", "library/progress.db"),
		InkThreshold: getEnvAsInt("INK_THRESHOLD", 80),
		MaxSide:      getEnvAsInt("MAX_SIDE", 1024),
		MaskStrategy: getEnv("MASK_STRATEGY", "border-flood"),
		KafkaBrokers: getEnv("KAFKA_BROKERS", "localhost:9092"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "colorize_jobs"),
		KafkaEvents:  getEnv("KAFKA_EVENTS_TOPIC", "colorize_events"),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "colorize-workers"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		RedisAddr:    getEnv("REDIS_ADDR", ""),
		WorkerCount:  getEnvAsInt("WORKER_COUNT", 2),
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
