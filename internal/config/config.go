package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port               string
	DatabaseURL        string
	ResetTime          string
	ResetScanInterval  time.Duration
	RecallLimit        int
	RateLimitPerMinute int
	RateLimitBurst     int
}

func Load() Config {
	// Missing .env is the normal case outside development.
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	resetTime := os.Getenv("RESET_TIME")
	if resetTime == "" {
		resetTime = "00:00"
	}

	return Config{
		Port:               port,
		DatabaseURL:        os.Getenv("DB_DSN"),
		ResetTime:          resetTime,
		ResetScanInterval:  readDurationSeconds("RESET_SCAN_INTERVAL_SECONDS", 60),
		RecallLimit:        readInt("RECALL_LIMIT", 3),
		RateLimitPerMinute: readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:     readInt("RATE_LIMIT_BURST", 30),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
