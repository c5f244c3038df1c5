package config

import (
	"os"
	"strconv"
	"time"
)

// Режимы развертывания: single работает на локальном брокере и памяти,
// redis и nats включают внешнюю шину для нескольких инстансов
const (
	SystemModeSingle = "single"
	SystemModeRedis  = "redis"
	SystemModeNATS   = "nats"
)

// Варианты маршрутизации
const (
	ChatModeDynamic = "dynamic"
	ChatModeSimple  = "simple"
	ChatModeAgent   = "agent"
)

type Config struct {
	Port       string
	SystemMode string
	ChatMode   string

	RedisURL    string
	DatabaseURL string
	NATSURL     string

	JWTSecret   string
	JWTLifetime time.Duration

	AIEndpoint    string
	AICompanyID   string
	AIUserID      string
	AIRagSysInfo  string
	AISummaryURI  string
	AIKeywordURI  string
	AICategoryURI string

	DispatchWorkers   int
	DispatchQueueSize int

	ReaperInterval  time.Duration
	ReaperThreshold time.Duration
}

func Load() *Config {
	return &Config{
		Port:       envOrDefault("PORT", "8080"),
		SystemMode: envOrDefault("SYSTEM_MODE", SystemModeSingle),
		ChatMode:   envOrDefault("CHAT_MODE", ChatModeDynamic),

		RedisURL:    envOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		NATSURL:     envOrDefault("NATS_URL", "nats://localhost:4222"),

		JWTSecret:   envOrDefault("JWT_SECRET", "dev-secret"),
		JWTLifetime: envDuration("JWT_LIFETIME", 24*time.Hour),

		AIEndpoint:    envOrDefault("AI_ENDPOINT", "http://localhost:9100"),
		AICompanyID:   envOrDefault("AI_COMPANY_ID", "apt001"),
		AIUserID:      envOrDefault("AI_USER_ID", "manager"),
		AIRagSysInfo:  os.Getenv("AI_RAG_SYS_INFO"),
		AISummaryURI:  envOrDefault("AI_SUMMARY_URI", "/v1/analysis/summary"),
		AIKeywordURI:  envOrDefault("AI_KEYWORD_URI", "/v1/analysis/keyword"),
		AICategoryURI: envOrDefault("AI_CATEGORY_URI", "/v1/analysis/category"),

		DispatchWorkers:   envInt("DISPATCH_WORKERS", 8),
		DispatchQueueSize: envInt("DISPATCH_QUEUE_SIZE", 256),

		ReaperInterval:  envDuration("REAPER_INTERVAL", 60*time.Second),
		ReaperThreshold: envDuration("REAPER_THRESHOLD", 10*time.Minute),
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
