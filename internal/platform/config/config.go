package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files; with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvDuration parses the variable with time.ParseDuration ("30s", "24h").
// It returns fallback if the variable is unset, empty, or malformed.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return fallback
}

// Config is the service configuration resolved from the environment.
type Config struct {
	Port              string
	LogLevel          string
	LogFormat         string
	SummaryWindowDays int

	// StoreBackend is "memory", "redis" or "postgres".
	StoreBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
	DatabaseURL   string

	// MQTT ingestion is disabled when MQTTBroker is empty.
	MQTTBroker   string
	MQTTClientID string
	MQTTTopic    string
	MQTTUsername string
	MQTTPassword string

	// Health-API import is disabled when HealthAPIURL is empty.
	HealthAPIURL     string
	HealthAPIToken   string
	HealthAPITimeout time.Duration
}

// FromEnv reads Config from the environment, applying defaults.
func FromEnv() Config {
	return Config{
		Port:              GetEnv("PORT", "8080"),
		LogLevel:          GetEnv("LOG_LEVEL", "info"),
		LogFormat:         GetEnv("LOG_FORMAT", "json"),
		SummaryWindowDays: GetEnvInt("SUMMARY_WINDOW_DAYS", 7),

		StoreBackend:  GetEnv("STORE_BACKEND", "memory"),
		RedisAddr:     GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: GetEnv("REDIS_PASSWORD", ""),
		RedisDB:       GetEnvInt("REDIS_DB", 0),
		RedisTTL:      GetEnvDuration("REDIS_TTL", 30*24*time.Hour),
		DatabaseURL:   GetEnv("DATABASE_URL", ""),

		MQTTBroker:   GetEnv("MQTT_BROKER", ""),
		MQTTClientID: GetEnv("MQTT_CLIENT_ID", "sleepstage-service"),
		MQTTTopic:    GetEnv("MQTT_TOPIC", "sleepstage/nights/+/samples"),
		MQTTUsername: GetEnv("MQTT_USERNAME", ""),
		MQTTPassword: GetEnv("MQTT_PASSWORD", ""),

		HealthAPIURL:     GetEnv("HEALTH_API_URL", ""),
		HealthAPIToken:   GetEnv("HEALTH_API_TOKEN", ""),
		HealthAPITimeout: GetEnvDuration("HEALTH_API_TIMEOUT", 30*time.Second),
	}
}
