package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	ServerPort string
	ServerHost string

	// Room manager tuning
	RoomMaxParticipants   int
	RoomGracePeriod       time.Duration
	TypingIdleTimeout     time.Duration
	PresenceTimeout       time.Duration
	PresenceSweepInterval time.Duration
	CursorEventsPerSec    int
	ChangelogKeepOps      int
	ChangelogKeepAge      time.Duration
	BackendTimeout        time.Duration

	// Archive worker pool
	ArchiveWorkers   int
	ArchiveQueueSize int

	// Observability
	JaegerEndpoint string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "code_collab"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		ServerPort: getEnv("SERVER_PORT", "8080"),
		ServerHost: getEnv("SERVER_HOST", "localhost"),

		RoomMaxParticipants:   getEnvInt("ROOM_MAX_PARTICIPANTS", 8),
		RoomGracePeriod:       getEnvDuration("ROOM_GRACE_PERIOD", 5*time.Minute),
		TypingIdleTimeout:     getEnvDuration("TYPING_IDLE_TIMEOUT", 3*time.Second),
		PresenceTimeout:       getEnvDuration("PRESENCE_TIMEOUT", 30*time.Second),
		PresenceSweepInterval: getEnvDuration("PRESENCE_SWEEP_INTERVAL", 10*time.Second),
		CursorEventsPerSec:    getEnvInt("CURSOR_EVENTS_PER_SEC", 10),
		ChangelogKeepOps:      getEnvInt("CHANGELOG_KEEP_OPS", 1000),
		ChangelogKeepAge:      getEnvDuration("CHANGELOG_KEEP_AGE", time.Hour),
		BackendTimeout:        getEnvDuration("BACKEND_TIMEOUT", 10*time.Second),

		ArchiveWorkers:   getEnvInt("ARCHIVE_WORKERS", 4),
		ArchiveQueueSize: getEnvInt("ARCHIVE_QUEUE_SIZE", 256),

		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
	}

	if cfg.RoomMaxParticipants < 1 {
		return nil, fmt.Errorf("ROOM_MAX_PARTICIPANTS must be at least 1")
	}

	return cfg, nil
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
