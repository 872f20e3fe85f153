package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port          string
	DBPath        string
	JWTSecret     string
	TokenTTL      time.Duration
	CORSOrigins   []string
	MigrationsDir string
	LogLevel      string
	LogFormat     string
	Room          RoomConfig
	Gateway       GatewayConfig
}

// RoomConfig holds the study room defaults shared by new and rehydrated rooms.
type RoomConfig struct {
	FocusMinutes       int
	ShortBreakMinutes  int
	LongBreakMinutes   int
	MaxDurationMinutes int
	TickInterval       time.Duration
	MinPartialSeconds  int
}

type GatewayConfig struct {
	RequireAuth     bool
	RateLimitPerIP  float64
	MessageRate     float64
	MaxMessageBytes int64
}

func Load() Config {
	return Config{
		Port:          getEnv("PORT", "8080"),
		DBPath:        getEnv("DB_PATH", "./data/studyroom.db"),
		JWTSecret:     getEnv("JWT_SECRET", "change-this-secret"),
		TokenTTL:      time.Duration(getEnvInt("TOKEN_TTL_HOURS", 72)) * time.Hour,
		CORSOrigins:   getEnvList("CORS_ORIGINS", []string{"http://localhost:5173", "http://127.0.0.1:5173"}),
		MigrationsDir: getEnv("MIGRATIONS_DIR", "./migrations"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		Room: RoomConfig{
			FocusMinutes:       getEnvInt("ROOM_FOCUS_MINUTES", 25),
			ShortBreakMinutes:  getEnvInt("ROOM_SHORT_BREAK_MINUTES", 5),
			LongBreakMinutes:   getEnvInt("ROOM_LONG_BREAK_MINUTES", 15),
			MaxDurationMinutes: getEnvInt("ROOM_MAX_DURATION_MINUTES", 180),
			TickInterval:       getEnvDuration("ROOM_TICK_INTERVAL", time.Second),
			MinPartialSeconds:  getEnvInt("ROOM_MIN_PARTIAL_SECONDS", 60),
		},
		Gateway: GatewayConfig{
			RequireAuth:     getEnvBool("WS_REQUIRE_AUTH", true),
			RateLimitPerIP:  float64(getEnvInt("WS_RATE_LIMIT_PER_IP", 20)),
			MessageRate:     float64(getEnvInt("WS_MESSAGE_RATE", 20)),
			MaxMessageBytes: int64(getEnvInt("WS_MAX_MESSAGE_BYTES", 64*1024)),
		},
	}
}

// DefaultRoom returns the room defaults without touching the environment.
func DefaultRoom() RoomConfig {
	return RoomConfig{
		FocusMinutes:       25,
		ShortBreakMinutes:  5,
		LongBreakMinutes:   15,
		MaxDurationMinutes: 180,
		TickInterval:       time.Second,
		MinPartialSeconds:  60,
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}
