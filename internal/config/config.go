package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	JWTSecret      string
	// AdminIDs are the user ids allowed to call the admin endpoints.
	AdminIDs []string
	// ChallengesFile is the path to the TOML challenge definitions.
	ChallengesFile string
	// GlobalPhotoVerification makes every challenge (except the first and
	// photo challenges themselves) require arrival-photo approval unless it
	// overrides the setting itself.
	GlobalPhotoVerification bool
	// MaxTeamSize caps team membership; zero means unlimited.
	MaxTeamSize int
	// SnapshotInterval is how often the game state is persisted, in seconds.
	SnapshotInterval int
	Environment      string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:                    getEnv("PORT", "8080"),
		AllowedOrigins:          splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		DatabaseURL:             getEnv("DATABASE_URL", ""),
		RedisURL:                getEnv("REDIS_URL", ""),
		JWTSecret:               getEnv("JWT_SECRET", ""),
		AdminIDs:                splitList(getEnv("ADMIN_IDS", "")),
		ChallengesFile:          getEnv("CHALLENGES_FILE", "challenges.toml"),
		GlobalPhotoVerification: getBoolEnv("GLOBAL_PHOTO_VERIFICATION", false),
		MaxTeamSize:             getIntEnv("MAX_TEAM_SIZE", 0),
		SnapshotInterval:        getIntEnv("SNAPSHOT_INTERVAL_SECONDS", 30),
		Environment:             getEnv("ENVIRONMENT", "production"),
	}, nil
}

// IsAdmin reports whether the user id is in the admin allowlist.
func (c *Config) IsAdmin(userID string) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// splitList parses a comma-separated value into a slice
func splitList(raw string) []string {
	if raw == "" {
		return []string{}
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
