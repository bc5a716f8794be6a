package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	JWTSecret    string
	Port         string
	DatabasePath string
	LogLevel     string

	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration

	// PendingSweepSchedule is a cron spec for the pending-transaction
	// reprocessing sweep, e.g. "*/15 * * * *".
	PendingSweepSchedule string

	// ReprocessMode controls what the sweep does with a PENDING
	// transaction: "grant" completes it with the full deferred saving,
	// "recheck" re-runs the balance policy against the current config.
	ReprocessMode string

	RateLimitInterval time.Duration
	RateLimitBurst    int

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	FrontendBaseURL    string
}

var Cfg *AppConfig

func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		log.Println("Info: No .env file found or error loading .env file. Relying on OS environment variables and defaults. Error (if any):", errEnv)
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	jwtSecret := getEnv("JWT_SECRET", "your-very-secure-and-long-jwt-secret-key-for-hs256-minimum-32-bytes")
	if jwtSecret == "your-very-secure-and-long-jwt-secret-key-for-hs256-minimum-32-bytes" {
		log.Println("WARNING: Using default insecure JWT_SECRET. Set JWT_SECRET environment variable for production.")
	}

	accessTokenExpiryStr := getEnv("ACCESS_TOKEN_EXPIRY", "60m")
	refreshTokenExpiryStr := getEnv("REFRESH_TOKEN_EXPIRY", "168h")
	accessTokenExpiry, err := time.ParseDuration(accessTokenExpiryStr)
	if err != nil {
		log.Printf("WARNING: Invalid ACCESS_TOKEN_EXPIRY format '%s'. Using default 60m. Error: %v", accessTokenExpiryStr, err)
		accessTokenExpiry = 60 * time.Minute
	}
	refreshTokenExpiry, err := time.ParseDuration(refreshTokenExpiryStr)
	if err != nil {
		log.Printf("WARNING: Invalid REFRESH_TOKEN_EXPIRY format '%s'. Using default 7d (168h). Error: %v", refreshTokenExpiryStr, err)
		refreshTokenExpiry = 7 * 24 * time.Hour
	}

	reprocessMode := getEnv("REPROCESS_MODE", "grant")
	if reprocessMode != "grant" && reprocessMode != "recheck" {
		log.Printf("WARNING: Invalid REPROCESS_MODE '%s'. Using default 'grant'.", reprocessMode)
		reprocessMode = "grant"
	}

	rateLimitIntervalStr := getEnv("RATE_LIMIT_INTERVAL", "100ms")
	rateLimitInterval, err := time.ParseDuration(rateLimitIntervalStr)
	if err != nil {
		log.Printf("WARNING: Invalid RATE_LIMIT_INTERVAL format '%s'. Using default 100ms. Error: %v", rateLimitIntervalStr, err)
		rateLimitInterval = 100 * time.Millisecond
	}

	Cfg = &AppConfig{
		JWTSecret:    jwtSecret,
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "./ahorrito.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		AccessTokenExpiry:  accessTokenExpiry,
		RefreshTokenExpiry: refreshTokenExpiry,

		PendingSweepSchedule: getEnv("PENDING_SWEEP_SCHEDULE", "*/15 * * * *"),
		ReprocessMode:        reprocessMode,

		RateLimitInterval: rateLimitInterval,
		RateLimitBurst:    getEnvAsInt("RATE_LIMIT_BURST", 30),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8080/api/auth/google/callback"),
		FrontendBaseURL:    getEnv("FRONTEND_BASE_URL", "http://localhost:3000"),
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, SweepSchedule=%s, ReprocessMode=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.PendingSweepSchedule, Cfg.ReprocessMode)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		log.Printf("Integer value for %s not set or empty, using default: %d", key, fallback)
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}
