// Package config provides configuration loading and management for the entry
// service. It handles environment variable parsing and provides default values
// for all settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// init loads environment variables from .env files during package initialization.
// In development, it loads .env and .env.local files if they exist.
// In production, it relies solely on system environment variables.
// godotenv.Load() does not override already-set variables, preserving
// OS env > .env precedence.
func init() {
	// Load .env file if it exists (for shared development config)
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
		}
	}

	// Load .env.local if it exists (for local overrides, gitignored)
	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Load(".env.local"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env.local file: %v\n", err)
		}
	}
}

// Config captures environment-driven settings for the entry service.
type Config struct {
	Env         string // Deployment environment (dev, staging, prod)
	Port        string // HTTP server port
	DatabaseDSN string // Database connection string (PostgreSQL)
	NATSURL     string // NATS server URL
	S3Endpoint  string // S3-compatible storage endpoint
	S3Region    string // S3 region
	S3Bucket    string // S3 bucket for fund photos and card artifacts
	S3AccessKey string // S3 access key
	S3SecretKey string // S3 secret key
	JWTIssuer   string // Expected issuer for JWT validation
	JWTAudience string // Expected audience for JWT validation
	JWKSURL     string // Account service JWKS endpoint

	// Destination submission
	SubmissionURL string // Base URL of the arrival-card API

	// Autosave behavior
	AutosaveDebounce time.Duration // Quiet period before a buffered save flushes

	// Lifecycle sweeps
	ArrivalGrace  time.Duration // How long past the arrival date before an entry expires
	SweepInterval time.Duration // How often the expiry sweep runs

	// CORS configuration
	CORSAllowedOrigins []string // Allowed origins for CORS (empty means deny all)
}

// Default configuration values used when environment variables are not set
const (
	defaultPort             = "8080"
	defaultS3Region         = "us-east-1"
	defaultEnv              = "dev"
	defaultAutosaveDebounce = 2 * time.Second
	defaultArrivalGrace     = 24 * time.Hour
	defaultSweepInterval    = time.Hour
)

// Load reads environment variables and produces a Config suitable for wiring
// the service. Returns an error if required parameters are missing or invalid.
func Load() (Config, error) {
	cfg := Config{}

	cfg.Env = getEnv("ENTRY_ENV", defaultEnv)
	cfg.Port = getEnv("ENTRY_PORT", defaultPort)

	// Optional infrastructure: the service degrades to in-memory storage and a
	// no-op publisher when these are absent.
	cfg.DatabaseDSN = os.Getenv("ENTRY_DB_DSN")
	cfg.NATSURL = os.Getenv("ENTRY_NATS_URL")
	cfg.S3Endpoint = os.Getenv("ENTRY_S3_ENDPOINT")
	cfg.S3Region = getEnv("ENTRY_S3_REGION", defaultS3Region)
	cfg.S3Bucket = os.Getenv("ENTRY_S3_BUCKET")
	cfg.S3AccessKey = os.Getenv("ENTRY_S3_ACCESS_KEY")
	cfg.S3SecretKey = os.Getenv("ENTRY_S3_SECRET_KEY")

	cfg.JWTIssuer = os.Getenv("ENTRY_JWT_ISSUER")
	cfg.JWTAudience = os.Getenv("ENTRY_JWT_AUDIENCE")
	cfg.JWKSURL = os.Getenv("ENTRY_JWKS_URL")

	cfg.SubmissionURL = os.Getenv("ENTRY_SUBMISSION_URL")

	cfg.AutosaveDebounce = getDuration("ENTRY_AUTOSAVE_DEBOUNCE", defaultAutosaveDebounce)
	cfg.ArrivalGrace = getDuration("ENTRY_ARRIVAL_GRACE", defaultArrivalGrace)
	cfg.SweepInterval = getDuration("ENTRY_SWEEP_INTERVAL", defaultSweepInterval)

	if corsOrigins, exists := os.LookupEnv("ENTRY_CORS_ALLOWED_ORIGINS"); exists {
		cfg.CORSAllowedOrigins = strings.Split(corsOrigins, ",")
		for i, origin := range cfg.CORSAllowedOrigins {
			cfg.CORSAllowedOrigins[i] = strings.TrimSpace(origin)
		}
	}

	// Validate required parameters
	if cfg.JWTIssuer == "" {
		return cfg, fmt.Errorf("ENTRY_JWT_ISSUER is required")
	}
	if cfg.JWTAudience == "" {
		return cfg, fmt.Errorf("ENTRY_JWT_AUDIENCE is required")
	}

	return cfg, nil
}

// getEnv retrieves an environment variable value, returning a fallback if not
// set or empty.
func getEnv(key, fallback string) string {
	if v, exists := os.LookupEnv(key); exists && v != "" {
		return v
	}
	return fallback
}

// getDuration parses a duration variable, accepting either a Go duration
// string ("2s") or a plain number of seconds.
func getDuration(key string, fallback time.Duration) time.Duration {
	v, exists := os.LookupEnv(key)
	if !exists || v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
