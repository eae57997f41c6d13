package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultUserAgent is the desktop Chrome UA every browsing context presents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	Cache     CacheConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Batch     BatchConfig
	CORS      CORSConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 3001
	Mode string // "debug", "release", "test"; default: "release"

	// ShutdownTimeout bounds how long in-flight requests may drain.
	ShutdownTimeout time.Duration // default: 10s
}

// BrowserConfig controls the shared Rod browser process.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in containers).
	NoSandbox bool // default: true

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is an optional upstream proxy for all browser traffic.
	Proxy string

	// WindowWidth and WindowHeight size the browser window.
	WindowWidth  int // default: 1920
	WindowHeight int // default: 1080
}

// ScraperConfig controls the per-source scrape pipeline.
type ScraperConfig struct {
	// NavigationTimeout bounds navigation plus the network-idle wait.
	NavigationTimeout time.Duration // default: 30s

	// ConsentTimeout is how long to look for a cookie banner.
	ConsentTimeout time.Duration // default: 5s

	// ReadyTimeout is how long to wait for the first listing item.
	ReadyTimeout time.Duration // default: 10s

	// NetworkIdle is the quiet period that counts as "network idle".
	NetworkIdle time.Duration // default: 500ms

	// IdleStrategy is "network" (request idle) or "dom" (DOM stable).
	IdleStrategy string // default: "network"

	UserAgent      string
	AcceptLanguage string // default: "de-DE,de;q=0.9,en;q=0.8"
	ViewportWidth  int    // default: 1920
	ViewportHeight int    // default: 1080

	// BlockedResourceTypes lists sub-resource types aborted in every context.
	// default: ["Image", "Stylesheet", "Font"]
	BlockedResourceTypes []string

	// BlockTrackers aborts requests to well-known ad and analytics hosts.
	BlockTrackers bool // default: false

	// Stealth injects go-rod/stealth evasions into every context.
	Stealth bool // default: false
}

// CacheConfig controls the search result cache.
type CacheConfig struct {
	// TTL is how long a search report stays cached. 0 disables caching.
	TTL time.Duration // default: 10m

	// MaxEntries caps the in-memory cache.
	MaxEntries int // default: 500

	// RedisAddr switches the cache to Redis when non-empty.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false

	APIKeys []string
}

// RateLimitConfig controls per-identity rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per identity.
	RequestsPerSecond float64 // default: 2

	// Burst is the maximum burst size per identity.
	Burst int // default: 5
}

// BatchConfig controls batch search jobs.
type BatchConfig struct {
	MaxQueries  int // default: 20
	Concurrency int // default: 2

	// JobTTL is how long finished jobs stay queryable.
	JobTTL time.Duration // default: 1h
}

// CORSConfig controls cross-origin access to the API.
type CORSConfig struct {
	AllowedOrigins []string // default: ["*"]
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json", "text" (colored) or "plain"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
// A .env file (BASKET_ENV_FILE, default ".env") is loaded first if present;
// variables already set in the environment win.
func Load() *Config {
	loadEnvFile(envOr("BASKET_ENV_FILE", ".env"))

	return &Config{
		Server: ServerConfig{
			Host:            envOr("BASKET_HOST", "0.0.0.0"),
			Port:            envIntOr("BASKET_PORT", envIntOr("PORT", 3001)),
			Mode:            envOr("BASKET_MODE", "release"),
			ShutdownTimeout: envDurationOr("BASKET_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Browser: BrowserConfig{
			Headless:     envBoolOr("BASKET_HEADLESS", true),
			NoSandbox:    envBoolOr("BASKET_NO_SANDBOX", true),
			BrowserBin:   os.Getenv("BASKET_BROWSER_BIN"),
			Proxy:        os.Getenv("BASKET_PROXY"),
			WindowWidth:  envIntOr("BASKET_WINDOW_WIDTH", 1920),
			WindowHeight: envIntOr("BASKET_WINDOW_HEIGHT", 1080),
		},
		Scraper: ScraperConfig{
			NavigationTimeout: envDurationOr("BASKET_NAV_TIMEOUT", 30*time.Second),
			ConsentTimeout:    envDurationOr("BASKET_CONSENT_TIMEOUT", 5*time.Second),
			ReadyTimeout:      envDurationOr("BASKET_READY_TIMEOUT", 10*time.Second),
			NetworkIdle:       envDurationOr("BASKET_NETWORK_IDLE", 500*time.Millisecond),
			IdleStrategy:      envOr("BASKET_IDLE_STRATEGY", "network"),
			UserAgent:         envOr("BASKET_USER_AGENT", DefaultUserAgent),
			AcceptLanguage:    envOr("BASKET_ACCEPT_LANGUAGE", "de-DE,de;q=0.9,en;q=0.8"),
			ViewportWidth:     envIntOr("BASKET_VIEWPORT_WIDTH", 1920),
			ViewportHeight:    envIntOr("BASKET_VIEWPORT_HEIGHT", 1080),
			BlockedResourceTypes: envSliceOr("BASKET_BLOCKED_RESOURCES", []string{
				"Image", "Stylesheet", "Font",
			}),
			BlockTrackers: envBoolOr("BASKET_BLOCK_TRACKERS", false),
			Stealth:       envBoolOr("BASKET_STEALTH", false),
		},
		Cache: CacheConfig{
			TTL:           envDurationOr("BASKET_CACHE_TTL", 10*time.Minute),
			MaxEntries:    envIntOr("BASKET_CACHE_MAX_ENTRIES", 500),
			RedisAddr:     os.Getenv("BASKET_REDIS_ADDR"),
			RedisPassword: os.Getenv("BASKET_REDIS_PASSWORD"),
			RedisDB:       envIntOr("BASKET_REDIS_DB", 0),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("BASKET_AUTH_ENABLED", false),
			APIKeys: envSliceOr("BASKET_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("BASKET_RATE_RPS", 2.0),
			Burst:             envIntOr("BASKET_RATE_BURST", 5),
		},
		Batch: BatchConfig{
			MaxQueries:  envIntOr("BASKET_BATCH_MAX_QUERIES", 20),
			Concurrency: envIntOr("BASKET_BATCH_CONCURRENCY", 2),
			JobTTL:      envDurationOr("BASKET_BATCH_JOB_TTL", time.Hour),
		},
		CORS: CORSConfig{
			AllowedOrigins: envSliceOr("BASKET_CORS_ORIGINS", []string{"*"}),
		},
		Log: LogConfig{
			Level:  envOr("BASKET_LOG_LEVEL", "info"),
			Format: envOr("BASKET_LOG_FORMAT", "json"),
		},
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Scraper.NavigationTimeout <= 0 {
		errs = append(errs, fmt.Errorf("BASKET_NAV_TIMEOUT must be positive"))
	}
	if c.Scraper.ConsentTimeout <= 0 {
		errs = append(errs, fmt.Errorf("BASKET_CONSENT_TIMEOUT must be positive"))
	}
	if c.Scraper.ReadyTimeout <= 0 {
		errs = append(errs, fmt.Errorf("BASKET_READY_TIMEOUT must be positive"))
	}
	if c.Scraper.ViewportWidth <= 0 || c.Scraper.ViewportHeight <= 0 {
		errs = append(errs, fmt.Errorf("viewport must be positive, got %dx%d",
			c.Scraper.ViewportWidth, c.Scraper.ViewportHeight))
	}
	if c.Scraper.IdleStrategy != "network" && c.Scraper.IdleStrategy != "dom" {
		errs = append(errs, fmt.Errorf("BASKET_IDLE_STRATEGY must be network or dom, got %q", c.Scraper.IdleStrategy))
	}
	if c.Batch.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("BASKET_BATCH_CONCURRENCY must be at least 1"))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, fmt.Errorf("BASKET_CACHE_TTL must not be negative"))
	}
	return errors.Join(errs...)
}

func loadEnvFile(path string) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	// godotenv.Load never overrides variables that are already set.
	_ = godotenv.Load(path)
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
