package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type RateLimitConfig struct {
	Capacity       int
	RefillInterval time.Duration
	TTL            time.Duration
	Prefix         string
}

type Config struct {
	ListenAddr string
	Prefix     string

	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseAnonKey    string
	SupabaseJWTSecret  string

	// DatabaseURL is an optional direct connection to the hosted database.
	// When empty, table operations go through the REST interface.
	DatabaseURL string

	UpstreamTimeout time.Duration
	MaxKeysPerUser  int
	DetectorURL     string

	LogLevel       string
	LogFormat      string
	MetricsEnabled bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RateLimit     RateLimitConfig
}

func LoadConfig() *Config {
	_ = godotenv.Load() // Load from .env if it exists, ignore error if not

	cfg := &Config{
		ListenAddr:         getEnv("AITECTOR_LISTEN_ADDR", ":8080"),
		Prefix:             getEnv("AITECTOR_PREFIX", "/api"),
		SupabaseURL:        firstEnv("NEXT_PUBLIC_SUPABASE_URL", "SUPABASE_URL"),
		SupabaseServiceKey: getEnv("SUPABASE_KEY", ""),
		SupabaseAnonKey:    firstEnv("NEXT_PUBLIC_SUPABASE_ANON_KEY", "SUPABASE_ANON_KEY"),
		SupabaseJWTSecret:  getEnv("SUPABASE_JWT_SECRET", ""),
		DatabaseURL:        getEnv("SUPABASE_DB_URL", ""),
		UpstreamTimeout:    getEnvDuration("AITECTOR_UPSTREAM_TIMEOUT", 10*time.Second),
		MaxKeysPerUser:     getEnvInt("AITECTOR_MAX_KEYS", 10),
		DetectorURL:        getEnv("AITECTOR_DETECTOR_URL", ""),
		LogLevel:           getEnv("AITECTOR_LOG_LEVEL", "info"),
		LogFormat:          getEnv("AITECTOR_LOG_FORMAT", "text"),
		MetricsEnabled:     getEnvBool("AITECTOR_METRICS_ENABLED", true),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		RateLimit: RateLimitConfig{
			Capacity:       getEnvInt("AITECTOR_RATE_LIMIT_CAPACITY", 100),
			RefillInterval: getEnvDuration("AITECTOR_RATE_LIMIT_REFILL_INTERVAL", 600*time.Millisecond),
			TTL:            getEnvDuration("AITECTOR_RATE_LIMIT_TTL", 10*time.Minute),
			Prefix:         getEnv("AITECTOR_RATE_LIMIT_PREFIX", "rl"),
		},
	}

	if cfg.RateLimit.Capacity < 1 {
		cfg.RateLimit.Capacity = 1
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}
	if minTTL := 5 * cfg.RateLimit.RefillInterval; cfg.RateLimit.TTL < minTTL {
		cfg.RateLimit.TTL = minTTL
	}

	return cfg
}

// Misconfigured reports whether the privileged credentials every API route
// depends on are missing.
func (c *Config) Misconfigured() bool {
	return c.SupabaseURL == "" || c.SupabaseServiceKey == ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// firstEnv returns the first non-empty value among keys.
func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}

func getEnvInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
