// README: Config loader with env defaults for HTTP, DB, Redis, sessions, and pricing.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type PricingConfig struct {
	// MinBasketSum is the smallest order total accepted.
	MinBasketSum float64
}

type Config struct {
	HTTP struct {
		Addr string
	}
	DB struct {
		// DSN empty disables snapshot persistence.
		DSN                string
		StatusSaveInterval time.Duration
	}
	Redis struct {
		Addr string
	}
	Session struct {
		TTL time.Duration
	}
	Pricing PricingConfig
	Maps    struct {
		// APIKey empty disables geocoding.
		APIKey string
	}
	Log struct {
		Level string
	}
}

// Load reads .env when present, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	cfg.HTTP.Addr = envOrDefault("CARTPOOL_HTTP_ADDR", ":8080")
	cfg.DB.DSN = envOrDefault("CARTPOOL_DB_DSN", "")
	cfg.DB.StatusSaveInterval = envOrDefaultDuration("CARTPOOL_STATUS_SAVE_INTERVAL", time.Minute)
	cfg.Redis.Addr = envOrDefault("CARTPOOL_REDIS_ADDR", "localhost:6379")
	cfg.Session.TTL = envOrDefaultDuration("CARTPOOL_SESSION_TTL", 30*time.Minute)
	cfg.Pricing.MinBasketSum = envOrDefaultFloat("CARTPOOL_MIN_BASKET_SUM", 13.0)
	cfg.Maps.APIKey = envOrDefault("GOOGLE_MAPS_API_KEY", "")
	cfg.Log.Level = envOrDefault("CARTPOOL_LOG_LEVEL", "info")
	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
