// Package config loads console configuration from environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kimhsiao/fitnix/console/internal/logging"
)

const (
	DefaultAPIURL        = "https://fitnix-backend.onrender.com/api"
	DefaultDataDir       = "./data"
	DefaultListenAddr    = "127.0.0.1:8090"
	DefaultSyncInterval  = 5 * time.Minute
	DefaultProbeInterval = 15 * time.Second

	SessionBackendSQLite = "sqlite"
	SessionBackendRedis  = "redis"
)

// DefaultCORSOrigins are the local dev servers allowed to call the control
// surface from a browser.
var DefaultCORSOrigins = []string{"http://localhost:5173", "http://localhost:3000"}

// Config holds all console configuration.
type Config struct {
	APIURL         string
	DataDir        string
	ListenAddr     string
	LogLevel       logging.LogLevel
	SessionBackend string
	RedisAddr      string
	RedisPassword  string
	SessionKey     string
	SyncInterval   time.Duration
	ProbeInterval  time.Duration
	HTTPTimeout    time.Duration
	AuthzPhrases   []string
	CORSOrigins    []string
}

// Load reads the configuration from the environment, applying defaults.
func Load() *Config {
	cfg := &Config{
		APIURL:         strings.TrimRight(getenv("FITNIX_API_URL", DefaultAPIURL), "/"),
		DataDir:        getenv("FITNIX_DATA_DIR", DefaultDataDir),
		ListenAddr:     getenv("FITNIX_LISTEN_ADDR", DefaultListenAddr),
		LogLevel:       logging.ParseLevel(getenv("FITNIX_LOG_LEVEL", "info")),
		SessionBackend: strings.ToLower(getenv("FITNIX_SESSION_BACKEND", SessionBackendSQLite)),
		RedisAddr:      getenv("FITNIX_REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getenv("FITNIX_REDIS_PASSWORD", ""),
		SessionKey:     getenv("FITNIX_SESSION_KEY", ""),
		SyncInterval:   getenvInterval("FITNIX_SYNC_INTERVAL", DefaultSyncInterval),
		ProbeInterval:  getenvInterval("FITNIX_PROBE_INTERVAL", DefaultProbeInterval),
		HTTPTimeout:    getenvDuration("FITNIX_HTTP_TIMEOUT", 0),
		AuthzPhrases:   getenvList("FITNIX_AUTHZ_PHRASES"),
		CORSOrigins:    getenvList("FITNIX_CORS_ORIGINS"),
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = DefaultCORSOrigins
	}
	return cfg
}

// Validate reports configuration that cannot be used to start the console.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("invalid FITNIX_API_URL %q: %w", c.APIURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("FITNIX_API_URL must be http or https, got %q", c.APIURL)
	}
	if u.Host == "" {
		return fmt.Errorf("FITNIX_API_URL has no host: %q", c.APIURL)
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("FITNIX_SYNC_INTERVAL must be positive, got %s", c.SyncInterval)
	}
	if c.ProbeInterval < 0 {
		return fmt.Errorf("FITNIX_PROBE_INTERVAL must not be negative, got %s", c.ProbeInterval)
	}
	switch c.SessionBackend {
	case SessionBackendSQLite, SessionBackendRedis:
	default:
		return fmt.Errorf("unknown FITNIX_SESSION_BACKEND %q", c.SessionBackend)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		logging.Warn("Invalid duration, using default",
			map[string]interface{}{"key": key, "value": v, "default": fallback.String()})
		return fallback
	}
	return d
}

// getenvInterval is getenvDuration for ticker periods, which must be positive.
func getenvInterval(key string, fallback time.Duration) time.Duration {
	d := getenvDuration(key, fallback)
	if d <= 0 {
		logging.Warn("Interval must be positive, using default",
			map[string]interface{}{"key": key, "value": os.Getenv(key), "default": fallback.String()})
		return fallback
	}
	return d
}

// getenvList splits a comma-separated variable, dropping empty entries.
func getenvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
