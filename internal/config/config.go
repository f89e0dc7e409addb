package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const minSecretLen = 32

// ErrConfig marks a fatal startup misconfiguration. The process must refuse
// to start rather than fall back to an insecure default.
var ErrConfig = errors.New("config: invalid configuration")

// Config carries everything the service needs, resolved once at startup and
// passed by injection. Business logic never reads the process environment.
type Config struct {
	HTTPAddr    string
	DatabaseURL string

	// Access and refresh tokens are signed with distinct secrets.
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	// RedisAddr is optional; when empty the school-status cache is disabled.
	RedisAddr     string
	RedisPassword string

	PoolMaxConns       int
	PoolAcquireTimeout time.Duration
}

// Load reads configuration from the environment and validates it. Any missing
// or too-weak secret is a hard error.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:           getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		AccessSecret:       []byte(strings.TrimSpace(os.Getenv("JWT_ACCESS_SECRET"))),
		RefreshSecret:      []byte(strings.TrimSpace(os.Getenv("JWT_REFRESH_SECRET"))),
		AccessTTL:          getenvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTTL:         getenvDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		PoolMaxConns:       getenvInt("POOL_MAX_CONNS", 10),
		PoolAcquireTimeout: getenvDuration("POOL_ACQUIRE_TIMEOUT", 2*time.Second),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the startup invariants: a database URL and two distinct
// signing secrets of at least 32 bytes.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("%w: DATABASE_URL is required", ErrConfig)
	}
	if len(c.AccessSecret) < minSecretLen {
		return fmt.Errorf("%w: JWT_ACCESS_SECRET must be at least %d bytes", ErrConfig, minSecretLen)
	}
	if len(c.RefreshSecret) < minSecretLen {
		return fmt.Errorf("%w: JWT_REFRESH_SECRET must be at least %d bytes", ErrConfig, minSecretLen)
	}
	if string(c.AccessSecret) == string(c.RefreshSecret) {
		return fmt.Errorf("%w: access and refresh secrets must differ", ErrConfig)
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return fmt.Errorf("%w: token TTLs must be positive", ErrConfig)
	}
	if c.PoolAcquireTimeout <= 0 {
		return fmt.Errorf("%w: POOL_ACQUIRE_TIMEOUT must be positive", ErrConfig)
	}
	return nil
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
