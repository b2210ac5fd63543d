package config

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Config holds the service settings read from the environment.
type Config struct {
	StorageConnectionString string
	BoardTable              string
	UsersTable              string
	BoardEventsQueue        string

	RedisConnectionString string
	CacheTTL              time.Duration
	DeduperTTL            time.Duration

	LocalAuthSecret string
	TokenTTL        time.Duration
	Auth0Domain     string
	Auth0Audience   string
	JWKSCacheTTL    time.Duration

	SummaryURL     string
	SummaryKey     string
	SummaryModel   string
	SummaryTimeout time.Duration

	Port      string
	Debug     bool
	LogFormat string
	Env       string
}

// LoadEnvFile loads a .env file from the working directory unless
// APP_ENV=production. Variables already set take precedence.
func LoadEnvFile() error {
	if os.Getenv("APP_ENV") == "production" {
		return nil
	}
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Load reads and validates the full service configuration.
func Load() (*Config, error) {
	cfg, err := LoadStorage()
	if err != nil {
		return nil, err
	}
	if (cfg.Auth0Domain == "") != (cfg.Auth0Audience == "") {
		return nil, fmt.Errorf("AUTH0_DOMAIN and AUTH0_AUDIENCE must be set together")
	}
	if cfg.LocalAuthSecret == "" && cfg.Auth0Domain == "" {
		return nil, fmt.Errorf("missing LOCAL_AUTH_SHARED_SECRET (or Auth0 config)")
	}
	return cfg, nil
}

// LoadStorage reads the configuration requiring only the storage settings.
func LoadStorage() (*Config, error) {
	if err := LoadEnvFile(); err != nil {
		return nil, err
	}

	cfg := &Config{
		StorageConnectionString: os.Getenv("STORAGE_CONNECTION_STRING"),
		BoardTable:              getenv("BOARD_TABLE", "board"),
		UsersTable:              getenv("USERS_TABLE", "users"),
		BoardEventsQueue:        os.Getenv("BOARD_EVENTS_QUEUE"),
		RedisConnectionString:   os.Getenv("REDIS_CONNECTION_STRING"),
		LocalAuthSecret:         os.Getenv("LOCAL_AUTH_SHARED_SECRET"),
		Auth0Domain:             os.Getenv("AUTH0_DOMAIN"),
		Auth0Audience:           os.Getenv("AUTH0_AUDIENCE"),
		SummaryURL:              os.Getenv("SUMMARY_API_URL"),
		SummaryKey:              os.Getenv("SUMMARY_API_KEY"),
		SummaryModel:            getenv("SUMMARY_MODEL", "gpt-4o-mini"),
		Port:                    getenv("PORT", "8080"),
		LogFormat:               os.Getenv("LOG_FORMAT"),
		Env:                     os.Getenv("APP_ENV"),
	}
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil {
		cfg.Debug = dbg
	}

	durations := []struct {
		name string
		dst  *time.Duration
		def  time.Duration
	}{
		{"CACHE_TTL", &cfg.CacheTTL, 5 * time.Minute},
		{"DEDUPER_TTL", &cfg.DeduperTTL, 24 * time.Hour},
		{"TOKEN_TTL", &cfg.TokenTTL, 24 * time.Hour},
		{"JWKS_CACHE_TTL", &cfg.JWKSCacheTTL, 15 * time.Minute},
		{"SUMMARY_TIMEOUT", &cfg.SummaryTimeout, 30 * time.Second},
	}
	for _, d := range durations {
		v, err := duration(d.name, d.def)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}

	if cfg.StorageConnectionString == "" {
		return nil, fmt.Errorf("missing STORAGE_CONNECTION_STRING")
	}
	return cfg, nil
}

// ConfigureLogging applies the log level and format.
func (c *Config) ConfigureLogging() {
	if c.Debug {
		log.SetLevel(log.DebugLevel)
	}
	if strings.EqualFold(c.LogFormat, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	}
}

// RedisOptions parses the Redis connection string. Both redis:// URLs and
// the "host:port,password=...,ssl=true" form are accepted. It returns nil
// when no Redis is configured.
func (c *Config) RedisOptions() *redis.Options {
	return ParseRedis(c.RedisConnectionString)
}

// ParseRedis parses a Redis connection string; see Config.RedisOptions.
func ParseRedis(conn string) *redis.Options {
	if conn == "" {
		return nil
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts
}

func getenv(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func duration(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return d, nil
}
