package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr          string
	DBPath        string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	PingInterval  time.Duration
	TypingTTL     time.Duration
	TokenTTL      time.Duration
	SendQueueSize int
	Debug         bool
}

func Load() *Config {
	// Missing .env is fine, env vars still apply.
	_ = godotenv.Load()

	cfg := &Config{
		Addr:          ":3215",
		DBPath:        "duochat.db",
		ReadTimeout:   120 * time.Second,
		WriteTimeout:  10 * time.Second,
		PingInterval:  30 * time.Second,
		TypingTTL:     2 * time.Second,
		TokenTTL:      30 * 24 * time.Hour,
		SendQueueSize: 64,
	}

	if addr := os.Getenv("DUOCHAT_ADDR"); addr != "" {
		cfg.Addr = addr
	}

	if dbPath := os.Getenv("DUOCHAT_DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	}

	if d, ok := envDuration("DUOCHAT_READ_TIMEOUT"); ok {
		cfg.ReadTimeout = d
	}

	if d, ok := envDuration("DUOCHAT_WRITE_TIMEOUT"); ok {
		cfg.WriteTimeout = d
	}

	if d, ok := envDuration("DUOCHAT_PING_INTERVAL"); ok {
		cfg.PingInterval = d
	}

	if d, ok := envDuration("DUOCHAT_TYPING_TTL"); ok {
		cfg.TypingTTL = d
	}

	if d, ok := envDuration("DUOCHAT_TOKEN_TTL"); ok {
		cfg.TokenTTL = d
	}

	if sizeStr := os.Getenv("DUOCHAT_SEND_QUEUE"); sizeStr != "" {
		if size, err := strconv.Atoi(sizeStr); err == nil && size > 0 {
			cfg.SendQueueSize = size
		}
	}

	if debug := os.Getenv("DUOCHAT_DEBUG"); debug == "1" || debug == "true" {
		cfg.Debug = true
	}

	return cfg
}

// envDuration reads a duration env var, accepting either a Go duration
// string ("30s") or a plain number of seconds.
func envDuration(key string) (time.Duration, bool) {
	val := os.Getenv(key)
	if val == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d, true
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}
