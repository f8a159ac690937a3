// Package config loads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	BotToken          string        `env:"BOT_TOKEN,required=true"`
	AdminIDs          string        `env:"ADMIN_IDS"`
	DataDir           string        `env:"DATA_DIR,default=data"`
	ChatLogsDir       string        `env:"CHAT_LOGS_DIR,default=chat_logs"`
	SnapshotInterval  time.Duration `env:"SNAPSHOT_INTERVAL,default=5m"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,default=60s"`
	AllowedMissed     int           `env:"ALLOWED_MISSED_BEATS,default=3"`
	HTTPAddr          string        `env:"HTTP_ADDR,default=:8080"`
	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AdminAPIKey       string        `env:"ADMIN_API_KEY,required=true"`
	LogLevel          string        `env:"LOG_LEVEL,default=INFO"`
}

// Load reads .env if present, then the process environment. A missing .env
// file is not an error: production deployments set real variables.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("reading environment: %w", err)
	}
	return cfg, nil
}

// Admins parses the comma-separated ADMIN_IDS list. Blank entries are
// ignored; a malformed id fails loudly rather than silently dropping an
// administrator.
func (c Config) Admins() ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(c.AdminIDs, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ADMIN_IDS entry %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SlogLevel maps the LOG_LEVEL string onto a slog level, defaulting to Info
// for anything unrecognized.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
