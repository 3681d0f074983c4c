package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ストアとイベントソースの選択肢
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	EventSourceMemory = "memory"
	EventSourceRedis  = "redis"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Store
	StoreDriver  string
	DatabaseURL  string
	StoreTimeout time.Duration

	// Identity events
	EventSource      string
	RedisURL         string
	RedisChannel     string
	RedisSnapshotKey string
	IngressToken     string

	// Debug
	DebugToken     string
	RateLimitDebug int

	// Logging
	LogLevel string

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合、または選択肢が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.StoreDriver = getEnvString("STORE_DRIVER", StoreDriverPostgres)
	switch cfg.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q (want %s or %s)", cfg.StoreDriver, StoreDriverPostgres, StoreDriverMemory)
	}

	cfg.EventSource = getEnvString("EVENT_SOURCE", EventSourceMemory)
	switch cfg.EventSource {
	case EventSourceMemory, EventSourceRedis:
	default:
		return nil, fmt.Errorf("unknown EVENT_SOURCE %q (want %s or %s)", cfg.EventSource, EventSourceMemory, EventSourceRedis)
	}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" && cfg.StoreDriver == StoreDriverPostgres {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" && cfg.EventSource == EventSourceRedis {
		missing = append(missing, "REDIS_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.StoreTimeout = getEnvDuration("STORE_TIMEOUT", 10*time.Second)
	cfg.RedisChannel = getEnvString("REDIS_CHANNEL", "identity:events")
	cfg.RedisSnapshotKey = getEnvString("REDIS_SNAPSHOT_KEY", "identity:current")
	cfg.IngressToken = getEnvString("INGRESS_TOKEN", "")
	cfg.DebugToken = getEnvString("DEBUG_TOKEN", "")
	cfg.RateLimitDebug = getEnvInt("RATE_LIMIT_DEBUG", 30)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

// IngressEnabled はHTTPのイベント受付ルートを公開するかどうかを返す。
// 受付は共有シークレットが設定されている場合のみ有効になる。
func (c *Config) IngressEnabled() bool {
	return c.IngressToken != ""
}

// DebugEnabled はIntrospectorのHTTPルートを公開するかどうかを返す。
func (c *Config) DebugEnabled() bool {
	return c.DebugToken != ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
