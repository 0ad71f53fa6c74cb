// Package config は環境変数からのアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"time"
)

// セッションストアのバックエンド種別。
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Discord
	BotToken      string
	CommandPrefix string

	// Scope filter（未設定の場合はエンジンは一切発火しない）
	TargetGuildID   string
	TargetChannelID string

	// Authorization filter
	PrivilegedRoleID string

	// Session store
	SessionBackend string
	DatabaseURL    string
	RedisURL       string

	// Gateway / REST（テスト時に差し替える）
	GatewayURL string
	APIBaseURL string

	// HTTP keep-alive server
	ServerPort string

	// Logging
	LogFile string

	// REST
	RESTTimeout time.Duration
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.BotToken = os.Getenv("BOT_TOKEN")
	if cfg.BotToken == "" {
		missing = append(missing, "BOT_TOKEN")
	}

	cfg.SessionBackend = getEnvString("SESSION_BACKEND", BackendPostgres)
	switch cfg.SessionBackend {
	case BackendPostgres:
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case BackendRedis:
		cfg.RedisURL = os.Getenv("REDIS_URL")
		if cfg.RedisURL == "" {
			missing = append(missing, "REDIS_URL")
		}
	default:
		return nil, fmt.Errorf("unknown SESSION_BACKEND: %q", cfg.SessionBackend)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	// スコープフィルタは未設定を許容する（安全側デフォルト: 発火しない）
	cfg.TargetGuildID = os.Getenv("TARGET_GUILD_ID")
	cfg.TargetChannelID = os.Getenv("TARGET_CHANNEL_ID")
	cfg.PrivilegedRoleID = os.Getenv("PRIVILEGED_ROLE_ID")
	cfg.CommandPrefix = getEnvString("COMMAND_PREFIX", "!")
	cfg.GatewayURL = getEnvString("GATEWAY_URL", "wss://gateway.discord.gg/?v=10&encoding=json")
	cfg.APIBaseURL = getEnvString("API_BASE_URL", "https://discord.com/api/v10")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogFile = getEnvString("LOG_FILE", "")
	cfg.RESTTimeout = getEnvDuration("REST_TIMEOUT", 10*time.Second)

	return cfg, nil
}

// ScopeConfigured はguild/channelのスコープフィルタが両方設定されているかを返す。
// 片方でも未設定ならエンジンは発火してはならない。
func (c *Config) ScopeConfigured() bool {
	return c.TargetGuildID != "" && c.TargetChannelID != ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
