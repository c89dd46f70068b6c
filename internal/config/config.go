package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr          string
	DataDir             string
	WatermarkPath       string
	FFmpegPath          string
	FFprobePath         string
	WorkerCount         int
	LogLevel            string
	MaxUploadBytes      int64
	AccessTokenHash     string // bcrypt hash; empty disables auth
	VideoTimeoutSecs    int    // 0 means ffmpeg may run indefinitely
	OutputTTLMins       int
	CleanupIntervalMins int
	RateLimitPerMin     int
	TrustProxy          bool // honour X-Forwarded-For / X-Real-IP
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first; variables already set in the environment win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ListenAddr:          envOr("LISTEN_ADDR", ":8080"),
		DataDir:             envOr("DATA_DIR", "./data"),
		WatermarkPath:       envOr("WATERMARK_PATH", "watermark.png"),
		FFmpegPath:          envOr("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:         envOr("FFPROBE_PATH", "ffprobe"),
		WorkerCount:         envIntOr("WORKER_COUNT", 2),
		LogLevel:            envOr("LOG_LEVEL", "info"),
		MaxUploadBytes:      envInt64Or("MAX_UPLOAD_BYTES", 512*1024*1024),
		AccessTokenHash:     os.Getenv("ACCESS_TOKEN_HASH"),
		VideoTimeoutSecs:    envIntOr("VIDEO_TIMEOUT_SECS", 0),
		OutputTTLMins:       envIntOr("OUTPUT_TTL_MINS", 60),
		CleanupIntervalMins: envIntOr("CLEANUP_INTERVAL_MINS", 10),
		RateLimitPerMin:     envIntOr("RATE_LIMIT_PER_MIN", 30),
		TrustProxy:          envBoolOr("TRUST_PROXY", false),
	}
}

// SlogLevel maps LOG_LEVEL onto a slog level. Unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Logger returns a text logger on stderr at the configured level.
func (c *Config) Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: c.SlogLevel()}))
}

func (c *Config) VideoTimeout() time.Duration {
	if c.VideoTimeoutSecs <= 0 {
		return 0
	}
	return time.Duration(c.VideoTimeoutSecs) * time.Second
}

func (c *Config) OutputTTL() time.Duration {
	return time.Duration(c.OutputTTLMins) * time.Minute
}

func (c *Config) CleanupInterval() time.Duration {
	if c.CleanupIntervalMins <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.CleanupIntervalMins) * time.Minute
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64Or(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
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
