// Package config loads server settings from the environment (and an optional .env file).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

// Config holds every runtime setting of the server.
type Config struct {
	// --- HTTP ---
	Port           string `envconfig:"PORT" default:"5200"`
	RealtimeAddr   string `envconfig:"REALTIME_ADDR" default:":5201"`
	AllowedOrigins string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`

	// --- Storage ---
	// memory keeps everything in-process; only useful for local play-testing.
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	RedisURL    string `envconfig:"REDIS_URL"`

	// --- Session ---
	SessionSecret string        `envconfig:"SESSION_SECRET" required:"true"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"24h"`
	SessionCookie string        `envconfig:"SESSION_COOKIE" default:"resistance_session"`
	CookieSecure  bool          `envconfig:"COOKIE_SECURE" default:"true"`

	// matchmaking service -> /internal routes
	GameServiceToken string `envconfig:"GAME_SERVICE_TOKEN" required:"true"`

	// --- Rate limiting ---
	IPRateLimitRequests int           `envconfig:"IP_RATE_LIMIT_REQUESTS" default:"30"`
	IPRateLimitWindow   time.Duration `envconfig:"IP_RATE_LIMIT_WINDOW" default:"1m"`
	SyncMinInterval     time.Duration `envconfig:"SYNC_MIN_INTERVAL" default:"2s"`

	// --- Game rules ---
	SyncMaxDeltaXP        int64         `envconfig:"SYNC_MAX_DELTA_XP" default:"5000"`
	MissionMinDuration    time.Duration `envconfig:"MISSION_MIN_DURATION" default:"30s"`
	ForfeitWindow         time.Duration `envconfig:"FORFEIT_WINDOW" default:"25s"`
	TurnTimeout           time.Duration `envconfig:"TURN_TIMEOUT" default:"30s"`
	TimeoutPenaltyPercent int           `envconfig:"TIMEOUT_PENALTY_PERCENT" default:"10"`
	ValidStreamersRaw     string        `envconfig:"VALID_STREAMERS" default:"maxis,hackerman,cipher-queen,null-prophet,static-saint"`
	ValidStreamers        []string      `envconfig:"-"`

	// --- Realtime ---
	RealtimeMaxConnPerIP int     `envconfig:"REALTIME_MAX_CONN_PER_IP" default:"8"`
	RealtimeMsgRate      float64 `envconfig:"REALTIME_MSG_RATE" default:"10"`

	// --- Archive ---
	ArchiveEnabled  bool          `envconfig:"ARCHIVE_ENABLED" default:"false"`
	ArchiveAfter    time.Duration `envconfig:"ARCHIVE_AFTER" default:"168h"`
	ArchiveInterval time.Duration `envconfig:"ARCHIVE_INTERVAL" default:"1h"`
	R2AccountID     string        `envconfig:"CLOUDFLARE_ACCOUNT_ID"`
	R2AccessKeyID   string        `envconfig:"R2_ACCESS_KEY_ID"`
	R2AccessSecret  string        `envconfig:"R2_ACCESS_KEY_SECRET"`
	R2Bucket        string        `envconfig:"R2_BUCKET_NAME"`

	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Origins returns ALLOWED_ORIGINS as a trimmed list.
func (c *Config) Origins() []string {
	return splitCSV(c.AllowedOrigins)
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("STORE_DRIVER must be postgres or memory, got %q", c.StoreDriver)
	}
	if len(c.SessionSecret) < 32 {
		return fmt.Errorf("SESSION_SECRET must be at least 32 bytes")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.IPRateLimitRequests <= 0 || c.IPRateLimitWindow <= 0 {
		return fmt.Errorf("IP_RATE_LIMIT_REQUESTS/IP_RATE_LIMIT_WINDOW must be > 0")
	}
	if c.SyncMaxDeltaXP <= 0 {
		return fmt.Errorf("SYNC_MAX_DELTA_XP must be > 0")
	}
	if c.TimeoutPenaltyPercent <= 0 || c.TimeoutPenaltyPercent > 100 {
		return fmt.Errorf("TIMEOUT_PENALTY_PERCENT must be in (0,100]")
	}
	if c.ForfeitWindow <= 0 || c.TurnTimeout <= 0 {
		return fmt.Errorf("FORFEIT_WINDOW and TURN_TIMEOUT must be > 0")
	}
	if len(c.ValidStreamers) == 0 {
		return fmt.Errorf("VALID_STREAMERS is empty")
	}
	if c.ArchiveEnabled && (c.R2AccountID == "" || c.R2Bucket == "") {
		return fmt.Errorf("ARCHIVE_ENABLED needs CLOUDFLARE_ACCOUNT_ID and R2_BUCKET_NAME")
	}
	return nil
}

// Load reads .env (if any) and the process environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found, reading environment variables directly")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.ValidStreamers = splitCSV(cfg.ValidStreamersRaw)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitCSV(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
