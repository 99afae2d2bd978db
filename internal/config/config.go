package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tototycoon/internal/game"
)

type APIConfig struct {
	Addr               string
	DatabaseURL        string
	SupabaseURL        string
	SupabaseServiceKey string
	// BotToken is the Telegram bot token. It signs init data and sends
	// referral notifications; empty disables both.
	BotToken         string
	DiscordBotToken  string
	DiscordChannelID string
	ReferralBonus    int64
	AutoMigrate      bool
	InitDataMaxAge   time.Duration
	RequestTimeout   time.Duration
}

type ClientConfig struct {
	APIBaseURL      string
	SupabaseURL     string
	SupabaseAnonKey string
	CacheBackend    string
	CacheDir        string
	RedisURL        string
	CacheTTL        time.Duration
	SaveDebounce    time.Duration
	CallTimeout     time.Duration
	BotUsername     string
	InitData        string
	LaunchURL       string
}

// LoadDotEnv reads .env files into the environment without overriding
// variables that are already set. Missing files are not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("TOTO_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:               addr,
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SupabaseURL:        strings.TrimRight(strings.TrimSpace(os.Getenv("SUPABASE_URL")), "/"),
		SupabaseServiceKey: strings.TrimSpace(os.Getenv("SUPABASE_SERVICE_ROLE_KEY")),
		BotToken:           strings.TrimSpace(os.Getenv("BOT_TOKEN")),
		DiscordBotToken:    strings.TrimSpace(os.Getenv("DISCORD_BOT_TOKEN")),
		DiscordChannelID:   strings.TrimSpace(os.Getenv("DISCORD_CHANNEL_ID")),
		ReferralBonus:      envInt64Default("TOTO_REFERRAL_BONUS", game.ReferralBonus),
		AutoMigrate:        envBoolDefault("TOTO_AUTO_MIGRATE", true),
		InitDataMaxAge:     envDurationDefault("TOTO_INIT_DATA_MAX_AGE", 0),
		RequestTimeout:     envDurationDefault("TOTO_REQUEST_TIMEOUT", 30*time.Second),
	}
	if cfg.DatabaseURL == "" && (cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "") {
		return cfg, fmt.Errorf("DATABASE_URL or SUPABASE_URL with SUPABASE_SERVICE_ROLE_KEY is required")
	}
	if cfg.ReferralBonus <= 0 || cfg.ReferralBonus > game.MaxReferralBonus {
		return cfg, fmt.Errorf("TOTO_REFERRAL_BONUS must be between 1 and %d", game.MaxReferralBonus)
	}
	if (cfg.DiscordBotToken == "") != (cfg.DiscordChannelID == "") {
		return cfg, fmt.Errorf("DISCORD_BOT_TOKEN and DISCORD_CHANNEL_ID must be set together")
	}
	return cfg, nil
}

func LoadClientFromEnv() (ClientConfig, error) {
	cfg := ClientConfig{
		APIBaseURL:      strings.TrimRight(envDefault("TOTO_API_BASE_URL", "http://localhost:8080"), "/"),
		SupabaseURL:     strings.TrimRight(strings.TrimSpace(os.Getenv("SUPABASE_URL")), "/"),
		SupabaseAnonKey: strings.TrimSpace(os.Getenv("SUPABASE_ANON_KEY")),
		CacheBackend:    strings.ToLower(envDefault("TOTO_CACHE_BACKEND", "file")),
		CacheDir:        strings.TrimSpace(os.Getenv("TOTO_CACHE_DIR")),
		RedisURL:        envDefault("REDIS_URL", "redis://localhost:6379/0"),
		CacheTTL:        envDurationDefault("TOTO_CACHE_TTL", 0),
		SaveDebounce:    envDurationDefault("TOTO_SAVE_DEBOUNCE", time.Second),
		CallTimeout:     envDurationDefault("TOTO_CALL_TIMEOUT", 10*time.Second),
		BotUsername:     envDefault("TOTO_BOT_USERNAME", "TotoTycoonBot"),
		InitData:        strings.TrimSpace(os.Getenv("TOTO_INIT_DATA")),
		LaunchURL:       strings.TrimSpace(os.Getenv("TOTO_LAUNCH_URL")),
	}
	switch cfg.CacheBackend {
	case "file", "redis", "none":
	default:
		return cfg, fmt.Errorf("TOTO_CACHE_BACKEND must be file, redis or none, got %q", cfg.CacheBackend)
	}
	return cfg, nil
}

// RemoteConfigured reports whether the client can reach a remote store.
func (c ClientConfig) RemoteConfigured() bool {
	return c.SupabaseURL != "" && c.SupabaseAnonKey != ""
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envInt64Default(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
