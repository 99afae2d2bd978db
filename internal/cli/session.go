package cli

import (
	"context"
	"log/slog"
	"strings"

	"tototycoon/internal/cache"
	"tototycoon/internal/config"
	"tototycoon/internal/identity"
	"tototycoon/internal/store"
	"tototycoon/internal/store/supabase"
	"tototycoon/internal/syncq"
)

// SessionOptions override the launch context from flags.
type SessionOptions struct {
	InitData  string
	LaunchURL string
	Logger    *slog.Logger
}

// Session is one client run: a bootstrapped coordinator plus whatever needs
// closing when the run ends.
type Session struct {
	*syncq.Coordinator
	closers []func() error
}

// OpenSession wires the coordinator from configuration and bootstraps it.
func OpenSession(ctx context.Context, cfg config.ClientConfig, opts SessionOptions) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Session{}

	local, closeCache := openCache(ctx, cfg, log)
	if closeCache != nil {
		s.closers = append(s.closers, closeCache)
	}

	var remote store.Store
	if cfg.RemoteConfigured() {
		remote = supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseAnonKey)
	} else {
		log.Warn("SUPABASE_URL/SUPABASE_ANON_KEY not set, progress stays on this device")
	}

	s.Coordinator = syncq.New(syncq.Deps{
		Provider:    hostProvider(firstNonEmpty(opts.InitData, cfg.InitData), log),
		LaunchURL:   firstNonEmpty(opts.LaunchURL, cfg.LaunchURL),
		Store:       remote,
		Registrar:   NewClient(cfg.APIBaseURL),
		Cache:       local,
		Logger:      log,
		Debounce:    cfg.SaveDebounce,
		CallTimeout: cfg.CallTimeout,
	})
	s.Bootstrap(ctx)
	return s, nil
}

// Close saves pending progress and releases resources.
func (s *Session) Close(ctx context.Context) error {
	err := s.Coordinator.Close(ctx)
	for _, c := range s.closers {
		_ = c()
	}
	return err
}

func openCache(ctx context.Context, cfg config.ClientConfig, log *slog.Logger) (*cache.Local, func() error) {
	switch cfg.CacheBackend {
	case "none":
		return nil, nil
	case "redis":
		rb, err := cache.NewRedisBackend(ctx, cfg.RedisURL, cfg.CacheTTL)
		if err == nil {
			return cache.New(rb, log), rb.Close
		}
		log.Warn("redis cache unavailable, using file cache", "err", err)
	}
	fb, err := cache.NewFileBackend(cfg.CacheDir)
	if err != nil {
		log.Warn("file cache unavailable", "err", err)
		return nil, nil
	}
	return cache.New(fb, log), nil
}

func hostProvider(initData string, log *slog.Logger) identity.Provider {
	if strings.TrimSpace(initData) == "" {
		return identity.NoHost{}
	}
	p, err := identity.NewInitDataProvider(initData)
	if err != nil {
		log.Warn("ignoring unreadable init data, playing as guest", "err", err)
		return identity.NoHost{}
	}
	return p
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
