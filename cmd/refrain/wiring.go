package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/sydlexius/refrain/internal/cache"
	"github.com/sydlexius/refrain/internal/config"
	"github.com/sydlexius/refrain/internal/database"
	"github.com/sydlexius/refrain/internal/logging"
	"github.com/sydlexius/refrain/internal/match"
	"github.com/sydlexius/refrain/internal/pool"
	"github.com/sydlexius/refrain/internal/provider"
	"github.com/sydlexius/refrain/internal/provider/deezer"
	"github.com/sydlexius/refrain/internal/provider/musicbrainz"
	"github.com/sydlexius/refrain/internal/provider/spotify"
	"github.com/sydlexius/refrain/internal/provider/wikipedia"
)

func loggingConfig(cfg *config.Config) logging.Config {
	return logging.Config{
		Level:          cfg.Logging.Level,
		Format:         cfg.Logging.Format,
		FilePath:       cfg.Logging.FilePath,
		FileMaxSizeMB:  cfg.Logging.FileMaxSizeMB,
		FileMaxFiles:   cfg.Logging.FileMaxFiles,
		FileMaxAgeDays: cfg.Logging.FileMaxAgeDays,
	}
}

func poolConfig(cfg *config.Config) pool.Config {
	pc := cfg.Database.Pool
	return pool.Config{
		MinSize:           pc.MinSize,
		MaxSize:           pc.MaxSize,
		LeaseTimeout:      pc.LeaseTimeout,
		ConnectTimeout:    pc.ConnectTimeout,
		InitRetries:       pc.InitRetries,
		InitBaseDelay:     pc.InitBaseDelay,
		BackoffFactor:     pc.BackoffFactor,
		OpRetries:         pc.OpRetries,
		OpRetryDelay:      pc.OpRetryDelay,
		KeepaliveInterval: pc.KeepaliveInterval,
		ResetPause:        pc.ResetPause,
	}
}

// newPool builds the catalog pool. Every fresh handle is migrated before use.
func newPool(cfg *config.Config, logger *slog.Logger) *pool.Pool {
	opts := database.Options{
		Driver:         cfg.Database.Driver,
		Path:           cfg.Database.Path,
		DSN:            cfg.Database.DSN,
		SimpleProtocol: cfg.Database.SimpleProtocol,
		MaxOpenConns:   cfg.Database.Pool.MaxSize,
	}
	opener := func(ctx context.Context) (*sql.DB, error) {
		db, err := database.Open(ctx, opts)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(db, opts.Driver); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}
	return pool.New(poolConfig(cfg), opener, pool.WithLogger(logger))
}

func newClient(cfg *config.Config, logger *slog.Logger) *provider.Client {
	limiter := provider.NewRateLimiterMap()
	applyIntervals(limiter, cfg)

	opts := provider.DefaultClientOptions()
	cc := cfg.Client
	if cc.Timeout > 0 {
		opts.Timeout = cc.Timeout
	}
	if cc.ThrottleWait > 0 {
		opts.ThrottleWait = cc.ThrottleWait
	}
	if cc.MaxThrottleRetries > 0 {
		opts.MaxThrottleRetries = cc.MaxThrottleRetries
	}
	if cc.MaxTransientRetries >= 0 {
		opts.MaxTransientRetries = cc.MaxTransientRetries
	}
	if cc.TransientBackoff > 0 {
		opts.TransientBackoff = cc.TransientBackoff
	}
	return provider.NewClient(limiter, opts, logger)
}

// applyIntervals pushes per-source minimum intervals into the limiter. It
// is also called on config reload.
func applyIntervals(limiter *provider.RateLimiterMap, cfg *config.Config) {
	for _, name := range provider.AllProviderNames() {
		if sc, ok := cfg.Sources.ByName(string(name)); ok {
			limiter.SetInterval(name, sc.MinInterval)
		}
	}
}

// buildRegistry wraps each enabled adapter in a cached Resolver. Spotify is
// skipped when no client credentials are configured.
func buildRegistry(cfg *config.Config, client *provider.Client, store *cache.Store, logger *slog.Logger) *provider.Registry {
	reg := provider.NewRegistry()
	add := func(f provider.Fetcher) {
		reg.Register(provider.NewResolver(f, store, cfg.TTLFor(string(f.Name())), logger))
	}

	s := cfg.Sources
	if s.MusicBrainz.Enabled {
		add(musicbrainz.NewWithBaseURL(client, logger, s.MusicBrainz.BaseURL))
	}
	if s.Deezer.Enabled {
		add(deezer.NewWithBaseURL(client, logger, s.Deezer.BaseURL))
	}
	if s.Spotify.Enabled {
		auth := provider.NewClientCredentials(provider.NameSpotify, s.Spotify.TokenURL,
			s.Spotify.ClientID, s.Spotify.ClientSecret, &http.Client{Timeout: cfg.Client.Timeout})
		if auth.Configured() {
			a := spotify.NewWithBaseURL(client, auth, logger, s.Spotify.BaseURL)
			a.SetMarket(s.Spotify.Market)
			add(a)
		} else {
			logger.Warn("spotify enabled but client credentials are missing; source disabled")
		}
	}
	if s.Wikipedia.Enabled {
		// A language picks the edition unless base_url was pointed elsewhere.
		base := s.Wikipedia.BaseURL
		if s.Wikipedia.Language != "" && (base == "" || base == config.Default().Sources.Wikipedia.BaseURL) {
			base = wikipedia.APIURLForLanguage(s.Wikipedia.Language)
		}
		add(wikipedia.NewWithBaseURL(client, logger, base))
	}
	return reg
}

func newScorer(cfg *config.Config) (*match.Scorer, error) {
	mode, err := match.ParseMode(cfg.Match.Mode)
	if err != nil {
		return nil, err
	}
	return match.NewScorer(mode), nil
}
