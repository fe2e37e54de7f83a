package main

import (
	"io"
	"log/slog"

	"github.com/sydlexius/refrain/internal/cache"
	"github.com/sydlexius/refrain/internal/config"
	"github.com/sydlexius/refrain/internal/logging"
	"github.com/sydlexius/refrain/internal/provider"
)

// cliLogger keeps one-shot commands quiet unless something goes wrong.
func cliLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := logging.ParseLevel(cfg.Logging.Level)
	if level < slog.LevelWarn {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// localSources builds the same cached source registry the server uses.
func localSources(cfg *config.Config, logger *slog.Logger) (*provider.Registry, *cache.Store) {
	store := cache.NewStore(cfg.Cache.Root, cache.WithLogger(logger))
	return buildRegistry(cfg, newClient(cfg, logger), store, logger), store
}
