package cache

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sydlexius/refrain/internal/logging"
)

// TTLFunc returns the current TTL for a source.
type TTLFunc func(source string) time.Duration

// PruneResult summarizes a prune pass.
type PruneResult struct {
	Scanned int
	Removed int
	Freed   int64
}

// SourceStats describes the cache directory of one source.
type SourceStats struct {
	Source  string    `json:"source"`
	Entries int       `json:"entries"`
	Bytes   int64     `json:"bytes"`
	Oldest  time.Time `json:"oldest,omitempty"`
	Newest  time.Time `json:"newest,omitempty"`
}

// Prune removes expired entries, unreadable entries and leftover temp files.
func (s *Store) Prune(ttlFor TTLFunc) (PruneResult, error) {
	var res PruneResult
	now := s.now()

	sources, err := s.sources()
	if err != nil {
		return res, err
	}
	for _, source := range sources {
		ttl := ttlFor(source)
		err := s.walkSource(source, func(path string, info fs.FileInfo) {
			if strings.HasSuffix(path, ".tmp") {
				if now.Sub(info.ModTime()) > time.Hour && os.Remove(path) == nil {
					res.Removed++
					res.Freed += info.Size()
				}
				return
			}
			if !strings.HasSuffix(path, fileExt) {
				return
			}
			res.Scanned++
			h, err := readHeader(path)
			if err == nil && now.Sub(h.FetchedAt) < ttl {
				return
			}
			if os.Remove(path) == nil {
				res.Removed++
				res.Freed += info.Size()
			}
		})
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// Stats reports entry counts and sizes per source, sorted by source name.
func (s *Store) Stats() ([]SourceStats, error) {
	sources, err := s.sources()
	if err != nil {
		return nil, err
	}
	out := make([]SourceStats, 0, len(sources))
	for _, source := range sources {
		st := SourceStats{Source: source}
		err := s.walkSource(source, func(path string, info fs.FileInfo) {
			if !strings.HasSuffix(path, fileExt) {
				return
			}
			st.Entries++
			st.Bytes += info.Size()
			h, err := readHeader(path)
			if err != nil {
				return
			}
			if st.Oldest.IsZero() || h.FetchedAt.Before(st.Oldest) {
				st.Oldest = h.FetchedAt
			}
			if h.FetchedAt.After(st.Newest) {
				st.Newest = h.FetchedAt
			}
		})
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// StartPruner runs Prune on a fixed interval until ctx is canceled.
func (s *Store) StartPruner(ctx context.Context, interval time.Duration, ttlFor TTLFunc) {
	s.logger.Info("cache pruner started", slog.String("interval", interval.String()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("cache pruner stopped")
			return
		case <-ticker.C:
			res, err := s.Prune(ttlFor)
			if err != nil {
				s.logger.Error("scheduled cache prune failed", logging.Err(err))
				continue
			}
			if res.Removed > 0 {
				s.logger.Info("cache pruned",
					slog.Int("removed", res.Removed), slog.Int64("freed_bytes", res.Freed))
			}
		}
	}
}

func (s *Store) sources() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && validSource(e.Name()) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) walkSource(source string, fn func(path string, info fs.FileInfo)) error {
	dir := filepath.Join(s.root, source)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() || e.Name() == lockName {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		fn(filepath.Join(dir, e.Name()), info)
	}
	return nil
}
