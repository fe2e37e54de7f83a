package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sydlexius/refrain/internal/cache"
	"github.com/sydlexius/refrain/internal/logging"
)

// ErrBatchUnsupported is returned by LookupIDs for sources without a batch API.
var ErrBatchUnsupported = errors.New("source does not support batch lookups")

// Resolver wraps a Fetcher with the disk cache. A cache hit returns the
// stored payload without touching the rate limiter or the network; a miss
// fetches, stores the parsed candidates under the source TTL and returns them.
type Resolver struct {
	fetcher Fetcher
	store   *cache.Store
	ttl     time.Duration
	logger  *slog.Logger
}

// NewResolver creates a Resolver. A nil store disables caching.
func NewResolver(f Fetcher, store *cache.Store, ttl time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{
		fetcher: f,
		store:   store,
		ttl:     ttl,
		logger:  logging.ForComponent(logger, "resolver").With(slog.String(logging.KeySource, string(f.Name()))),
	}
}

// Name returns the source name.
func (r *Resolver) Name() ProviderName { return r.fetcher.Name() }

// Fetcher returns the wrapped adapter.
func (r *Resolver) Fetcher() Fetcher { return r.fetcher }

// SupportsBatch reports whether LookupIDs is available.
func (r *Resolver) SupportsBatch() bool {
	_, ok := r.fetcher.(BatchFetcher)
	return ok
}

// Lookup resolves q through the cache, falling back to a live search.
func (r *Resolver) Lookup(ctx context.Context, q Query) (*Result, error) {
	name := r.fetcher.Name()
	if strings.TrimSpace(q.Title) == "" {
		return &Result{Source: name, Candidates: []Candidate{}}, nil
	}

	key := q.CacheKey(name, "search")
	if res, ok := r.cached(key); ok {
		r.logger.Debug("cache hit", slog.String("title", q.Title))
		return res, nil
	}

	cands, skipped, err := r.fetcher.Search(ctx, q)
	if err != nil {
		var nf *ErrNotFound
		if !errors.As(err, &nf) {
			return nil, err
		}
		cands = nil
	}
	if skipped > 0 {
		r.logger.Warn("skipped malformed items", slog.Int("skipped", skipped), slog.String("title", q.Title))
	}
	return r.remember(key, cands, skipped)
}

// LookupIDs fetches records by source id in batches of the adapter's
// BatchSize, caching each batch separately.
func (r *Resolver) LookupIDs(ctx context.Context, ids []string) (*Result, error) {
	bf, ok := r.fetcher.(BatchFetcher)
	if !ok {
		return nil, fmt.Errorf("%s: %w", r.fetcher.Name(), ErrBatchUnsupported)
	}
	ids = dedupe(ids)
	out := &Result{Source: bf.Name(), Candidates: []Candidate{}}
	if len(ids) == 0 {
		return out, nil
	}

	size := max(bf.BatchSize(), 1)
	out.FromCache = true
	for start := 0; start < len(ids); start += size {
		chunk := ids[start:min(start+size, len(ids))]
		key := cache.Key(string(bf.Name()), "ids", strings.Join(chunk, ","))

		res, ok := r.cached(key)
		if !ok {
			cands, skipped, err := bf.FetchIDs(ctx, chunk)
			if err != nil {
				var nf *ErrNotFound
				if !errors.As(err, &nf) {
					return nil, err
				}
			}
			res, err = r.remember(key, cands, skipped)
			if err != nil {
				return nil, err
			}
		}
		out.FromCache = out.FromCache && res.FromCache
		out.Skipped += res.Skipped
		out.Candidates = append(out.Candidates, res.Candidates...)
	}
	return out, nil
}

func (r *Resolver) cached(key string) (*Result, bool) {
	if r.store == nil {
		return nil, false
	}
	name := r.fetcher.Name()
	e, ok, err := r.store.Get(string(name), key, r.ttl)
	if err != nil {
		r.logger.Warn("cache read failed", logging.Err(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var cands []Candidate
	if err := json.Unmarshal(e.Payload, &cands); err != nil {
		r.logger.Warn("cache payload unreadable, refetching", logging.Err(err))
		return nil, false
	}
	if cands == nil {
		cands = []Candidate{}
	}
	return &Result{Source: name, Candidates: cands, FromCache: true, Payload: e.Payload}, true
}

// remember marshals cands, writes them to the cache and builds the live result.
// A failed cache write is logged; the live result is still returned.
func (r *Resolver) remember(key string, cands []Candidate, skipped int) (*Result, error) {
	if cands == nil {
		cands = []Candidate{}
	}
	payload, err := json.Marshal(cands)
	if err != nil {
		return nil, fmt.Errorf("encoding candidates: %w", err)
	}
	name := r.fetcher.Name()
	if r.store != nil {
		if _, err := r.store.Put(string(name), key, payload, r.ttl); err != nil {
			r.logger.Warn("cache write failed", logging.Err(err))
		}
	}
	return &Result{Source: name, Candidates: cands, Skipped: skipped, Payload: payload}, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
