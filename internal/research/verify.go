package research

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sydlexius/refrain/internal/catalog"
	"github.com/sydlexius/refrain/internal/logging"
	"github.com/sydlexius/refrain/internal/provider"
)

// VerifyStore is the persistence the verifier needs.
type VerifyStore interface {
	MatchesForSource(ctx context.Context, source string, limit int) ([]catalog.Match, error)
	UpdateMatchArtwork(ctx context.Context, id, artworkURL, albumURL, externalURL string) error
}

// SourceLookup finds a registered source by name.
type SourceLookup interface {
	Get(name provider.ProviderName) provider.Source
}

// VerifyResult summarizes a verify pass.
type VerifyResult struct {
	Source    provider.ProviderName `json:"source"`
	Checked   int                   `json:"checked"`
	Updated   int                   `json:"updated"`
	Unchanged int                   `json:"unchanged"`
	Missing   int                   `json:"missing"`
	FromCache bool                  `json:"from_cache"`
}

// Verifier re-fetches stored matches by id through a source's batch API and
// refreshes their artwork and links.
type Verifier struct {
	sources SourceLookup
	store   VerifyStore
	logger  *slog.Logger
}

// NewVerifier creates a Verifier.
func NewVerifier(sources SourceLookup, store VerifyStore, logger *slog.Logger) *Verifier {
	return &Verifier{sources: sources, store: store, logger: logging.ForComponent(logger, "verifier")}
}

// Verify checks up to limit of the stalest matches from one source.
func (v *Verifier) Verify(ctx context.Context, source provider.ProviderName, limit int) (VerifyResult, error) {
	res := VerifyResult{Source: source}
	src := v.sources.Get(source)
	if src == nil {
		return res, fmt.Errorf("source %s is not enabled", source)
	}
	batch, ok := src.(provider.BatchSource)
	if !ok {
		return res, fmt.Errorf("%s: %w", source, provider.ErrBatchUnsupported)
	}

	matches, err := v.store.MatchesForSource(ctx, string(source), limit)
	if err != nil {
		return res, err
	}
	if len(matches) == 0 {
		return res, nil
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ExternalID
	}
	fetched, err := batch.LookupIDs(ctx, ids)
	if err != nil {
		return res, err
	}
	res.FromCache = fetched.FromCache

	byID := make(map[string]provider.Candidate, len(fetched.Candidates))
	for _, c := range fetched.Candidates {
		byID[c.SourceID] = c
	}

	for _, m := range matches {
		res.Checked++
		c, ok := byID[m.ExternalID]
		if !ok {
			res.Missing++
			v.logger.Warn("stored match no longer returned by source",
				slog.String(logging.KeySource, string(source)),
				slog.String("external_id", m.ExternalID),
				slog.String("song_id", m.SongID))
			continue
		}
		if c.ArtworkURL == m.ArtworkURL && c.AlbumURL == m.AlbumURL && c.ExternalURL == m.ExternalURL {
			res.Unchanged++
			continue
		}
		if err := v.store.UpdateMatchArtwork(ctx, m.ID, c.ArtworkURL, c.AlbumURL, c.ExternalURL); err != nil {
			return res, err
		}
		res.Updated++
	}
	v.logger.Info("verify pass complete",
		slog.String(logging.KeySource, string(source)),
		slog.Int("checked", res.Checked),
		slog.Int("updated", res.Updated),
		slog.Int("missing", res.Missing))
	return res, nil
}
