package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sydlexius/refrain/internal/cache"
)

// ProviderName uniquely identifies an external metadata source.
type ProviderName string

// Known provider names.
const (
	NameMusicBrainz ProviderName = "musicbrainz"
	NameDeezer      ProviderName = "deezer"
	NameSpotify     ProviderName = "spotify"
	NameWikipedia   ProviderName = "wikipedia"
)

// AllProviderNames returns all known provider names in research order.
func AllProviderNames() []ProviderName {
	return []ProviderName{
		NameMusicBrainz,
		NameDeezer,
		NameSpotify,
		NameWikipedia,
	}
}

// DisplayName returns a human-readable name for the provider.
func (n ProviderName) DisplayName() string {
	switch n {
	case NameMusicBrainz:
		return "MusicBrainz"
	case NameDeezer:
		return "Deezer"
	case NameSpotify:
		return "Spotify"
	case NameWikipedia:
		return "Wikipedia"
	default:
		return string(n)
	}
}

// Query describes the song being researched. Title is required; the other
// fields disambiguate.
type Query struct {
	Title  string `json:"title"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
	Year   int    `json:"year,omitempty"`
}

// CacheKey returns the content address for this query against one endpoint
// of a source.
func (q Query) CacheKey(source ProviderName, endpoint string) string {
	year := ""
	if q.Year > 0 {
		year = strconv.Itoa(q.Year)
	}
	return cache.Key(string(source), endpoint, q.Title, q.Artist, q.Album, year)
}

// Candidate is one potential match returned by a source.
type Candidate struct {
	SourceID    string  `json:"source_id"`
	Title       string  `json:"title"`
	Artist      string  `json:"artist,omitempty"`
	Album       string  `json:"album,omitempty"`
	Year        int     `json:"year,omitempty"`
	Rank        int     `json:"rank"`
	SourceScore float64 `json:"source_score,omitempty"`
	ArtworkURL  string  `json:"artwork_url,omitempty"`
	AlbumURL    string  `json:"album_url,omitempty"`
	ExternalURL string  `json:"external_url,omitempty"`
	Description string  `json:"description,omitempty"`
}

// Richness counts the populated descriptive fields.
func (c Candidate) Richness() int {
	n := 0
	for _, s := range []string{c.Artist, c.Album, c.ArtworkURL, c.AlbumURL, c.ExternalURL, c.Description} {
		if s != "" {
			n++
		}
	}
	if c.Year > 0 {
		n++
	}
	return n
}

// Result is the outcome of one lookup against a source.
type Result struct {
	Source     ProviderName `json:"source"`
	Candidates []Candidate  `json:"candidates"`
	FromCache  bool         `json:"from_cache"`
	Skipped    int          `json:"skipped,omitempty"`

	// Payload is the encoded candidate list as stored in the cache.
	Payload []byte `json:"-"`
}

// Fetcher is implemented by each source adapter: a live search against the
// upstream API. Fetchers never consult the cache.
type Fetcher interface {
	// Name returns the unique provider identifier.
	Name() ProviderName

	// RequiresAuth returns true if this provider needs credentials to function.
	RequiresAuth() bool

	// Search returns candidates for q in upstream order. skipped counts items
	// that could not be parsed and were dropped.
	Search(ctx context.Context, q Query) (candidates []Candidate, skipped int, err error)
}

// BatchFetcher is implemented by sources whose API can fetch many records
// by id in one call.
type BatchFetcher interface {
	Fetcher

	// BatchSize is the maximum number of ids per upstream call.
	BatchSize() int

	// FetchIDs returns candidates for the given source ids.
	FetchIDs(ctx context.Context, ids []string) (candidates []Candidate, skipped int, err error)
}

// Source is the cached, rate-limited view of one upstream.
type Source interface {
	Name() ProviderName
	Lookup(ctx context.Context, q Query) (*Result, error)
}

// BatchSource adds id-based batch lookups.
type BatchSource interface {
	Source
	LookupIDs(ctx context.Context, ids []string) (*Result, error)
}

// DecodeEach converts raw upstream items one at a time. Items that fail to
// unmarshal or convert are skipped and counted; the rest are returned with
// Rank set to their 1-based position among the kept items.
func DecodeEach[T any](items []json.RawMessage, convert func(T) (Candidate, error)) ([]Candidate, int) {
	out := make([]Candidate, 0, len(items))
	skipped := 0
	for _, raw := range items {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			skipped++
			continue
		}
		c, err := convert(item)
		if err != nil {
			skipped++
			continue
		}
		c.Rank = len(out) + 1
		out = append(out, c)
	}
	return out, skipped
}

// ErrProviderUnavailable indicates a transient failure (rate-limited, timeout, server error).
type ErrProviderUnavailable struct {
	Provider   ProviderName
	Cause      error
	RetryAfter time.Duration
}

func (e *ErrProviderUnavailable) Error() string {
	return fmt.Sprintf("provider %s unavailable: %v", e.Provider, e.Cause)
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Cause }

// ErrNotFound indicates the provider has no data at the requested location.
type ErrNotFound struct {
	Provider ProviderName
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("provider %s: %s not found", e.Provider, e.ID)
}

// ErrUnauthorized indicates the provider rejected credentials even after a
// refresh.
type ErrUnauthorized struct {
	Provider ProviderName
}

func (e *ErrUnauthorized) Error() string {
	return fmt.Sprintf("provider %s: credentials rejected", e.Provider)
}

// ErrAuthRequired indicates the provider needs credentials but none are configured.
type ErrAuthRequired struct {
	Provider ProviderName
}

func (e *ErrAuthRequired) Error() string {
	return fmt.Sprintf("provider %s: credentials not configured", e.Provider)
}

// ErrMalformed indicates the response envelope could not be parsed.
type ErrMalformed struct {
	Provider ProviderName
	Cause    error
}

func (e *ErrMalformed) Error() string {
	return fmt.Sprintf("provider %s: malformed response: %v", e.Provider, e.Cause)
}

func (e *ErrMalformed) Unwrap() error { return e.Cause }
