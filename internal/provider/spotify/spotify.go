package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/sydlexius/refrain/internal/provider"
)

const (
	defaultBaseURL = "https://api.spotify.com/v1"
	searchLimit    = 20
	maxBatch       = 50
)

// Adapter implements provider.BatchFetcher for the Spotify Web API using
// client credentials.
type Adapter struct {
	client  *provider.Client
	auth    provider.Authenticator
	logger  *slog.Logger
	baseURL string
	market  string
}

// New creates a Spotify adapter with the default base URL.
func New(client *provider.Client, auth provider.Authenticator, logger *slog.Logger) *Adapter {
	return NewWithBaseURL(client, auth, logger, defaultBaseURL)
}

// NewWithBaseURL creates a Spotify adapter with a custom base URL (for testing).
func NewWithBaseURL(client *provider.Client, auth provider.Authenticator, logger *slog.Logger, baseURL string) *Adapter {
	return &Adapter{
		client:  client,
		auth:    auth,
		logger:  logger.With(slog.String("provider", "spotify")),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// SetMarket restricts results to tracks playable in an ISO 3166 market.
func (a *Adapter) SetMarket(market string) { a.market = strings.ToUpper(market) }

// Name returns the provider identifier.
func (a *Adapter) Name() provider.ProviderName { return provider.NameSpotify }

// RequiresAuth returns true; every Spotify call needs a bearer token.
func (a *Adapter) RequiresAuth() bool { return true }

// BatchSize is the /tracks endpoint limit.
func (a *Adapter) BatchSize() int { return maxBatch }

// Search queries /search for tracks.
func (a *Adapter) Search(ctx context.Context, q provider.Query) ([]provider.Candidate, int, error) {
	params := url.Values{
		"q":     {fieldQuery(q)},
		"type":  {"track"},
		"limit": {strconv.Itoa(searchLimit)},
	}
	if a.market != "" {
		params.Set("market", a.market)
	}

	body, err := a.get(ctx, "/search?"+params.Encode())
	if err != nil {
		return nil, 0, err
	}

	var resp SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, 0, &provider.ErrMalformed{Provider: provider.NameSpotify, Cause: err}
	}
	cands, skipped := provider.DecodeEach(resp.Tracks.Items, mapTrack)
	a.logger.Debug("track search completed",
		slog.String("query", params.Get("q")),
		slog.Int("results", len(cands)),
		slog.Int("skipped", skipped))
	return cands, skipped, nil
}

// FetchIDs looks up tracks by Spotify id. Null entries for unknown ids are
// dropped without being counted as malformed.
func (a *Adapter) FetchIDs(ctx context.Context, ids []string) ([]provider.Candidate, int, error) {
	if len(ids) > maxBatch {
		ids = ids[:maxBatch]
	}
	params := url.Values{"ids": {strings.Join(ids, ",")}}
	if a.market != "" {
		params.Set("market", a.market)
	}

	body, err := a.get(ctx, "/tracks?"+params.Encode())
	if err != nil {
		return nil, 0, err
	}

	var resp TracksResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, 0, &provider.ErrMalformed{Provider: provider.NameSpotify, Cause: err}
	}
	items := make([]json.RawMessage, 0, len(resp.Tracks))
	for _, raw := range resp.Tracks {
		if string(raw) == "null" {
			continue
		}
		items = append(items, raw)
	}
	cands, skipped := provider.DecodeEach(items, mapTrack)
	return cands, skipped, nil
}

func (a *Adapter) get(ctx context.Context, path string) ([]byte, error) {
	if a.auth == nil {
		return nil, &provider.ErrAuthRequired{Provider: provider.NameSpotify}
	}
	return a.client.Get(ctx, provider.NameSpotify, provider.Request{
		URL:  a.baseURL + path,
		Auth: a.auth,
	})
}

func fieldQuery(q provider.Query) string {
	parts := []string{"track:" + clean(q.Title)}
	if q.Artist != "" {
		parts = append(parts, "artist:"+clean(q.Artist))
	}
	if q.Album != "" {
		parts = append(parts, "album:"+clean(q.Album))
	}
	if q.Year > 0 {
		parts = append(parts, "year:"+strconv.Itoa(q.Year))
	}
	return strings.Join(parts, " ")
}

// clean strips characters Spotify treats as field syntax.
func clean(s string) string {
	s = strings.NewReplacer(":", " ", `"`, "").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func mapTrack(t SpotifyTrack) (provider.Candidate, error) {
	if t.ID == "" || t.Name == "" {
		return provider.Candidate{}, errors.New("track without id or name")
	}
	names := make([]string, 0, len(t.Artists))
	for _, ar := range t.Artists {
		if ar.Name != "" {
			names = append(names, ar.Name)
		}
	}
	c := provider.Candidate{
		SourceID:    t.ID,
		Title:       t.Name,
		Artist:      strings.Join(names, ", "),
		Album:       t.Album.Name,
		SourceScore: float64(t.Popularity),
		ExternalURL: t.ExternalURLs["spotify"],
		AlbumURL:    t.Album.ExternalURLs["spotify"],
	}
	if len(t.Album.Images) > 0 {
		c.ArtworkURL = t.Album.Images[0].URL
	}
	if len(t.Album.ReleaseDate) >= 4 {
		if y, err := strconv.Atoi(t.Album.ReleaseDate[:4]); err == nil {
			c.Year = y
		}
	}
	return c, nil
}
