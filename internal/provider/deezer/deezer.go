package deezer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/sydlexius/refrain/internal/provider"
)

const (
	defaultBaseURL = "https://api.deezer.com"
	webBaseURL     = "https://www.deezer.com"
	searchLimit    = 25

	// codeQuotaExceeded is Deezer's in-envelope rate limit error.
	codeQuotaExceeded = 4
)

// Adapter implements provider.Fetcher for Deezer's public track search.
// No authentication is required.
type Adapter struct {
	client  *provider.Client
	logger  *slog.Logger
	baseURL string
}

// New creates a Deezer adapter with the default base URL.
func New(client *provider.Client, logger *slog.Logger) *Adapter {
	return NewWithBaseURL(client, logger, defaultBaseURL)
}

// NewWithBaseURL creates a Deezer adapter with a custom base URL (for testing).
func NewWithBaseURL(client *provider.Client, logger *slog.Logger, baseURL string) *Adapter {
	return &Adapter{
		client:  client,
		logger:  logger.With(slog.String("provider", "deezer")),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Name returns the provider identifier.
func (a *Adapter) Name() provider.ProviderName { return provider.NameDeezer }

// RequiresAuth returns false since Deezer's public API needs no API key.
func (a *Adapter) RequiresAuth() bool { return false }

// Search queries /search/track using Deezer's advanced search syntax.
func (a *Adapter) Search(ctx context.Context, q provider.Query) ([]provider.Candidate, int, error) {
	params := url.Values{
		"q":     {advancedQuery(q)},
		"limit": {strconv.Itoa(searchLimit)},
	}
	reqURL := a.baseURL + "/search/track?" + params.Encode()

	body, err := a.client.Get(ctx, provider.NameDeezer, provider.Request{
		URL:       reqURL,
		Throttled: quotaExceeded,
	})
	if err != nil {
		return nil, 0, err
	}

	var resp SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, 0, &provider.ErrMalformed{Provider: provider.NameDeezer, Cause: err}
	}
	if resp.Error != nil {
		return nil, 0, envelopeError(resp.Error)
	}

	cands, skipped := provider.DecodeEach(resp.Data, mapTrack)
	a.logger.Debug("track search completed",
		slog.String("query", params.Get("q")),
		slog.Int("results", len(cands)),
		slog.Int("skipped", skipped))
	return cands, skipped, nil
}

// quotaExceeded reports Deezer's in-envelope rate limit so the client waits
// and retries the request.
func quotaExceeded(body []byte) bool {
	var env struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Error == nil {
		return false
	}
	return env.Error.Code == codeQuotaExceeded
}

func envelopeError(e *APIError) error {
	return &provider.ErrMalformed{
		Provider: provider.NameDeezer,
		Cause:    fmt.Errorf("%s (code %d): %s", e.Type, e.Code, e.Message),
	}
}

func advancedQuery(q provider.Query) string {
	parts := make([]string, 0, 3)
	if q.Artist != "" {
		parts = append(parts, field("artist", q.Artist))
	}
	parts = append(parts, field("track", q.Title))
	if q.Album != "" {
		parts = append(parts, field("album", q.Album))
	}
	return strings.Join(parts, " ")
}

// field renders key:"value". Deezer has no escape for embedded quotes, so
// they are dropped.
func field(key, value string) string {
	value = strings.ReplaceAll(strings.TrimSpace(value), `"`, "")
	return key + `:"` + value + `"`
}

func mapTrack(t DeezerTrack) (provider.Candidate, error) {
	if t.ID == 0 || t.Title == "" {
		return provider.Candidate{}, errors.New("track without id or title")
	}
	c := provider.Candidate{
		SourceID:    strconv.FormatInt(t.ID, 10),
		Title:       t.Title,
		Artist:      t.Artist.Name,
		Album:       t.Album.Title,
		SourceScore: float64(t.Rank),
		ExternalURL: t.Link,
		ArtworkURL:  firstNonEmpty(t.Album.CoverXL, t.Album.CoverBig, t.Album.CoverMedium, t.Album.Cover),
	}
	if t.Album.ID != 0 {
		c.AlbumURL = webBaseURL + "/album/" + strconv.FormatInt(t.Album.ID, 10)
	}
	return c, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
