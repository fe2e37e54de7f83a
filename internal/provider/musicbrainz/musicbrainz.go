package musicbrainz

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
	defaultBaseURL = "https://musicbrainz.org/ws/2"
	webBaseURL     = "https://musicbrainz.org"
	searchLimit    = 25
)

// Adapter implements provider.BatchFetcher for MusicBrainz recordings.
type Adapter struct {
	client  *provider.Client
	logger  *slog.Logger
	baseURL string
}

// New creates a MusicBrainz adapter with the default base URL.
func New(client *provider.Client, logger *slog.Logger) *Adapter {
	return NewWithBaseURL(client, logger, defaultBaseURL)
}

// NewWithBaseURL creates a MusicBrainz adapter with a custom base URL (for testing).
func NewWithBaseURL(client *provider.Client, logger *slog.Logger, baseURL string) *Adapter {
	return &Adapter{
		client:  client,
		logger:  logger.With(slog.String("provider", "musicbrainz")),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Name returns the provider name.
func (a *Adapter) Name() provider.ProviderName { return provider.NameMusicBrainz }

// RequiresAuth returns whether this provider needs an API key.
func (a *Adapter) RequiresAuth() bool { return false }

// BatchSize is the number of recording ids fetched per rid: query.
func (a *Adapter) BatchSize() int { return searchLimit }

// Search queries MusicBrainz recordings by title with optional artist,
// release and year clauses.
func (a *Adapter) Search(ctx context.Context, q provider.Query) ([]provider.Candidate, int, error) {
	return a.query(ctx, searchQuery(q), searchLimit)
}

// FetchIDs looks up recordings by MBID with a single OR query.
func (a *Adapter) FetchIDs(ctx context.Context, ids []string) ([]provider.Candidate, int, error) {
	clauses := make([]string, 0, len(ids))
	for _, id := range ids {
		clauses = append(clauses, "rid:"+phrase(id))
	}
	return a.query(ctx, strings.Join(clauses, " OR "), len(ids))
}

func (a *Adapter) query(ctx context.Context, lucene string, limit int) ([]provider.Candidate, int, error) {
	params := url.Values{
		"query": {lucene},
		"fmt":   {"json"},
		"limit": {strconv.Itoa(limit)},
	}
	reqURL := a.baseURL + "/recording?" + params.Encode()

	body, err := a.client.Get(ctx, provider.NameMusicBrainz, provider.Request{URL: reqURL})
	if err != nil {
		return nil, 0, err
	}

	var resp RecordingSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, 0, &provider.ErrMalformed{Provider: provider.NameMusicBrainz, Cause: err}
	}

	cands, skipped := provider.DecodeEach(resp.Recordings, mapRecording)
	a.logger.Debug("recording search completed",
		slog.String("query", lucene),
		slog.Int("results", len(cands)),
		slog.Int("skipped", skipped))
	return cands, skipped, nil
}

// searchQuery builds a Lucene query from the populated query fields.
func searchQuery(q provider.Query) string {
	parts := []string{"recording:" + phrase(q.Title)}
	if q.Artist != "" {
		parts = append(parts, "artist:"+phrase(q.Artist))
	}
	if q.Album != "" {
		parts = append(parts, "release:"+phrase(q.Album))
	}
	if q.Year > 0 {
		parts = append(parts, "date:"+strconv.Itoa(q.Year))
	}
	return strings.Join(parts, " AND ")
}

// phrase quotes s as a Lucene phrase.
func phrase(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(strings.TrimSpace(s)) + `"`
}

func mapRecording(r MBRecording) (provider.Candidate, error) {
	if r.ID == "" || r.Title == "" {
		return provider.Candidate{}, errors.New("recording without id or title")
	}
	c := provider.Candidate{
		SourceID:    r.ID,
		Title:       r.Title,
		Artist:      creditString(r.ArtistCredit),
		Year:        yearOf(r.FirstReleaseDate),
		SourceScore: float64(r.Score),
		ExternalURL: webBaseURL + "/recording/" + r.ID,
	}
	if rel := preferredRelease(r.Releases); rel != nil {
		c.Album = rel.Title
		c.AlbumURL = webBaseURL + "/release/" + rel.ID
		if c.Year == 0 {
			c.Year = yearOf(rel.Date)
		}
	}
	return c, nil
}

func creditString(credits []MBArtistCredit) string {
	var b strings.Builder
	for _, ac := range credits {
		name := ac.Name
		if name == "" {
			name = ac.Artist.Name
		}
		b.WriteString(name)
		b.WriteString(ac.JoinPhrase)
	}
	return strings.TrimSpace(b.String())
}

// preferredRelease picks an official album release if there is one,
// otherwise the first release listed.
func preferredRelease(rels []MBRelease) *MBRelease {
	if len(rels) == 0 {
		return nil
	}
	for i := range rels {
		if rels[i].Status == "Official" && rels[i].ReleaseGroup.PrimaryType == "Album" {
			return &rels[i]
		}
	}
	return &rels[0]
}

func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	y, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return y
}
