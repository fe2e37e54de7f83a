package wikipedia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/sydlexius/refrain/internal/provider"
)

const (
	defaultBaseURL = "https://en.wikipedia.org/w/api.php"
	searchLimit    = 10
	maxBatch       = 20

	// mainNamespace is the article namespace; talk and user pages are ignored.
	mainNamespace = 0
)

// songTitle matches article titles like "Take Five (Dave Brubeck song)".
var songTitle = regexp.MustCompile(`^(.+?)\s*\((?:(.+?)\s+)?(song|single|instrumental|composition)\)$`)

// Adapter implements provider.BatchFetcher against the MediaWiki action API.
type Adapter struct {
	client  *provider.Client
	logger  *slog.Logger
	baseURL string
}

// New creates a Wikipedia adapter for English Wikipedia.
func New(client *provider.Client, logger *slog.Logger) *Adapter {
	return NewWithBaseURL(client, logger, defaultBaseURL)
}

// NewWithBaseURL creates a Wikipedia adapter for another api.php endpoint.
func NewWithBaseURL(client *provider.Client, logger *slog.Logger, baseURL string) *Adapter {
	return &Adapter{
		client:  client,
		logger:  logger.With(slog.String("provider", "wikipedia")),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// APIURLForLanguage returns the api.php URL for a Wikipedia language edition.
func APIURLForLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		lang = "en"
	}
	return "https://" + lang + ".wikipedia.org/w/api.php"
}

// Name returns the provider identifier.
func (a *Adapter) Name() provider.ProviderName { return provider.NameWikipedia }

// RequiresAuth returns false.
func (a *Adapter) RequiresAuth() bool { return false }

// BatchSize is the page id limit for a single pageids query.
func (a *Adapter) BatchSize() int { return maxBatch }

// Search runs a full-text search for song articles.
func (a *Adapter) Search(ctx context.Context, q provider.Query) ([]provider.Candidate, int, error) {
	params := url.Values{
		"action":        {"query"},
		"list":          {"search"},
		"srsearch":      {searchTerms(q)},
		"srlimit":       {strconv.Itoa(searchLimit)},
		"srnamespace":   {strconv.Itoa(mainNamespace)},
		"format":        {"json"},
		"formatversion": {"2"},
	}
	body, err := a.client.Get(ctx, provider.NameWikipedia, a.request(params))
	if err != nil {
		return nil, 0, err
	}

	var resp SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, 0, &provider.ErrMalformed{Provider: provider.NameWikipedia, Cause: err}
	}
	if resp.Error != nil {
		return nil, 0, apiError(resp.Error)
	}

	out := make([]provider.Candidate, 0, len(resp.Query.Search))
	skipped := 0
	for _, hit := range resp.Query.Search {
		c, err := mapHit(hit)
		if err != nil {
			skipped++
			continue
		}
		c.Rank = len(out) + 1
		out = append(out, c)
	}
	a.logger.Debug("page search completed",
		slog.String("query", params.Get("srsearch")),
		slog.Int("results", len(out)),
		slog.Int("skipped", skipped))
	return out, skipped, nil
}

// FetchIDs loads pages by id with their intro extract and lead image.
// Missing pages are dropped.
func (a *Adapter) FetchIDs(ctx context.Context, ids []string) ([]provider.Candidate, int, error) {
	if len(ids) > maxBatch {
		ids = ids[:maxBatch]
	}
	params := url.Values{
		"action":        {"query"},
		"pageids":       {strings.Join(ids, "|")},
		"prop":          {"info|pageimages|extracts"},
		"inprop":        {"url"},
		"piprop":        {"thumbnail"},
		"pithumbsize":   {"500"},
		"exintro":       {"1"},
		"explaintext":   {"1"},
		"exsentences":   {"2"},
		"format":        {"json"},
		"formatversion": {"2"},
	}
	body, err := a.client.Get(ctx, provider.NameWikipedia, a.request(params))
	if err != nil {
		return nil, 0, err
	}

	var resp PagesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, 0, &provider.ErrMalformed{Provider: provider.NameWikipedia, Cause: err}
	}
	if resp.Error != nil {
		return nil, 0, apiError(resp.Error)
	}

	out := make([]provider.Candidate, 0, len(resp.Query.Pages))
	skipped := 0
	for _, p := range resp.Query.Pages {
		if p.Missing {
			continue
		}
		c, err := mapPage(p)
		if err != nil {
			skipped++
			continue
		}
		c.Rank = len(out) + 1
		out = append(out, c)
	}
	return out, skipped, nil
}

func (a *Adapter) request(params url.Values) provider.Request {
	return provider.Request{
		URL:       a.baseURL + "?" + params.Encode(),
		Throttled: throttled,
	}
}

// throttled reports MediaWiki rate limit and replication lag errors, which
// arrive with a 200 status. maxlag responses carry a Retry-After header.
func throttled(body []byte) bool {
	var env struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Error == nil {
		return false
	}
	return env.Error.Code == "ratelimited" || env.Error.Code == "maxlag"
}

func apiError(e *APIError) error {
	return &provider.ErrMalformed{
		Provider: provider.NameWikipedia,
		Cause:    fmt.Errorf("%s: %s", e.Code, e.Info),
	}
}

func searchTerms(q provider.Query) string {
	terms := `"` + strings.ReplaceAll(strings.TrimSpace(q.Title), `"`, "") + `"`
	if q.Artist != "" {
		terms += " " + q.Artist
	}
	return terms + " song"
}

func mapHit(h SearchHit) (provider.Candidate, error) {
	if h.PageID == 0 || h.Title == "" {
		return provider.Candidate{}, errors.New("search hit without page id or title")
	}
	title, artist := splitTitle(h.Title)
	return provider.Candidate{
		SourceID:    strconv.FormatInt(h.PageID, 10),
		Title:       title,
		Artist:      artist,
		ExternalURL: pageURL(h.PageID),
		Description: StripHTML(h.Snippet),
	}, nil
}

func mapPage(p Page) (provider.Candidate, error) {
	if p.PageID == 0 || p.Title == "" {
		return provider.Candidate{}, errors.New("page without id or title")
	}
	title, artist := splitTitle(p.Title)
	c := provider.Candidate{
		SourceID:    strconv.FormatInt(p.PageID, 10),
		Title:       title,
		Artist:      artist,
		ExternalURL: p.FullURL,
		Description: strings.TrimSpace(p.Extract),
	}
	if c.ExternalURL == "" {
		c.ExternalURL = pageURL(p.PageID)
	}
	if p.Thumbnail != nil {
		c.ArtworkURL = p.Thumbnail.Source
	}
	return c, nil
}

// splitTitle separates the disambiguation suffix of a song article title,
// returning the bare title and the artist named in it, if any.
func splitTitle(t string) (title, artist string) {
	m := songTitle.FindStringSubmatch(t)
	if m == nil {
		return t, ""
	}
	return m[1], m[2]
}

func pageURL(id int64) string {
	return "https://en.wikipedia.org/?curid=" + strconv.FormatInt(id, 10)
}

// StripHTML returns the text content of an HTML fragment with whitespace
// collapsed and entities decoded.
func StripHTML(fragment string) string {
	z := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or a malformed tail; keep what was read either way.
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}
