package musicbrainz

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/sydlexius/refrain/internal/provider"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	if err != nil {
		t.Fatalf("loading fixture %s: %v", name, err)
	}
	return data
}

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	limiter := provider.NewRateLimiterMap()
	limiter.SetInterval(provider.NameMusicBrainz, 0)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	client := provider.NewClient(limiter, provider.DefaultClientOptions(), logger)
	return NewWithBaseURL(client, logger, srv.URL)
}

func TestName(t *testing.T) {
	a := newTestAdapter(t, http.NotFound)
	if a.Name() != provider.NameMusicBrainz {
		t.Errorf("expected %q, got %q", provider.NameMusicBrainz, a.Name())
	}
	if a.RequiresAuth() {
		t.Error("expected RequiresAuth to return false")
	}
}

func TestSearch(t *testing.T) {
	var gotQuery string
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/recording" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		gotQuery = r.URL.Query().Get("query")
		w.Write(loadFixture(t, "search_take_five.json")) //nolint:errcheck
	})

	cands, skipped, err := a.Search(context.Background(), provider.Query{
		Title: "Take Five", Artist: "Dave Brubeck", Album: "Time Out", Year: 1959,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	want := `recording:"Take Five" AND artist:"Dave Brubeck" AND release:"Time Out" AND date:1959`
	if gotQuery != want {
		t.Errorf("query = %q, want %q", gotQuery, want)
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	if len(cands) != 2 {
		t.Fatalf("got %d candidates, want 2", len(cands))
	}

	c := cands[0]
	if c.Title != "Take Five" || c.Artist != "The Dave Brubeck Quartet" {
		t.Errorf("first candidate = %+v", c)
	}
	if c.Album != "Time Out" {
		t.Errorf("album = %q, want the official album release", c.Album)
	}
	if c.Year != 1959 || c.SourceScore != 100 || c.Rank != 1 {
		t.Errorf("year/score/rank = %d/%v/%d", c.Year, c.SourceScore, c.Rank)
	}
	if !strings.HasSuffix(c.AlbumURL, "/release/1c1d4e6a-2c27-4b5c-9b0e-3ad1f4a2c002") {
		t.Errorf("album url = %q", c.AlbumURL)
	}

	if cands[1].Artist != "Dave Brubeck & Paul Desmond" {
		t.Errorf("joined credit = %q", cands[1].Artist)
	}
	if cands[1].Album != "" || cands[1].Rank != 2 {
		t.Errorf("second candidate = %+v", cands[1])
	}
}

func TestSearch_EscapesQuotes(t *testing.T) {
	got := searchQuery(provider.Query{Title: `Say "Hello"`})
	if got != `recording:"Say \"Hello\""` {
		t.Errorf("query = %s", got)
	}
}

func TestFetchIDs(t *testing.T) {
	var gotQuery string
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		w.Write(loadFixture(t, "search_take_five.json")) //nolint:errcheck
	})

	cands, _, err := a.FetchIDs(context.Background(), []string{"id-1", "id-2"})
	if err != nil {
		t.Fatalf("FetchIDs: %v", err)
	}
	if gotQuery != `rid:"id-1" OR rid:"id-2"` {
		t.Errorf("query = %q", gotQuery)
	}
	if len(cands) != 2 {
		t.Errorf("got %d candidates", len(cands))
	}
	if a.BatchSize() != 25 {
		t.Errorf("batch size = %d", a.BatchSize())
	}
}

func TestSearch_MalformedEnvelope(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"recordings": "nope"}`)) //nolint:errcheck
	})
	_, _, err := a.Search(context.Background(), provider.Query{Title: "x"})
	var me *provider.ErrMalformed
	if !errors.As(err, &me) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
}

func TestSearch_ServerError(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	_, _, err := a.Search(context.Background(), provider.Query{Title: "x"})
	var pu *provider.ErrProviderUnavailable
	if !errors.As(err, &pu) {
		t.Errorf("err = %v, want ErrProviderUnavailable", err)
	}
}
