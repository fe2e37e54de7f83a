package research

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sydlexius/refrain/internal/catalog"
	"github.com/sydlexius/refrain/internal/database"
	"github.com/sydlexius/refrain/internal/event"
	"github.com/sydlexius/refrain/internal/logging"
	"github.com/sydlexius/refrain/internal/match"
	"github.com/sydlexius/refrain/internal/pool"
	"github.com/sydlexius/refrain/internal/provider"
)

type fakeSource struct {
	name    provider.ProviderName
	cands   []provider.Candidate
	byID    map[string]provider.Candidate
	err     error
	queries []provider.Query
}

func (f *fakeSource) Name() provider.ProviderName { return f.name }

func (f *fakeSource) Lookup(_ context.Context, q provider.Query) (*provider.Result, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return &provider.Result{Source: f.name, Candidates: f.cands}, nil
}

type fakeBatchSource struct {
	fakeSource
	requested []string
}

func (f *fakeBatchSource) LookupIDs(_ context.Context, ids []string) (*provider.Result, error) {
	f.requested = append(f.requested, ids...)
	if f.err != nil {
		return nil, f.err
	}
	var out []provider.Candidate
	for _, id := range ids {
		if c, ok := f.byID[id]; ok {
			out = append(out, c)
		}
	}
	return &provider.Result{Source: f.name, Candidates: out, FromCache: true}, nil
}

type sourceSlice []provider.Source

func (s sourceSlice) All() []provider.Source { return s }

// memStore is an in-memory CatalogStore.
type memStore struct {
	mu       sync.Mutex
	songs    map[string]catalog.Song
	matches  []catalog.Match
	hintsErr error
	matchErr error
	refresh  []string
}

func newMemStore() *memStore {
	return &memStore{songs: make(map[string]catalog.Song)}
}

func (m *memStore) SongHints(_ context.Context, id string) (*catalog.Song, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hintsErr != nil {
		return nil, m.hintsErr
	}
	s, ok := m.songs[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memStore) UpsertSong(_ context.Context, s *catalog.Song) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.songs[s.ID] = *s
	return nil
}

func (m *memStore) UpsertMatch(_ context.Context, mt *catalog.Match) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.matchErr != nil {
		return m.matchErr
	}
	mt.ID = mt.Source + ":" + mt.ExternalID
	m.matches = append(m.matches, *mt)
	return nil
}

func (m *memStore) RefreshRepresentative(_ context.Context, songID, named string) (*catalog.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh = append(m.refresh, songID)
	return catalog.PickRepresentative(m.matches, named), nil
}

var takeFive = provider.Candidate{
	SourceID:    "3135556",
	Title:       "Take Five",
	Artist:      "The Dave Brubeck Quartet",
	Album:       "Time Out",
	Rank:        1,
	ArtworkURL:  "https://img.example/time-out.jpg",
	AlbumURL:    "https://www.deezer.com/album/299821",
	ExternalURL: "https://www.deezer.com/track/3135556",
}

func takeFiveSources() (ok *fakeSource, failing *fakeSource, miss *fakeSource) {
	ok = &fakeSource{name: provider.NameDeezer, cands: []provider.Candidate{
		{SourceID: "1", Title: "Take Five (Live)", Artist: "Some Tribute Band", Rank: 1},
		takeFive,
	}}
	failing = &fakeSource{name: provider.NameMusicBrainz, err: errors.New("503 from upstream")}
	miss = &fakeSource{name: provider.NameSpotify, cands: []provider.Candidate{
		{SourceID: "x", Title: "Take Ten", Artist: "Paul Desmond", Rank: 1},
	}}
	return ok, failing, miss
}

func TestPipeline_Process(t *testing.T) {
	ok, failing, miss := takeFiveSources()
	store := newMemStore()
	store.songs["S1"] = catalog.Song{ID: "S1", Title: "Take 5", Artist: "Dave Brubeck"}

	bus := event.NewBus(logging.Discard(), 32)
	var mu sync.Mutex
	got := map[event.Type][]event.Event{}
	bus.SubscribeAll(func(e event.Event) {
		mu.Lock()
		got[e.Type] = append(got[e.Type], e)
		mu.Unlock()
	})
	go bus.Start()

	p := NewPipeline(sourceSlice{failing, ok, miss}, store, match.NewScorer(match.ModeStrict), string(provider.NameDeezer), logging.Discard())
	p.SetEventBus(bus)

	var reports []Progress
	sum, err := p.Process(context.Background(), Job{ID: "j1", EntityID: "S1", EntityName: "Take Five"}, func(pr Progress) {
		reports = append(reports, pr)
	})
	require.NoError(t, err)
	assert.Equal(t, Summary{Sources: 3, Accepted: 1, Rejected: 1, Failed: 1}, sum)

	// The job name wins over the stored title; stored hints fill the rest.
	want := provider.Query{Title: "Take Five", Artist: "Dave Brubeck"}
	assert.Equal(t, []provider.Query{want}, ok.queries)
	assert.Equal(t, "Take Five", store.songs["S1"].Title)

	require.Len(t, store.matches, 1)
	m := store.matches[0]
	assert.Equal(t, "deezer", m.Source)
	assert.Equal(t, "3135556", m.ExternalID)
	assert.Equal(t, "S1", m.SongID)
	assert.Equal(t, "strict", m.Mode)
	assert.Equal(t, []string{"S1"}, store.refresh)

	require.NotEmpty(t, reports)
	assert.Equal(t, Progress{Phase: PhaseSourceImport, Source: "musicbrainz", Current: 1, Total: 3}, reports[0])
	assert.Equal(t, PhaseCandidateMatch, reports[len(reports)-1].Phase)
	assert.Equal(t, 3, reports[len(reports)-1].Current)

	bus.Stop()
	require.True(t, bus.Wait(5*time.Second))
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got[event.SourceFailed], 1)
	assert.Equal(t, "musicbrainz", got[event.SourceFailed][0].StringData(event.DataSource))
	require.Len(t, got[event.MatchAccepted], 1)
	assert.Equal(t, "3135556", got[event.MatchAccepted][0].StringData(event.DataExternalID))
	require.Len(t, got[event.MatchRejected], 1)
	assert.Equal(t, "spotify", got[event.MatchRejected][0].StringData(event.DataSource))
}

func TestPipeline_NothingAcceptedSkipsRepresentative(t *testing.T) {
	_, failing, miss := takeFiveSources()
	store := newMemStore()
	p := NewPipeline(sourceSlice{failing, miss}, store, match.NewScorer(match.ModeStrict), "", logging.Discard())

	sum, err := p.Process(context.Background(), Job{ID: "j1", EntityID: "S9", EntityName: "Take Five"}, func(Progress) {})
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Accepted)
	assert.Empty(t, store.refresh)
	assert.Contains(t, store.songs, "S9", "unknown songs are created from the job name")
}

func TestPipeline_StoreErrorsFailTheJob(t *testing.T) {
	ok, _, _ := takeFiveSources()

	t.Run("hints", func(t *testing.T) {
		store := newMemStore()
		store.hintsErr = errors.New("pool exhausted")
		p := NewPipeline(sourceSlice{ok}, store, match.NewScorer(match.ModeStrict), "", logging.Discard())
		_, err := p.Process(context.Background(), Job{EntityID: "S1", EntityName: "Take Five"}, func(Progress) {})
		assert.ErrorContains(t, err, "pool exhausted")
	})

	t.Run("match", func(t *testing.T) {
		store := newMemStore()
		store.matchErr = errors.New("disk full")
		p := NewPipeline(sourceSlice{ok}, store, match.NewScorer(match.ModeLoose), "", logging.Discard())
		_, err := p.Process(context.Background(), Job{EntityID: "S1", EntityName: "Take Five"}, func(Progress) {})
		assert.ErrorContains(t, err, "disk full")
	})

	t.Run("no title", func(t *testing.T) {
		p := NewPipeline(sourceSlice{ok}, newMemStore(), match.NewScorer(match.ModeStrict), "", logging.Discard())
		_, err := p.Process(context.Background(), Job{EntityID: "S1"}, func(Progress) {})
		assert.ErrorContains(t, err, "no title")
	})
}

func TestPipeline_Preview(t *testing.T) {
	ok, failing, _ := takeFiveSources()
	store := newMemStore()
	p := NewPipeline(sourceSlice{failing, ok}, store, match.NewScorer(match.ModeStrict), "", logging.Discard())

	out := p.Preview(context.Background(), provider.Query{Title: "Take Five", Artist: "Dave Brubeck"})
	require.Len(t, out, 2)
	assert.Equal(t, provider.NameMusicBrainz, out[0].Source)
	assert.Error(t, out[0].Err)

	assert.NoError(t, out[1].Err)
	require.Len(t, out[1].Evaluations, 2)
	assert.True(t, out[1].Decision.Accepted)
	require.NotNil(t, out[1].Decision.Candidate)
	assert.Equal(t, "3135556", out[1].Decision.Candidate.SourceID)
	assert.Empty(t, store.matches, "preview never persists")
}

func newSQLiteStore(t *testing.T) *catalog.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "research.db")
	opener := func(ctx context.Context) (*sql.DB, error) {
		db, err := database.Open(ctx, database.Options{Driver: database.DriverSQLite, Path: path})
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(db, database.DriverSQLite); err != nil {
			db.Close() //nolint:errcheck
			return nil, err
		}
		return db, nil
	}
	p := pool.New(pool.DefaultConfig(), opener, pool.WithLogger(logging.Discard()))
	t.Cleanup(func() { p.Close() }) //nolint:errcheck
	return catalog.NewStore(p, database.DriverSQLite)
}

func TestPipeline_PersistsToCatalog(t *testing.T) {
	ok, failing, miss := takeFiveSources()
	store := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertSong(ctx, &catalog.Song{ID: "S1", Title: "Take Five", Artist: "Dave Brubeck"}))

	p := NewPipeline(sourceSlice{failing, ok, miss}, store, match.NewScorer(match.ModeStrict), string(provider.NameDeezer), logging.Discard())
	_, err := p.Process(ctx, Job{ID: "j1", EntityID: "S1", EntityName: "Take Five"}, func(Progress) {})
	require.NoError(t, err)

	// A second run updates in place rather than adding a row.
	_, err = p.Process(ctx, Job{ID: "j2", EntityID: "S1", EntityName: "Take Five"}, func(Progress) {})
	require.NoError(t, err)

	matches, err := store.MatchesForSong(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "3135556", matches[0].ExternalID)

	song, err := store.SongHints(ctx, "S1")
	require.NoError(t, err)
	require.NotNil(t, song)
	assert.Equal(t, matches[0].ID, song.DefaultMatchID)
}
