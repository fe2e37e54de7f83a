package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sydlexius/refrain/internal/database"
	"github.com/sydlexius/refrain/internal/pool"
)

// timeLayout is fixed-width UTC so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

const matchColumns = `id, song_id, source, external_id, title, artist, album,
	artwork_url, album_url, external_url, score, threshold, mode, matched_at`

// Store provides song, match and research log operations. Every call runs
// in its own short pool lease.
type Store struct {
	pool   *pool.Pool
	driver string
	now    func() time.Time
}

// NewStore creates a catalog store. driver selects the placeholder style.
func NewStore(p *pool.Pool, driver string) *Store {
	return &Store{pool: p, driver: driver, now: time.Now}
}

func (s *Store) q(query string) string {
	return database.Rebind(s.driver, query)
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(timeLayout)
}

// SongHints returns the stored song, or nil if it is unknown.
func (s *Store) SongHints(ctx context.Context, id string) (*Song, error) {
	var song *Song
	err := s.pool.WithConnection(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		song, err = s.getSong(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("loading song %s: %w", id, err)
	}
	return song, nil
}

func (s *Store) getSong(ctx context.Context, tx *sql.Tx, id string) (*Song, error) {
	var song Song
	var defaultID sql.NullString
	var updatedAt string
	err := tx.QueryRowContext(ctx, s.q(`
		SELECT id, title, artist, album, year, default_match_id, updated_at
		FROM songs WHERE id = ?`), id).
		Scan(&song.ID, &song.Title, &song.Artist, &song.Album, &song.Year, &defaultID, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	song.DefaultMatchID = defaultID.String
	song.UpdatedAt = parseTime(updatedAt)
	return &song, nil
}

// UpsertSong inserts or updates a song. Empty hint fields never overwrite
// stored ones, so enqueueing by name alone keeps an existing artist/album.
func (s *Store) UpsertSong(ctx context.Context, song *Song) error {
	if song.ID == "" {
		return errors.New("song id is required")
	}
	now := s.stamp()
	err := s.pool.WithConnection(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO songs (id, title, artist, album, year, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				title      = CASE WHEN excluded.title <> '' THEN excluded.title ELSE songs.title END,
				artist     = CASE WHEN excluded.artist <> '' THEN excluded.artist ELSE songs.artist END,
				album      = CASE WHEN excluded.album <> '' THEN excluded.album ELSE songs.album END,
				year       = CASE WHEN excluded.year > 0 THEN excluded.year ELSE songs.year END,
				updated_at = excluded.updated_at`),
			song.ID, song.Title, song.Artist, song.Album, song.Year, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("upserting song %s: %w", song.ID, err)
	}
	song.UpdatedAt = parseTime(now)
	return nil
}

// UpsertMatch stores an accepted match keyed by (song, source). Re-running
// a match for the same pair updates the existing row and keeps its id.
func (s *Store) UpsertMatch(ctx context.Context, m *Match) error {
	if m.SongID == "" || m.Source == "" || m.ExternalID == "" {
		return errors.New("match requires song id, source and external id")
	}
	id := m.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := s.stamp()
	err := s.pool.WithConnection(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO song_matches (`+matchColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (song_id, source) DO UPDATE SET
				external_id  = excluded.external_id,
				title        = excluded.title,
				artist       = excluded.artist,
				album        = excluded.album,
				artwork_url  = excluded.artwork_url,
				album_url    = excluded.album_url,
				external_url = excluded.external_url,
				score        = excluded.score,
				threshold    = excluded.threshold,
				mode         = excluded.mode,
				matched_at   = excluded.matched_at`),
			id, m.SongID, m.Source, m.ExternalID, m.Title, m.Artist, m.Album,
			m.ArtworkURL, m.AlbumURL, m.ExternalURL, m.Score, m.Threshold, m.Mode, now)
		if err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, s.q(`SELECT id FROM song_matches WHERE song_id = ? AND source = ?`),
			m.SongID, m.Source).Scan(&id)
	})
	if err != nil {
		return fmt.Errorf("upserting %s match for song %s: %w", m.Source, m.SongID, err)
	}
	m.ID = id
	m.MatchedAt = parseTime(now)
	return nil
}

// MatchesForSong returns a song's matches ordered by source.
func (s *Store) MatchesForSong(ctx context.Context, songID string) ([]Match, error) {
	var out []Match
	err := s.pool.WithConnection(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		out, err = s.matchesForSong(ctx, tx, songID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing matches for song %s: %w", songID, err)
	}
	return out, nil
}

func (s *Store) matchesForSong(ctx context.Context, tx *sql.Tx, songID string) ([]Match, error) {
	rows, err := tx.QueryContext(ctx, s.q(`SELECT `+matchColumns+`
		FROM song_matches WHERE song_id = ? ORDER BY source`), songID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck
	return scanMatches(rows)
}

// MatchesForSource returns up to limit matches from one source, oldest
// first, so a verify pass refreshes the stalest rows.
func (s *Store) MatchesForSource(ctx context.Context, source string, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []Match
	err := s.pool.WithConnection(ctx, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, s.q(`SELECT `+matchColumns+`
			FROM song_matches WHERE source = ? ORDER BY matched_at, id LIMIT ?`), source, limit)
		if err != nil {
			return err
		}
		defer rows.Close() //nolint:errcheck
		out, err = scanMatches(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s matches: %w", source, err)
	}
	return out, nil
}

// UpdateMatchArtwork refreshes the derived link fields of a stored match.
func (s *Store) UpdateMatchArtwork(ctx context.Context, id, artworkURL, albumURL, externalURL string) error {
	now := s.stamp()
	err := s.pool.WithConnection(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(`
			UPDATE song_matches
			SET artwork_url = ?, album_url = ?, external_url = ?, matched_at = ?
			WHERE id = ?`), artworkURL, albumURL, externalURL, now, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("match not found: %s", id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("updating match %s: %w", id, err)
	}
	return nil
}

// RefreshRepresentative recomputes and stores the song's default match. It
// returns the chosen match, or nil when the song has none.
func (s *Store) RefreshRepresentative(ctx context.Context, songID, namedSource string) (*Match, error) {
	var chosen *Match
	err := s.pool.WithConnection(ctx, func(ctx context.Context, tx *sql.Tx) error {
		matches, err := s.matchesForSong(ctx, tx, songID)
		if err != nil {
			return err
		}
		chosen = PickRepresentative(matches, namedSource)
		var defaultID any
		if chosen != nil {
			defaultID = chosen.ID
		}
		_, err = tx.ExecContext(ctx, s.q(`UPDATE songs SET default_match_id = ? WHERE id = ?`), defaultID, songID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("refreshing representative for song %s: %w", songID, err)
	}
	return chosen, nil
}

// AppendLog writes a research log row.
func (s *Store) AppendLog(ctx context.Context, e LogEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	created := s.stamp()
	if !e.CreatedAt.IsZero() {
		created = e.CreatedAt.UTC().Format(timeLayout)
	}
	err := s.pool.WithConnection(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO research_log (id, job_id, song_id, song_name, status, detail, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`),
			e.ID, e.JobID, e.SongID, e.SongName, e.Status, e.Detail, created)
		return err
	})
	if err != nil {
		return fmt.Errorf("appending research log: %w", err)
	}
	return nil
}

// RecentLog returns up to limit log rows, newest first.
func (s *Store) RecentLog(ctx context.Context, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []LogEntry
	err := s.pool.WithConnection(ctx, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, s.q(`
			SELECT id, job_id, song_id, song_name, status, detail, created_at
			FROM research_log ORDER BY created_at DESC, id DESC LIMIT ?`), limit)
		if err != nil {
			return err
		}
		defer rows.Close() //nolint:errcheck
		out = out[:0]
		for rows.Next() {
			var e LogEntry
			var created string
			if err := rows.Scan(&e.ID, &e.JobID, &e.SongID, &e.SongName, &e.Status, &e.Detail, &created); err != nil {
				return err
			}
			e.CreatedAt = parseTime(created)
			out = append(out, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("reading research log: %w", err)
	}
	return out, nil
}

func scanMatches(rows *sql.Rows) ([]Match, error) {
	var out []Match
	for rows.Next() {
		var m Match
		var matchedAt string
		if err := rows.Scan(&m.ID, &m.SongID, &m.Source, &m.ExternalID, &m.Title, &m.Artist, &m.Album,
			&m.ArtworkURL, &m.AlbumURL, &m.ExternalURL, &m.Score, &m.Threshold, &m.Mode, &matchedAt); err != nil {
			return nil, err
		}
		m.MatchedAt = parseTime(matchedAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

// parseTime parses a stored timestamp, handling both RFC3339 and SQLite datetime formats.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}
