// Package catalog persists songs, their accepted source matches and the
// research log through the connection pool.
package catalog

import (
	"time"

	"github.com/sydlexius/refrain/internal/match"
	"github.com/sydlexius/refrain/internal/provider"
)

// Song is a catalog entity researched against external sources. Artist,
// Album and Year are optional hints that narrow source queries.
type Song struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Artist         string    `json:"artist,omitempty"`
	Album          string    `json:"album,omitempty"`
	Year           int       `json:"year,omitempty"`
	DefaultMatchID string    `json:"default_match_id,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Query returns the source query for this song.
func (s Song) Query() provider.Query {
	return provider.Query{Title: s.Title, Artist: s.Artist, Album: s.Album, Year: s.Year}
}

// Match is an accepted candidate persisted against a song. There is at most
// one per (SongID, Source).
type Match struct {
	ID          string    `json:"id"`
	SongID      string    `json:"song_id"`
	Source      string    `json:"source"`
	ExternalID  string    `json:"external_id"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist,omitempty"`
	Album       string    `json:"album,omitempty"`
	ArtworkURL  string    `json:"artwork_url,omitempty"`
	AlbumURL    string    `json:"album_url,omitempty"`
	ExternalURL string    `json:"external_url,omitempty"`
	Score       float64   `json:"score"`
	Threshold   float64   `json:"threshold"`
	Mode        string    `json:"mode"`
	MatchedAt   time.Time `json:"matched_at"`
}

// MatchFromDecision builds the row for an accepted decision. It returns
// false when the decision was not accepted.
func MatchFromDecision(songID string, source provider.ProviderName, d match.Decision) (Match, bool) {
	if !d.Accepted || d.Candidate == nil {
		return Match{}, false
	}
	c := d.Candidate
	return Match{
		SongID:      songID,
		Source:      string(source),
		ExternalID:  c.SourceID,
		Title:       c.Title,
		Artist:      c.Artist,
		Album:       c.Album,
		ArtworkURL:  c.ArtworkURL,
		AlbumURL:    c.AlbumURL,
		ExternalURL: c.ExternalURL,
		Score:       d.Score,
		Threshold:   d.Threshold,
		Mode:        string(d.Mode),
	}, true
}

// LogEntry is one research log row.
type LogEntry struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	SongID    string    `json:"song_id"`
	SongName  string    `json:"song_name,omitempty"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
