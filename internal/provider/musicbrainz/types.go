package musicbrainz

import "encoding/json"

// MusicBrainz API response types.

// RecordingSearchResponse is the top-level response from the recording
// search endpoint. Recordings are kept raw so one bad entry does not fail
// the whole page.
type RecordingSearchResponse struct {
	Created    string            `json:"created"`
	Count      int               `json:"count"`
	Offset     int               `json:"offset"`
	Recordings []json.RawMessage `json:"recordings"`
}

// MBRecording represents a MusicBrainz recording entity.
type MBRecording struct {
	ID               string           `json:"id"`
	Score            int              `json:"score"`
	Title            string           `json:"title"`
	Length           int              `json:"length"`
	Disambiguation   string           `json:"disambiguation"`
	FirstReleaseDate string           `json:"first-release-date"`
	ArtistCredit     []MBArtistCredit `json:"artist-credit"`
	Releases         []MBRelease      `json:"releases"`
}

// MBArtistCredit is one entry of an artist credit, joined by JoinPhrase.
type MBArtistCredit struct {
	Name       string `json:"name"`
	JoinPhrase string `json:"joinphrase"`
	Artist     struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"artist"`
}

// MBRelease is a release a recording appears on.
type MBRelease struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Status       string `json:"status"`
	Date         string `json:"date"`
	ReleaseGroup struct {
		ID          string `json:"id"`
		PrimaryType string `json:"primary-type"`
	} `json:"release-group"`
}
