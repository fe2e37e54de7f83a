package spotify

import "encoding/json"

// SearchResponse is the response from /search?type=track.
type SearchResponse struct {
	Tracks struct {
		Items []json.RawMessage `json:"items"`
		Total int               `json:"total"`
	} `json:"tracks"`
}

// TracksResponse is the response from /tracks?ids=. Unknown ids come back
// as null entries.
type TracksResponse struct {
	Tracks []json.RawMessage `json:"tracks"`
}

// SpotifyTrack is a full track object.
type SpotifyTrack struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Popularity   int               `json:"popularity"`
	Artists      []SpotifyArtist   `json:"artists"`
	Album        SpotifyAlbum      `json:"album"`
	ExternalURLs map[string]string `json:"external_urls"`
}

// SpotifyArtist is a simplified artist object.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyAlbum is a simplified album object.
type SpotifyAlbum struct {
	ID                   string            `json:"id"`
	Name                 string            `json:"name"`
	AlbumType            string            `json:"album_type"`
	ReleaseDate          string            `json:"release_date"`
	ReleaseDatePrecision string            `json:"release_date_precision"`
	Images               []SpotifyImage    `json:"images"`
	ExternalURLs         map[string]string `json:"external_urls"`
}

// SpotifyImage is one size of album artwork, largest first.
type SpotifyImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}
