package deezer

import "encoding/json"

// SearchResponse is the envelope returned by /search/track. Deezer reports
// quota and parameter errors inside a 200 response via Error.
type SearchResponse struct {
	Data  []json.RawMessage `json:"data"`
	Total int               `json:"total"`
	Next  string            `json:"next"`
	Error *APIError         `json:"error,omitempty"`
}

// APIError is the error object embedded in Deezer responses.
type APIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// DeezerTrack is a track from the search endpoint.
type DeezerTrack struct {
	ID       int64        `json:"id"`
	Title    string       `json:"title"`
	Link     string       `json:"link"`
	Duration int          `json:"duration"`
	Rank     int          `json:"rank"`
	Artist   DeezerArtist `json:"artist"`
	Album    DeezerAlbum  `json:"album"`
}

// DeezerArtist is the nested artist object on a track.
type DeezerArtist struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Link string `json:"link"`
}

// DeezerAlbum is the nested album object on a track.
type DeezerAlbum struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Cover       string `json:"cover"`
	CoverMedium string `json:"cover_medium"`
	CoverBig    string `json:"cover_big"`
	CoverXL     string `json:"cover_xl"`
}
