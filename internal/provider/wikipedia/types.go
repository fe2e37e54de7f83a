package wikipedia

// MediaWiki action API response types (formatversion=2).

// SearchResponse is returned by action=query&list=search.
type SearchResponse struct {
	Query struct {
		Search []SearchHit `json:"search"`
	} `json:"query"`
	Error *APIError `json:"error,omitempty"`
}

// SearchHit is one full-text search result. Snippet contains HTML.
type SearchHit struct {
	NS      int    `json:"ns"`
	Title   string `json:"title"`
	PageID  int64  `json:"pageid"`
	Snippet string `json:"snippet"`
}

// PagesResponse is returned by action=query&pageids=... with page props.
type PagesResponse struct {
	Query struct {
		Pages []Page `json:"pages"`
	} `json:"query"`
	Error *APIError `json:"error,omitempty"`
}

// Page is a page with info, pageimages and extracts props.
type Page struct {
	PageID    int64  `json:"pageid"`
	Title     string `json:"title"`
	Missing   bool   `json:"missing"`
	FullURL   string `json:"fullurl"`
	Extract   string `json:"extract"`
	Thumbnail *struct {
		Source string `json:"source"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	} `json:"thumbnail"`
}

// APIError is the MediaWiki error envelope.
type APIError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}
