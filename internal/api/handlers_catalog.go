package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sydlexius/refrain/internal/catalog"
	"github.com/sydlexius/refrain/internal/logging"
)

const maxLogLimit = 500

func (r *Router) handleGetSong(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	song, err := r.catalog.SongHints(req.Context(), id)
	if err != nil {
		r.logger.Error("loading song", slog.String(logging.KeyEntityID, id), logging.Err(err))
		writeStoreError(w, err, "could not load song")
		return
	}
	if song == nil {
		writeError(w, http.StatusNotFound, "song not found")
		return
	}
	writeJSON(w, http.StatusOK, song)
}

// handleSongMatches returns every accepted match for a song and marks the
// default representative.
func (r *Router) handleSongMatches(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	song, err := r.catalog.SongHints(req.Context(), id)
	if err != nil {
		r.logger.Error("loading song", slog.String(logging.KeyEntityID, id), logging.Err(err))
		writeStoreError(w, err, "could not load song")
		return
	}
	if song == nil {
		writeError(w, http.StatusNotFound, "song not found")
		return
	}

	matches, err := r.catalog.MatchesForSong(req.Context(), id)
	if err != nil {
		r.logger.Error("loading matches", slog.String(logging.KeyEntityID, id), logging.Err(err))
		writeStoreError(w, err, "could not load matches")
		return
	}
	if matches == nil {
		matches = []catalog.Match{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"song_id":          id,
		"default_match_id": song.DefaultMatchID,
		"matches":          matches,
	})
}

func (r *Router) handleLog(w http.ResponseWriter, req *http.Request) {
	limit := 50
	if v := req.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLogLimit)
	}
	entries, err := r.catalog.RecentLog(req.Context(), limit)
	if err != nil {
		r.logger.Error("loading research log", logging.Err(err))
		writeStoreError(w, err, "could not load research log")
		return
	}
	if entries == nil {
		entries = []catalog.LogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
