package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/sydlexius/refrain/internal/catalog"
	"github.com/sydlexius/refrain/internal/logging"
	"github.com/sydlexius/refrain/internal/research"
)

// maxSubmitBody bounds the research request body.
const maxSubmitBody = 64 << 10

type submitRequest struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
	Year   int    `json:"year,omitempty"`
}

// handleSubmitResearch queues research for one song. Optional hints are
// stored on the song first so the worker can use them.
func (r *Router) handleSubmitResearch(w http.ResponseWriter, req *http.Request) {
	var body submitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxSubmitBody))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	body.ID = strings.TrimSpace(body.ID)
	body.Name = strings.TrimSpace(body.Name)
	if body.ID == "" || body.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required")
		return
	}
	if body.Year < 0 {
		writeError(w, http.StatusBadRequest, "year must not be negative")
		return
	}

	if body.Artist != "" || body.Album != "" || body.Year > 0 {
		song := &catalog.Song{
			ID:     body.ID,
			Title:  body.Name,
			Artist: strings.TrimSpace(body.Artist),
			Album:  strings.TrimSpace(body.Album),
			Year:   body.Year,
		}
		if err := r.catalog.UpsertSong(req.Context(), song); err != nil {
			r.logger.Error("storing song hints", slog.String(logging.KeyEntityID, body.ID), logging.Err(err))
			writeStoreError(w, err, "could not store song")
			return
		}
	}

	job, err := r.queue.EnqueueJob(body.ID, body.Name)
	if err != nil {
		if errors.Is(err, research.ErrQueueClosed) {
			writeError(w, http.StatusServiceUnavailable, "research queue is not accepting jobs")
			return
		}
		writeError(w, http.StatusInternalServerError, "could not queue research")
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (r *Router) handleQueue(w http.ResponseWriter, req *http.Request) {
	jobs := r.queue.QueueSnapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"size": len(jobs),
		"jobs": jobs,
	})
}

func (r *Router) handleQueueStatus(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.queue.Status())
}
