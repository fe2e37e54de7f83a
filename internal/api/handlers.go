package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/sydlexius/refrain/internal/logging"
	"github.com/sydlexius/refrain/internal/pool"
	"github.com/sydlexius/refrain/internal/version"
)

// storeRetryAfterSeconds is the Retry-After hint sent with a 503 when the
// backing store is down.
const storeRetryAfterSeconds = 5

type healthResponse struct {
	Status    string      `json:"status"`
	Version   string      `json:"version"`
	Commit    string      `json:"commit"`
	Time      string      `json:"time"`
	Pool      *pool.Stats `json:"pool,omitempty"`
	Reachable bool        `json:"backing_store_reachable"`
	Error     string      `json:"error,omitempty"`
}

// handleHealth reports 200 when the store answers a ping and 503 otherwise.
// An uninitialized pool is reported without forcing it open. Without a
// health checker only liveness is reported.
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	resp := healthResponse{
		Status:  "healthy",
		Version: version.Version,
		Commit:  version.Commit,
		Time:    r.now().UTC().Format(time.RFC3339),
	}
	if r.health == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	if st, ok := r.health.Stats(); ok {
		resp.Pool = &st
	}

	ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
	defer cancel()
	if err := r.health.Ping(ctx); err != nil {
		r.logger.Warn("health check failed", logging.Err(err))
		resp.Status = "unhealthy"
		resp.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Reachable = true
	writeJSON(w, http.StatusOK, resp)
}

// storeUnavailable reports whether err means the backing store could not be
// reached or leased from, as opposed to a failed query.
func storeUnavailable(err error) bool {
	return errors.IsAny(err, pool.ErrPoolUnavailable, pool.ErrPoolTimeout)
}

// writeStoreError answers 503 for backing store outages and 500 with msg
// for anything else.
func writeStoreError(w http.ResponseWriter, err error, msg string) {
	if storeUnavailable(err) {
		w.Header().Set("Retry-After", strconv.Itoa(storeRetryAfterSeconds))
		writeError(w, http.StatusServiceUnavailable, "backing store unavailable")
		return
	}
	writeError(w, http.StatusInternalServerError, msg)
}

// writeError sends a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
	}
}
