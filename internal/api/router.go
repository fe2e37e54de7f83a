// Package api serves the JSON HTTP interface: research submission, queue
// inspection, stored matches, the research log and health.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sydlexius/refrain/internal/api/middleware"
	"github.com/sydlexius/refrain/internal/catalog"
	"github.com/sydlexius/refrain/internal/logging"
	"github.com/sydlexius/refrain/internal/pool"
	"github.com/sydlexius/refrain/internal/research"
)

// ResearchQueue is the worker surface the API drives.
type ResearchQueue interface {
	EnqueueJob(entityID, entityName string) (research.Job, error)
	QueueSnapshot() []research.Job
	Status() research.Status
}

// Catalog is the read side of the catalog plus hint storage for submissions.
type Catalog interface {
	SongHints(ctx context.Context, id string) (*catalog.Song, error)
	UpsertSong(ctx context.Context, song *catalog.Song) error
	MatchesForSong(ctx context.Context, songID string) ([]catalog.Match, error)
	RecentLog(ctx context.Context, limit int) ([]catalog.LogEntry, error)
}

// HealthChecker reports on the backing store.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Stats() (pool.Stats, bool)
}

// RouterDeps bundles all dependencies needed by the HTTP router.
type RouterDeps struct {
	Queue    ResearchQueue
	Catalog  Catalog
	Health   HealthChecker
	Logger   *slog.Logger
	BasePath string

	// SubmitLimiter throttles POST /research; nil disables throttling.
	SubmitLimiter *middleware.SubmitRateLimiter
}

// Router sets up all HTTP routes for the application.
type Router struct {
	queue         ResearchQueue
	catalog       Catalog
	health        HealthChecker
	logger        *slog.Logger
	basePath      string
	submitLimiter *middleware.SubmitRateLimiter
	now           func() time.Time
}

// NewRouter creates a new Router with all routes configured.
func NewRouter(deps RouterDeps) *Router {
	return &Router{
		queue:         deps.Queue,
		catalog:       deps.Catalog,
		health:        deps.Health,
		logger:        logging.ForComponent(deps.Logger, "api"),
		basePath:      deps.BasePath,
		submitLimiter: deps.SubmitLimiter,
		now:           time.Now,
	}
}

// Handler returns the fully configured HTTP handler with middleware applied.
func (r *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	bp := r.basePath

	mux.HandleFunc("GET "+bp+"/api/v1/health", r.handleHealth)

	var submit http.Handler = http.HandlerFunc(r.handleSubmitResearch)
	if r.submitLimiter != nil {
		submit = r.submitLimiter.Middleware(submit)
	}
	mux.Handle("POST "+bp+"/api/v1/research", submit)

	// Queue routes
	mux.HandleFunc("GET "+bp+"/api/v1/queue", r.handleQueue)
	mux.HandleFunc("GET "+bp+"/api/v1/queue/status", r.handleQueueStatus)

	// Catalog routes
	mux.HandleFunc("GET "+bp+"/api/v1/songs/{id}", r.handleGetSong)
	mux.HandleFunc("GET "+bp+"/api/v1/songs/{id}/matches", r.handleSongMatches)
	mux.HandleFunc("GET "+bp+"/api/v1/log", r.handleLog)

	return middleware.Logging(r.logger)(middleware.SecurityHeaders(mux))
}
