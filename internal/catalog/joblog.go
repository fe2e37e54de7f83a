package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sydlexius/refrain/internal/event"
	"github.com/sydlexius/refrain/internal/logging"
)

// LogAppender is the subset of Store used by JobLogger.
type LogAppender interface {
	AppendLog(ctx context.Context, e LogEntry) error
}

// JobLogger records research lifecycle events in the research log.
type JobLogger struct {
	store   LogAppender
	logger  *slog.Logger
	timeout time.Duration
}

// NewJobLogger creates a JobLogger.
func NewJobLogger(store LogAppender, logger *slog.Logger) *JobLogger {
	return &JobLogger{
		store:   store,
		logger:  logging.ForComponent(logger, "job-log"),
		timeout: 10 * time.Second,
	}
}

// loggedEvents are the event types written to the research log.
var loggedEvents = []event.Type{
	event.ResearchStarted,
	event.ResearchCompleted,
	event.ResearchFailed,
	event.ResearchDiscarded,
	event.SourceFailed,
	event.MatchAccepted,
	event.MatchRejected,
}

// Subscribe attaches the logger to bus.
func (l *JobLogger) Subscribe(bus *event.Bus) {
	for _, t := range loggedEvents {
		bus.Subscribe(t, l.Handle)
	}
}

// Handle writes one event. Failures are logged and dropped; the research
// log is best effort.
func (l *JobLogger) Handle(e event.Event) {
	entry := LogEntry{
		JobID:     e.StringData(event.DataJobID),
		SongID:    e.StringData(event.DataEntityID),
		SongName:  e.StringData(event.DataEntityName),
		Status:    string(e.Type),
		Detail:    detail(e),
		CreatedAt: e.Timestamp,
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	if err := l.store.AppendLog(ctx, entry); err != nil {
		l.logger.Warn("writing research log entry failed",
			slog.String("type", string(e.Type)),
			slog.String(logging.KeyJobID, entry.JobID),
			logging.Err(err))
	}
}

func detail(e event.Event) string {
	source := e.StringData(event.DataSource)
	switch e.Type {
	case event.MatchAccepted:
		return fmt.Sprintf("%s: accepted %s (score %.2f >= %.2f)",
			source, e.StringData(event.DataExternalID), number(e.Data[event.DataScore]), number(e.Data[event.DataThreshold]))
	case event.MatchRejected:
		return fmt.Sprintf("%s: no match among %d candidates (best %.2f < %.2f)",
			source, int(number(e.Data[event.DataCandidates])), number(e.Data[event.DataScore]), number(e.Data[event.DataThreshold]))
	case event.SourceFailed:
		return fmt.Sprintf("%s: %s", source, e.StringData(event.DataError))
	case event.ResearchFailed:
		return e.StringData(event.DataError)
	case event.ResearchDiscarded:
		return "discarded on shutdown before it started"
	case event.ResearchCompleted:
		return fmt.Sprintf("%d matches accepted in %dms",
			int(number(e.Data[event.DataAccepted])), int64(number(e.Data[event.DataDuration])))
	default:
		return ""
	}
}

// number converts the numeric kinds the worker publishes to float64.
func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
