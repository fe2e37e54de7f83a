package research

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sydlexius/refrain/internal/catalog"
	"github.com/sydlexius/refrain/internal/event"
	"github.com/sydlexius/refrain/internal/logging"
	"github.com/sydlexius/refrain/internal/match"
	"github.com/sydlexius/refrain/internal/provider"
)

// CatalogStore is the persistence the pipeline needs.
type CatalogStore interface {
	SongHints(ctx context.Context, id string) (*catalog.Song, error)
	UpsertSong(ctx context.Context, song *catalog.Song) error
	UpsertMatch(ctx context.Context, m *catalog.Match) error
	RefreshRepresentative(ctx context.Context, songID, namedSource string) (*catalog.Match, error)
}

// SourceList yields the sources to consult, in order.
type SourceList interface {
	All() []provider.Source
}

// Pipeline is the Processor that researches a song against every enabled
// source: lookup, score, persist the accepted match, then refresh the
// song's default representative.
type Pipeline struct {
	sources        SourceList
	store          CatalogStore
	scorer         *match.Scorer
	representative string
	logger         *slog.Logger
	bus            *event.Bus
}

// NewPipeline creates a Pipeline. representative names the source whose
// album links are preferred when choosing the default match.
func NewPipeline(sources SourceList, store CatalogStore, scorer *match.Scorer, representative string, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		sources:        sources,
		store:          store,
		scorer:         scorer,
		representative: representative,
		logger:         logging.ForComponent(logger, "research-pipeline"),
	}
}

// SetEventBus sets the event bus for per-source outcome events.
func (p *Pipeline) SetEventBus(bus *event.Bus) {
	p.bus = bus
}

// Process implements Processor. A source that fails or has no acceptable
// candidate does not fail the job; a persistence failure does.
func (p *Pipeline) Process(ctx context.Context, job Job, report ReportFunc) (Summary, error) {
	var sum Summary

	song, err := p.store.SongHints(ctx, job.EntityID)
	if err != nil {
		return sum, err
	}
	if song == nil {
		song = &catalog.Song{ID: job.EntityID}
	}
	if job.EntityName != "" {
		song.Title = job.EntityName
	}
	if song.Title == "" {
		return sum, fmt.Errorf("song %s has no title to research", job.EntityID)
	}
	if err := p.store.UpsertSong(ctx, song); err != nil {
		return sum, err
	}

	q := song.Query()
	sources := p.sources.All()
	sum.Sources = len(sources)

	for i, src := range sources {
		name := src.Name()
		log := p.logger.With(slog.String(logging.KeyJobID, job.ID), slog.String(logging.KeySource, string(name)))

		report(Progress{Phase: PhaseSourceImport, Source: string(name), Current: i + 1, Total: len(sources)})
		res, err := src.Lookup(ctx, q)
		if err != nil {
			sum.Failed++
			log.Warn("source lookup failed", logging.Err(err))
			p.publish(event.SourceFailed, job, name, map[string]any{event.DataError: err.Error()})
			continue
		}

		report(Progress{Phase: PhaseCandidateMatch, Source: string(name), Current: i + 1, Total: len(sources)})
		d := p.scorer.Decide(q, res.Candidates)
		m, ok := catalog.MatchFromDecision(song.ID, name, d)
		if !ok {
			sum.Rejected++
			log.Info("no acceptable candidate",
				slog.Int("candidates", d.Evaluated),
				slog.Float64("best_score", d.Score),
				slog.Bool("from_cache", res.FromCache))
			p.publish(event.MatchRejected, job, name, map[string]any{
				event.DataCandidates: d.Evaluated,
				event.DataScore:      d.Score,
				event.DataThreshold:  d.Threshold,
				event.DataFromCache:  res.FromCache,
			})
			continue
		}

		if err := p.store.UpsertMatch(ctx, &m); err != nil {
			return sum, err
		}
		sum.Accepted++
		log.Info("match accepted",
			slog.String("external_id", m.ExternalID),
			slog.Float64("score", m.Score),
			slog.Bool("from_cache", res.FromCache))
		p.publish(event.MatchAccepted, job, name, map[string]any{
			event.DataExternalID: m.ExternalID,
			event.DataScore:      m.Score,
			event.DataThreshold:  m.Threshold,
			event.DataFromCache:  res.FromCache,
		})
	}

	if sum.Accepted > 0 {
		if _, err := p.store.RefreshRepresentative(ctx, song.ID, p.representative); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

// SourcePreview is one source's ranked candidates for a query.
type SourcePreview struct {
	Source      provider.ProviderName `json:"source"`
	FromCache   bool                  `json:"from_cache"`
	Skipped     int                   `json:"skipped"`
	Evaluations []match.Evaluation    `json:"evaluations"`
	Decision    match.Decision        `json:"decision"`
	Err         error                 `json:"-"`
}

// Preview looks q up in every source and scores the candidates without
// persisting anything.
func (p *Pipeline) Preview(ctx context.Context, q provider.Query) []SourcePreview {
	sources := p.sources.All()
	out := make([]SourcePreview, 0, len(sources))
	for _, src := range sources {
		pv := SourcePreview{Source: src.Name()}
		res, err := src.Lookup(ctx, q)
		if err != nil {
			pv.Err = err
			out = append(out, pv)
			continue
		}
		pv.FromCache = res.FromCache
		pv.Skipped = res.Skipped
		pv.Evaluations = p.scorer.Rank(q, res.Candidates)
		pv.Decision = p.scorer.Decide(q, res.Candidates)
		out = append(out, pv)
	}
	return out
}

func (p *Pipeline) publish(t event.Type, job Job, source provider.ProviderName, extra map[string]any) {
	if p.bus == nil {
		return
	}
	data := map[string]any{
		event.DataJobID:      job.ID,
		event.DataEntityID:   job.EntityID,
		event.DataEntityName: job.EntityName,
		event.DataSource:     string(source),
	}
	for k, v := range extra {
		data[k] = v
	}
	p.bus.Publish(event.Event{Type: t, Data: data})
}
