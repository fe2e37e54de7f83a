package catalog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sydlexius/refrain/internal/event"
	"github.com/sydlexius/refrain/internal/logging"
)

type memLog struct {
	mu      sync.Mutex
	entries []LogEntry
	err     error
}

func (m *memLog) AppendLog(_ context.Context, e LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *memLog) snapshot() []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LogEntry(nil), m.entries...)
}

func TestJobLogger_RecordsLifecycle(t *testing.T) {
	store := &memLog{}
	bus := event.NewBus(logging.Discard(), 16)
	NewJobLogger(store, logging.Discard()).Subscribe(bus)

	base := map[string]any{event.DataJobID: "j1", event.DataEntityID: "S1", event.DataEntityName: "Take Five"}
	with := func(extra map[string]any) map[string]any {
		out := map[string]any{}
		for k, v := range base {
			out[k] = v
		}
		for k, v := range extra {
			out[k] = v
		}
		return out
	}

	bus.Publish(event.Event{Type: event.ResearchStarted, Data: base})
	bus.Publish(event.Event{Type: event.MatchAccepted, Data: with(map[string]any{
		event.DataSource: "deezer", event.DataExternalID: "3135556", event.DataScore: 100.0, event.DataThreshold: 88.0,
	})})
	bus.Publish(event.Event{Type: event.MatchRejected, Data: with(map[string]any{
		event.DataSource: "wikipedia", event.DataCandidates: 3, event.DataScore: 41.5, event.DataThreshold: 88.0,
	})})
	bus.Publish(event.Event{Type: event.ResearchQueued, Data: base})

	go bus.Start()
	bus.Stop()
	if !bus.Wait(time.Second) {
		t.Fatal("bus did not drain")
	}

	got := store.snapshot()
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3 (queued events are not logged)", len(got))
	}
	if got[0].Status != string(event.ResearchStarted) || got[0].SongName != "Take Five" || got[0].JobID != "j1" {
		t.Errorf("first entry = %+v", got[0])
	}
	if got[1].Detail != "deezer: accepted 3135556 (score 100.00 >= 88.00)" {
		t.Errorf("accepted detail = %q", got[1].Detail)
	}
	if !strings.Contains(got[2].Detail, "no match among 3 candidates") {
		t.Errorf("rejected detail = %q", got[2].Detail)
	}
	if got[0].CreatedAt.IsZero() {
		t.Error("created_at should carry the event timestamp")
	}
}

func TestJobLogger_RecordsDiscardedJob(t *testing.T) {
	store := &memLog{}
	l := NewJobLogger(store, logging.Discard())
	l.Handle(event.Event{
		Type:      event.ResearchDiscarded,
		Timestamp: time.Now(),
		Data:      map[string]any{event.DataJobID: "j2", event.DataEntityID: "S2", event.DataEntityName: "So What"},
	})

	entries := store.snapshot()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.JobID != "j2" || e.Status != string(event.ResearchDiscarded) || !strings.Contains(e.Detail, "discarded") {
		t.Errorf("entry = %+v", e)
	}
}

func TestJobLogger_StoreFailureIsSwallowed(t *testing.T) {
	store := &memLog{err: errors.New("pool unavailable")}
	l := NewJobLogger(store, logging.Discard())
	l.Handle(event.Event{Type: event.ResearchFailed, Data: map[string]any{event.DataError: "boom"}})
	if len(store.snapshot()) != 0 {
		t.Error("nothing should be stored")
	}
}
