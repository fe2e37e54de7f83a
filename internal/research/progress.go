package research

import (
	"fmt"
	"sync"
)

// Phase is the worker's current activity.
type Phase string

// Phases.
const (
	PhaseIdle           Phase = "idle"
	PhaseSourceImport   Phase = "source_import"
	PhaseCandidateMatch Phase = "candidate_match"
)

// Progress describes what the worker is doing. Source is set for the
// import and match phases; Current counts from 1 to Total.
type Progress struct {
	Phase   Phase  `json:"phase"`
	Source  string `json:"source,omitempty"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
}

// Idle reports whether no job is being processed.
func (p Progress) Idle() bool { return p.Phase == "" || p.Phase == PhaseIdle }

// String renders the progress for logs and the CLI.
func (p Progress) String() string {
	if p.Idle() {
		return string(PhaseIdle)
	}
	return fmt.Sprintf("%s(%s) %d/%d", p.Phase, p.Source, p.Current, p.Total)
}

// ReportFunc receives progress updates from a Processor.
type ReportFunc func(Progress)

type progressState struct {
	mu  sync.Mutex
	cur Progress
}

func (s *progressState) set(p Progress) {
	s.mu.Lock()
	s.cur = p
	s.mu.Unlock()
}

func (s *progressState) clear() {
	s.set(Progress{Phase: PhaseIdle})
}

func (s *progressState) get() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur.Phase == "" {
		return Progress{Phase: PhaseIdle}
	}
	return s.cur
}
