// Package research runs song research jobs on a single background worker:
// a FIFO queue, progress reporting, the per-source lookup and match
// pipeline, and batch verification of stored matches.
package research

import (
	"time"

	"github.com/google/uuid"
)

// Job asks the worker to research one song. Jobs are immutable once queued.
type Job struct {
	ID         string    `json:"id"`
	EntityID   string    `json:"entity_id"`
	EntityName string    `json:"entity_name"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewJob creates a job with a fresh id.
func NewJob(entityID, entityName string, now time.Time) Job {
	return Job{
		ID:         uuid.New().String(),
		EntityID:   entityID,
		EntityName: entityName,
		EnqueuedAt: now.UTC(),
	}
}

type messageKind int

const (
	kindWork messageKind = iota + 1
	kindStop
)

// Message is a queue entry: either work carrying a Job, or a stop request.
// The zero Message is neither and is never queued.
type Message struct {
	kind messageKind
	job  Job
}

// Work wraps a job.
func Work(j Job) Message { return Message{kind: kindWork, job: j} }

// Stop is the message that ends the worker loop.
func Stop() Message { return Message{kind: kindStop} }

// IsStop reports whether m is a stop request.
func (m Message) IsStop() bool { return m.kind == kindStop }

// Job returns the carried job and true for work messages.
func (m Message) Job() (Job, bool) {
	if m.kind != kindWork {
		return Job{}, false
	}
	return m.job, true
}
