package research

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJob(id, name string) Job {
	return Job{ID: "job-" + id, EntityID: id, EntityName: name}
}

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue()
	for _, id := range []string{"A", "B", "C"} {
		require.NoError(t, q.Enqueue(Work(testJob(id, id))))
	}
	assert.Equal(t, 3, q.Len())

	ctx := context.Background()
	for _, want := range []string{"A", "B", "C"} {
		m, ok := q.Dequeue(ctx, 10*time.Millisecond)
		require.True(t, ok)
		j, ok := m.Job()
		require.True(t, ok)
		assert.Equal(t, want, j.EntityID)
	}
	_, ok := q.Dequeue(ctx, 10*time.Millisecond)
	assert.False(t, ok, "empty queue should time out")
}

func TestQueue_DequeueWakesOnEnqueue(t *testing.T) {
	q := NewQueue()
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = q.Enqueue(Work(testJob("A", "A")))
	}()
	m, ok := q.Dequeue(context.Background(), 2*time.Second)
	require.True(t, ok)
	j, _ := m.Job()
	assert.Equal(t, "A", j.EntityID)
}

func TestQueue_DequeueHonorsContext(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	_, ok := q.Dequeue(ctx, time.Minute)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestQueue_SnapshotDoesNotConsume(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Enqueue(Work(testJob("A", "Take Five"))))
	require.NoError(t, q.Enqueue(Work(testJob("B", "So What"))))

	snap := q.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "Take Five", snap[0].EntityName)
	assert.Equal(t, "So What", snap[1].EntityName)
	assert.Equal(t, 2, q.Len())
}

func TestQueue_CloseRejectsEnqueue(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Enqueue(Work(testJob("A", "A"))))
	q.Close()
	assert.True(t, q.Closed())

	err := q.Enqueue(Work(testJob("B", "B")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQueueClosed))
	assert.NotEmpty(t, errors.GetAllHints(err))

	// Already-queued work is still visible.
	assert.Equal(t, 1, q.Len())
}

func TestQueue_InterruptGoesToHead(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Enqueue(Work(testJob("A", "A"))))
	q.Close()
	q.interrupt(Stop())

	assert.Equal(t, 1, q.Len(), "stop messages are not counted as jobs")
	m, ok := q.Dequeue(context.Background(), 10*time.Millisecond)
	require.True(t, ok)
	assert.True(t, m.IsStop())
}

func TestQueue_Drain(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Enqueue(Work(testJob("A", "A"))))
	require.NoError(t, q.Enqueue(Work(testJob("B", "B"))))
	q.interrupt(Stop())

	dropped := q.Drain()
	require.Len(t, dropped, 2)
	assert.Equal(t, "A", dropped[0].EntityID)
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.Snapshot())
}

func TestQueue_RejectsZeroMessage(t *testing.T) {
	q := NewQueue()
	assert.Error(t, q.Enqueue(Message{}))
}

func TestMessage(t *testing.T) {
	_, ok := Stop().Job()
	assert.False(t, ok)
	assert.False(t, Work(testJob("A", "A")).IsStop())

	j := NewJob("S1", "Take Five", time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600)))
	assert.NotEmpty(t, j.ID)
	assert.Equal(t, time.UTC, j.EnqueuedAt.Location())
}
