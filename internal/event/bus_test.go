package event

import (
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus(testLogger(), 16)
	go bus.Start()
	defer bus.Stop()

	var mu sync.Mutex
	var received []Event

	bus.Subscribe(ResearchCompleted, func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, e)
	})

	bus.Publish(Event{
		Type: ResearchCompleted,
		Data: map[string]any{DataEntityID: "S1"},
	})

	// Give the goroutine time to process
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("got %d events, want 1", len(received))
	}
	if received[0].StringData(DataEntityID) != "S1" {
		t.Errorf("entity_id = %v, want S1", received[0].Data[DataEntityID])
	}
	if received[0].Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestMultipleSubscribers(t *testing.T) {
	bus := NewBus(testLogger(), 16)
	go bus.Start()
	defer bus.Stop()

	var mu sync.Mutex
	count := 0

	for range 3 {
		bus.Subscribe(MatchAccepted, func(_ Event) {
			mu.Lock()
			defer mu.Unlock()
			count++
		})
	}

	bus.Publish(Event{Type: MatchAccepted})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 3 {
		t.Errorf("got %d handler calls, want 3", count)
	}
}

func TestNoSubscribers(t *testing.T) {
	bus := NewBus(testLogger(), 16)
	go bus.Start()
	defer bus.Stop()

	// Should not panic
	bus.Publish(Event{Type: ResearchQueued})
	time.Sleep(50 * time.Millisecond)
}

func TestBufferFull(t *testing.T) {
	bus := NewBus(testLogger(), 2)
	// Do NOT start the bus -- events will accumulate in the channel

	bus.Publish(Event{Type: ResearchCompleted})
	bus.Publish(Event{Type: ResearchCompleted})
	// Third event should be dropped (buffer full)
	bus.Publish(Event{Type: ResearchCompleted})
	// No panic or deadlock expected
}

func TestHandlerPanicRecovery(t *testing.T) {
	bus := NewBus(testLogger(), 16)
	go bus.Start()
	defer bus.Stop()

	var mu sync.Mutex
	secondCalled := false

	bus.Subscribe(ResearchFailed, func(_ Event) {
		panic("test panic")
	})
	bus.Subscribe(ResearchFailed, func(_ Event) {
		mu.Lock()
		defer mu.Unlock()
		secondCalled = true
	})

	bus.Publish(Event{Type: ResearchFailed})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if !secondCalled {
		t.Error("second handler should still be called after first panics")
	}
}

func TestStopDrainsBuffer(t *testing.T) {
	bus := NewBus(testLogger(), 16)

	var mu sync.Mutex
	count := 0

	bus.Subscribe(ResearchCompleted, func(_ Event) {
		mu.Lock()
		defer mu.Unlock()
		count++
	})

	// Publish before starting
	bus.Publish(Event{Type: ResearchCompleted})
	bus.Publish(Event{Type: ResearchCompleted})

	go bus.Start()
	time.Sleep(50 * time.Millisecond)
	bus.Stop()
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 2 {
		t.Errorf("got %d events, want 2 (all drained)", count)
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := NewBus(testLogger(), 16)

	var mu sync.Mutex
	var types []Type
	bus.Subscribe(ResearchStarted, func(_ Event) {
		mu.Lock()
		defer mu.Unlock()
		types = append(types, "specific")
	})
	bus.SubscribeAll(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		types = append(types, e.Type)
	})

	bus.Publish(Event{Type: ResearchStarted})
	bus.Publish(Event{Type: MatchRejected})

	go bus.Start()
	bus.Stop()
	if !bus.Wait(time.Second) {
		t.Fatal("bus did not finish")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []Type{"specific", ResearchStarted, MatchRejected}
	if len(types) != len(want) {
		t.Fatalf("got %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("types[%d] = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestWaitTimesOutWhenNotStarted(t *testing.T) {
	bus := NewBus(testLogger(), 1)
	bus.Stop()
	if bus.Wait(10 * time.Millisecond) {
		t.Error("Wait should time out when Start never ran")
	}
}

func TestEventString(t *testing.T) {
	e := Event{Data: map[string]any{DataSource: "deezer", DataScore: 91.5}}
	if e.StringData(DataSource) != "deezer" {
		t.Errorf("source = %q", e.StringData(DataSource))
	}
	if e.StringData(DataScore) != "" || e.StringData("missing") != "" {
		t.Error("non-string and missing values should be empty")
	}
}
