package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewStore(t.TempDir(), WithClock(clock.Now)), clock
}

func TestKey_StableAndNormalized(t *testing.T) {
	a := Key("deezer", "search", "Take Five", " Dave Brubeck Quartet ")
	b := Key("DEEZER", "search", "take five", "dave brubeck quartet")
	if a != b {
		t.Errorf("keys differ for equivalent input: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("key length = %d, want 64", len(a))
	}
	if Key("a b", "") == Key("a", "b") {
		t.Error("delimiter should separate fields")
	}
}

func TestStore_PutGet(t *testing.T) {
	s, _ := newTestStore(t)
	key := Key("take five")
	payload := []byte(`[{"source_id":"1","title":"Take Five"}]` + "\n")

	if _, ok, err := s.Get("deezer", key, time.Hour); err != nil || ok {
		t.Fatalf("Get before Put = ok %v, err %v; want miss", ok, err)
	}

	if _, err := s.Put("deezer", key, payload, time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}

	e, ok, err := s.Get("deezer", key, time.Hour)
	if err != nil || !ok {
		t.Fatalf("Get after Put = ok %v, err %v", ok, err)
	}
	if !bytes.Equal(e.Payload, payload) {
		t.Errorf("payload = %q, want %q", e.Payload, payload)
	}
	if e.TTL != time.Hour {
		t.Errorf("ttl = %v, want 1h", e.TTL)
	}

	if _, err := os.Stat(filepath.Join(s.Root(), "deezer", key+".json")); err != nil {
		t.Errorf("expected file under source directory: %v", err)
	}
}

func TestStore_SecondReadIsByteIdentical(t *testing.T) {
	s, _ := newTestStore(t)
	key := Key("so what")
	if _, err := s.Put("spotify", key, []byte(`{"a": 1,  "b": [ 2 ]}`), time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}
	first, _, _ := s.Get("spotify", key, time.Hour)
	second, _, _ := s.Get("spotify", key, time.Hour)
	if !bytes.Equal(first.Payload, second.Payload) {
		t.Errorf("payloads differ: %q vs %q", first.Payload, second.Payload)
	}
}

func TestStore_ExpiresAtReadTime(t *testing.T) {
	s, clock := newTestStore(t)
	key := Key("blue in green")
	if _, err := s.Put("musicbrainz", key, []byte(`[]`), 24*time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}

	clock.Advance(23 * time.Hour)
	if _, ok, _ := s.Get("musicbrainz", key, 24*time.Hour); !ok {
		t.Error("entry should be fresh before ttl")
	}
	// A shorter TTL configured after the write applies at read time.
	if _, ok, _ := s.Get("musicbrainz", key, time.Hour); ok {
		t.Error("entry should be expired under the shorter ttl")
	}

	clock.Advance(2 * time.Hour)
	if _, ok, _ := s.Get("musicbrainz", key, 24*time.Hour); ok {
		t.Error("entry should be expired after ttl")
	}
}

func TestStore_PutReplacesWholesale(t *testing.T) {
	s, clock := newTestStore(t)
	key := Key("naima")
	first, err := s.Put("deezer", key, []byte(`["old"]`), time.Hour)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	clock.Advance(2 * time.Hour)
	if _, err := s.Put("deezer", key, []byte(`["new"]`), time.Hour); err != nil {
		t.Fatalf("second Put: %v", err)
	}

	e, ok, _ := s.Get("deezer", key, time.Hour)
	if !ok {
		t.Fatal("expected fresh entry")
	}
	if string(e.Payload) != `["new"]` {
		t.Errorf("payload = %s, want new", e.Payload)
	}
	if string(first.Payload) != `["old"]` {
		t.Error("earlier entry value was mutated")
	}

	entries, _ := os.ReadDir(filepath.Join(s.Root(), "deezer"))
	for _, de := range entries {
		if strings.HasSuffix(de.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", de.Name())
		}
	}
}

func TestStore_RejectsUnsafeNames(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.Put("../etc", Key("x"), nil, time.Hour); err != ErrInvalidKey {
		t.Errorf("Put with traversal source = %v, want ErrInvalidKey", err)
	}
	if _, _, err := s.Get("deezer", "../../passwd", time.Hour); err != ErrInvalidKey {
		t.Errorf("Get with bad key = %v, want ErrInvalidKey", err)
	}
}

func TestStore_CorruptEntryIsMiss(t *testing.T) {
	s, _ := newTestStore(t)
	key := Key("corrupt")
	dir := filepath.Join(s.Root(), "wikipedia")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, key+".json"), []byte("not a header"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := s.Get("wikipedia", key, time.Hour); ok || err != nil {
		t.Errorf("Get = ok %v, err %v; want silent miss", ok, err)
	}
}

func TestStore_Delete(t *testing.T) {
	s, _ := newTestStore(t)
	key := Key("delete me")
	if _, err := s.Put("deezer", key, []byte(`[]`), time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("deezer", key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete("deezer", key); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, ok, _ := s.Get("deezer", key, time.Hour); ok {
		t.Error("entry still present after Delete")
	}
}

func TestStore_ConcurrentPuts(t *testing.T) {
	s, _ := newTestStore(t)
	key := Key("concurrent")
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Put("deezer", key, []byte{'[', byte('0' + i), ']'}, time.Hour); err != nil {
				t.Errorf("Put: %v", err)
			}
		}()
	}
	wg.Wait()

	e, ok, err := s.Get("deezer", key, time.Hour)
	if err != nil || !ok {
		t.Fatalf("Get = ok %v, err %v", ok, err)
	}
	if len(e.Payload) != 3 {
		t.Errorf("payload = %q, want one complete write", e.Payload)
	}
}
