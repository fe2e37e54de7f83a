// Package cache is a content-addressed, TTL-bounded disk cache with one
// directory per external source.
package cache

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/sydlexius/refrain/internal/logging"
)

const (
	fileExt  = ".json"
	lockName = ".lock"
)

// ErrInvalidKey is returned for keys that are not hex sha256 digests or
// source names that are not safe directory names.
var ErrInvalidKey = errors.New("cache: invalid source or key")

// Entry is one cached payload. Entries are never mutated; a refetch writes
// a new entry over the old file.
type Entry struct {
	Key       string
	Source    string
	Payload   []byte
	FetchedAt time.Time
	TTL       time.Duration
}

// Expired reports whether the entry is older than ttl at now.
func (e *Entry) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.FetchedAt) >= ttl
}

// header is the first line of every cache file; the raw payload follows it
// byte for byte.
type header struct {
	Key       string    `json:"key"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
	TTL       int64     `json:"ttl_seconds"`
}

// Store reads and writes cache files under a root directory.
type Store struct {
	root   string
	now    func() time.Time
	logger *slog.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces time.Now, for tests that need to move past a TTL.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = logging.ForComponent(l, "cache") }
}

// NewStore creates a Store rooted at root. Directories are created lazily.
func NewStore(root string, opts ...Option) *Store {
	s := &Store{
		root:   root,
		now:    time.Now,
		logger: logging.ForComponent(nil, "cache"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Root returns the cache root directory.
func (s *Store) Root() string { return s.root }

// Path returns the file that holds key for source.
func (s *Store) Path(source, key string) string {
	return filepath.Join(s.root, source, key+fileExt)
}

// Get returns the entry for key if it exists and is younger than ttl. Expired
// or unreadable entries are reported as absent.
func (s *Store) Get(source, key string, ttl time.Duration) (*Entry, bool, error) {
	if !validSource(source) || !validKey(key) {
		return nil, false, ErrInvalidKey
	}

	data, err := os.ReadFile(s.Path(source, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}

	e, err := decode(data)
	if err != nil {
		s.logger.Warn("discarding corrupt cache entry",
			slog.String(logging.KeySource, source), slog.String("key", key), logging.Err(err))
		return nil, false, nil
	}
	if e.Key != key {
		return nil, false, nil
	}
	if e.Expired(s.now(), ttl) {
		return nil, false, nil
	}
	return e, true, nil
}

// Put writes payload under key, replacing any previous entry. The file is
// written to a temp name and renamed so readers never see a partial entry.
func (s *Store) Put(source, key string, payload []byte, ttl time.Duration) (*Entry, error) {
	if !validSource(source) || !validKey(key) {
		return nil, ErrInvalidKey
	}

	dir := filepath.Join(s.root, source)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockName))
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("locking cache directory: %w", err)
	}
	defer lock.Unlock() //nolint:errcheck

	e := &Entry{
		Key:       key,
		Source:    source,
		Payload:   bytes.Clone(payload),
		FetchedAt: s.now().UTC(),
		TTL:       ttl,
	}
	data, err := encode(e)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(dir, key+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("writing cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("closing cache entry: %w", err)
	}
	if err := os.Rename(tmpName, s.Path(source, key)); err != nil {
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("renaming cache entry: %w", err)
	}
	return e, nil
}

// Delete removes the entry for key. Missing entries are not an error.
func (s *Store) Delete(source, key string) error {
	if !validSource(source) || !validKey(key) {
		return ErrInvalidKey
	}
	err := os.Remove(s.Path(source, key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func encode(e *Entry) ([]byte, error) {
	h, err := json.Marshal(header{
		Key:       e.Key,
		Source:    e.Source,
		FetchedAt: e.FetchedAt,
		TTL:       int64(e.TTL / time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding cache header: %w", err)
	}
	buf := make([]byte, 0, len(h)+1+len(e.Payload))
	buf = append(buf, h...)
	buf = append(buf, '\n')
	buf = append(buf, e.Payload...)
	return buf, nil
}

func decode(data []byte) (*Entry, error) {
	line, payload, ok := bytes.Cut(data, []byte{'\n'})
	if !ok {
		return nil, errors.New("missing header")
	}
	var h header
	if err := json.Unmarshal(line, &h); err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	return &Entry{
		Key:       h.Key,
		Source:    h.Source,
		Payload:   payload,
		FetchedAt: h.FetchedAt,
		TTL:       time.Duration(h.TTL) * time.Second,
	}, nil
}

// readHeader reads only the first line of a cache file.
func readHeader(path string) (header, error) {
	var h header
	f, err := os.Open(path) //nolint:gosec // G304: path is built from the cache root
	if err != nil {
		return h, err
	}
	defer f.Close() //nolint:errcheck

	line, err := bufio.NewReader(f).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("reading header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("parsing header: %w", err)
	}
	return h, nil
}
