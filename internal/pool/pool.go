// Package pool leases backing-store connections under a fixed bound, with
// initialization backoff, per-operation retry and a keepalive loop.
package pool

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/semaphore"

	"github.com/sydlexius/refrain/internal/logging"
)

// Opener creates a new *sql.DB. It is called on every initialization attempt.
type Opener func(ctx context.Context) (*sql.DB, error)

// TxFunc runs inside a leased connection's transaction.
type TxFunc func(ctx context.Context, tx *sql.Tx) error

// Config is the pool's retry, sizing and health-check policy.
type Config struct {
	MinSize           int
	MaxSize           int
	LeaseTimeout      time.Duration
	ConnectTimeout    time.Duration
	InitRetries       int
	InitBaseDelay     time.Duration
	BackoffFactor     float64
	OpRetries         int
	OpRetryDelay      time.Duration
	KeepaliveInterval time.Duration
	ResetPause        time.Duration
}

// DefaultConfig returns the canonical pool policy.
func DefaultConfig() Config {
	return Config{
		MinSize:           1,
		MaxSize:           10,
		LeaseTimeout:      10 * time.Second,
		ConnectTimeout:    10 * time.Second,
		InitRetries:       3,
		InitBaseDelay:     time.Second,
		BackoffFactor:     1.5,
		OpRetries:         2,
		OpRetryDelay:      500 * time.Millisecond,
		KeepaliveInterval: 5 * time.Minute,
		ResetPause:        time.Second,
	}
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Size      int   `json:"size"`
	Available int   `json:"available"`
	Waiting   int64 `json:"waiting"`
	InUse     int64 `json:"in_use"`
	MaxSize   int   `json:"max_size"`
}

// Option customizes a Pool.
type Option func(*Pool)

// WithLogger sets the pool logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) { p.logger = logging.ForComponent(l, "pool") }
}

// WithDelayObserver is called with every initialization backoff delay
// before the pool sleeps.
func WithDelayObserver(fn func(time.Duration)) Option {
	return func(p *Pool) { p.observeDelay = fn }
}

// Pool is a bounded set of leases over a *sql.DB.
type Pool struct {
	cfg          Config
	open         Opener
	logger       *slog.Logger
	observeDelay func(time.Duration)

	sem     *semaphore.Weighted
	waiting atomic.Int64
	inUse   atomic.Int64

	initMu sync.Mutex // serializes Initialize and Reset
	mu     sync.RWMutex
	db     *sql.DB

	keepMu     sync.Mutex
	keepCancel context.CancelFunc
	keepDone   chan struct{}
}

// New creates a pool. No connection is made until Initialize or the first
// WithConnection call.
func New(cfg Config, open Opener, opts ...Option) *Pool {
	def := DefaultConfig()
	if cfg.MaxSize < 1 {
		cfg.MaxSize = def.MaxSize
	}
	if cfg.MinSize < 1 {
		cfg.MinSize = 1
	}
	if cfg.MinSize > cfg.MaxSize {
		cfg.MinSize = cfg.MaxSize
	}
	if cfg.LeaseTimeout <= 0 {
		cfg.LeaseTimeout = def.LeaseTimeout
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = def.BackoffFactor
	}
	if cfg.InitBaseDelay <= 0 {
		cfg.InitBaseDelay = def.InitBaseDelay
	}
	if cfg.OpRetryDelay <= 0 {
		cfg.OpRetryDelay = time.Millisecond
	}
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = def.KeepaliveInterval
	}

	p := &Pool{
		cfg:    cfg,
		open:   open,
		logger: logging.ForComponent(nil, "pool"),
		sem:    semaphore.NewWeighted(int64(cfg.MaxSize)),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Config returns the effective pool policy.
func (p *Pool) Config() Config { return p.cfg }

// multiplicative returns base, base*factor, base*factor^2, ...
func multiplicative(base time.Duration, factor float64) retry.Backoff {
	next := float64(base)
	return retry.BackoffFunc(func() (time.Duration, bool) {
		d := time.Duration(next)
		next *= factor
		return d, false
	})
}

// Initialize connects to the backing store, retrying up to InitRetries times
// with exponential backoff. It is a no-op if the pool is already set. On
// final failure the pool stays unset and an error marked ErrPoolUnavailable
// is returned.
func (p *Pool) Initialize(ctx context.Context) error {
	p.initMu.Lock()
	defer p.initMu.Unlock()

	if p.handle() != nil {
		return nil
	}

	backoff := retry.WithMaxRetries(uint64(max(p.cfg.InitRetries, 0)), multiplicative(p.cfg.InitBaseDelay, p.cfg.BackoffFactor))
	if p.observeDelay != nil {
		inner := backoff
		backoff = retry.BackoffFunc(func() (time.Duration, bool) {
			d, stop := inner.Next()
			if !stop {
				p.observeDelay(d)
			}
			return d, stop
		})
	}

	attempts := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		db, err := p.connect(ctx)
		if err != nil {
			p.logger.Warn("backing store connection failed",
				slog.Int(logging.KeyAttempt, attempts), logging.Err(err))
			return retry.RetryableError(err)
		}
		p.mu.Lock()
		p.db = db
		p.mu.Unlock()
		return nil
	})
	if err != nil {
		p.logger.Error("pool initialization failed", slog.Int("attempts", attempts), logging.Err(err))
		return unavailableError(err, attempts)
	}

	p.logger.Info("pool initialized", slog.Int("attempts", attempts), slog.Int("max_size", p.cfg.MaxSize))
	return nil
}

// TryInitialize is Initialize reporting success as a bool.
func (p *Pool) TryInitialize(ctx context.Context) bool {
	return p.Initialize(ctx) == nil
}

func (p *Pool) connect(ctx context.Context) (*sql.DB, error) {
	if p.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.ConnectTimeout)
		defer cancel()
	}

	db, err := p.open(ctx)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(p.cfg.MaxSize)
	db.SetMaxIdleConns(p.cfg.MaxSize)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if p.cfg.MinSize > 1 {
		if err := warm(ctx, db, p.cfg.MinSize); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

// warm opens n connections and returns them to the idle set.
func warm(ctx context.Context, db *sql.DB, n int) error {
	conns := make([]*sql.Conn, 0, n)
	defer func() {
		for _, c := range conns {
			_ = c.Close()
		}
	}()
	for range n {
		c, err := db.Conn(ctx)
		if err != nil {
			return err
		}
		conns = append(conns, c)
	}
	return nil
}

func (p *Pool) handle() *sql.DB {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.db
}

// DB returns the underlying handle, initializing the pool if needed. Callers
// that need the lease bound should use WithConnection instead.
func (p *Pool) DB(ctx context.Context) (*sql.DB, error) {
	if db := p.handle(); db != nil {
		return db, nil
	}
	if err := p.Initialize(ctx); err != nil {
		return nil, err
	}
	return p.handle(), nil
}

// WithConnection leases a connection, runs fn in a transaction and commits
// if fn returns nil or rolls back otherwise. The lease is always returned.
// Connection-level errors retry the whole cycle up to OpRetries times on a
// fresh connection; other errors are returned as-is.
func (p *Pool) WithConnection(ctx context.Context, fn TxFunc) error {
	db, err := p.DB(ctx)
	if err != nil {
		return err
	}

	attempt := 0
	backoff := retry.WithMaxRetries(uint64(max(p.cfg.OpRetries, 0)), retry.NewConstant(p.cfg.OpRetryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := p.runOnce(ctx, db, fn)
		if err != nil && IsConnectionError(err) {
			p.logger.Warn("connection error, retrying on a fresh connection",
				slog.Int(logging.KeyAttempt, attempt), logging.Err(err))
			return retry.RetryableError(err)
		}
		return err
	})
}

func (p *Pool) runOnce(ctx context.Context, db *sql.DB, fn TxFunc) (err error) {
	start := time.Now()
	leaseCtx, cancel := context.WithTimeout(ctx, p.cfg.LeaseTimeout)
	defer cancel()

	p.waiting.Add(1)
	acqErr := p.sem.Acquire(leaseCtx, 1)
	p.waiting.Add(-1)
	if acqErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return timeoutError(time.Since(start).Round(time.Millisecond).String())
	}
	defer p.sem.Release(1)

	p.inUse.Add(1)
	defer p.inUse.Add(-1)

	conn, err := db.Conn(leaseCtx)
	if err != nil {
		if ctx.Err() == nil && errors.Is(leaseCtx.Err(), context.DeadlineExceeded) {
			return timeoutError(time.Since(start).Round(time.Millisecond).String())
		}
		return err
	}
	defer func() {
		if IsConnectionError(err) {
			discard(conn)
		}
		_ = conn.Close()
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			p.logger.Warn("rollback failed", logging.Err(rbErr))
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// discard makes database/sql drop the driver connection instead of
// returning it to the idle set.
func discard(conn *sql.Conn) {
	_ = conn.Raw(func(any) error { return driver.ErrBadConn })
}

// Reset closes the pool, pauses briefly and initializes it again.
func (p *Pool) Reset(ctx context.Context) error {
	p.initMu.Lock()
	p.mu.Lock()
	old := p.db
	p.db = nil
	p.mu.Unlock()
	p.initMu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			p.logger.Warn("closing pool during reset", logging.Err(err))
		}
	}

	p.logger.Info("pool reset", slog.Duration("pause", p.cfg.ResetPause))
	if p.cfg.ResetPause > 0 {
		t := time.NewTimer(p.cfg.ResetPause)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return p.Initialize(ctx)
}

// Ping checks that the backing store answers. It does not initialize.
func (p *Pool) Ping(ctx context.Context) error {
	db := p.handle()
	if db == nil {
		return ErrPoolUnavailable
	}
	return db.PingContext(ctx)
}

// Stats returns a snapshot of the pool. ok is false when the pool has not
// been initialized.
func (p *Pool) Stats() (st Stats, ok bool) {
	db := p.handle()
	if db == nil {
		return Stats{MaxSize: p.cfg.MaxSize, Waiting: p.waiting.Load()}, false
	}
	s := db.Stats()
	return Stats{
		Size:      s.OpenConnections,
		Available: s.Idle,
		Waiting:   p.waiting.Load(),
		InUse:     p.inUse.Load(),
		MaxSize:   p.cfg.MaxSize,
	}, true
}

// Close stops the keepalive loop and closes the pool.
func (p *Pool) Close() error {
	p.StopKeepalive()

	p.initMu.Lock()
	defer p.initMu.Unlock()
	p.mu.Lock()
	db := p.db
	p.db = nil
	p.mu.Unlock()
	if db == nil {
		return nil
	}
	return db.Close()
}
