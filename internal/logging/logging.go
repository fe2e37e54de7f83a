// Package logging builds the process-wide slog logger and lets the running
// service change level, format and file output without a restart.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Attribute keys shared by every component so log queries stay uniform.
const (
	KeyComponent = "component"
	KeySource    = "source"
	KeyJobID     = "job_id"
	KeyEntityID  = "entity_id"
	KeyEntity    = "entity_name"
	KeyError     = "error"
	KeyDuration  = "duration"
	KeyAttempt   = "attempt"
)

// Config describes the desired logging configuration.
type Config struct {
	Level          string `json:"level" yaml:"level"`
	Format         string `json:"format" yaml:"format"`
	FilePath       string `json:"file_path,omitempty" yaml:"file_path"`
	FileMaxSizeMB  int    `json:"file_max_size_mb,omitempty" yaml:"file_max_size_mb"`
	FileMaxFiles   int    `json:"file_max_files,omitempty" yaml:"file_max_files"`
	FileMaxAgeDays int    `json:"file_max_age_days,omitempty" yaml:"file_max_age_days"`
}

// DefaultConfig returns JSON logs at info level on stdout.
func DefaultConfig() Config {
	return Config{
		Level:          "info",
		Format:         "json",
		FileMaxSizeMB:  100,
		FileMaxFiles:   3,
		FileMaxAgeDays: 30,
	}
}

func (c Config) String() string {
	s := fmt.Sprintf("level=%s format=%s", c.Level, c.Format)
	if c.FilePath != "" {
		s += fmt.Sprintf(" file=%s max_size=%dMB max_files=%d max_age=%dd",
			c.FilePath, c.FileMaxSizeMB, c.FileMaxFiles, c.FileMaxAgeDays)
	}
	return s
}

// outputChanged reports whether switching from c to next requires a new handler.
// Level changes alone are applied through the shared LevelVar.
func (c Config) outputChanged(next Config) bool {
	return c.Format != next.Format ||
		c.FilePath != next.FilePath ||
		c.FileMaxSizeMB != next.FileMaxSizeMB ||
		c.FileMaxFiles != next.FileMaxFiles ||
		c.FileMaxAgeDays != next.FileMaxAgeDays
}

// swapHandler forwards to an inner handler that can be replaced at runtime.
// Loggers derived with With/WithGroup record their derivations and replay
// them against whichever handler is current, so they survive a swap.
type swapHandler struct {
	root *atomic.Pointer[slog.Handler]
	ops  []handlerOp
}

type handlerOp struct {
	attrs []slog.Attr
	group string
}

func newSwapHandler(h slog.Handler) *swapHandler {
	root := &atomic.Pointer[slog.Handler]{}
	root.Store(&h)
	return &swapHandler{root: root}
}

func (s *swapHandler) current() slog.Handler {
	h := *s.root.Load()
	for _, op := range s.ops {
		if op.group != "" {
			h = h.WithGroup(op.group)
		} else {
			h = h.WithAttrs(op.attrs)
		}
	}
	return h
}

func (s *swapHandler) derive(op handlerOp) *swapHandler {
	ops := make([]handlerOp, 0, len(s.ops)+1)
	ops = append(ops, s.ops...)
	return &swapHandler{root: s.root, ops: append(ops, op)}
}

func (s *swapHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return (*s.root.Load()).Enabled(ctx, level)
}

func (s *swapHandler) Handle(ctx context.Context, r slog.Record) error {
	return s.current().Handle(ctx, r)
}

func (s *swapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return s
	}
	return s.derive(handlerOp{attrs: attrs})
}

func (s *swapHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return s
	}
	return s.derive(handlerOp{group: name})
}

// Manager owns the logger lifecycle and supports runtime reconfiguration.
type Manager struct {
	levelVar *slog.LevelVar
	handler  *swapHandler

	mu     sync.Mutex
	config Config
	closer io.Closer
}

// NewManager creates a Manager and returns it along with a ready-to-use logger.
func NewManager(cfg Config) (*Manager, *slog.Logger) {
	lvl := &slog.LevelVar{}
	lvl.Set(ParseLevel(cfg.Level))

	w, closer := buildWriter(cfg)
	m := &Manager{
		levelVar: lvl,
		handler:  newSwapHandler(buildHandler(w, lvl, cfg.Format)),
		config:   cfg,
		closer:   closer,
	}
	return m, slog.New(m.handler)
}

// Reconfigure applies cfg. Level-only changes are instant; format or file
// changes rebuild the handler and close the previous log file.
func (m *Manager) Reconfigure(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.levelVar.Set(ParseLevel(cfg.Level))

	if m.config.outputChanged(cfg) {
		if m.closer != nil {
			_ = m.closer.Close()
			m.closer = nil
		}
		w, closer := buildWriter(cfg)
		h := buildHandler(w, m.levelVar, cfg.Format)
		m.handler.root.Store(&h)
		m.closer = closer
	}
	m.config = cfg
}

// Config returns the current configuration snapshot.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// Close releases the log file writer, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closer == nil {
		return nil
	}
	err := m.closer.Close()
	m.closer = nil
	return err
}

// ForComponent tags logger with a component name.
func ForComponent(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = Discard()
	}
	return logger.With(slog.String(KeyComponent, component))
}

// Discard returns a logger that drops everything. Used when callers pass nil
// and by tests that do not assert on output.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// Err is shorthand for the standard error attribute.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

// ParseLevel converts a level name, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ValidLevel reports whether s is a recognized level name.
func ValidLevel(s string) bool {
	switch s {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

// ValidFormat reports whether s is a recognized output format.
func ValidFormat(s string) bool {
	return s == "text" || s == "json"
}

// buildWriter returns stdout, or stdout teed into a rotating file when a
// path is configured. The lumberjack logger is returned as the closer.
func buildWriter(cfg Config) (io.Writer, io.Closer) {
	if cfg.FilePath == "" {
		return os.Stdout, nil
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    positiveOr(cfg.FileMaxSizeMB, 100),
		MaxBackups: positiveOr(cfg.FileMaxFiles, 3),
		MaxAge:     positiveOr(cfg.FileMaxAgeDays, 30),
	}
	return io.MultiWriter(os.Stdout, lj), lj
}

func buildHandler(w io.Writer, leveler slog.Leveler, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: leveler}
	if format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func positiveOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
