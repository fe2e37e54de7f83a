package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Source names as they appear in configuration, cache directories and the
// song_matches table.
const (
	SourceMusicBrainz = "musicbrainz"
	SourceDeezer      = "deezer"
	SourceSpotify     = "spotify"
	SourceWikipedia   = "wikipedia"
)

// Config holds all application configuration.
type Config struct {
	DataDir  string         `yaml:"data_dir"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Sources  SourcesConfig  `yaml:"sources"`
	Client   ClientConfig   `yaml:"client"`
	Match    MatchConfig    `yaml:"match"`
	Worker   WorkerConfig   `yaml:"worker"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	BasePath string `yaml:"base_path"`
}

// DatabaseConfig selects the backing store and its connection pool policy.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "pgx"
	Path   string `yaml:"path"`   // sqlite only
	DSN    string `yaml:"dsn"`    // pgx only

	// SimpleProtocol disables server-side prepared statements. Needed behind
	// transaction-mode poolers such as PgBouncer.
	SimpleProtocol bool `yaml:"simple_protocol"`

	Pool PoolConfig `yaml:"pool"`
}

// PoolConfig is the single retry/backoff policy for the backing store pool.
type PoolConfig struct {
	MinSize           int           `yaml:"min_size"`
	MaxSize           int           `yaml:"max_size"`
	LeaseTimeout      time.Duration `yaml:"lease_timeout"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	InitRetries       int           `yaml:"init_retries"`
	InitBaseDelay     time.Duration `yaml:"init_base_delay"`
	BackoffFactor     float64       `yaml:"backoff_factor"`
	OpRetries         int           `yaml:"op_retries"`
	OpRetryDelay      time.Duration `yaml:"op_retry_delay"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
	ResetPause        time.Duration `yaml:"reset_pause"`
}

// CacheConfig holds the on-disk lookup cache settings.
type CacheConfig struct {
	Root          string                   `yaml:"root"`
	TTL           map[string]time.Duration `yaml:"ttl"`
	PruneInterval time.Duration            `yaml:"prune_interval"`
}

// SourceConfig configures one external metadata source.
type SourceConfig struct {
	Enabled      bool          `yaml:"enabled"`
	BaseURL      string        `yaml:"base_url"`
	MinInterval  time.Duration `yaml:"min_interval"`
	TokenURL     string        `yaml:"token_url,omitempty"`
	ClientID     string        `yaml:"client_id,omitempty"`
	ClientSecret string        `yaml:"client_secret,omitempty"`
	Market       string        `yaml:"market,omitempty"`
	Language     string        `yaml:"language,omitempty"`
}

// SourcesConfig lists the fixed set of source adapters.
type SourcesConfig struct {
	MusicBrainz SourceConfig `yaml:"musicbrainz"`
	Deezer      SourceConfig `yaml:"deezer"`
	Spotify     SourceConfig `yaml:"spotify"`
	Wikipedia   SourceConfig `yaml:"wikipedia"`
}

// ByName returns the source config for name.
func (s SourcesConfig) ByName(name string) (SourceConfig, bool) {
	switch name {
	case SourceMusicBrainz:
		return s.MusicBrainz, true
	case SourceDeezer:
		return s.Deezer, true
	case SourceSpotify:
		return s.Spotify, true
	case SourceWikipedia:
		return s.Wikipedia, true
	}
	return SourceConfig{}, false
}

// ClientConfig tunes outbound HTTP behavior shared by all sources.
type ClientConfig struct {
	Timeout             time.Duration `yaml:"timeout"`
	ThrottleWait        time.Duration `yaml:"throttle_wait"`
	MaxThrottleRetries  int           `yaml:"max_throttle_retries"`
	MaxTransientRetries int           `yaml:"max_transient_retries"`
	TransientBackoff    time.Duration `yaml:"transient_backoff"`
}

// MatchConfig holds candidate acceptance settings.
type MatchConfig struct {
	Mode                 string `yaml:"mode"` // "strict" or "loose"
	RepresentativeSource string `yaml:"representative_source"`
}

// WorkerConfig holds research worker settings.
type WorkerConfig struct {
	PollTimeout time.Duration `yaml:"poll_timeout"`
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level          string `yaml:"level"`
	Format         string `yaml:"format"`
	FilePath       string `yaml:"file_path"`
	FileMaxSizeMB  int    `yaml:"file_max_size_mb"`
	FileMaxFiles   int    `yaml:"file_max_files"`
	FileMaxAgeDays int    `yaml:"file_max_age_days"`
}

const day = 24 * time.Hour

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		DataDir: "/data",
		Server: ServerConfig{
			Port:     8080,
			BasePath: "/",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "",
			Pool: PoolConfig{
				MinSize:           1,
				MaxSize:           10,
				LeaseTimeout:      10 * time.Second,
				ConnectTimeout:    10 * time.Second,
				InitRetries:       3,
				InitBaseDelay:     1 * time.Second,
				BackoffFactor:     1.5,
				OpRetries:         2,
				OpRetryDelay:      500 * time.Millisecond,
				KeepaliveInterval: 5 * time.Minute,
				ResetPause:        1 * time.Second,
			},
		},
		Cache: CacheConfig{
			TTL: map[string]time.Duration{
				SourceMusicBrainz: 30 * day,
				SourceDeezer:      7 * day,
				SourceSpotify:     7 * day,
				SourceWikipedia:   14 * day,
			},
			PruneInterval: 24 * time.Hour,
		},
		Sources: SourcesConfig{
			MusicBrainz: SourceConfig{
				Enabled:     true,
				BaseURL:     "https://musicbrainz.org/ws/2",
				MinInterval: 1100 * time.Millisecond,
			},
			Deezer: SourceConfig{
				Enabled:     true,
				BaseURL:     "https://api.deezer.com",
				MinInterval: 200 * time.Millisecond,
			},
			Spotify: SourceConfig{
				Enabled:     true,
				BaseURL:     "https://api.spotify.com/v1",
				TokenURL:    "https://accounts.spotify.com/api/token",
				MinInterval: 250 * time.Millisecond,
				Market:      "US",
			},
			Wikipedia: SourceConfig{
				Enabled:     true,
				BaseURL:     "https://en.wikipedia.org/w/api.php",
				MinInterval: 200 * time.Millisecond,
				Language:    "en",
			},
		},
		Client: ClientConfig{
			Timeout:             15 * time.Second,
			ThrottleWait:        5 * time.Second,
			MaxThrottleRetries:  5,
			MaxTransientRetries: 2,
			TransientBackoff:    500 * time.Millisecond,
		},
		Match: MatchConfig{
			Mode:                 "strict",
			RepresentativeSource: SourceSpotify,
		},
		Worker: WorkerConfig{
			PollTimeout: 1 * time.Second,
			StopTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// TTLFor returns the cache TTL for a source, falling back to seven days.
func (c *Config) TTLFor(source string) time.Duration {
	if ttl, ok := c.Cache.TTL[source]; ok && ttl > 0 {
		return ttl
	}
	return 7 * day
}

// LockPath is the single-instance lock file guarding the research worker.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, "refrain.lock")
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied config path
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("RF_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("RF_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("RF_BASE_PATH"); v != "" {
		c.Server.BasePath = v
	}
	if v := os.Getenv("RF_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("RF_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("RF_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("RF_DB_POOL_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Database.Pool.MaxSize = n
		}
	}
	if v := os.Getenv("RF_CACHE_ROOT"); v != "" {
		c.Cache.Root = v
	}
	if v := os.Getenv("RF_MATCH_MODE"); v != "" {
		c.Match.Mode = v
	}
	if v := os.Getenv("RF_SPOTIFY_CLIENT_ID"); v != "" {
		c.Sources.Spotify.ClientID = v
	}
	if v := os.Getenv("RF_SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Sources.Spotify.ClientSecret = v
	}
	if v := os.Getenv("RF_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("RF_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	c.Server.BasePath = strings.TrimRight(c.Server.BasePath, "/")

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			c.Database.Path = filepath.Join(c.DataDir, "refrain.db")
		}
	case "pgx":
		if c.Database.DSN == "" {
			return fmt.Errorf("database dsn is required for driver pgx")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}

	p := &c.Database.Pool
	if p.MinSize < 1 {
		p.MinSize = 1
	}
	if p.MaxSize < p.MinSize {
		return fmt.Errorf("pool max_size (%d) must be >= min_size (%d)", p.MaxSize, p.MinSize)
	}
	if p.BackoffFactor < 1 {
		return fmt.Errorf("pool backoff_factor must be >= 1, got %v", p.BackoffFactor)
	}
	if p.InitRetries < 0 || p.OpRetries < 0 {
		return fmt.Errorf("pool retry counts must not be negative")
	}
	if p.LeaseTimeout <= 0 {
		return fmt.Errorf("pool lease_timeout must be positive")
	}

	if c.Cache.Root == "" {
		c.Cache.Root = filepath.Join(c.DataDir, "cache")
	}

	switch c.Match.Mode {
	case "strict", "loose":
	default:
		return fmt.Errorf("invalid match mode: %q (want strict or loose)", c.Match.Mode)
	}

	if c.Worker.PollTimeout <= 0 {
		c.Worker.PollTimeout = time.Second
	}
	if c.Worker.StopTimeout <= 0 {
		c.Worker.StopTimeout = 30 * time.Second
	}
	return nil
}
