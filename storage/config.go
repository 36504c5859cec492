package storage

import "fmt"

// Recognized backend drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverFlatFile = "flatfile"
	DriverBadger   = "badger"
)

// Config holds storage backend initialization parameters.
type Config struct {
	// Driver selects the backend: "memory", "sqlite", "flatfile" or "badger".
	Driver string `json:"driver"`

	// Path locates the backend's data: a database file for sqlite, a
	// directory for flatfile and badger. Ignored by memory.
	Path string `json:"path,omitempty"`

	// CacheSize bounds the read-through record cache layered over
	// persistent drivers. Zero disables caching.
	CacheSize int `json:"cache_size,omitempty"`
}

// DefaultConfig returns the default storage configuration (in-memory).
func DefaultConfig() Config {
	return Config{Driver: DriverMemory}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Driver != "" {
		c.Driver = source.Driver
	}
	if source.Path != "" {
		c.Path = source.Path
	}
	if source.CacheSize > 0 {
		c.CacheSize = source.CacheSize
	}
}

// New creates a Backend from configuration. A positive CacheSize wraps
// persistent drivers in a read-through cache; the memory driver is already
// its own cache and is never wrapped.
func New(cfg Config) (Backend, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemoryBackend(), nil
	case DriverSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite backend requires a path")
		}
		backend, err := NewSQLiteBackend(cfg.Path)
		if err != nil {
			return nil, err
		}
		return NewCachedBackend(backend, cfg.CacheSize), nil
	case DriverFlatFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("flatfile backend requires a path")
		}
		backend, err := NewFlatFileBackend(cfg.Path)
		if err != nil {
			return nil, err
		}
		return NewCachedBackend(backend, cfg.CacheSize), nil
	case DriverBadger:
		backend, err := NewBadgerBackend(cfg.Path)
		if err != nil {
			return nil, err
		}
		return NewCachedBackend(backend, cfg.CacheSize), nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
}
