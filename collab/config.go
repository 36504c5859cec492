package collab

import "github.com/tailored-agentic-units/collab/storage"

// DefaultMaxMemoryBytes is the default memory ceiling (50 MiB).
const DefaultMaxMemoryBytes = 50 << 20

// Config defines engine initialization parameters. Used only during
// construction, then transformed into domain objects; the Observer,
// Storage.Driver and ConflictStrategy fields are strings to enable JSON
// configuration with runtime resolution.
type Config struct {
	// MaxMemoryBytes is the hard ceiling on accounted snapshot and
	// history bytes before reclaim triggers.
	MaxMemoryBytes int64 `json:"max_memory_usage"`

	// MaxSnapshotsPerOwner caps live snapshots per owner.
	MaxSnapshotsPerOwner int `json:"max_snapshots_per_owner"`

	// MaxHistoryPerOwner caps live history entries per owner.
	MaxHistoryPerOwner int `json:"max_history_per_owner"`

	// Storage selects and locates the backend.
	Storage storage.Config `json:"storage_backend"`

	// ConflictStrategy selects resolution for detected write races:
	// "last_write_wins" (default), "field_merge" or "reject".
	ConflictStrategy string `json:"conflict_strategy"`

	// Observer specifies which observer implementation to use
	// ("noop", "slog", or a registered custom name).
	Observer string `json:"observer"`
}

// DefaultConfig returns the default engine configuration: 50 MiB ceiling,
// 20 snapshots and 100 history entries per owner, in-memory storage,
// last-write-wins conflict resolution, slog observer.
func DefaultConfig() Config {
	return Config{
		MaxMemoryBytes:       DefaultMaxMemoryBytes,
		MaxSnapshotsPerOwner: 20,
		MaxHistoryPerOwner:   100,
		Storage:              storage.DefaultConfig(),
		ConflictStrategy:     StrategyLastWriteWins,
		Observer:             "slog",
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.MaxMemoryBytes > 0 {
		c.MaxMemoryBytes = source.MaxMemoryBytes
	}
	if source.MaxSnapshotsPerOwner > 0 {
		c.MaxSnapshotsPerOwner = source.MaxSnapshotsPerOwner
	}
	if source.MaxHistoryPerOwner > 0 {
		c.MaxHistoryPerOwner = source.MaxHistoryPerOwner
	}
	c.Storage.Merge(&source.Storage)
	if source.ConflictStrategy != "" {
		c.ConflictStrategy = source.ConflictStrategy
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
}
