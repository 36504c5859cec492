package storage_test

import (
	"path/filepath"
	"testing"

	"github.com/tailored-agentic-units/collab/storage"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := storage.DefaultConfig()
	if cfg.Driver != storage.DriverMemory {
		t.Errorf("DefaultConfig().Driver = %q, want %q", cfg.Driver, storage.DriverMemory)
	}
}

func TestConfig_Merge(t *testing.T) {
	cfg := storage.DefaultConfig()
	cfg.Merge(&storage.Config{Driver: storage.DriverSQLite, Path: "/tmp/records.db", CacheSize: 64})

	if cfg.Driver != storage.DriverSQLite {
		t.Errorf("Driver = %q, want %q", cfg.Driver, storage.DriverSQLite)
	}
	if cfg.Path != "/tmp/records.db" {
		t.Errorf("Path = %q, want %q", cfg.Path, "/tmp/records.db")
	}
	if cfg.CacheSize != 64 {
		t.Errorf("CacheSize = %d, want 64", cfg.CacheSize)
	}

	cfg.Merge(&storage.Config{})
	if cfg.Driver != storage.DriverSQLite {
		t.Error("Merge with zero config should preserve existing values")
	}
}

func TestNew_DriverSelection(t *testing.T) {
	tests := []struct {
		name    string
		cfg     storage.Config
		wantErr bool
	}{
		{name: "memory", cfg: storage.Config{Driver: storage.DriverMemory}},
		{name: "empty defaults to memory", cfg: storage.Config{}},
		{name: "badger in-memory", cfg: storage.Config{Driver: storage.DriverBadger}},
		{name: "sqlite requires path", cfg: storage.Config{Driver: storage.DriverSQLite}, wantErr: true},
		{name: "flatfile requires path", cfg: storage.Config{Driver: storage.DriverFlatFile}, wantErr: true},
		{name: "unknown driver", cfg: storage.Config{Driver: "etcd"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, err := storage.New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					backend.Close()
					t.Fatal("New() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			backend.Close()
		})
	}
}

func TestNew_SQLiteWithPath(t *testing.T) {
	backend, err := storage.New(storage.Config{
		Driver: storage.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "records.db"),
	})
	if err != nil {
		t.Fatalf("New(sqlite) error = %v", err)
	}
	backend.Close()
}
