package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const manifestName = ".manifest.json"

// recordMeta is the manifest entry for one record: everything List needs
// without opening the record file.
type recordMeta struct {
	Owner     string    `json:"owner"`
	Kind      Kind      `json:"kind"`
	Seq       uint64    `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}

// flatFileBackend implements Backend with one JSON file per record under a
// root directory. An in-memory index mirrors a manifest file so startup
// avoids decoding every record; when the manifest is missing or unreadable
// the index is rebuilt from a directory walk.
type flatFileBackend struct {
	root  string
	index map[string]recordMeta
	mu    sync.RWMutex
}

// NewFlatFileBackend creates a Backend storing records as individual files
// under root. The directory is created if needed and the record index is
// restored from the manifest, or rebuilt from the record files themselves.
func NewFlatFileBackend(root string) (Backend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, opError("flatfile", "mkdir", err)
	}

	b := &flatFileBackend{
		root:  root,
		index: make(map[string]recordMeta),
	}

	if err := b.loadManifest(); err != nil {
		if err := b.rebuildIndex(); err != nil {
			return nil, err
		}
		if err := b.writeManifest(); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *flatFileBackend) recordPath(id string) string {
	return filepath.Join(b.root, id+".json")
}

func (b *flatFileBackend) loadManifest() error {
	data, err := os.ReadFile(filepath.Join(b.root, manifestName))
	if err != nil {
		return err
	}
	index := make(map[string]recordMeta)
	if err := json.Unmarshal(data, &index); err != nil {
		return err
	}
	b.index = index
	return nil
}

// rebuildIndex walks the root directory and restores the index by decoding
// each record file. Unreadable entries are skipped rather than failing the
// whole rebuild.
func (b *flatFileBackend) rebuildIndex() error {
	b.index = make(map[string]recordMeta)

	err := filepath.WalkDir(b.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != b.root {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil || rec.ID == "" {
			return nil
		}
		b.index[rec.ID] = recordMeta{
			Owner:     rec.Owner,
			Kind:      rec.Kind,
			Seq:       rec.Seq,
			CreatedAt: rec.CreatedAt,
		}
		return nil
	})
	if err != nil {
		return opError("flatfile", "rebuild", err)
	}
	return nil
}

// writeManifest persists the index atomically. Callers hold b.mu.
func (b *flatFileBackend) writeManifest() error {
	data, err := json.Marshal(b.index)
	if err != nil {
		return opError("flatfile", "manifest", err)
	}
	if err := writeFileAtomic(filepath.Join(b.root, manifestName), data); err != nil {
		return opError("flatfile", "manifest", err)
	}
	return nil
}

func (b *flatFileBackend) Save(_ context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return opError("flatfile", "save", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := writeFileAtomic(b.recordPath(rec.ID), data); err != nil {
		return opError("flatfile", "save", fmt.Errorf("%s: %w", rec.ID, err))
	}
	b.index[rec.ID] = recordMeta{
		Owner:     rec.Owner,
		Kind:      rec.Kind,
		Seq:       rec.Seq,
		CreatedAt: rec.CreatedAt,
	}
	return b.writeManifest()
}

func (b *flatFileBackend) Load(_ context.Context, id string) (Record, error) {
	b.mu.RLock()
	_, indexed := b.index[id]
	b.mu.RUnlock()
	if !indexed {
		return Record{}, opError("flatfile", "load", ErrNotFound)
	}

	data, err := os.ReadFile(b.recordPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, opError("flatfile", "load", ErrNotFound)
		}
		return Record{}, opError("flatfile", "load", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, opError("flatfile", "load", err)
	}
	return rec, nil
}

func (b *flatFileBackend) Delete(_ context.Context, id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, indexed := b.index[id]; !indexed {
		return false, nil
	}

	if err := os.Remove(b.recordPath(id)); err != nil && !os.IsNotExist(err) {
		return false, opError("flatfile", "delete", err)
	}
	delete(b.index, id)
	if err := b.writeManifest(); err != nil {
		return true, err
	}
	return true, nil
}

func (b *flatFileBackend) List(ctx context.Context, f Filter) ([]Record, error) {
	b.mu.RLock()
	matched := make([]Record, 0, len(b.index))
	for id, meta := range b.index {
		rec := Record{
			ID:        id,
			Owner:     meta.Owner,
			Kind:      meta.Kind,
			Seq:       meta.Seq,
			CreatedAt: meta.CreatedAt,
		}
		if f.Matches(rec) {
			matched = append(matched, rec)
		}
	}
	b.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if f.Order == OrderNewestFirst {
			return Older(matched[j], matched[i])
		}
		return Older(matched[i], matched[j])
	})
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}

	// The index carries metadata only; blobs come from the record files. A
	// record deleted between the index snapshot and the file read is skipped
	// rather than failing the whole listing.
	records := matched[:0]
	for _, meta := range matched {
		rec, err := b.Load(ctx, meta.ID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (b *flatFileBackend) Exists(_ context.Context, id string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, indexed := b.index[id]
	return indexed, nil
}

func (b *flatFileBackend) Close() error {
	return nil
}

// writeFileAtomic writes data via a temp file and rename so readers never
// observe a partial record.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
