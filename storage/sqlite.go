package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteSchema holds the single-table layout. The composite index on
// (owner, kind, seq) keeps oldest-first eviction scans cheap; the
// (created_at, seq) index serves cross-owner reclaim scans.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	id         TEXT PRIMARY KEY,
	owner      TEXT NOT NULL,
	kind       TEXT NOT NULL,
	blob       BLOB NOT NULL,
	seq        INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS records_owner_kind_seq ON records(owner, kind, seq);
CREATE INDEX IF NOT EXISTS records_created_seq ON records(created_at, seq);
`

// sqlitePragmas are applied on open. WAL and a busy timeout make the
// embedded database safe under concurrent engine writers.
var sqlitePragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 10000",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA foreign_keys = ON",
}

// sqliteBackend implements Backend on an embedded SQLite database via
// database/sql and the modernc.org/sqlite driver.
type sqliteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (creating if needed) an embedded SQLite database
// at path and prepares the record schema. Use ":memory:" for an ephemeral
// database in tests.
func NewSQLiteBackend(path string) (Backend, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, opError("sqlite", "mkdir", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, opError("sqlite", "open", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range sqlitePragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, opError("sqlite", "pragma", fmt.Errorf("%s: %w", pragma, err))
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, opError("sqlite", "schema", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (s *sqliteBackend) Save(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (id, owner, kind, blob, seq, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner = excluded.owner,
			kind = excluded.kind,
			blob = excluded.blob,
			seq = excluded.seq,
			created_at = excluded.created_at`,
		rec.ID, rec.Owner, string(rec.Kind), rec.Blob, int64(rec.Seq), rec.CreatedAt.UnixNano())
	if err != nil {
		return opError("sqlite", "save", err)
	}
	return nil
}

func (s *sqliteBackend) Load(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner, kind, blob, seq, created_at
		FROM records WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, opError("sqlite", "load", ErrNotFound)
	}
	if err != nil {
		return Record{}, opError("sqlite", "load", err)
	}
	return rec, nil
}

func (s *sqliteBackend) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return false, opError("sqlite", "delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, opError("sqlite", "delete", err)
	}
	return n > 0, nil
}

func (s *sqliteBackend) List(ctx context.Context, f Filter) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	if f.Owner != "" {
		where = append(where, "owner = ?")
		args = append(args, f.Owner)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}

	query := "SELECT id, owner, kind, blob, seq, created_at FROM records"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if f.Order == OrderNewestFirst {
		query += " ORDER BY created_at DESC, seq DESC"
	} else {
		query += " ORDER BY created_at ASC, seq ASC"
	}
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, opError("sqlite", "list", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, opError("sqlite", "list", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, opError("sqlite", "list", err)
	}
	return records, nil
}

func (s *sqliteBackend) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM records WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, opError("sqlite", "exists", err)
	}
	return true, nil
}

func (s *sqliteBackend) Close() error {
	return s.db.Close()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec     Record
		kind    string
		seq     int64
		created int64
	)
	if err := row.Scan(&rec.ID, &rec.Owner, &kind, &rec.Blob, &seq, &created); err != nil {
		return Record{}, err
	}
	rec.Kind = Kind(kind)
	rec.Seq = uint64(seq)
	rec.CreatedAt = time.Unix(0, created).UTC()
	return rec, nil
}
