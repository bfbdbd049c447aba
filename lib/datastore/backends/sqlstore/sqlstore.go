package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/flagforge/storecheck/lib/datastore"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultPrefix is the namespace selected by the empty prefix.
const DefaultPrefix = "default"

// schema holds one row per (prefix, kind, key) plus a namespaces table for
// the initialized flag. Tombstones are rows with deleted=1 and a NULL value.
const schema = `
CREATE TABLE IF NOT EXISTS records (
	prefix  TEXT    NOT NULL,
	kind    TEXT    NOT NULL,
	key     TEXT    NOT NULL,
	version INTEGER NOT NULL,
	value   BLOB,
	deleted INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (prefix, kind, key)
);
CREATE TABLE IF NOT EXISTS namespaces (
	prefix      TEXT PRIMARY KEY,
	initialized INTEGER NOT NULL DEFAULT 0
);
`

// upsertStmt applies the version gate inside the database: the insert wins
// on a never-written key, the conflict clause only overwrites strictly older
// rows. Rows affected therefore reports acceptance.
const upsertStmt = `
INSERT INTO records (prefix, kind, key, version, value, deleted)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (prefix, kind, key) DO UPDATE SET
	version = excluded.version,
	value   = excluded.value,
	deleted = excluded.deleted
WHERE excluded.version > records.version
`

// Store implements datastore.Store and datastore.PreCommitHooker on a SQLite
// database file. Instances opened on the same file with the same prefix are
// siblings; SQLite's locking arbitrates their concurrent writes.
//
// Thread-safety: all methods are safe for concurrent use.
type Store struct {
	db     *sql.DB
	prefix string

	hookMu sync.Mutex
	hook   func()
}

var (
	_ datastore.Store           = (*Store)(nil)
	_ datastore.PreCommitHooker = (*Store)(nil)
)

// Open creates or opens the database file at path and returns an instance
// scoped to the prefix. The empty prefix selects DefaultPrefix. The schema
// is applied idempotently, so any number of instances can open the same
// file in any order.
func Open(path, prefix string) (*Store, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	// WAL keeps readers unblocked during writes, the busy timeout covers
	// sibling write contention
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: failed to open database %q: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: failed to connect to database %q: %w", path, err)
	}

	// SQLite supports one writer at a time, a single pooled connection
	// avoids spurious SQLITE_BUSY between goroutines of this instance
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: failed to apply schema: %w", err)
	}

	return &Store{db: db, prefix: prefix}, nil
}

// SetPreCommitHook installs fn between the accept decision of an Upsert and
// the guarded write statement. Nil clears the hook.
func (s *Store) SetPreCommitHook(fn func()) {
	s.hookMu.Lock()
	s.hook = fn
	s.hookMu.Unlock()
}

func (s *Store) preCommitHook() func() {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	return s.hook
}

// Wipe removes every record and the initialized flag of the given prefix
// from the underlying file, regardless of the prefix this instance is
// scoped to. The empty prefix selects DefaultPrefix. Intended for harness
// cleanup between scenarios.
func (s *Store) Wipe(prefix string) error {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if _, err := s.db.Exec("DELETE FROM records WHERE prefix = ?", prefix); err != nil {
		return fmt.Errorf("sqlstore: failed to wipe records of prefix %q: %w", prefix, err)
	}
	if _, err := s.db.Exec("DELETE FROM namespaces WHERE prefix = ?", prefix); err != nil {
		return fmt.Errorf("sqlstore: failed to wipe namespace %q: %w", prefix, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Contract Methods (semantics see datastore.Store)
// --------------------------------------------------------------------------

func (s *Store) Init(data datastore.DataSet) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlstore: failed to begin init transaction: %w", err)
	}
	defer tx.Rollback()

	// whole-namespace replacement: kinds absent from the dataset are gone
	// after the delete
	if _, err := tx.Exec("DELETE FROM records WHERE prefix = ?", s.prefix); err != nil {
		return fmt.Errorf("sqlstore: failed to clear namespace %q: %w", s.prefix, err)
	}

	for kind, records := range data {
		for _, rec := range records {
			if _, err := tx.Exec(
				"INSERT INTO records (prefix, kind, key, version, value, deleted) VALUES (?, ?, ?, ?, ?, ?)",
				s.prefix, string(kind), rec.Key, rec.Version, rec.Value, rec.Deleted,
			); err != nil {
				return fmt.Errorf("sqlstore: failed to write record %q/%q: %w", kind, rec.Key, err)
			}
		}
	}

	if _, err := tx.Exec(
		"INSERT INTO namespaces (prefix, initialized) VALUES (?, 1) ON CONFLICT (prefix) DO UPDATE SET initialized = 1",
		s.prefix,
	); err != nil {
		return fmt.Errorf("sqlstore: failed to mark namespace %q initialized: %w", s.prefix, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: failed to commit init: %w", err)
	}
	return nil
}

func (s *Store) Get(kind datastore.Kind, key string) (datastore.Record, bool, error) {
	row := s.db.QueryRow(
		"SELECT version, value, deleted FROM records WHERE prefix = ? AND kind = ? AND key = ?",
		s.prefix, string(kind), key,
	)

	rec := datastore.Record{Key: key}
	err := row.Scan(&rec.Version, &rec.Value, &rec.Deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return datastore.Record{}, false, nil
	}
	if err != nil {
		return datastore.Record{}, false, fmt.Errorf("sqlstore: failed to read record %q/%q: %w", kind, key, err)
	}
	return rec, true, nil
}

func (s *Store) GetAll(kind datastore.Kind) (map[string]datastore.Record, error) {
	rows, err := s.db.Query(
		"SELECT key, version, value, deleted FROM records WHERE prefix = ? AND kind = ?",
		s.prefix, string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: failed to list kind %q: %w", kind, err)
	}
	defer rows.Close()

	records := make(map[string]datastore.Record)
	for rows.Next() {
		var rec datastore.Record
		if err := rows.Scan(&rec.Key, &rec.Version, &rec.Value, &rec.Deleted); err != nil {
			return nil, fmt.Errorf("sqlstore: failed to scan record of kind %q: %w", kind, err)
		}
		records[rec.Key] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: failed to list kind %q: %w", kind, err)
	}
	return records, nil
}

func (s *Store) Upsert(kind datastore.Kind, key string, candidate datastore.Record) (bool, error) {
	// decide on current state first so a rejected candidate never fires the
	// hook; the guarded statement below re-validates the decision atomically
	var stored int
	err := s.db.QueryRow(
		"SELECT version FROM records WHERE prefix = ? AND kind = ? AND key = ?",
		s.prefix, string(kind), key,
	).Scan(&stored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("sqlstore: failed to read record %q/%q: %w", kind, key, err)
	}
	if err == nil && candidate.Version <= stored {
		return false, nil
	}

	if hook := s.preCommitHook(); hook != nil {
		hook()
	}

	res, err := s.db.Exec(upsertStmt,
		s.prefix, string(kind), key, candidate.Version, candidate.Value, candidate.Deleted)
	if err != nil {
		return false, fmt.Errorf("sqlstore: failed to upsert record %q/%q: %w", kind, key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlstore: failed to read upsert result for %q/%q: %w", kind, key, err)
	}
	return affected > 0, nil
}

func (s *Store) IsInitialized() (bool, error) {
	var initialized bool
	err := s.db.QueryRow(
		"SELECT initialized FROM namespaces WHERE prefix = ?", s.prefix,
	).Scan(&initialized)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlstore: failed to read initialized flag of %q: %w", s.prefix, err)
	}
	return initialized, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
