// Package sqlstore implements the datastore contract on a SQLite database
// file via mattn/go-sqlite3.
//
// The package contains:
//   - One records table keyed (prefix, kind, key) and a namespaces table
//     carrying the initialized flag per prefix
//   - A version-gated upsert expressed as a single INSERT .. ON CONFLICT
//     DO UPDATE .. WHERE statement, so the gate is re-validated atomically
//     inside the database even when the pre-commit hook interposes writes
//   - Init as one transaction that replaces the whole namespace
//
// The database runs in WAL mode with a busy timeout, so sibling instances
// opened on the same file arbitrate their writes through SQLite's own
// locking.
package sqlstore
