package casstore

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flagforge/storecheck/lib/datastore"
	"github.com/gocql/gocql"
	log "github.com/sirupsen/logrus"
)

// DefaultPrefix is the namespace selected by the empty prefix.
const DefaultPrefix = "default"

// DefaultKeyspace is used when Options.Keyspace is empty.
const DefaultKeyspace = "storecheck"

// upsertRetries bounds how often an optimistic upsert re-runs after its
// lightweight transaction is not applied due to a competing writer.
const upsertRetries = 16

// Options configures the Cassandra connection.
type Options struct {
	// Hosts of the Cassandra cluster.
	Hosts []string
	// Keyspace to keep the records in; created on demand with a simple
	// replication strategy. Empty selects DefaultKeyspace.
	Keyspace string
	// ConnectTimeout for establishing the session, zero keeps the driver
	// default.
	ConnectTimeout time.Duration
}

// DefaultOptions returns options for a local single-node cluster.
func DefaultOptions() Options {
	return Options{
		Hosts:    []string{"localhost:9042"},
		Keyspace: DefaultKeyspace,
	}
}

// Store implements datastore.Store and datastore.PreCommitHooker on a
// Cassandra cluster. Records live in one table partitioned by prefix, so a
// namespace is a single partition; the column is named rkey since "key" is
// reserved in CQL. Instances with the same prefix against the same cluster
// are siblings.
//
// Thread-safety: all methods are safe for concurrent use.
type Store struct {
	session  *gocql.Session
	keyspace string
	prefix   string

	hookMu sync.Mutex
	hook   func()
}

var (
	_ datastore.Store           = (*Store)(nil)
	_ datastore.PreCommitHooker = (*Store)(nil)
)

// Open connects to the cluster, creates keyspace and tables on demand and
// returns an instance scoped to the prefix. The empty prefix selects
// DefaultPrefix.
func Open(opts Options, prefix string) (*Store, error) {
	if len(opts.Hosts) == 0 {
		return nil, fmt.Errorf("casstore: no hosts specified")
	}
	if opts.Keyspace == "" {
		opts.Keyspace = DefaultKeyspace
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}

	cluster := gocql.NewCluster(opts.Hosts...)
	cluster.Consistency = gocql.Quorum
	if opts.ConnectTimeout > 0 {
		cluster.ConnectTimeout = opts.ConnectTimeout
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("casstore: failed to connect to %v: %w", opts.Hosts, err)
	}

	if err := applySchema(session, opts.Keyspace); err != nil {
		session.Close()
		return nil, err
	}

	log.WithFields(log.Fields{"hosts": opts.Hosts, "keyspace": opts.Keyspace, "prefix": prefix}).
		Debug("Connected to Cassandra")

	return &Store{session: session, keyspace: opts.Keyspace, prefix: prefix}, nil
}

// applySchema creates the keyspace and tables idempotently. Table names are
// fully qualified so the session needs no bound keyspace.
func applySchema(session *gocql.Session, keyspace string) error {
	stmts := []string{
		fmt.Sprintf("CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = {'class':'SimpleStrategy','replication_factor':1}", keyspace),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.records (prefix text, kind text, rkey text, version bigint, value blob, deleted boolean, PRIMARY KEY ((prefix), kind, rkey))", keyspace),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.namespaces (prefix text PRIMARY KEY, initialized boolean)", keyspace),
	}
	for _, stmt := range stmts {
		if err := session.Query(stmt).Exec(); err != nil {
			return fmt.Errorf("casstore: failed to apply schema: %w", err)
		}
	}
	return nil
}

// SetPreCommitHook installs fn between the accept decision of an Upsert and
// the lightweight transaction committing its write. The hook may fire once
// per attempt; a not-applied transaction re-runs the version gate before the
// next firing. Nil clears the hook.
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
// from the cluster, regardless of the prefix this instance is scoped to.
// The empty prefix selects DefaultPrefix. Intended for harness cleanup
// between scenarios.
func (s *Store) Wipe(prefix string) error {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if err := s.session.Query(
		fmt.Sprintf("DELETE FROM %s.records WHERE prefix = ?", s.keyspace), prefix,
	).Exec(); err != nil {
		return fmt.Errorf("casstore: failed to wipe records of prefix %q: %w", prefix, err)
	}
	if err := s.session.Query(
		fmt.Sprintf("DELETE FROM %s.namespaces WHERE prefix = ?", s.keyspace), prefix,
	).Exec(); err != nil {
		return fmt.Errorf("casstore: failed to wipe namespace %q: %w", prefix, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Contract Methods (semantics see datastore.Store)
// --------------------------------------------------------------------------

func (s *Store) Init(data datastore.DataSet) error {
	// The partition delete must not share a batch with the new rows: every
	// statement in a batch gets the same coordinator timestamp, and on a
	// timestamp tie the range tombstone shadows the inserts. The delete
	// runs first on its own, the rows land in one logged batch afterwards.
	if err := s.session.Query(
		fmt.Sprintf("DELETE FROM %s.records WHERE prefix = ?", s.keyspace), s.prefix,
	).Exec(); err != nil {
		return fmt.Errorf("casstore: failed to clear namespace %q: %w", s.prefix, err)
	}

	// all records of a prefix share one partition, so the logged batch of
	// the new rows applies atomically
	batch := s.session.NewBatch(gocql.LoggedBatch)
	insert := fmt.Sprintf("INSERT INTO %s.records (prefix, kind, rkey, version, value, deleted) VALUES (?, ?, ?, ?, ?, ?)", s.keyspace)
	for kind, records := range data {
		for _, rec := range records {
			batch.Query(insert, s.prefix, string(kind), rec.Key, rec.Version, rec.Value, rec.Deleted)
		}
	}
	batch.Query(fmt.Sprintf("INSERT INTO %s.namespaces (prefix, initialized) VALUES (?, true)", s.keyspace), s.prefix)

	if err := s.session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("casstore: failed to init namespace %q: %w", s.prefix, err)
	}
	return nil
}

func (s *Store) Get(kind datastore.Kind, key string) (datastore.Record, bool, error) {
	rec := datastore.Record{Key: key}
	err := s.session.Query(
		fmt.Sprintf("SELECT version, value, deleted FROM %s.records WHERE prefix = ? AND kind = ? AND rkey = ?", s.keyspace),
		s.prefix, string(kind), key,
	).Scan(&rec.Version, &rec.Value, &rec.Deleted)
	if errors.Is(err, gocql.ErrNotFound) {
		return datastore.Record{}, false, nil
	}
	if err != nil {
		return datastore.Record{}, false, fmt.Errorf("casstore: failed to read record %q/%q: %w", kind, key, err)
	}
	return rec, true, nil
}

func (s *Store) GetAll(kind datastore.Kind) (map[string]datastore.Record, error) {
	iter := s.session.Query(
		fmt.Sprintf("SELECT rkey, version, value, deleted FROM %s.records WHERE prefix = ? AND kind = ?", s.keyspace),
		s.prefix, string(kind),
	).Iter()

	records := make(map[string]datastore.Record)
	var rec datastore.Record
	for iter.Scan(&rec.Key, &rec.Version, &rec.Value, &rec.Deleted) {
		records[rec.Key] = rec
		rec = datastore.Record{}
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("casstore: failed to list kind %q: %w", kind, err)
	}
	return records, nil
}

func (s *Store) Upsert(kind datastore.Kind, key string, candidate datastore.Record) (bool, error) {
	selectStmt := fmt.Sprintf("SELECT version FROM %s.records WHERE prefix = ? AND kind = ? AND rkey = ?", s.keyspace)
	insertStmt := fmt.Sprintf("INSERT INTO %s.records (prefix, kind, rkey, version, value, deleted) VALUES (?, ?, ?, ?, ?, ?) IF NOT EXISTS", s.keyspace)
	updateStmt := fmt.Sprintf("UPDATE %s.records SET version = ?, value = ?, deleted = ? WHERE prefix = ? AND kind = ? AND rkey = ? IF version = ?", s.keyspace)

	for attempt := 0; attempt < upsertRetries; attempt++ {
		var stored int
		err := s.session.Query(selectStmt, s.prefix, string(kind), key).Scan(&stored)
		exists := err == nil
		if err != nil && !errors.Is(err, gocql.ErrNotFound) {
			return false, fmt.Errorf("casstore: failed to read record %q/%q: %w", kind, key, err)
		}
		if exists && candidate.Version <= stored {
			return false, nil
		}

		if hook := s.preCommitHook(); hook != nil {
			hook()
		}

		// the lightweight transaction re-validates the decision: the insert
		// requires the row to still be absent, the update requires the
		// version read above to still be current
		var q *gocql.Query
		if exists {
			q = s.session.Query(updateStmt,
				candidate.Version, candidate.Value, candidate.Deleted,
				s.prefix, string(kind), key, stored)
		} else {
			q = s.session.Query(insertStmt,
				s.prefix, string(kind), key, candidate.Version, candidate.Value, candidate.Deleted)
		}

		applied, err := q.MapScanCAS(map[string]interface{}{})
		if err != nil {
			return false, fmt.Errorf("casstore: failed to upsert record %q/%q: %w", kind, key, err)
		}
		if applied {
			return true, nil
		}
		log.WithFields(log.Fields{"kind": kind, "key": key, "attempt": attempt + 1}).
			Warn("Optimistic upsert was not applied, retrying")
	}
	return false, fmt.Errorf("casstore: upsert of %q/%q kept failing its lightweight transaction after %d attempts", kind, key, upsertRetries)
}

func (s *Store) IsInitialized() (bool, error) {
	var initialized bool
	err := s.session.Query(
		fmt.Sprintf("SELECT initialized FROM %s.namespaces WHERE prefix = ?", s.keyspace), s.prefix,
	).Scan(&initialized)
	if errors.Is(err, gocql.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("casstore: failed to read initialized flag of %q: %w", s.prefix, err)
	}
	return initialized, nil
}

// Close releases the session. Closing twice is safe.
func (s *Store) Close() error {
	s.session.Close()
	return nil
}
