package raftstore

import (
	"github.com/flagforge/storecheck/lib/datastore"
	"github.com/flagforge/storecheck/lib/datastore/backends/raftstore/internal"
)

// DefaultPrefix is the namespace used when Open is called with an empty
// prefix.
const DefaultPrefix = "default"

// Store is a namespace-scoped handle on the hub's raft shard. It exposes
// the suspending calling convention: every operation returns immediately
// and delivers its result on a channel once the proposal has been applied
// or the read has been served.
//
// The store does not interpose on the raft apply path, so it offers no
// pre-commit hook. The version gate is evaluated inside the state machine
// where log entries apply one at a time.
//
// Thread-safety: safe for concurrent use.
type Store struct {
	hub    *Hub
	prefix string
}

var _ datastore.AsyncStore = (*Store)(nil)

// InitAsync proposes a full namespace replacement.
func (s *Store) InitAsync(data datastore.DataSet) <-chan error {
	ch := make(chan error, 1)
	go func() {
		_, err := s.hub.propose(internal.Command{
			Type:   internal.CommandTInit,
			Prefix: s.prefix,
			Data:   data,
		})
		ch <- err
	}()
	return ch
}

// GetAsync reads one record through a linearizable lookup.
func (s *Store) GetAsync(kind datastore.Kind, key string) <-chan datastore.GetResult {
	ch := make(chan datastore.GetResult, 1)
	go func() {
		res, err := lookup[internal.GetResult](s.hub, internal.Query{
			Type:   internal.QueryTGet,
			Prefix: s.prefix,
			Kind:   kind,
			Key:    key,
		})
		ch <- datastore.GetResult{Record: res.Record, Found: res.Found, Err: err}
	}()
	return ch
}

// GetAllAsync lists every record of the kind.
func (s *Store) GetAllAsync(kind datastore.Kind) <-chan datastore.GetAllResult {
	ch := make(chan datastore.GetAllResult, 1)
	go func() {
		recs, err := lookup[map[string]datastore.Record](s.hub, internal.Query{
			Type:   internal.QueryTGetAll,
			Prefix: s.prefix,
			Kind:   kind,
		})
		ch <- datastore.GetAllResult{Records: recs, Err: err}
	}()
	return ch
}

// UpsertAsync proposes a version-gated write. The gate is applied inside
// the state machine, so concurrent proposals from any instance serialize
// through the raft log.
func (s *Store) UpsertAsync(kind datastore.Kind, key string, candidate datastore.Record) <-chan datastore.UpsertResult {
	ch := make(chan datastore.UpsertResult, 1)
	go func() {
		res, err := s.hub.propose(internal.Command{
			Type:      internal.CommandTUpsert,
			Prefix:    s.prefix,
			Kind:      kind,
			Key:       key,
			Candidate: candidate,
		})
		ch <- datastore.UpsertResult{Accepted: err == nil && res.Value == resultAccepted, Err: err}
	}()
	return ch
}

// IsInitializedAsync reads the namespace's initialized flag.
func (s *Store) IsInitializedAsync() <-chan datastore.InitializedResult {
	ch := make(chan datastore.InitializedResult, 1)
	go func() {
		initialized, err := lookup[bool](s.hub, internal.Query{
			Type:   internal.QueryTIsInitialized,
			Prefix: s.prefix,
		})
		ch <- datastore.InitializedResult{Initialized: initialized, Err: err}
	}()
	return ch
}

// Close is a no-op; the underlying NodeHost belongs to the hub.
func (s *Store) Close() error {
	return nil
}
