package memstore

import (
	"github.com/flagforge/storecheck/lib/datastore"
)

// AsyncStore is the suspending flavor of the in-memory backend. Every
// operation runs on its own goroutine and delivers exactly one result on a
// buffered channel. It shares namespace state with blocking siblings and
// keeps the pre-commit hook capability of the wrapped instance.
//
// Thread-safety: all methods are safe for concurrent use.
type AsyncStore struct {
	inner *Store
}

var (
	_ datastore.AsyncStore      = (*AsyncStore)(nil)
	_ datastore.PreCommitHooker = (*AsyncStore)(nil)
)

// SetPreCommitHook forwards to the wrapped blocking instance.
func (s *AsyncStore) SetPreCommitHook(fn func()) {
	s.inner.SetPreCommitHook(fn)
}

func (s *AsyncStore) InitAsync(data datastore.DataSet) <-chan error {
	ch := make(chan error, 1)
	go func() {
		ch <- s.inner.Init(data)
	}()
	return ch
}

func (s *AsyncStore) GetAsync(kind datastore.Kind, key string) <-chan datastore.GetResult {
	ch := make(chan datastore.GetResult, 1)
	go func() {
		rec, found, err := s.inner.Get(kind, key)
		ch <- datastore.GetResult{Record: rec, Found: found, Err: err}
	}()
	return ch
}

func (s *AsyncStore) GetAllAsync(kind datastore.Kind) <-chan datastore.GetAllResult {
	ch := make(chan datastore.GetAllResult, 1)
	go func() {
		records, err := s.inner.GetAll(kind)
		ch <- datastore.GetAllResult{Records: records, Err: err}
	}()
	return ch
}

func (s *AsyncStore) UpsertAsync(kind datastore.Kind, key string, candidate datastore.Record) <-chan datastore.UpsertResult {
	ch := make(chan datastore.UpsertResult, 1)
	go func() {
		accepted, err := s.inner.Upsert(kind, key, candidate)
		ch <- datastore.UpsertResult{Accepted: accepted, Err: err}
	}()
	return ch
}

func (s *AsyncStore) IsInitializedAsync() <-chan datastore.InitializedResult {
	ch := make(chan datastore.InitializedResult, 1)
	go func() {
		initialized, err := s.inner.IsInitialized()
		ch <- datastore.InitializedResult{Initialized: initialized, Err: err}
	}()
	return ch
}

func (s *AsyncStore) Close() error {
	return s.inner.Close()
}
