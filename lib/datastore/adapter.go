package datastore

import (
	"errors"
	"fmt"
)

// errResultClosed is returned when a suspending backend closes a result
// channel without delivering a result.
var errResultClosed = errors.New("result channel closed before delivery")

// Adapter normalizes a backend instance behind the blocking call surface,
// regardless of which calling convention the instance implements. For a
// suspending backend, every call sends the request and blocks until the
// result channel delivers.
//
// Thread-safety: an Adapter is as safe for concurrent use as the backend it
// wraps.
type Adapter struct {
	backend any
	sync    Store
	async   AsyncStore
}

// NewAdapter probes the concrete backend value for the capability it
// satisfies, Store first, then AsyncStore. A backend implementing both is
// driven through its blocking surface. A value satisfying neither is a
// configuration error.
func NewAdapter(backend any) (*Adapter, error) {
	a := &Adapter{backend: backend}
	switch v := backend.(type) {
	case Store:
		a.sync = v
	case AsyncStore:
		a.async = v
	default:
		return nil, fmt.Errorf("datastore: %T satisfies neither datastore.Store nor datastore.AsyncStore", backend)
	}
	return a, nil
}

// Backend returns the wrapped backend instance.
func (a *Adapter) Backend() any {
	return a.backend
}

// SetPreCommitHook installs the pre-commit hook on the wrapped backend if it
// implements PreCommitHooker. The return value reports whether the hook was
// installed.
func (a *Adapter) SetPreCommitHook(fn func()) bool {
	h, ok := a.backend.(PreCommitHooker)
	if !ok {
		return false
	}
	h.SetPreCommitHook(fn)
	return true
}

// --------------------------------------------------------------------------
// Contract Methods (semantics see Store)
// --------------------------------------------------------------------------

func (a *Adapter) Init(data DataSet) error {
	if a.sync != nil {
		return a.sync.Init(data)
	}
	res, err := recv(a.async.InitAsync(data))
	if err != nil {
		return err
	}
	return res
}

func (a *Adapter) Get(kind Kind, key string) (Record, bool, error) {
	if a.sync != nil {
		return a.sync.Get(kind, key)
	}
	res, err := recv(a.async.GetAsync(kind, key))
	if err != nil {
		return Record{}, false, err
	}
	return res.Record, res.Found, res.Err
}

func (a *Adapter) GetAll(kind Kind) (map[string]Record, error) {
	if a.sync != nil {
		return a.sync.GetAll(kind)
	}
	res, err := recv(a.async.GetAllAsync(kind))
	if err != nil {
		return nil, err
	}
	return res.Records, res.Err
}

func (a *Adapter) Upsert(kind Kind, key string, candidate Record) (bool, error) {
	if a.sync != nil {
		return a.sync.Upsert(kind, key, candidate)
	}
	res, err := recv(a.async.UpsertAsync(kind, key, candidate))
	if err != nil {
		return false, err
	}
	return res.Accepted, res.Err
}

func (a *Adapter) IsInitialized() (bool, error) {
	if a.sync != nil {
		return a.sync.IsInitialized()
	}
	res, err := recv(a.async.IsInitializedAsync())
	if err != nil {
		return false, err
	}
	return res.Initialized, res.Err
}

func (a *Adapter) Close() error {
	if a.sync != nil {
		return a.sync.Close()
	}
	return a.async.Close()
}

// recv blocks on a result channel and guards against the channel being
// closed without a delivered result.
func recv[T any](ch <-chan T) (T, error) {
	res, ok := <-ch
	if !ok {
		var zero T
		return zero, errResultClosed
	}
	return res, nil
}
