package memstore

import (
	"sync"
	"sync/atomic"

	"github.com/flagforge/storecheck/lib/datastore"
	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultPrefix is the namespace selected by the empty prefix.
const DefaultPrefix = "default"

// --------------------------------------------------------------------------
// Hub (shared physical storage)
// --------------------------------------------------------------------------

// Hub is the in-memory equivalent of a database server: a set of namespaces
// living in one process. Instances opened on the same hub with the same
// prefix are siblings and observe each other's writes; distinct prefixes are
// fully isolated.
//
// Thread-safety: all methods are safe for concurrent use.
type Hub struct {
	namespaces *xsync.MapOf[string, *namespace]
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		namespaces: xsync.NewMapOf[string, *namespace](),
	}
}

// Open returns a blocking-convention instance scoped to the prefix. The
// empty prefix selects DefaultPrefix.
func (h *Hub) Open(prefix string) *Store {
	return &Store{ns: h.namespace(prefix)}
}

// OpenAsync returns a suspending-convention instance scoped to the prefix.
// It shares the namespace state with Open instances of the same prefix.
func (h *Hub) OpenAsync(prefix string) *AsyncStore {
	return &AsyncStore{inner: h.Open(prefix)}
}

// Clear drops every record and the initialized flag of the prefix.
func (h *Hub) Clear(prefix string) error {
	h.namespaces.Delete(resolvePrefix(prefix))
	return nil
}

// namespace returns the state shared by all instances of the prefix,
// creating it on first use.
func (h *Hub) namespace(prefix string) *namespace {
	ns, _ := h.namespaces.LoadOrCompute(resolvePrefix(prefix), func() *namespace {
		n := &namespace{}
		n.state.Store(emptyState())
		return n
	})
	return ns
}

func resolvePrefix(prefix string) string {
	if prefix == "" {
		return DefaultPrefix
	}
	return prefix
}

// --------------------------------------------------------------------------
// Namespace state
// --------------------------------------------------------------------------

// nsState is one immutable snapshot of a namespace. Writers build a new
// snapshot and swap it in with CompareAndSwap; readers only ever see fully
// applied snapshots, which gives Init its atomicity and Upsert its
// per-key read-compare-write atomicity.
type nsState struct {
	initialized bool
	kinds       map[datastore.Kind]map[string]datastore.Record
}

type namespace struct {
	state atomic.Pointer[nsState]
}

func emptyState() *nsState {
	return &nsState{kinds: map[datastore.Kind]map[string]datastore.Record{}}
}

// withRecord derives a snapshot with one record replaced.
func (s *nsState) withRecord(kind datastore.Kind, rec datastore.Record) *nsState {
	next := &nsState{
		initialized: s.initialized,
		kinds:       make(map[datastore.Kind]map[string]datastore.Record, len(s.kinds)+1),
	}
	for k, records := range s.kinds {
		next.kinds[k] = records
	}
	updated := make(map[string]datastore.Record, len(s.kinds[kind])+1)
	for key, r := range s.kinds[kind] {
		updated[key] = r
	}
	updated[rec.Key] = rec
	next.kinds[kind] = updated
	return next
}

// --------------------------------------------------------------------------
// Store (blocking convention)
// --------------------------------------------------------------------------

// Store implements datastore.Store and datastore.PreCommitHooker over a hub
// namespace.
//
// Thread-safety: all methods are safe for concurrent use.
type Store struct {
	ns *namespace

	hookMu sync.Mutex
	hook   func()
}

var (
	_ datastore.Store           = (*Store)(nil)
	_ datastore.PreCommitHooker = (*Store)(nil)
)

// SetPreCommitHook installs fn between the accept decision of an Upsert and
// the snapshot swap. The hook fires once per swap attempt; a failed swap
// re-runs the version gate before firing again. Nil clears the hook.
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

func (s *Store) Init(data datastore.DataSet) error {
	// the new snapshot replaces the namespace as a whole, so kinds absent
	// from the dataset end up empty
	next := emptyState()
	next.initialized = true
	for kind, records := range data {
		m := make(map[string]datastore.Record, len(records))
		for key, rec := range records {
			m[key] = copyRecord(rec)
		}
		next.kinds[kind] = m
	}
	s.ns.state.Store(next)
	return nil
}

func (s *Store) Get(kind datastore.Kind, key string) (datastore.Record, bool, error) {
	rec, ok := s.ns.state.Load().kinds[kind][key]
	if !ok {
		return datastore.Record{}, false, nil
	}
	return copyRecord(rec), true, nil
}

func (s *Store) GetAll(kind datastore.Kind) (map[string]datastore.Record, error) {
	stored := s.ns.state.Load().kinds[kind]
	records := make(map[string]datastore.Record, len(stored))
	for key, rec := range stored {
		records[key] = copyRecord(rec)
	}
	return records, nil
}

func (s *Store) Upsert(kind datastore.Kind, key string, candidate datastore.Record) (bool, error) {
	stored := copyRecord(candidate)
	for {
		cur := s.ns.state.Load()
		if existing, ok := cur.kinds[kind][key]; ok && candidate.Version <= existing.Version {
			return false, nil
		}
		if hook := s.preCommitHook(); hook != nil {
			hook()
		}
		// the swap fails if anything was written since the load above, which
		// sends the next attempt back through the version gate
		if s.ns.state.CompareAndSwap(cur, cur.withRecord(kind, stored)) {
			return true, nil
		}
	}
}

func (s *Store) IsInitialized() (bool, error) {
	return s.ns.state.Load().initialized, nil
}

// Close is a no-op: the hub owns the data and instances hold no resources.
func (s *Store) Close() error {
	return nil
}

// copyRecord decouples the stored payload from what callers hand in or get
// back, keeping snapshots immutable.
func copyRecord(rec datastore.Record) datastore.Record {
	if rec.Value == nil {
		return rec
	}
	value := make([]byte, len(rec.Value))
	copy(value, rec.Value)
	rec.Value = value
	return rec
}
