package datastore

// --------------------------------------------------------------------------
// Synchronous Contract
// --------------------------------------------------------------------------

// Store is the blocking calling convention of the storage contract. Every
// backend implements either this interface or AsyncStore (or both); the
// Adapter normalizes the two behind one call surface.
//
// All operations act within the namespace the instance was opened with.
// Instances opened with the same prefix on the same physical storage are
// siblings: a write through one is immediately observable through the other.
//
// Thread-safety: implementations must support concurrent calls from multiple
// goroutines.
type Store interface {
	// Init atomically replaces the entire namespace contents with the given
	// dataset and durably marks the namespace as initialized. Kinds absent
	// from the dataset are emptied. Readers never observe a partially
	// applied Init.
	Init(data DataSet) (err error)
	// Get returns the record stored under (kind, key). Tombstones are
	// returned like any other record. The boolean return value indicates
	// whether a record for the key was found.
	Get(kind Kind, key string) (rec Record, found bool, err error)
	// GetAll returns every record of the kind, tombstones included, keyed by
	// record key. A kind with no records yields an empty, non-nil map.
	GetAll(kind Kind) (recs map[string]Record, err error)
	// Upsert offers a candidate record under (kind, key). The candidate is
	// accepted iff no record is stored under the key or the candidate's
	// version is strictly greater than the stored one; equal versions are
	// always rejected. The comparison and the write are atomic per key.
	// The boolean return value reports whether the candidate became the
	// stored record.
	Upsert(kind Kind, key string, candidate Record) (accepted bool, err error)
	// IsInitialized reports whether an Init has ever completed in this
	// namespace, by this instance or a sibling.
	IsInitialized() (initialized bool, err error)
	// Close releases client resources. It never removes stored data.
	// Closing an already closed instance is a no-op.
	Close() (err error)
}

// --------------------------------------------------------------------------
// Suspending Contract
// --------------------------------------------------------------------------

// GetResult carries the outcome of an asynchronous Get.
type GetResult struct {
	Record Record
	Found  bool
	Err    error
}

// GetAllResult carries the outcome of an asynchronous GetAll.
type GetAllResult struct {
	Records map[string]Record
	Err     error
}

// UpsertResult carries the outcome of an asynchronous Upsert.
type UpsertResult struct {
	Accepted bool
	Err      error
}

// InitializedResult carries the outcome of an asynchronous IsInitialized.
type InitializedResult struct {
	Initialized bool
	Err         error
}

// AsyncStore is the suspending calling convention of the storage contract.
// Each operation returns immediately with a channel that delivers exactly
// one result once the operation completes. The operation semantics are
// identical to those of Store.
//
// Thread-safety: implementations must support concurrent calls from multiple
// goroutines.
type AsyncStore interface {
	InitAsync(data DataSet) <-chan error
	GetAsync(kind Kind, key string) <-chan GetResult
	GetAllAsync(kind Kind) <-chan GetAllResult
	UpsertAsync(kind Kind, key string, candidate Record) <-chan UpsertResult
	IsInitializedAsync() <-chan InitializedResult
	// Close releases client resources after in-flight operations have been
	// delivered. It never removes stored data.
	Close() (err error)
}

// --------------------------------------------------------------------------
// Optional Capabilities
// --------------------------------------------------------------------------

// PreCommitHooker is an optional extension point for deterministic race
// testing. A backend that can interpose between the accept decision of an
// upsert and its durable write implements this interface.
//
// The hook fires synchronously on the accept path only, before the write
// becomes observable to any reader. Backends that commit through an
// optimistic retry loop may fire the hook once per attempt; after the hook
// returns, the commit must re-validate the version gate against current
// state. The hook is scoped to the instance it was set on, sibling
// instances are unaffected. Setting nil clears the hook.
type PreCommitHooker interface {
	SetPreCommitHook(fn func())
}
