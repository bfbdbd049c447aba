package conformance

import (
	"errors"
	"testing"

	"github.com/flagforge/storecheck/lib/datastore"
)

// StoreFactory creates a fresh backend instance scoped to the given
// namespace prefix. The returned value must satisfy datastore.Store or
// datastore.AsyncStore; the suite adapts either convention. Instances
// created with the same prefix must share physical storage.
type StoreFactory func(prefix string) (backend any, err error)

// Config wires a backend into the suite.
type Config struct {
	// Factory creates backend instances. Required.
	Factory StoreFactory

	// Clear removes every record and the initialized flag for the given
	// prefix from the shared physical storage. Required; the suite calls it
	// before every scenario.
	Clear func(prefix string) error

	// InstallHook overrides how the pre-commit hook is attached to a
	// backend instance. It reports whether the hook is in place. When nil,
	// the suite probes the instance for datastore.PreCommitHooker. Race
	// scenarios are skipped when no hook can be installed.
	InstallHook func(backend any, fn func()) bool
}

// Validate reports a configuration error before any backend is touched.
func (cfg Config) Validate() error {
	if cfg.Factory == nil {
		return errors.New("conformance: Config.Factory is required")
	}
	if cfg.Clear == nil {
		return errors.New("conformance: Config.Clear is required")
	}
	return nil
}

// Namespace prefixes used by the scenarios. Factories receive exactly these
// two values (plus whatever the caller namespaces them under).
const (
	testPrefix = "storecheck"
	altPrefix  = "storecheck-alt"
)

// RunStoreTests runs the full conformance scenario suite against a backend.
//
// Usage:
//
//	func TestMyStore(t *testing.T) {
//	    conformance.RunStoreTests(t, "MyStore", conformance.Config{
//	        Factory: func(prefix string) (any, error) { return mystore.Open(addr, prefix) },
//	        Clear:   func(prefix string) error { return mystore.Wipe(addr, prefix) },
//	    })
//	}
func RunStoreTests(t *testing.T, name string, cfg Config) {
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	t.Run(name, func(t *testing.T) {
		for _, sc := range scenarios() {
			t.Run(sc.name, func(t *testing.T) {
				clearPrefixes(t, cfg)
				sc.fn(t, cfg)
			})
		}
	})
}

// scenario is one named conformance check. Scenarios run against testing.TB
// so that both RunStoreTests and RunProbe can drive them.
type scenario struct {
	name string
	fn   func(t testing.TB, cfg Config)
}

// scenarios returns the suite in execution order.
func scenarios() []scenario {
	return []scenario{
		{"NotInitialized", testNotInitialized},
		{"InitEmpty", testInitEmpty},
		{"InitializedSharedAcrossInstances", testInitializedShared},
		{"GetExisting", testGetExisting},
		{"GetMissing", testGetMissing},
		{"GetAllKinds", testGetAllKinds},
		{"InitReplacesAll", testInitReplacesAll},
		{"UpsertNewerVersion", testUpsertNewerVersion},
		{"UpsertOlderVersion", testUpsertOlderVersion},
		{"UpsertEqualVersion", testUpsertEqualVersion},
		{"UpsertFirstWrite", testUpsertFirstWrite},
		{"DeleteWithNewerVersion", testDeleteWithNewerVersion},
		{"DeleteWithOlderVersion", testDeleteWithOlderVersion},
		{"DeleteUnknownKey", testDeleteUnknownKey},
		{"UpsertOverTombstone", testUpsertOverTombstone},
		{"PrefixIsolation", testPrefixIsolation},
		{"SiblingVisibility", testSiblingVisibility},
		{"ValueAliasing", testValueAliasing},
		{"ConcurrentUpsertLosesToNewer", testConcurrentUpsertLosesToNewer},
		{"ConcurrentUpsertBeatsOlder", testConcurrentUpsertBeatsOlder},
	}
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// clearPrefixes resets every namespace the scenarios touch.
func clearPrefixes(t testing.TB, cfg Config) {
	t.Helper()
	for _, prefix := range []string{testPrefix, altPrefix} {
		if err := cfg.Clear(prefix); err != nil {
			t.Fatalf("Failed to clear prefix %q: %v", prefix, err)
		}
	}
}

// mustOpen creates a backend instance for the prefix and wraps it in an
// adapter. The instance is closed when the scenario ends; it is closed twice
// since the contract promises the second Close is a no-op.
func mustOpen(t testing.TB, cfg Config, prefix string) *datastore.Adapter {
	t.Helper()
	backend, err := cfg.Factory(prefix)
	if err != nil {
		t.Fatalf("Factory failed for prefix %q: %v", prefix, err)
	}
	adapter, err := datastore.NewAdapter(backend)
	if err != nil {
		t.Fatalf("Backend is not adaptable: %v", err)
	}
	t.Cleanup(func() {
		if err := adapter.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
		if err := adapter.Close(); err != nil {
			t.Errorf("Second Close failed, closing a closed instance must be a no-op: %v", err)
		}
	})
	return adapter
}

// installHook attaches the pre-commit hook to the instance, honoring the
// configured override. Scenarios skip when installation is refused.
func (cfg Config) installHook(adapter *datastore.Adapter, fn func()) bool {
	if cfg.InstallHook != nil {
		return cfg.InstallHook(adapter.Backend(), fn)
	}
	return adapter.SetPreCommitHook(fn)
}

func mustInit(t testing.TB, adapter *datastore.Adapter, data datastore.DataSet) {
	t.Helper()
	if err := adapter.Init(data); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
}

func mustGet(t testing.TB, adapter *datastore.Adapter, kind datastore.Kind, key string) (datastore.Record, bool) {
	t.Helper()
	rec, found, err := adapter.Get(kind, key)
	if err != nil {
		t.Fatalf("Get(%s, %s) failed: %v", kind, key, err)
	}
	return rec, found
}

func mustGetAll(t testing.TB, adapter *datastore.Adapter, kind datastore.Kind) map[string]datastore.Record {
	t.Helper()
	recs, err := adapter.GetAll(kind)
	if err != nil {
		t.Fatalf("GetAll(%s) failed: %v", kind, err)
	}
	return recs
}

func mustUpsert(t testing.TB, adapter *datastore.Adapter, kind datastore.Kind, candidate datastore.Record) bool {
	t.Helper()
	accepted, err := adapter.Upsert(kind, candidate.Key, candidate)
	if err != nil {
		t.Fatalf("Upsert(%s, %s) failed: %v", kind, candidate.Key, err)
	}
	return accepted
}

func mustInitialized(t testing.TB, adapter *datastore.Adapter) bool {
	t.Helper()
	initialized, err := adapter.IsInitialized()
	if err != nil {
		t.Fatalf("IsInitialized failed: %v", err)
	}
	return initialized
}

// assertRecord compares a stored record against the expectation.
func assertRecord(t testing.TB, got datastore.Record, want datastore.Record) {
	t.Helper()
	if !got.Equal(want) {
		t.Errorf("Record mismatch: got {key=%s version=%d deleted=%v payload=%q}, want {key=%s version=%d deleted=%v payload=%q}",
			got.Key, got.Version, got.Deleted, got.Value,
			want.Key, want.Version, want.Deleted, want.Value)
	}
}

// assertRecords compares a full kind listing against the expectation.
func assertRecords(t testing.TB, got map[string]datastore.Record, want map[string]datastore.Record) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("Expected %d records, got %d", len(want), len(got))
	}
	for key, wantRec := range want {
		gotRec, ok := got[key]
		if !ok {
			t.Errorf("Expected key %s to be present", key)
			continue
		}
		assertRecord(t, gotRec, wantRec)
	}
	for key := range got {
		if _, ok := want[key]; !ok {
			t.Errorf("Unexpected key %s in listing", key)
		}
	}
}
