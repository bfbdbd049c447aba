package sqlstore

import (
	"path/filepath"
	"testing"

	"github.com/flagforge/storecheck/lib/datastore"
	"github.com/flagforge/storecheck/lib/datastore/conformance"
)

func TestSQLStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storecheck.db")

	admin, err := Open(path, "admin")
	if err != nil {
		t.Fatalf("Failed to open admin instance: %v", err)
	}
	t.Cleanup(func() { admin.Close() })

	conformance.RunStoreTests(t, "SQLStore", conformance.Config{
		Factory: func(prefix string) (any, error) {
			return Open(path, prefix)
		},
		Clear: admin.Wipe,
	})
}

// Reopening the file must find the data of a closed instance.
func TestSQLStorePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storecheck.db")

	rec := datastore.NewRecord("flag-a", 5, []byte("durable"))

	first, err := Open(path, "persist")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	if err := first.Init(datastore.NewDataSet().Add(datastore.KindFeatures, rec).Build()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second, err := Open(path, "persist")
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer second.Close()

	initialized, err := second.IsInitialized()
	if err != nil {
		t.Fatalf("IsInitialized failed: %v", err)
	}
	if !initialized {
		t.Errorf("Expected the initialized flag to survive a reopen")
	}

	got, found, err := second.Get(datastore.KindFeatures, "flag-a")
	if err != nil || !found {
		t.Fatalf("Get after reopen failed: found=%v err=%v", found, err)
	}
	if !got.Equal(rec) {
		t.Errorf("Expected the record to survive a reopen, got %+v", got)
	}
}

func Benchmark(b *testing.B) {
	path := filepath.Join(b.TempDir(), "storecheck.db")

	admin, err := Open(path, "admin")
	if err != nil {
		b.Fatalf("Failed to open admin instance: %v", err)
	}
	b.Cleanup(func() { admin.Close() })

	conformance.RunStoreBenchmarks(b, "SQLStore", conformance.Config{
		Factory: func(prefix string) (any, error) {
			return Open(path, prefix)
		},
		Clear: admin.Wipe,
	})
}
