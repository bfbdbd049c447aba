package memstore

import (
	"testing"

	"github.com/flagforge/storecheck/lib/datastore"
	"github.com/flagforge/storecheck/lib/datastore/conformance"
)

func TestMemStore(t *testing.T) {
	hub := NewHub()
	conformance.RunStoreTests(t, "MemStore", conformance.Config{
		Factory: func(prefix string) (any, error) {
			return hub.Open(prefix), nil
		},
		Clear: hub.Clear,
	})
}

func TestMemStoreAsync(t *testing.T) {
	hub := NewHub()
	conformance.RunStoreTests(t, "MemStoreAsync", conformance.Config{
		Factory: func(prefix string) (any, error) {
			return hub.OpenAsync(prefix), nil
		},
		Clear: hub.Clear,
	})
}

// Blocking and suspending instances of the same prefix must be siblings.
func TestMixedConventionSiblings(t *testing.T) {
	hub := NewHub()
	blocking := hub.Open("mixed")
	suspending := hub.OpenAsync("mixed")

	rec := datastore.NewRecord("flag-a", 1, []byte("v1"))
	if err := blocking.Init(datastore.NewDataSet().Add(datastore.KindFeatures, rec).Build()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	res := <-suspending.GetAsync(datastore.KindFeatures, "flag-a")
	if res.Err != nil {
		t.Fatalf("GetAsync failed: %v", res.Err)
	}
	if !res.Found || !res.Record.Equal(rec) {
		t.Errorf("Expected the suspending sibling to observe the blocking write, got found=%v record=%+v", res.Found, res.Record)
	}

	update := datastore.NewRecord("flag-a", 2, []byte("v2"))
	up := <-suspending.UpsertAsync(datastore.KindFeatures, "flag-a", update)
	if up.Err != nil || !up.Accepted {
		t.Fatalf("Expected the suspending upsert to be accepted, got accepted=%v err=%v", up.Accepted, up.Err)
	}

	got, found, err := blocking.Get(datastore.KindFeatures, "flag-a")
	if err != nil || !found {
		t.Fatalf("Get failed: found=%v err=%v", found, err)
	}
	if !got.Equal(update) {
		t.Errorf("Expected the blocking sibling to observe the suspending write, got %+v", got)
	}
}

// Separate hubs are separate physical storages even for equal prefixes.
func TestHubsAreIsolated(t *testing.T) {
	first := NewHub().Open("shared")
	second := NewHub().Open("shared")

	if err := first.Init(datastore.NewDataSet().
		Add(datastore.KindFeatures, datastore.NewRecord("flag-a", 1, []byte("v1"))).
		Build()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	initialized, err := second.IsInitialized()
	if err != nil {
		t.Fatalf("IsInitialized failed: %v", err)
	}
	if initialized {
		t.Errorf("Expected instances of different hubs not to share state")
	}
}

// The empty prefix and DefaultPrefix must address the same namespace.
func TestDefaultPrefix(t *testing.T) {
	hub := NewHub()
	implicit := hub.Open("")
	explicit := hub.Open(DefaultPrefix)

	if err := implicit.Init(datastore.NewDataSet().Add(datastore.KindFeatures).Build()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	initialized, err := explicit.IsInitialized()
	if err != nil {
		t.Fatalf("IsInitialized failed: %v", err)
	}
	if !initialized {
		t.Errorf("Expected the empty prefix to resolve to DefaultPrefix")
	}
}

// Setting a nil hook must clear a previously installed one.
func TestClearedHookDoesNotFire(t *testing.T) {
	store := NewHub().Open("hooks")

	fired := false
	store.SetPreCommitHook(func() { fired = true })
	store.SetPreCommitHook(nil)

	accepted, err := store.Upsert(datastore.KindFeatures, "flag-a", datastore.NewRecord("flag-a", 1, []byte("v1")))
	if err != nil || !accepted {
		t.Fatalf("Upsert failed: accepted=%v err=%v", accepted, err)
	}
	if fired {
		t.Errorf("Expected the cleared hook not to fire")
	}
}

// Records handed to Init must be copied into the snapshot: a caller keeping
// a reference to a dataset record must not be able to mutate stored state.
func TestInitCopiesPayloads(t *testing.T) {
	store := NewHub().Open("aliasing")

	rec := datastore.NewRecord("flag-a", 1, []byte("payload"))
	data := datastore.DataSet{datastore.KindFeatures: {"flag-a": rec}}
	if err := store.Init(data); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	rec.Value[0] = 'X'

	got, found, err := store.Get(datastore.KindFeatures, "flag-a")
	if err != nil || !found {
		t.Fatalf("Get failed: found=%v err=%v", found, err)
	}
	if string(got.Value) != "payload" {
		t.Errorf("Expected the stored payload to be unaffected by caller mutation, got %q", got.Value)
	}
}

func Benchmark(b *testing.B) {
	hub := NewHub()
	conformance.RunStoreBenchmarks(b, "MemStore", conformance.Config{
		Factory: func(prefix string) (any, error) {
			return hub.Open(prefix), nil
		},
		Clear: hub.Clear,
	})
}
