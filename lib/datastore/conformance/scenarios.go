package conformance

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/flagforge/storecheck/lib/datastore"
)

// --------------------------------------------------------------------------
// Initialization scenarios
// --------------------------------------------------------------------------

func testNotInitialized(t testing.TB, cfg Config) {
	store := mustOpen(t, cfg, testPrefix)

	if mustInitialized(t, store) {
		t.Errorf("Expected a fresh namespace to report uninitialized")
	}
}

func testInitEmpty(t testing.TB, cfg Config) {
	store := mustOpen(t, cfg, testPrefix)

	mustInit(t, store, datastore.NewDataSet().Build())

	if !mustInitialized(t, store) {
		t.Errorf("Expected the namespace to report initialized after Init")
	}

	recs := mustGetAll(t, store, datastore.KindFeatures)
	if recs == nil {
		t.Errorf("Expected an empty kind to yield a non-nil map")
	}
	if len(recs) != 0 {
		t.Errorf("Expected no records after an empty Init, got %d", len(recs))
	}
}

func testInitializedShared(t testing.TB, cfg Config) {
	first := mustOpen(t, cfg, testPrefix)
	second := mustOpen(t, cfg, testPrefix)

	rec := datastore.NewRecord("flag-a", 1, []byte("shared"))
	mustInit(t, first, datastore.NewDataSet().Add(datastore.KindFeatures, rec).Build())

	if !mustInitialized(t, second) {
		t.Errorf("Expected a sibling instance to observe the initialized flag")
	}

	got, found := mustGet(t, second, datastore.KindFeatures, "flag-a")
	if !found {
		t.Fatalf("Expected a sibling instance to observe initialized data")
	}
	assertRecord(t, got, rec)
}

func testInitReplacesAll(t testing.TB, cfg Config) {
	store := mustOpen(t, cfg, testPrefix)

	mustInit(t, store, datastore.NewDataSet().
		Add(datastore.KindFeatures,
			datastore.NewRecord("flag-a", 1, []byte("a")),
			datastore.NewRecord("flag-b", 2, []byte("b"))).
		Add(datastore.KindSegments,
			datastore.NewRecord("seg-a", 1, []byte("s"))).
		Build())

	replacement := datastore.NewRecord("flag-c", 9, []byte("c"))
	mustInit(t, store, datastore.NewDataSet().
		Add(datastore.KindFeatures, replacement).
		Build())

	assertRecords(t, mustGetAll(t, store, datastore.KindFeatures),
		map[string]datastore.Record{"flag-c": replacement})

	segments := mustGetAll(t, store, datastore.KindSegments)
	if len(segments) != 0 {
		t.Errorf("Expected kinds absent from the new dataset to be emptied, got %d records", len(segments))
	}
}

// --------------------------------------------------------------------------
// Read scenarios
// --------------------------------------------------------------------------

func testGetExisting(t testing.TB, cfg Config) {
	store := mustOpen(t, cfg, testPrefix)

	rec := datastore.NewRecord("first", 5, []byte("value1"))
	mustInit(t, store, datastore.NewDataSet().Add(datastore.KindFeatures, rec).Build())

	got, found := mustGet(t, store, datastore.KindFeatures, "first")
	if !found {
		t.Fatalf("Expected the initialized record to be found")
	}
	assertRecord(t, got, rec)
}

func testGetMissing(t testing.TB, cfg Config) {
	store := mustOpen(t, cfg, testPrefix)

	mustInit(t, store, datastore.NewDataSet().Add(datastore.KindFeatures).Build())

	_, found := mustGet(t, store, datastore.KindFeatures, "never-written")
	if found {
		t.Errorf("Expected a never-written key to report not found")
	}
}

func testGetAllKinds(t testing.TB, cfg Config) {
	store := mustOpen(t, cfg, testPrefix)

	features := map[string]datastore.Record{
		"flag-a": datastore.NewRecord("flag-a", 1, []byte("a")),
		"flag-b": datastore.NewRecord("flag-b", 2, []byte("b")),
		"flag-c": datastore.NewTombstone("flag-c", 3),
	}
	segments := map[string]datastore.Record{
		"seg-a": datastore.NewRecord("seg-a", 1, []byte("s")),
	}

	mustInit(t, store, datastore.NewDataSet().
		Add(datastore.KindFeatures, features["flag-a"], features["flag-b"], features["flag-c"]).
		Add(datastore.KindSegments, segments["seg-a"]).
		Build())

	assertRecords(t, mustGetAll(t, store, datastore.KindFeatures), features)
	assertRecords(t, mustGetAll(t, store, datastore.KindSegments), segments)
}

// --------------------------------------------------------------------------
// Upsert scenarios
// --------------------------------------------------------------------------

func testUpsertNewerVersion(t testing.TB, cfg Config) {
	store := mustOpen(t, cfg, testPrefix)

	mustInit(t, store, datastore.NewDataSet().
		Add(datastore.KindFeatures, datastore.NewRecord("flag-a", 5, []byte("v5"))).
		Build())

	candidate := datastore.NewRecord("flag-a", 6, []byte("v6"))
	if !mustUpsert(t, store, datastore.KindFeatures, candidate) {
		t.Errorf("Expected a higher-version candidate to be accepted")
	}

	got, _ := mustGet(t, store, datastore.KindFeatures, "flag-a")
	assertRecord(t, got, candidate)
}

func testUpsertOlderVersion(t testing.TB, cfg Config) {
	store := mustOpen(t, cfg, testPrefix)

	stored := datastore.NewRecord("flag-a", 5, []byte("v5"))
	mustInit(t, store, datastore.NewDataSet().Add(datastore.KindFeatures, stored).Build())

	if mustUpsert(t, store, datastore.KindFeatures, datastore.NewRecord("flag-a", 4, []byte("v4"))) {
		t.Errorf("Expected a lower-version candidate to be rejected")
	}

	got, _ := mustGet(t, store, datastore.KindFeatures, "flag-a")
	assertRecord(t, got, stored)
}

func testUpsertEqualVersion(t testing.TB, cfg Config) {
	store := mustOpen(t, cfg, testPrefix)

	stored := datastore.NewRecord("flag-a", 5, []byte("original"))
	mustInit(t, store, datastore.NewDataSet().Add(datastore.KindFeatures, stored).Build())

	if mustUpsert(t, store, datastore.KindFeatures, datastore.NewRecord("flag-a", 5, []byte("challenger"))) {
		t.Errorf("Expected an equal-version candidate to be rejected")
	}

	got, _ := mustGet(t, store, datastore.KindFeatures, "flag-a")
	assertRecord(t, got, stored)
}

func testUpsertFirstWrite(t testing.TB, cfg Config) {
	store := mustOpen(t, cfg, testPrefix)

	mustInit(t, store, datastore.NewDataSet().Add(datastore.KindFeatures).Build())

	zero := datastore.NewRecord("flag-zero", 0, []byte("z"))
	if !mustUpsert(t, store, datastore.KindFeatures, zero) {
		t.Errorf("Expected a version-zero first write to be accepted")
	}
	got, found := mustGet(t, store, datastore.KindFeatures, "flag-zero")
	if !found {
		t.Fatalf("Expected the first write to be stored")
	}
	assertRecord(t, got, zero)

	negative := datastore.NewRecord("flag-negative", -3, []byte("n"))
	if !mustUpsert(t, store, datastore.KindFeatures, negative) {
		t.Errorf("Expected a negative-version first write to be accepted")
	}
	got, found = mustGet(t, store, datastore.KindFeatures, "flag-negative")
	if !found {
		t.Fatalf("Expected the first write to be stored")
	}
	assertRecord(t, got, negative)
}

// --------------------------------------------------------------------------
// Tombstone scenarios
// --------------------------------------------------------------------------

func testDeleteWithNewerVersion(t testing.TB, cfg Config) {
	store := mustOpen(t, cfg, testPrefix)

	mustInit(t, store, datastore.NewDataSet().
		Add(datastore.KindFeatures, datastore.NewRecord("flag-a", 5, []byte("v5"))).
		Build())

	tomb := datastore.NewTombstone("flag-a", 6)
	if !mustUpsert(t, store, datastore.KindFeatures, tomb) {
		t.Errorf("Expected a higher-version tombstone to be accepted")
	}

	got, found := mustGet(t, store, datastore.KindFeatures, "flag-a")
	if !found {
		t.Fatalf("Expected the tombstone to remain readable")
	}
	assertRecord(t, got, tomb)
}

func testDeleteWithOlderVersion(t testing.TB, cfg Config) {
	store := mustOpen(t, cfg, testPrefix)

	stored := datastore.NewRecord("flag-a", 5, []byte("v5"))
	mustInit(t, store, datastore.NewDataSet().Add(datastore.KindFeatures, stored).Build())

	if mustUpsert(t, store, datastore.KindFeatures, datastore.NewTombstone("flag-a", 4)) {
		t.Errorf("Expected a lower-version tombstone to be rejected")
	}

	got, _ := mustGet(t, store, datastore.KindFeatures, "flag-a")
	assertRecord(t, got, stored)
}

func testDeleteUnknownKey(t testing.TB, cfg Config) {
	store := mustOpen(t, cfg, testPrefix)

	mustInit(t, store, datastore.NewDataSet().Add(datastore.KindFeatures).Build())

	tomb := datastore.NewTombstone("phantom", 99)
	if !mustUpsert(t, store, datastore.KindFeatures, tomb) {
		t.Errorf("Expected a tombstone on a never-written key to be accepted")
	}

	got, found := mustGet(t, store, datastore.KindFeatures, "phantom")
	if !found {
		t.Fatalf("Expected the tombstone to be stored with its version")
	}
	assertRecord(t, got, tomb)
}

func testUpsertOverTombstone(t testing.TB, cfg Config) {
	store := mustOpen(t, cfg, testPrefix)

	mustInit(t, store, datastore.NewDataSet().Add(datastore.KindFeatures).Build())

	tomb := datastore.NewTombstone("flag-a", 6)
	if !mustUpsert(t, store, datastore.KindFeatures, tomb) {
		t.Fatalf("Expected the tombstone first write to be accepted")
	}

	if mustUpsert(t, store, datastore.KindFeatures, datastore.NewRecord("flag-a", 5, []byte("stale"))) {
		t.Errorf("Expected a lower-version revival to be rejected")
	}
	got, _ := mustGet(t, store, datastore.KindFeatures, "flag-a")
	assertRecord(t, got, tomb)

	revived := datastore.NewRecord("flag-a", 7, []byte("fresh"))
	if !mustUpsert(t, store, datastore.KindFeatures, revived) {
		t.Errorf("Expected a higher-version revival to be accepted")
	}
	got, _ = mustGet(t, store, datastore.KindFeatures, "flag-a")
	assertRecord(t, got, revived)
}

// --------------------------------------------------------------------------
// Namespace scenarios
// --------------------------------------------------------------------------

func testPrefixIsolation(t testing.TB, cfg Config) {
	main := mustOpen(t, cfg, testPrefix)
	other := mustOpen(t, cfg, altPrefix)

	mainRec := datastore.NewRecord("flag-a", 1, []byte("main"))
	mustInit(t, main, datastore.NewDataSet().Add(datastore.KindFeatures, mainRec).Build())

	if mustInitialized(t, other) {
		t.Errorf("Expected the initialized flag to be scoped to its prefix")
	}
	if recs := mustGetAll(t, other, datastore.KindFeatures); len(recs) != 0 {
		t.Errorf("Expected no records to leak across prefixes, got %d", len(recs))
	}

	otherRec := datastore.NewRecord("flag-b", 1, []byte("other"))
	mustInit(t, other, datastore.NewDataSet().Add(datastore.KindFeatures, otherRec).Build())

	assertRecords(t, mustGetAll(t, main, datastore.KindFeatures),
		map[string]datastore.Record{"flag-a": mainRec})
	assertRecords(t, mustGetAll(t, other, datastore.KindFeatures),
		map[string]datastore.Record{"flag-b": otherRec})

	if _, found := mustGet(t, other, datastore.KindFeatures, "flag-a"); found {
		t.Errorf("Expected keys of another prefix to be invisible")
	}
}

func testSiblingVisibility(t testing.TB, cfg Config) {
	first := mustOpen(t, cfg, testPrefix)
	second := mustOpen(t, cfg, testPrefix)

	mustInit(t, first, datastore.NewDataSet().
		Add(datastore.KindFeatures, datastore.NewRecord("flag-a", 1, []byte("v1"))).
		Build())

	update := datastore.NewRecord("flag-a", 2, []byte("v2"))
	if !mustUpsert(t, second, datastore.KindFeatures, update) {
		t.Fatalf("Expected the sibling upsert to be accepted")
	}

	got, _ := mustGet(t, first, datastore.KindFeatures, "flag-a")
	assertRecord(t, got, update)

	tomb := datastore.NewTombstone("flag-a", 3)
	if !mustUpsert(t, first, datastore.KindFeatures, tomb) {
		t.Fatalf("Expected the tombstone upsert to be accepted")
	}

	got, found := mustGet(t, second, datastore.KindFeatures, "flag-a")
	if !found {
		t.Fatalf("Expected the tombstone to be visible through the sibling")
	}
	assertRecord(t, got, tomb)
}

func testValueAliasing(t testing.TB, cfg Config) {
	store := mustOpen(t, cfg, testPrefix)

	rec := datastore.NewRecord("flag-a", 1, []byte("payload"))
	mustInit(t, store, datastore.NewDataSet().Add(datastore.KindFeatures, rec).Build())

	got, found := mustGet(t, store, datastore.KindFeatures, "flag-a")
	if !found || len(got.Value) == 0 {
		t.Fatalf("Expected the record to be readable")
	}
	got.Value[0] = 'X'

	again, _ := mustGet(t, store, datastore.KindFeatures, "flag-a")
	assertRecord(t, again, rec)

	recs := mustGetAll(t, store, datastore.KindFeatures)
	if len(recs["flag-a"].Value) != 0 {
		recs["flag-a"].Value[0] = 'Y'
	}
	again, _ = mustGet(t, store, datastore.KindFeatures, "flag-a")
	assertRecord(t, again, rec)
}

// --------------------------------------------------------------------------
// Race scenarios
// --------------------------------------------------------------------------

// testConcurrentUpsertLosesToNewer interposes competing higher-version
// writes between the accept decision and the durable write. The interposed
// upserts run through a sibling instance so both sides take the full
// contract path.
func testConcurrentUpsertLosesToNewer(t testing.TB, cfg Config) {
	racer := mustOpen(t, cfg, testPrefix)
	sibling := mustOpen(t, cfg, testPrefix)

	mustInit(t, racer, datastore.NewDataSet().
		Add(datastore.KindFeatures, datastore.NewRecord("flag-race", 1, []byte("base"))).
		Build())

	var fired int32
	installed := cfg.installHook(racer, func() {
		atomic.AddInt32(&fired, 1)
		// competing writes finish before the interposed commit resumes;
		// re-running them on a commit retry is harmless since the version
		// gate rejects repeats
		for v := 3; v <= 5; v++ {
			rec := datastore.NewRecord("flag-race", v, []byte(fmt.Sprintf("competitor-v%d", v)))
			if _, err := sibling.Upsert(datastore.KindFeatures, "flag-race", rec); err != nil {
				t.Errorf("Competing upsert failed: %v", err)
			}
		}
	})
	if !installed {
		t.Skip("backend does not expose a pre-commit hook")
	}

	accepted, err := racer.Upsert(datastore.KindFeatures, "flag-race",
		datastore.NewRecord("flag-race", 2, []byte("racer-v2")))
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if accepted {
		t.Errorf("Expected the interposed higher version to win the race")
	}
	if atomic.LoadInt32(&fired) == 0 {
		t.Fatalf("Expected the pre-commit hook to fire on the accept path")
	}

	got, _ := mustGet(t, racer, datastore.KindFeatures, "flag-race")
	if got.Version != 5 {
		t.Errorf("Expected the highest competing version 5 to be stored, got %d", got.Version)
	}
}

// testConcurrentUpsertBeatsOlder interposes competing lower-version writes;
// the original candidate must still land.
func testConcurrentUpsertBeatsOlder(t testing.TB, cfg Config) {
	racer := mustOpen(t, cfg, testPrefix)
	sibling := mustOpen(t, cfg, testPrefix)

	mustInit(t, racer, datastore.NewDataSet().
		Add(datastore.KindFeatures, datastore.NewRecord("flag-race", 1, []byte("base"))).
		Build())

	var fired int32
	installed := cfg.installHook(racer, func() {
		atomic.AddInt32(&fired, 1)
		for v := 2; v <= 5; v++ {
			rec := datastore.NewRecord("flag-race", v, []byte(fmt.Sprintf("competitor-v%d", v)))
			if _, err := sibling.Upsert(datastore.KindFeatures, "flag-race", rec); err != nil {
				t.Errorf("Competing upsert failed: %v", err)
			}
		}
	})
	if !installed {
		t.Skip("backend does not expose a pre-commit hook")
	}

	winner := datastore.NewRecord("flag-race", 10, []byte("racer-v10"))
	accepted, err := racer.Upsert(datastore.KindFeatures, "flag-race", winner)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if !accepted {
		t.Errorf("Expected the higher-version candidate to survive the race")
	}
	if atomic.LoadInt32(&fired) == 0 {
		t.Fatalf("Expected the pre-commit hook to fire on the accept path")
	}

	got, found := mustGet(t, racer, datastore.KindFeatures, "flag-race")
	if !found {
		t.Fatalf("Expected the record to be stored")
	}
	assertRecord(t, got, winner)
}
