package datastore

import (
	"bytes"
	"testing"
)

func TestBuilderDeclaresEmptyKind(t *testing.T) {
	ds := NewDataSet().
		Add(KindFeatures, NewRecord("flag-a", 1, []byte("a"))).
		Add(KindSegments).
		Build()

	if len(ds) != 2 {
		t.Fatalf("Expected both kinds to be declared, got %d", len(ds))
	}

	segments, ok := ds[KindSegments]
	if !ok {
		t.Fatalf("Expected the segments kind to be present")
	}
	if len(segments) != 0 {
		t.Errorf("Expected the segments kind to be empty, got %d records", len(segments))
	}
}

func TestBuilderOverwritesSameKey(t *testing.T) {
	ds := NewDataSet().
		Add(KindFeatures, NewRecord("flag-a", 1, []byte("old"))).
		Add(KindFeatures, NewRecord("flag-a", 2, []byte("new"))).
		Build()

	rec := ds[KindFeatures]["flag-a"]
	if rec.Version != 2 || !bytes.Equal(rec.Value, []byte("new")) {
		t.Errorf("Expected the later record to win, got version %d payload %s", rec.Version, rec.Value)
	}
	if len(ds[KindFeatures]) != 1 {
		t.Errorf("Expected one record under the key, got %d", len(ds[KindFeatures]))
	}
}

func TestBuildIndependence(t *testing.T) {
	b := NewDataSet().Add(KindFeatures, NewRecord("flag-a", 1, []byte("a")))

	first := b.Build()

	b.Add(KindFeatures, NewRecord("flag-b", 1, []byte("b")))
	second := b.Build()

	if len(first[KindFeatures]) != 1 {
		t.Errorf("Expected the first build to be unaffected by later adds, got %d records", len(first[KindFeatures]))
	}
	if len(second[KindFeatures]) != 2 {
		t.Errorf("Expected the second build to contain both records, got %d", len(second[KindFeatures]))
	}

	// mutating a built dataset must not leak into the builder
	delete(second[KindFeatures], "flag-a")
	rec := second[KindFeatures]["flag-b"]
	rec.Value[0] = 'X'

	third := b.Build()
	if len(third[KindFeatures]) != 2 {
		t.Errorf("Expected the builder to be unaffected by dataset mutation, got %d records", len(third[KindFeatures]))
	}
	if !bytes.Equal(third[KindFeatures]["flag-b"].Value, []byte("b")) {
		t.Errorf("Expected record payloads to be unaffected by dataset mutation, got %s", third[KindFeatures]["flag-b"].Value)
	}
}

func TestDataSetClone(t *testing.T) {
	ds := NewDataSet().
		Add(KindFeatures, NewRecord("flag-a", 1, []byte("a")), NewTombstone("flag-b", 2)).
		Add(KindSegments, NewRecord("seg-a", 1, []byte("s"))).
		Build()

	c := ds.Clone()
	if c.Count() != 3 {
		t.Fatalf("Expected the clone to carry all records, got %d", c.Count())
	}

	c[KindFeatures]["flag-a"] = NewRecord("flag-a", 99, []byte("mutated"))
	if ds[KindFeatures]["flag-a"].Version != 1 {
		t.Errorf("Expected the original to be unaffected by clone mutation")
	}

	if !c[KindFeatures]["flag-b"].Deleted {
		t.Errorf("Expected tombstones to survive cloning")
	}
}
