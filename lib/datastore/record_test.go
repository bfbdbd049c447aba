package datastore

import (
	"bytes"
	"testing"
)

func TestNewRecordCopiesValue(t *testing.T) {
	payload := []byte("payload-v1")
	rec := NewRecord("flag-a", 1, payload)

	payload[0] = 'X'

	if !bytes.Equal(rec.Value, []byte("payload-v1")) {
		t.Errorf("Expected record payload to be independent of the input slice, got %s", rec.Value)
	}

	rec.Value[0] = 'Y'
	if payload[0] != 'X' {
		t.Errorf("Expected input slice to be independent of the record payload")
	}
}

func TestNewTombstone(t *testing.T) {
	rec := NewTombstone("flag-a", 7)

	if !rec.Deleted {
		t.Errorf("Expected tombstone to be marked deleted")
	}
	if rec.Value != nil {
		t.Errorf("Expected tombstone to carry no payload, got %v", rec.Value)
	}
	if rec.Key != "flag-a" || rec.Version != 7 {
		t.Errorf("Expected key/version to be kept, got %s/%d", rec.Key, rec.Version)
	}
}

func TestRecordDerivations(t *testing.T) {
	base := NewRecord("flag-a", 3, []byte("v3"))

	bumped := base.WithVersion(9)
	if bumped.Version != 9 || base.Version != 3 {
		t.Errorf("Expected WithVersion to derive a copy, got derived=%d base=%d", bumped.Version, base.Version)
	}

	next := base.NextVersion()
	if next.Version != 4 {
		t.Errorf("Expected NextVersion to increment by one, got %d", next.Version)
	}
	if !bytes.Equal(next.Value, base.Value) {
		t.Errorf("Expected NextVersion to keep the payload")
	}

	replaced := base.AsTombstone().WithValue([]byte("revived"))
	if replaced.Deleted {
		t.Errorf("Expected WithValue to produce a live record")
	}
	if !bytes.Equal(replaced.Value, []byte("revived")) {
		t.Errorf("Expected payload to be replaced, got %s", replaced.Value)
	}
	if replaced.Version != 3 || replaced.Key != "flag-a" {
		t.Errorf("Expected key and version to be held, got %s/%d", replaced.Key, replaced.Version)
	}

	dead := base.AsTombstone()
	if !dead.Deleted || dead.Value != nil {
		t.Errorf("Expected AsTombstone to drop the payload")
	}
	if dead.Version != base.Version {
		t.Errorf("Expected AsTombstone to keep the version, got %d", dead.Version)
	}

	// derivations must not share the payload slice
	next.Value[0] = 'X'
	if base.Value[0] != 'v' {
		t.Errorf("Expected derived record to own its payload")
	}
}

func TestRecordEqual(t *testing.T) {
	a := NewRecord("flag-a", 1, []byte("v"))

	if !a.Equal(NewRecord("flag-a", 1, []byte("v"))) {
		t.Errorf("Expected identical records to be equal")
	}
	if a.Equal(a.WithVersion(2)) {
		t.Errorf("Expected differing versions to compare unequal")
	}
	if a.Equal(a.WithValue([]byte("w"))) {
		t.Errorf("Expected differing payloads to compare unequal")
	}
	if a.Equal(a.AsTombstone().WithVersion(1)) {
		t.Errorf("Expected live record and tombstone to compare unequal")
	}

	empty := NewRecord("flag-a", 1, []byte{})
	nilValue := NewRecord("flag-a", 1, nil)
	if !empty.Equal(nilValue) {
		t.Errorf("Expected nil payload to equal empty payload")
	}
}
