package raftstore

import (
	"bytes"
	"testing"

	"github.com/flagforge/storecheck/lib/datastore"
	"github.com/flagforge/storecheck/lib/datastore/backends/raftstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// The state machine is deterministic and self-contained, so it is tested
// directly without a NodeHost.

func newTestFSM(t *testing.T) *stateMachine {
	t.Helper()
	fsm, ok := NewStateMachine(128, 1).(*stateMachine)
	if !ok {
		t.Fatal("factory did not return a *stateMachine")
	}
	return fsm
}

// apply proposes a single command and returns the state machine's result.
func apply(t *testing.T, fsm *stateMachine, cmd internal.Command) sm.Result {
	t.Helper()
	data, err := cmd.Encode()
	if err != nil {
		t.Fatalf("Failed to encode command: %v", err)
	}
	entries, err := fsm.Update([]sm.Entry{{Index: 1, Cmd: data}})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	return entries[0].Result
}

func query(t *testing.T, fsm *stateMachine, q internal.Query) interface{} {
	t.Helper()
	res, err := fsm.Lookup(q)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	return res
}

func TestUpsertVersionGate(t *testing.T) {
	fsm := newTestFSM(t)

	upsert := func(version int) sm.Result {
		return apply(t, fsm, internal.Command{
			Type:      internal.CommandTUpsert,
			Prefix:    "p",
			Kind:      datastore.KindFeatures,
			Key:       "flag",
			Candidate: datastore.NewRecord("flag", version, []byte("v")),
		})
	}

	// First write is version blind.
	if res := upsert(5); res.Value != resultAccepted {
		t.Errorf("Expected first write to be accepted, got %d", res.Value)
	}
	// Older and equal versions are rejected.
	if res := upsert(4); res.Value != resultRejected {
		t.Errorf("Expected older version to be rejected, got %d", res.Value)
	}
	if res := upsert(5); res.Value != resultRejected {
		t.Errorf("Expected equal version to be rejected, got %d", res.Value)
	}
	// Newer version wins.
	if res := upsert(6); res.Value != resultAccepted {
		t.Errorf("Expected newer version to be accepted, got %d", res.Value)
	}

	got := query(t, fsm, internal.Query{Type: internal.QueryTGet, Prefix: "p", Kind: datastore.KindFeatures, Key: "flag"}).(internal.GetResult)
	if !got.Found || got.Record.Version != 6 {
		t.Errorf("Expected stored version 6, got %+v", got)
	}
}

func TestInitReplacesNamespace(t *testing.T) {
	fsm := newTestFSM(t)

	apply(t, fsm, internal.Command{
		Type:      internal.CommandTUpsert,
		Prefix:    "p",
		Kind:      datastore.KindSegments,
		Key:       "old",
		Candidate: datastore.NewRecord("old", 1, []byte("x")),
	})

	data := datastore.NewDataSet().
		Add(datastore.KindFeatures, datastore.NewRecord("f1", 2, []byte("y"))).
		Build()
	apply(t, fsm, internal.Command{Type: internal.CommandTInit, Prefix: "p", Data: data})

	if inited := query(t, fsm, internal.Query{Type: internal.QueryTIsInitialized, Prefix: "p"}).(bool); !inited {
		t.Error("Expected namespace to be initialized after Init")
	}
	segs := query(t, fsm, internal.Query{Type: internal.QueryTGetAll, Prefix: "p", Kind: datastore.KindSegments}).(map[string]datastore.Record)
	if len(segs) != 0 {
		t.Errorf("Expected Init to drop pre-existing records, got %d", len(segs))
	}
	if got := query(t, fsm, internal.Query{Type: internal.QueryTGet, Prefix: "p", Kind: datastore.KindFeatures, Key: "f1"}).(internal.GetResult); !got.Found {
		t.Error("Expected record from the dataset to be readable")
	}
}

func TestPrefixesAreIsolated(t *testing.T) {
	fsm := newTestFSM(t)

	apply(t, fsm, internal.Command{Type: internal.CommandTInit, Prefix: "a", Data: datastore.DataSet{}})

	if inited := query(t, fsm, internal.Query{Type: internal.QueryTIsInitialized, Prefix: "b"}).(bool); inited {
		t.Error("Expected sibling prefix to stay uninitialized")
	}

	apply(t, fsm, internal.Command{Type: internal.CommandTClear, Prefix: "a"})
	if inited := query(t, fsm, internal.Query{Type: internal.QueryTIsInitialized, Prefix: "a"}).(bool); inited {
		t.Error("Expected cleared prefix to be uninitialized")
	}
}

func TestSnapshotRoundtrip(t *testing.T) {
	fsm := newTestFSM(t)

	apply(t, fsm, internal.Command{
		Type:   internal.CommandTInit,
		Prefix: "p",
		Data: datastore.NewDataSet().
			Add(datastore.KindFeatures, datastore.NewRecord("f1", 3, []byte("payload"))).
			Add(datastore.KindSegments, datastore.NewTombstone("gone", 7)).
			Build(),
	})

	var buf bytes.Buffer
	if err := fsm.SaveSnapshot(nil, &buf, nil, nil); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	restored := newTestFSM(t)
	if err := restored.RecoverFromSnapshot(&buf, nil, nil); err != nil {
		t.Fatalf("RecoverFromSnapshot failed: %v", err)
	}

	got := query(t, restored, internal.Query{Type: internal.QueryTGet, Prefix: "p", Kind: datastore.KindSegments, Key: "gone"}).(internal.GetResult)
	if !got.Found || !got.Record.Deleted || got.Record.Version != 7 {
		t.Errorf("Expected tombstone to survive the snapshot, got %+v", got)
	}
}

func TestLookupCopiesPayloads(t *testing.T) {
	fsm := newTestFSM(t)

	apply(t, fsm, internal.Command{
		Type:      internal.CommandTUpsert,
		Prefix:    "p",
		Kind:      datastore.KindFeatures,
		Key:       "flag",
		Candidate: datastore.NewRecord("flag", 1, []byte("abc")),
	})

	first := query(t, fsm, internal.Query{Type: internal.QueryTGet, Prefix: "p", Kind: datastore.KindFeatures, Key: "flag"}).(internal.GetResult)
	first.Record.Value[0] = 'X'

	second := query(t, fsm, internal.Query{Type: internal.QueryTGet, Prefix: "p", Kind: datastore.KindFeatures, Key: "flag"}).(internal.GetResult)
	if !bytes.Equal(second.Record.Value, []byte("abc")) {
		t.Errorf("Expected stored payload to be unaffected by caller mutation, got %q", second.Record.Value)
	}
}
