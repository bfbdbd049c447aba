package raftstore

import (
	"encoding/gob"
	"fmt"
	"io"
	"sync"

	"github.com/flagforge/storecheck/lib/datastore"
	"github.com/flagforge/storecheck/lib/datastore/backends/raftstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// Result values returned through sm.Result for upsert proposals.
const (
	resultRejected uint64 = iota
	resultAccepted
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// nsData is the replicated state of one namespace. Fields are exported for
// the gob snapshot codec.
type nsData struct {
	Initialized bool
	Kinds       map[datastore.Kind]map[string]datastore.Record
}

// stateMachine holds all namespaces of one shard. Updates are applied from
// the raft log in order; the mutex only guards against concurrent Lookup
// and snapshot calls, which dragonboat may issue while an update batch runs.
type stateMachine struct {
	shardID   uint64
	replicaID uint64

	mu         sync.RWMutex
	namespaces map[string]*nsData
}

// NewStateMachine is the dragonboat factory for the shard's state machine.
func NewStateMachine(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return &stateMachine{
		shardID:    shardID,
		replicaID:  replicaID,
		namespaces: map[string]*nsData{},
	}
}

// namespace returns the state of the prefix, creating it on first use.
// Callers must hold the write lock.
func (fsm *stateMachine) namespace(prefix string) *nsData {
	ns, ok := fsm.namespaces[prefix]
	if !ok {
		ns = &nsData{Kinds: map[datastore.Kind]map[string]datastore.Record{}}
		fsm.namespaces[prefix] = ns
	}
	return ns
}

// Update applies a batch of proposed commands to the replicated state.
func (fsm *stateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {
	if len(entries) == 0 {
		return entries, nil
	}

	fsm.mu.Lock()
	defer fsm.mu.Unlock()

	for idx, e := range entries {
		cmd := internal.Command{}
		if err := cmd.Decode(e.Cmd); err != nil {
			entries[idx].Result = sm.Result{
				Value: resultRejected,
				Data:  []byte(fmt.Sprintf("failed to decode command: %v", err)),
			}
			continue
		}

		switch cmd.Type {
		case internal.CommandTInit:
			ns := &nsData{
				Initialized: true,
				Kinds:       map[datastore.Kind]map[string]datastore.Record{},
			}
			for kind, records := range cmd.Data {
				m := make(map[string]datastore.Record, len(records))
				for key, rec := range records {
					m[key] = rec
				}
				ns.Kinds[kind] = m
			}
			fsm.namespaces[cmd.Prefix] = ns
			entries[idx].Result = sm.Result{Value: resultAccepted}

		case internal.CommandTUpsert:
			ns := fsm.namespace(cmd.Prefix)
			stored, exists := ns.Kinds[cmd.Kind][cmd.Key]
			if exists && cmd.Candidate.Version <= stored.Version {
				entries[idx].Result = sm.Result{Value: resultRejected}
				continue
			}
			kind, ok := ns.Kinds[cmd.Kind]
			if !ok {
				kind = map[string]datastore.Record{}
				ns.Kinds[cmd.Kind] = kind
			}
			kind[cmd.Key] = cmd.Candidate
			entries[idx].Result = sm.Result{Value: resultAccepted}

		case internal.CommandTClear:
			delete(fsm.namespaces, cmd.Prefix)
			entries[idx].Result = sm.Result{Value: resultAccepted}

		default:
			entries[idx].Result = sm.Result{
				Value: resultRejected,
				Data:  []byte(fmt.Sprintf("unknown command type: %s", cmd.Type)),
			}
		}
	}
	return entries, nil
}

// Lookup serves linearizable reads issued through SyncRead.
func (fsm *stateMachine) Lookup(itf interface{}) (interface{}, error) {
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, fmt.Errorf("raftstore: invalid query type %T", itf)
	}

	fsm.mu.RLock()
	defer fsm.mu.RUnlock()

	ns, exists := fsm.namespaces[q.Prefix]

	switch q.Type {
	case internal.QueryTGet:
		if !exists {
			return internal.GetResult{}, nil
		}
		rec, found := ns.Kinds[q.Kind][q.Key]
		return internal.GetResult{Record: copyRecord(rec), Found: found}, nil

	case internal.QueryTGetAll:
		records := map[string]datastore.Record{}
		if exists {
			for key, rec := range ns.Kinds[q.Kind] {
				records[key] = copyRecord(rec)
			}
		}
		return records, nil

	case internal.QueryTIsInitialized:
		return exists && ns.Initialized, nil

	default:
		return nil, fmt.Errorf("raftstore: unknown query type: %s", q.Type)
	}
}

// PrepareSnapshot is not needed, SaveSnapshot reads under the lock.
func (fsm *stateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

// SaveSnapshot writes the namespaces as one gob stream.
func (fsm *stateMachine) SaveSnapshot(_ interface{}, w io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	fsm.mu.RLock()
	defer fsm.mu.RUnlock()
	return gob.NewEncoder(w).Encode(fsm.namespaces)
}

// RecoverFromSnapshot replaces the namespaces with the snapshot contents.
func (fsm *stateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	namespaces := map[string]*nsData{}
	if err := gob.NewDecoder(r).Decode(&namespaces); err != nil {
		return fmt.Errorf("raftstore: failed to recover snapshot: %w", err)
	}
	fsm.mu.Lock()
	fsm.namespaces = namespaces
	fsm.mu.Unlock()
	return nil
}

func (fsm *stateMachine) Close() error {
	return nil
}

// copyRecord hands lookup callers their own payload slice so replicated
// state can never be aliased.
func copyRecord(rec datastore.Record) datastore.Record {
	if rec.Value == nil {
		return rec
	}
	value := make([]byte, len(rec.Value))
	copy(value, rec.Value)
	rec.Value = value
	return rec
}
