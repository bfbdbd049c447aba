package etcdstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flagforge/storecheck/lib/datastore"
	log "github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// DefaultPrefix is the namespace selected by the empty prefix.
const DefaultPrefix = "default"

// upsertRetries bounds how often an optimistic upsert re-runs after its
// revision compare fails against a competing writer.
const upsertRetries = 16

const (
	dialTimeout    = 5 * time.Second
	requestTimeout = 5 * time.Second
)

// storedRecord is the JSON form a record takes in etcd. The key is not
// repeated in the payload, it lives in the etcd key.
type storedRecord struct {
	Version int    `json:"version"`
	Value   []byte `json:"value,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

// Store implements datastore.Store and datastore.PreCommitHooker on an etcd
// cluster. Records live under "<prefix>/<kind>/<key>", the initialized flag
// under "<prefix>/$inited". Instances with the same prefix against the same
// cluster are siblings.
//
// Thread-safety: all methods are safe for concurrent use.
type Store struct {
	client *clientv3.Client
	prefix string
	closed atomic.Bool

	hookMu sync.Mutex
	hook   func()
}

var (
	_ datastore.Store           = (*Store)(nil)
	_ datastore.PreCommitHooker = (*Store)(nil)
)

// Open connects to the etcd cluster and returns an instance scoped to the
// prefix. The empty prefix selects DefaultPrefix. Connectivity is verified
// against the first endpoint before the instance is handed out.
func Open(endpoints []string, prefix string) (*Store, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("etcdstore: no endpoints specified")
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("etcdstore: failed to create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if _, err := client.Status(ctx, endpoints[0]); err != nil {
		client.Close()
		return nil, fmt.Errorf("etcdstore: failed to connect to %q: %w", endpoints[0], err)
	}

	log.WithFields(log.Fields{"endpoints": endpoints, "prefix": prefix}).
		Debug("Connected to etcd")

	return &Store{client: client, prefix: prefix}, nil
}

// SetPreCommitHook installs fn between the accept decision of an Upsert and
// the transaction committing its write. The hook may fire once per revision
// compare attempt; a failed compare re-runs the version gate before the next
// firing. Nil clears the hook.
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

// Wipe removes every record and the initialized flag of the given prefix
// from the cluster, regardless of the prefix this instance is scoped to.
// The empty prefix selects DefaultPrefix. Intended for harness cleanup
// between scenarios.
func (s *Store) Wipe(prefix string) error {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if _, err := s.client.Delete(ctx, prefix+"/", clientv3.WithPrefix()); err != nil {
		return fmt.Errorf("etcdstore: failed to wipe prefix %q: %w", prefix, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Key layout
// --------------------------------------------------------------------------

func (s *Store) recordKey(kind datastore.Kind, key string) string {
	return fmt.Sprintf("%s/%s/%s", s.prefix, kind, key)
}

func (s *Store) kindPrefix(kind datastore.Kind) string {
	return fmt.Sprintf("%s/%s/", s.prefix, kind)
}

func (s *Store) initedKey() string {
	return s.prefix + "/$inited"
}

// --------------------------------------------------------------------------
// Contract Methods (semantics see datastore.Store)
// --------------------------------------------------------------------------

func (s *Store) Init(data datastore.DataSet) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	// a txn must not address a key twice, so stale keys are computed first
	// and only keys the new dataset does not cover get a delete op
	current, err := s.client.Get(ctx, s.prefix+"/", clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return fmt.Errorf("etcdstore: failed to enumerate namespace %q: %w", s.prefix, err)
	}

	fresh := map[string][]byte{s.initedKey(): []byte("1")}
	for kind, records := range data {
		for _, rec := range records {
			payload, err := json.Marshal(storedRecord{
				Version: rec.Version,
				Value:   rec.Value,
				Deleted: rec.Deleted,
			})
			if err != nil {
				return fmt.Errorf("etcdstore: failed to encode record %q/%q: %w", kind, rec.Key, err)
			}
			fresh[s.recordKey(kind, rec.Key)] = payload
		}
	}

	var ops []clientv3.Op
	for _, kv := range current.Kvs {
		if _, kept := fresh[string(kv.Key)]; !kept {
			ops = append(ops, clientv3.OpDelete(string(kv.Key)))
		}
	}
	for key, payload := range fresh {
		ops = append(ops, clientv3.OpPut(key, string(payload)))
	}

	if _, err := s.client.Txn(ctx).Then(ops...).Commit(); err != nil {
		return fmt.Errorf("etcdstore: failed to init namespace %q: %w", s.prefix, err)
	}
	return nil
}

func (s *Store) Get(kind datastore.Kind, key string) (datastore.Record, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	resp, err := s.client.Get(ctx, s.recordKey(kind, key))
	if err != nil {
		return datastore.Record{}, false, fmt.Errorf("etcdstore: failed to read record %q/%q: %w", kind, key, err)
	}
	if len(resp.Kvs) == 0 {
		return datastore.Record{}, false, nil
	}
	rec, err := decodeRecord(key, resp.Kvs[0].Value)
	if err != nil {
		return datastore.Record{}, false, err
	}
	return rec, true, nil
}

func (s *Store) GetAll(kind datastore.Kind) (map[string]datastore.Record, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	keyPrefix := s.kindPrefix(kind)
	resp, err := s.client.Get(ctx, keyPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("etcdstore: failed to enumerate kind %q: %w", kind, err)
	}

	records := make(map[string]datastore.Record, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		key := strings.TrimPrefix(string(kv.Key), keyPrefix)
		rec, err := decodeRecord(key, kv.Value)
		if err != nil {
			return nil, err
		}
		records[key] = rec
	}
	return records, nil
}

func (s *Store) Upsert(kind datastore.Kind, key string, candidate datastore.Record) (bool, error) {
	rkey := s.recordKey(kind, key)

	payload, err := json.Marshal(storedRecord{
		Version: candidate.Version,
		Value:   candidate.Value,
		Deleted: candidate.Deleted,
	})
	if err != nil {
		return false, fmt.Errorf("etcdstore: failed to encode record %q/%q: %w", kind, key, err)
	}

	for attempt := 0; attempt < upsertRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)

		resp, err := s.client.Get(ctx, rkey)
		if err != nil {
			cancel()
			return false, fmt.Errorf("etcdstore: failed to read record %q/%q: %w", kind, key, err)
		}

		// a create compares against CreateRevision 0 (key absent), an update
		// against the ModRevision captured here, so any interleaved write
		// fails the txn and sends us back through the gate
		cmp := clientv3.Compare(clientv3.CreateRevision(rkey), "=", 0)
		if len(resp.Kvs) > 0 {
			var stored storedRecord
			if err := json.Unmarshal(resp.Kvs[0].Value, &stored); err != nil {
				cancel()
				return false, fmt.Errorf("etcdstore: stored record %q is not valid JSON: %w", rkey, err)
			}
			if candidate.Version <= stored.Version {
				cancel()
				return false, nil
			}
			cmp = clientv3.Compare(clientv3.ModRevision(rkey), "=", resp.Kvs[0].ModRevision)
		}

		if hook := s.preCommitHook(); hook != nil {
			hook()
		}

		txnResp, err := s.client.Txn(ctx).If(cmp).Then(clientv3.OpPut(rkey, string(payload))).Commit()
		cancel()
		if err != nil {
			return false, fmt.Errorf("etcdstore: failed to upsert record %q/%q: %w", kind, key, err)
		}
		if !txnResp.Succeeded {
			log.WithFields(log.Fields{"key": rkey, "attempt": attempt + 1}).
				Warn("Optimistic upsert lost its revision compare, retrying")
			continue
		}
		return true, nil
	}
	return false, fmt.Errorf("etcdstore: upsert of %q/%q kept losing its revision compare after %d attempts", kind, key, upsertRetries)
}

func (s *Store) IsInitialized() (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	resp, err := s.client.Get(ctx, s.initedKey(), clientv3.WithCountOnly())
	if err != nil {
		return false, fmt.Errorf("etcdstore: failed to read initialized flag of %q: %w", s.prefix, err)
	}
	return resp.Count > 0, nil
}

func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.client.Close()
}

func decodeRecord(key string, data []byte) (datastore.Record, error) {
	var stored storedRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		return datastore.Record{}, fmt.Errorf("etcdstore: stored record %q is not valid JSON: %w", key, err)
	}
	return datastore.Record{
		Key:     key,
		Version: stored.Version,
		Value:   stored.Value,
		Deleted: stored.Deleted,
	}, nil
}
