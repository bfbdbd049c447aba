package redistore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flagforge/storecheck/lib/datastore"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// DefaultPrefix is the namespace selected by the empty prefix.
const DefaultPrefix = "default"

// upsertRetries bounds how often an optimistic upsert re-runs after losing
// its WATCH to a competing writer.
const upsertRetries = 16

const connectTimeout = 5 * time.Second

// Options configures the Redis connection.
type Options struct {
	// Address of the Redis server.
	Address string
	// Password required when connecting, empty for none.
	Password string
	// DB selects the logical Redis database.
	DB int
}

// DefaultOptions returns options for a local unauthenticated server.
func DefaultOptions() Options {
	return Options{
		Address: "localhost:6379",
	}
}

// storedRecord is the JSON form a record takes on the wire. The key is not
// repeated in the payload, it lives in the Redis key.
type storedRecord struct {
	Version int    `json:"version"`
	Value   []byte `json:"value,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

// Store implements datastore.Store and datastore.PreCommitHooker on a Redis
// server. Records live under "<prefix>:<kind>:<key>", the initialized flag
// under "<prefix>:$inited". Instances with the same prefix against the same
// server are siblings.
//
// Thread-safety: all methods are safe for concurrent use.
type Store struct {
	client *redis.Client
	prefix string
	closed atomic.Bool

	hookMu sync.Mutex
	hook   func()
}

var (
	_ datastore.Store           = (*Store)(nil)
	_ datastore.PreCommitHooker = (*Store)(nil)
)

// Open connects to the Redis server and returns an instance scoped to the
// prefix. The empty prefix selects DefaultPrefix. The connection is verified
// with a ping before the instance is handed out.
func Open(opts Options, prefix string) (*Store, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redistore: failed to connect to %q: %w", opts.Address, err)
	}

	log.WithFields(log.Fields{"address": opts.Address, "db": opts.DB, "prefix": prefix}).
		Debug("Connected to Redis")

	return &Store{client: client, prefix: prefix}, nil
}

// SetPreCommitHook installs fn between the accept decision of an Upsert and
// the MULTI committing its write. The hook may fire once per WATCH attempt;
// a lost WATCH re-runs the version gate before the next firing. Nil clears
// the hook.
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
// from the server, regardless of the prefix this instance is scoped to. The
// empty prefix selects DefaultPrefix. Intended for harness cleanup between
// scenarios.
func (s *Store) Wipe(prefix string) error {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	ctx := context.Background()
	keys, err := s.scanKeys(ctx, prefix+":*")
	if err != nil {
		return fmt.Errorf("redistore: failed to enumerate prefix %q: %w", prefix, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redistore: failed to wipe prefix %q: %w", prefix, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Key layout
// --------------------------------------------------------------------------

func (s *Store) recordKey(kind datastore.Kind, key string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, kind, key)
}

func (s *Store) kindPattern(kind datastore.Kind) string {
	return fmt.Sprintf("%s:%s:*", s.prefix, kind)
}

func (s *Store) initedKey() string {
	return s.prefix + ":$inited"
}

func (s *Store) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

// --------------------------------------------------------------------------
// Contract Methods (semantics see datastore.Store)
// --------------------------------------------------------------------------

func (s *Store) Init(data datastore.DataSet) error {
	ctx := context.Background()

	// everything currently under the prefix goes, including the marker; the
	// MULTI below re-creates the new state atomically for readers
	stale, err := s.scanKeys(ctx, s.prefix+":*")
	if err != nil {
		return fmt.Errorf("redistore: failed to enumerate namespace %q: %w", s.prefix, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(stale) > 0 {
			pipe.Del(ctx, stale...)
		}
		for kind, records := range data {
			for _, rec := range records {
				payload, err := json.Marshal(storedRecord{
					Version: rec.Version,
					Value:   rec.Value,
					Deleted: rec.Deleted,
				})
				if err != nil {
					return fmt.Errorf("redistore: failed to encode record %q/%q: %w", kind, rec.Key, err)
				}
				pipe.Set(ctx, s.recordKey(kind, rec.Key), payload, 0)
			}
		}
		pipe.Set(ctx, s.initedKey(), "1", 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redistore: failed to init namespace %q: %w", s.prefix, err)
	}
	return nil
}

func (s *Store) Get(kind datastore.Kind, key string) (datastore.Record, bool, error) {
	data, err := s.client.Get(context.Background(), s.recordKey(kind, key)).Bytes()
	if err == redis.Nil {
		return datastore.Record{}, false, nil
	}
	if err != nil {
		return datastore.Record{}, false, fmt.Errorf("redistore: failed to read record %q/%q: %w", kind, key, err)
	}
	rec, err := decodeRecord(key, data)
	if err != nil {
		return datastore.Record{}, false, err
	}
	return rec, true, nil
}

func (s *Store) GetAll(kind datastore.Kind) (map[string]datastore.Record, error) {
	ctx := context.Background()
	keys, err := s.scanKeys(ctx, s.kindPattern(kind))
	if err != nil {
		return nil, fmt.Errorf("redistore: failed to enumerate kind %q: %w", kind, err)
	}

	records := make(map[string]datastore.Record, len(keys))
	keyPrefix := fmt.Sprintf("%s:%s:", s.prefix, kind)
	for _, rkey := range keys {
		data, err := s.client.Get(ctx, rkey).Bytes()
		if err == redis.Nil {
			// deleted between scan and read
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redistore: failed to read record at %q: %w", rkey, err)
		}
		key := strings.TrimPrefix(rkey, keyPrefix)
		rec, err := decodeRecord(key, data)
		if err != nil {
			return nil, err
		}
		records[key] = rec
	}
	return records, nil
}

func (s *Store) Upsert(kind datastore.Kind, key string, candidate datastore.Record) (bool, error) {
	ctx := context.Background()
	rkey := s.recordKey(kind, key)

	payload, err := json.Marshal(storedRecord{
		Version: candidate.Version,
		Value:   candidate.Value,
		Deleted: candidate.Deleted,
	})
	if err != nil {
		return false, fmt.Errorf("redistore: failed to encode record %q/%q: %w", kind, key, err)
	}

	for attempt := 0; attempt < upsertRetries; attempt++ {
		accepted := false

		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, rkey).Bytes()
			if err != nil && err != redis.Nil {
				return err
			}
			if err == nil {
				var stored storedRecord
				if err := json.Unmarshal(data, &stored); err != nil {
					return fmt.Errorf("stored record is not valid JSON: %w", err)
				}
				if candidate.Version <= stored.Version {
					return nil
				}
			}

			if hook := s.preCommitHook(); hook != nil {
				hook()
			}

			// EXEC fails with TxFailedErr if the watched key changed since
			// the read above, e.g. through writes the hook interposed
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, rkey, payload, 0)
				return nil
			})
			if err != nil {
				return err
			}
			accepted = true
			return nil
		}, rkey)

		if err == redis.TxFailedErr {
			log.WithFields(log.Fields{"key": rkey, "attempt": attempt + 1}).
				Warn("Optimistic upsert lost its WATCH, retrying")
			continue
		}
		if err != nil {
			return false, fmt.Errorf("redistore: failed to upsert record %q/%q: %w", kind, key, err)
		}
		return accepted, nil
	}
	return false, fmt.Errorf("redistore: upsert of %q/%q kept losing its WATCH after %d attempts", kind, key, upsertRetries)
}

func (s *Store) IsInitialized() (bool, error) {
	n, err := s.client.Exists(context.Background(), s.initedKey()).Result()
	if err != nil {
		return false, fmt.Errorf("redistore: failed to read initialized flag of %q: %w", s.prefix, err)
	}
	return n > 0, nil
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
		return datastore.Record{}, fmt.Errorf("redistore: stored record %q is not valid JSON: %w", key, err)
	}
	return datastore.Record{
		Key:     key,
		Version: stored.Version,
		Value:   stored.Value,
		Deleted: stored.Deleted,
	}, nil
}
