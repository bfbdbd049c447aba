package raftstore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/flagforge/storecheck/lib/datastore/backends/raftstore/internal"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/config"
	sm "github.com/lni/dragonboat/v4/statemachine"
	"github.com/sirupsen/logrus"
)

// Dragonboat derives election and heartbeat timing from the configured RTT.
// The factors follow the raft paper's recommendations.
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// retries bounds how often a proposal or read is retried when the shard is
// busy or has not elected a leader yet.
const retries = 10

// --------------------------------------------------------------------------
// Hub Configuration
// --------------------------------------------------------------------------

// HubConfig holds the raft parameters of one Hub.
type HubConfig struct {
	// DataDir is where the write-ahead log and snapshots are stored.
	DataDir string
	// Address is the raft address of this node, e.g. "localhost:63001".
	Address string
	// ShardID identifies the raft shard that holds all namespaces.
	ShardID uint64
	// RTTMillisecond is the assumed round trip time between nodes. Election
	// and heartbeat intervals are derived from it.
	RTTMillisecond uint64
	// SnapshotEntries controls how many log entries are applied between
	// snapshots.
	SnapshotEntries uint64
	// CompactionOverhead is the number of entries kept after compaction.
	CompactionOverhead uint64
	// Timeout bounds every proposal and linearizable read.
	Timeout time.Duration
	// LogLevel configures dragonboat's internal logging (debug, info,
	// warning, error, critical).
	LogLevel string
}

// DefaultConfig returns a single node configuration suitable for embedding
// the backend in one process.
func DefaultConfig(dataDir string) HubConfig {
	return HubConfig{
		DataDir:            dataDir,
		Address:            "localhost:63001",
		ShardID:            128,
		RTTMillisecond:     100,
		SnapshotEntries:    10_000,
		CompactionOverhead: 5_000,
		Timeout:            10 * time.Second,
		LogLevel:           "warning",
	}
}

// --------------------------------------------------------------------------
// Hub
// --------------------------------------------------------------------------

// Hub owns the dragonboat NodeHost and the raft shard all namespaces live
// in. Store instances created via Open share the hub's shard; a write
// proposed through one is observable through every sibling once applied.
//
// Thread-safety: the hub and all stores opened from it are safe for
// concurrent use.
type Hub struct {
	nh      *dragonboat.NodeHost
	cs      *client.Session
	shardID uint64
	timeout time.Duration
	closed  atomic.Bool
}

// NewHub starts a single replica raft shard and waits for it to become
// ready. The caller must Close the hub to release the NodeHost.
func NewHub(cfg HubConfig) (*Hub, error) {
	initLoggers(cfg.LogLevel)

	nh, err := dragonboat.NewNodeHost(config.NodeHostConfig{
		WALDir:         cfg.DataDir,
		NodeHostDir:    cfg.DataDir,
		RTTMillisecond: cfg.RTTMillisecond,
		RaftAddress:    cfg.Address,
	})
	if err != nil {
		return nil, fmt.Errorf("raftstore: failed to create node host: %w", err)
	}

	const replicaID = 1
	members := map[uint64]string{replicaID: cfg.Address}
	factory := func(shardID uint64, rID uint64) sm.IConcurrentStateMachine {
		return NewStateMachine(shardID, rID)
	}
	raftCfg := config.Config{
		ReplicaID:          replicaID,
		ShardID:            cfg.ShardID,
		ElectionRTT:        electionRTTFactor,
		HeartbeatRTT:       heartbeatRTTFactor,
		CheckQuorum:        true,
		SnapshotEntries:    cfg.SnapshotEntries,
		CompactionOverhead: cfg.CompactionOverhead,
	}
	if err := nh.StartConcurrentReplica(members, false, factory, raftCfg); err != nil {
		nh.Close()
		return nil, fmt.Errorf("raftstore: failed to start shard %d: %w", cfg.ShardID, err)
	}

	return &Hub{
		nh:      nh,
		cs:      nh.GetNoOPSession(cfg.ShardID),
		shardID: cfg.ShardID,
		timeout: cfg.Timeout,
	}, nil
}

// Open creates a store instance scoped to the prefix. Instances opened with
// the same prefix are siblings within the hub's shard.
func (h *Hub) Open(prefix string) (*Store, error) {
	if h.closed.Load() {
		return nil, errors.New("raftstore: hub is closed")
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{hub: h, prefix: prefix}, nil
}

// Clear drops the namespace from the replicated state. Intended for test
// harness cleanup.
func (h *Hub) Clear(prefix string) error {
	_, err := h.propose(internal.Command{Type: internal.CommandTClear, Prefix: prefix})
	return err
}

// Close shuts down the NodeHost. Stores opened from the hub fail afterwards.
// Closing an already closed hub is a no-op.
func (h *Hub) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	h.nh.Close()
	return nil
}

// propose submits a command through raft and returns the state machine's
// result. Busy and not-yet-ready shards are retried with a backoff derived
// from the timeout.
func (h *Hub) propose(cmd internal.Command) (sm.Result, error) {
	data, err := cmd.Encode()
	if err != nil {
		return sm.Result{}, err
	}

	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		res, err := h.nh.SyncPropose(ctx, h.cs, data)
		cancel()

		if errors.Is(err, dragonboat.ErrSystemBusy) || errors.Is(err, dragonboat.ErrShardNotReady) {
			logrus.WithField("attempt", i+1).Debugf("raftstore: shard busy, retrying %s proposal", cmd.Type)
			time.Sleep(h.timeout / 10)
			continue
		}
		if err != nil {
			return sm.Result{}, fmt.Errorf("raftstore: %s proposal failed: %w", cmd.Type, err)
		}
		if len(res.Data) > 0 {
			return res, fmt.Errorf("raftstore: %s rejected by state machine: %s", cmd.Type, res.Data)
		}
		return res, nil
	}
	return sm.Result{}, fmt.Errorf("raftstore: %s proposal timed out after %d attempts", cmd.Type, retries)
}

// lookup runs a linearizable read against the shard and casts the answer to
// the expected type R.
func lookup[R any](h *Hub, q internal.Query) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		res, err := h.nh.SyncRead(ctx, h.shardID, q)
		cancel()

		if errors.Is(err, dragonboat.ErrSystemBusy) || errors.Is(err, dragonboat.ErrShardNotReady) {
			logrus.WithField("attempt", i+1).Debugf("raftstore: shard busy, retrying %s read", q.Type)
			time.Sleep(h.timeout / 10)
			continue
		}
		if err != nil {
			return zero, fmt.Errorf("raftstore: %s read failed: %w", q.Type, err)
		}

		casted, ok := res.(R)
		if !ok {
			return zero, fmt.Errorf("raftstore: unexpected lookup result: got %T, want %T", res, zero)
		}
		return casted, nil
	}
	return zero, fmt.Errorf("raftstore: %s read timed out after %d attempts", q.Type, retries)
}
