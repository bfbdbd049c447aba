// Package raftstore implements the datastore contract on a dragonboat raft
// shard. All namespaces replicate through one log, so every accepted write
// is durable and linearizable across the cluster.
//
// The package focuses on:
//   - A Hub owning the NodeHost and the shard; Open hands out lightweight
//     namespace-scoped instances that share the hub's session
//   - The suspending calling convention: proposals and linearizable reads
//     take network round trips, so every operation returns a result channel
//   - A state machine that applies Init, Upsert and Clear commands in log
//     order, which makes the per-key version gate trivially atomic
//   - Gob-encoded commands in the raft log and gob snapshots for recovery
//
// The backend deliberately does not implement the pre-commit hook: raft
// serializes every write through a single apply loop, so there is no
// read-decide-write window to interpose on. Race scenarios of the
// conformance suite are skipped for this backend.
//
// Example usage:
//
//	hub, err := raftstore.NewHub(raftstore.DefaultConfig("/var/lib/storecheck"))
//	if err != nil { ... }
//	defer hub.Close()
//
//	store, err := hub.Open("flags")
//	res := <-store.UpsertAsync(datastore.KindFeatures, "k", rec)
package raftstore
