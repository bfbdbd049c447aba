// Package datastore defines the storage contract that persistent backends of
// a feature flag delivery system must implement, together with the data
// model the contract is expressed in.
//
// The package focuses on:
//   - A versioned record model with first-class tombstones
//   - A dataset builder for constructing full-replace Init payloads
//   - Blocking (Store) and suspending (AsyncStore) calling conventions
//   - An Adapter that normalizes both conventions behind one call surface
//   - Optional capabilities discovered by interface probing
//
// Key Components:
//
//   - Record: A serialized item identified by key and ordered by an opaque
//     integer version. A deleted record is represented by a tombstone that
//     keeps its version, so deletions obey the same ordering rules as
//     updates. Records have value semantics; payload slices are copied on
//     every construction and derivation.
//
//   - DataSet / DataSetBuilder: A full snapshot of namespace contents per
//     kind, built fluently and handed to Init. Init replaces the whole
//     namespace: kinds missing from the dataset are emptied.
//
//   - Store / AsyncStore: The two calling conventions of the contract. Both
//     carry identical semantics; AsyncStore returns single-delivery result
//     channels instead of blocking. The central operation is Upsert, which
//     accepts a candidate iff the key is unwritten or the candidate version
//     is strictly greater than the stored one. The version comparison and
//     the write must be atomic per key.
//
//   - Adapter: Wraps one backend instance and determines at construction
//     which convention it satisfies. Scenario code is written once against
//     the Adapter's blocking surface.
//
//   - PreCommitHooker: An optional extension point that lets the
//     conformance suite interpose between an accepted upsert decision and
//     its durable write, making races reproducible. Backends without such
//     an interposition point simply do not implement it.
//
// Related Packages:
//
// The conformance package (github.com/flagforge/storecheck/lib/datastore/conformance)
// runs a standardized scenario suite and benchmarks against any contract
// implementation.
//
// The backends packages (github.com/flagforge/storecheck/lib/datastore/backends/...)
// provide reference implementations: in-memory, SQLite, Redis, etcd,
// Cassandra and a raft-replicated embedded store.
package datastore
