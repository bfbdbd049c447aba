// Package casstore implements the datastore contract on a Cassandra cluster
// via gocql.
//
// The package contains:
//   - A records table partitioned by prefix with (kind, rkey) clustering,
//     so one namespace is one partition, plus a namespaces table for the
//     initialized flag
//   - A version-gated upsert built on lightweight transactions: creates use
//     INSERT .. IF NOT EXISTS, updates use UPDATE .. IF version = <read>;
//     a not-applied transaction re-runs the gate. The pre-commit hook fires
//     between decision and commit, once per attempt
//   - Init as a single-partition logged batch replacing the namespace
//
// Integration tests are gated behind STORECHECK_CASSANDRA_TEST=1 and expect
// a disposable cluster reachable at STORECHECK_CASSANDRA_HOSTS (default
// localhost:9042).
package casstore
