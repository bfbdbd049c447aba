// Package etcdstore implements the datastore contract on an etcd cluster
// via go.etcd.io/etcd/client/v3.
//
// The package contains:
//   - A key layout of "<prefix>/<kind>/<key>" with JSON-encoded record
//     payloads and a "<prefix>/$inited" marker key
//   - A version-gated upsert built on transactional revision compares:
//     creates require CreateRevision == 0, updates require the ModRevision
//     captured when the gate was decided; a failed compare re-runs the
//     gate. The pre-commit hook fires between decision and commit, once
//     per attempt
//   - Init as a single transaction of computed stale-key deletes, puts and
//     the marker, so readers see either the old or the new namespace
//
// Integration tests are gated behind STORECHECK_ETCD_TEST=1 and expect a
// disposable cluster reachable at STORECHECK_ETCD_ENDPOINTS (default
// localhost:2379).
package etcdstore
