// Package redistore implements the datastore contract on a Redis server via
// redis/go-redis.
//
// The package contains:
//   - A key layout of "<prefix>:<kind>:<key>" with JSON-encoded record
//     payloads and a "<prefix>:$inited" marker key
//   - A version-gated upsert built on WATCH/MULTI/EXEC: the gate is decided
//     on the read, the write commits only if the watched key is untouched,
//     and a lost WATCH re-runs the gate. The pre-commit hook fires between
//     decision and EXEC, once per attempt
//   - Init as a single MULTI replacing the whole namespace, so readers see
//     either the old or the new state
//
// Integration tests are gated behind STORECHECK_REDIS_TEST=1 and expect a
// disposable server reachable at STORECHECK_REDIS_ADDR (default
// localhost:6379).
package redistore
