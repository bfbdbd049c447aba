// Package conformance provides standardised scenarios and benchmarks for
// backend implementations of the datastore contract.
//
// The package contains:
//   - RunStoreTests: A comprehensive scenario suite validating conformance to
//     the contract, including version-gated upserts, tombstone handling,
//     namespace isolation and deterministic race checks
//   - RunStoreBenchmarks: Performance tests for the contract operations
//   - RunProbe: The same scenario set run outside the go test runner, used
//     by the storecheck CLI against live deployments
//
// This package is particularly useful for:
//   - Backend developers implementing the datastore contract
//   - Operators verifying that a deployed store behaves correctly before
//     pointing an SDK at it
//
// Example usage:
//
//	// Wiring your implementation into the suite
//	cfg := conformance.Config{
//	    Factory: func(prefix string) (any, error) {
//	        return mystore.Open(addr, prefix)
//	    },
//	    Clear: func(prefix string) error {
//	        return mystore.Wipe(addr, prefix)
//	    },
//	}
//
//	// Running the standard scenario suite
//	conformance.RunStoreTests(t, "MyStore", cfg)
//
//	// Running performance benchmarks
//	conformance.RunStoreBenchmarks(b, "MyStore", cfg)
//
// Race scenarios rely on the optional pre-commit hook capability
// (datastore.PreCommitHooker). Backends without it skip those scenarios
// instead of failing them.
package conformance
