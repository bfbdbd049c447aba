// Package cmd implements the command-line interface of storecheck, the
// conformance checker for feature flag storage backends. It provides a
// hierarchical command structure for probing and benchmarking live backends.
//
// The package is organized into several subpackages:
//
//   - probe: Runs the conformance scenario suite against a live backend
//   - bench: Benchmarks the contract operations against a live backend
//   - backends: Lists the compiled-in backends and their capabilities
//   - util: Shared utilities for flag handling and backend selection (internal use)
//
// See storecheck -help for a list of all commands.
package cmd
