// Package memstore provides the in-memory reference implementation of the
// datastore contract and doubles as the conformance suite's self-check.
//
// The package focuses on:
//   - A Hub acting as the shared physical storage, with namespaces kept in
//     an xsync concurrent map
//   - Immutable namespace snapshots swapped through atomic pointers, so
//     Init is atomic for readers and Upsert commits through a CAS retry
//     loop that re-runs the version gate on every attempt
//   - Both calling conventions: Open returns a blocking instance,
//     OpenAsync a suspending one over the same state
//   - The pre-commit hook capability, firing between the accept decision
//     and the snapshot swap
//
// Example usage:
//
//	hub := memstore.NewHub()
//	a := hub.Open("flags")      // blocking sibling
//	b := hub.OpenAsync("flags") // suspending sibling, same data
//
// Instances hold no resources of their own; Close is a no-op and the hub is
// garbage collected with the last reference.
package memstore
