package raftstore

import (
	"os"
	"testing"

	"github.com/flagforge/storecheck/lib/datastore/conformance"
)

// testHub starts a throwaway single node hub, or skips when raft tests are
// not enabled. Starting a NodeHost binds a port and writes a WAL, so the
// test is opt-in like the other server-backed backends.
func testHub(t testing.TB) *Hub {
	t.Helper()
	if os.Getenv("STORECHECK_RAFT_TEST") != "1" {
		t.Skip("set STORECHECK_RAFT_TEST=1 to run the raft backend test (binds a local port)")
	}

	cfg := DefaultConfig(t.TempDir())
	if addr := os.Getenv("STORECHECK_RAFT_ADDR"); addr != "" {
		cfg.Address = addr
	}

	hub, err := NewHub(cfg)
	if err != nil {
		t.Fatalf("Failed to start hub: %v", err)
	}
	t.Cleanup(func() { hub.Close() })
	return hub
}

func TestRaftStore(t *testing.T) {
	hub := testHub(t)

	conformance.RunStoreTests(t, "RaftStore", conformance.Config{
		Factory: func(prefix string) (any, error) {
			return hub.Open(prefix)
		},
		Clear: hub.Clear,
	})
}

func Benchmark(b *testing.B) {
	hub := testHub(b)

	conformance.RunStoreBenchmarks(b, "RaftStore", conformance.Config{
		Factory: func(prefix string) (any, error) {
			return hub.Open(prefix)
		},
		Clear: hub.Clear,
	})
}
