package etcdstore

import (
	"os"
	"strings"
	"testing"

	"github.com/flagforge/storecheck/lib/datastore/conformance"
)

// testEndpoints returns the cluster endpoints for the integration tests, or
// skips when no disposable cluster is configured.
func testEndpoints(t testing.TB) []string {
	t.Helper()
	if os.Getenv("STORECHECK_ETCD_TEST") != "1" {
		t.Skip("set STORECHECK_ETCD_TEST=1 and point STORECHECK_ETCD_ENDPOINTS at a disposable etcd cluster to run this test")
	}
	endpoints := []string{"localhost:2379"}
	if env := os.Getenv("STORECHECK_ETCD_ENDPOINTS"); env != "" {
		endpoints = strings.Split(env, ",")
	}
	return endpoints
}

func TestEtcdStore(t *testing.T) {
	endpoints := testEndpoints(t)

	admin, err := Open(endpoints, "admin")
	if err != nil {
		t.Fatalf("Failed to open admin instance: %v", err)
	}
	t.Cleanup(func() { admin.Close() })

	conformance.RunStoreTests(t, "EtcdStore", conformance.Config{
		Factory: func(prefix string) (any, error) {
			return Open(endpoints, prefix)
		},
		Clear: admin.Wipe,
	})
}

func Benchmark(b *testing.B) {
	endpoints := testEndpoints(b)

	admin, err := Open(endpoints, "admin")
	if err != nil {
		b.Fatalf("Failed to open admin instance: %v", err)
	}
	b.Cleanup(func() { admin.Close() })

	conformance.RunStoreBenchmarks(b, "EtcdStore", conformance.Config{
		Factory: func(prefix string) (any, error) {
			return Open(endpoints, prefix)
		},
		Clear: admin.Wipe,
	})
}
