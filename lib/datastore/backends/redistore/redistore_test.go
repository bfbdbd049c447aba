package redistore

import (
	"os"
	"testing"

	"github.com/flagforge/storecheck/lib/datastore/conformance"
)

// testOptions returns the connection options for the integration tests, or
// skips when no disposable server is configured.
func testOptions(t testing.TB) Options {
	t.Helper()
	if os.Getenv("STORECHECK_REDIS_TEST") != "1" {
		t.Skip("set STORECHECK_REDIS_TEST=1 and point STORECHECK_REDIS_ADDR at a disposable Redis server to run this test")
	}
	opts := DefaultOptions()
	if addr := os.Getenv("STORECHECK_REDIS_ADDR"); addr != "" {
		opts.Address = addr
	}
	return opts
}

func TestRedisStore(t *testing.T) {
	opts := testOptions(t)

	admin, err := Open(opts, "admin")
	if err != nil {
		t.Fatalf("Failed to open admin instance: %v", err)
	}
	t.Cleanup(func() { admin.Close() })

	conformance.RunStoreTests(t, "RedisStore", conformance.Config{
		Factory: func(prefix string) (any, error) {
			return Open(opts, prefix)
		},
		Clear: admin.Wipe,
	})
}

func Benchmark(b *testing.B) {
	opts := testOptions(b)

	admin, err := Open(opts, "admin")
	if err != nil {
		b.Fatalf("Failed to open admin instance: %v", err)
	}
	b.Cleanup(func() { admin.Close() })

	conformance.RunStoreBenchmarks(b, "RedisStore", conformance.Config{
		Factory: func(prefix string) (any, error) {
			return Open(opts, prefix)
		},
		Clear: admin.Wipe,
	})
}
