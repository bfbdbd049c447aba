package conformance

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/flagforge/storecheck/lib/datastore"
)

// RunStoreBenchmarks runs standardized benchmarks for a contract
// implementation. The same Config as RunStoreTests applies.
func RunStoreBenchmarks(b *testing.B, name string, cfg Config) {
	if err := cfg.Validate(); err != nil {
		b.Fatal(err)
	}

	b.Run(name, func(b *testing.B) {
		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, cfg)
		})

		b.Run("Get(miss)", func(b *testing.B) {
			benchmarkGetMiss(b, cfg)
		})

		b.Run("GetAll", func(b *testing.B) {
			benchmarkGetAll(b, cfg)
		})

		b.Run("Upsert", func(b *testing.B) {
			benchmarkUpsert(b, cfg)
		})

		b.Run("Upsert(stale)", func(b *testing.B) {
			benchmarkUpsertStale(b, cfg)
		})

		b.Run("Init", func(b *testing.B) {
			benchmarkInit(b, cfg)
		})
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// benchSeedKeys is the size of the seeded dataset. Init commits the seed in
// one shot, and server-side backends cap the operations per transaction
// (etcd defaults to 128), so the seed stays below that.
const benchSeedKeys = 100

// benchDataSet builds a features dataset with numKeys records at the given
// version.
func benchDataSet(numKeys, version int) datastore.DataSet {
	builder := datastore.NewDataSet()
	for i := 0; i < numKeys; i++ {
		builder.Add(datastore.KindFeatures, datastore.NewRecord(
			fmt.Sprintf("bench-key-%d", i),
			version,
			[]byte(fmt.Sprintf("bench-value-%d", i)),
		))
	}
	return builder.Build()
}

func benchmarkGet(b *testing.B, cfg Config) {
	clearPrefixes(b, cfg)
	store := mustOpen(b, cfg, testPrefix)

	numKeys := benchSeedKeys
	if err := store.Init(benchDataSet(numKeys, 1)); err != nil {
		b.Fatalf("Init failed: %v", err)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("bench-key-%d", counter%numKeys)
			if _, _, err := store.Get(datastore.KindFeatures, key); err != nil {
				b.Errorf("Get failed: %v", err)
			}
			counter++
		}
	})
}

func benchmarkGetMiss(b *testing.B, cfg Config) {
	clearPrefixes(b, cfg)
	store := mustOpen(b, cfg, testPrefix)

	if err := store.Init(datastore.NewDataSet().Add(datastore.KindFeatures).Build()); err != nil {
		b.Fatalf("Init failed: %v", err)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("missing-key-%d", counter)
			if _, _, err := store.Get(datastore.KindFeatures, key); err != nil {
				b.Errorf("Get failed: %v", err)
			}
			counter++
		}
	})
}

func benchmarkGetAll(b *testing.B, cfg Config) {
	clearPrefixes(b, cfg)
	store := mustOpen(b, cfg, testPrefix)

	if err := store.Init(benchDataSet(benchSeedKeys, 1)); err != nil {
		b.Fatalf("Init failed: %v", err)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := store.GetAll(datastore.KindFeatures); err != nil {
				b.Errorf("GetAll failed: %v", err)
			}
		}
	})
}

func benchmarkUpsert(b *testing.B, cfg Config) {
	clearPrefixes(b, cfg)
	store := mustOpen(b, cfg, testPrefix)

	numKeys := benchSeedKeys
	if err := store.Init(benchDataSet(numKeys, 1)); err != nil {
		b.Fatalf("Init failed: %v", err)
	}

	// monotonically rising versions keep most candidates on the accept path
	var version int64 = 1

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			v := atomic.AddInt64(&version, 1)
			key := fmt.Sprintf("bench-key-%d", v%int64(numKeys))
			rec := datastore.NewRecord(key, int(v), []byte(fmt.Sprintf("bench-update-%d", v)))
			if _, err := store.Upsert(datastore.KindFeatures, key, rec); err != nil {
				b.Errorf("Upsert failed: %v", err)
			}
		}
	})
}

func benchmarkUpsertStale(b *testing.B, cfg Config) {
	clearPrefixes(b, cfg)
	store := mustOpen(b, cfg, testPrefix)

	numKeys := benchSeedKeys
	if err := store.Init(benchDataSet(numKeys, 1<<30)); err != nil {
		b.Fatalf("Init failed: %v", err)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("bench-key-%d", counter%numKeys)
			rec := datastore.NewRecord(key, 1, []byte("stale"))
			if _, err := store.Upsert(datastore.KindFeatures, key, rec); err != nil {
				b.Errorf("Upsert failed: %v", err)
			}
			counter++
		}
	})
}

func benchmarkInit(b *testing.B, cfg Config) {
	clearPrefixes(b, cfg)
	store := mustOpen(b, cfg, testPrefix)

	data := benchDataSet(benchSeedKeys, 1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := store.Init(data); err != nil {
			b.Fatalf("Init failed: %v", err)
		}
	}
}
