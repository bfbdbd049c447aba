package bench

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	vmetrics "github.com/VictoriaMetrics/metrics"
	"github.com/flagforge/storecheck/cmd/util"
	"github.com/flagforge/storecheck/lib/datastore"
	"github.com/google/uuid"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// BenchCmd measures the contract operations against a live backend.
	BenchCmd = &cobra.Command{
		Use:   "bench",
		Short: "Benchmark the contract operations against a live backend",
		Long: `Drive the storage contract operations against a live backend and report
throughput and latency percentiles per operation. All data is written
into a throwaway namespace that is removed afterwards.`,
		PreRunE: processBenchConfig,
		RunE:    run,
	}

	benchNumThreads = 10
	benchKeySpread  = 100
	benchValueSize  = 256
	benchSkip       = make([]string, 0)
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add backend selection flags
	util.SetupBackendFlags(BenchCmd)

	key := "threads"
	BenchCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))

	key = "keys"
	BenchCmd.Flags().Int(key, 100, util.WrapString("How many different keys to spread the operations over"))

	key = "value-size"
	BenchCmd.Flags().Int(key, 256, util.WrapString("Size of the record payload in bytes"))

	key = "skip"
	BenchCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. init,get-all)"))

	key = "csv"
	BenchCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))

	key = "metrics-listen"
	BenchCmd.Flags().String(key, "", util.WrapString("Optional address to expose live Prometheus counters on while the benchmark runs (e.g. localhost:9100)"))
}

func processBenchConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	benchNumThreads = viper.GetInt("threads")
	benchKeySpread = viper.GetInt("keys")
	benchValueSize = viper.GetInt("value-size")
	if skip := viper.GetString("skip"); skip != "" {
		benchSkip = strings.Split(skip, ",")
	}

	return nil
}

// result bundles the go test measurement with the latency distribution of
// one benchmarked operation.
type result struct {
	name  string
	bench testing.BenchmarkResult
	timer gometrics.Timer
}

func run(_ *cobra.Command, _ []string) error {
	harness, err := util.OpenHarness()
	if err != nil {
		return err
	}
	defer harness.Close()

	fmt.Println("storecheck benchmark")
	fmt.Println(harness)
	fmt.Printf("Threads: %d, Keys: %d, Value Size: %d bytes\n\n", benchNumThreads, benchKeySpread, benchValueSize)

	// Serve live counters while the benchmark runs when requested.
	if listen := viper.GetString("metrics-listen"); listen != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
			vmetrics.WritePrometheus(w, true)
		})
		go func() {
			if err := http.ListenAndServe(listen, mux); err != nil {
				logrus.Warnf("metrics listener failed: %v", err)
			}
		}()
		fmt.Printf("Serving live counters on http://%s/metrics\n\n", listen)
	}

	// The benchmark gets its own namespace, removed afterwards.
	prefix := "bench-" + uuid.NewString()[:8]
	backend, err := harness.Conformance().Factory(prefix)
	if err != nil {
		return fmt.Errorf("failed to open benchmark namespace: %w", err)
	}
	store, err := datastore.NewAdapter(backend)
	if err != nil {
		return err
	}
	defer func() {
		store.Close()
		if err := harness.Conformance().Clear(prefix); err != nil {
			logrus.WithField("prefix", prefix).Warnf("failed to clean up namespace: %v", err)
		}
	}()

	value := make([]byte, benchValueSize)
	keys := makeKeys(benchKeySpread)

	// Seed the namespace so reads have something to find.
	seed := datastore.NewDataSet()
	for i, key := range keys {
		seed.Add(datastore.KindFeatures, datastore.NewRecord(key, i+1, value))
	}
	if err := store.Init(seed.Build()); err != nil {
		return fmt.Errorf("failed to seed namespace: %w", err)
	}

	results := make([]result, 0, 8)
	record := func(name string, res result) {
		results = append(results, res)
		printResult(name, res.bench)
	}

	record("get", measure("get", func(counter int) error {
		_, _, err := store.Get(datastore.KindFeatures, keys[counter%benchKeySpread])
		return err
	}))

	record("get-miss", measure("get-miss", func(counter int) error {
		_, _, err := store.Get(datastore.KindFeatures, fmt.Sprintf("missing-%d", counter%benchKeySpread))
		return err
	}))

	record("get-all", measure("get-all", func(int) error {
		_, err := store.GetAll(datastore.KindFeatures)
		return err
	}))

	// Monotonically increasing versions, so every offer is accepted.
	var versions atomic.Int64
	versions.Store(int64(benchKeySpread))
	record("upsert", measure("upsert", func(counter int) error {
		key := keys[counter%benchKeySpread]
		version := int(versions.Add(1))
		_, err := store.Upsert(datastore.KindFeatures, key, datastore.NewRecord(key, version, value))
		return err
	}))

	// Version 0 always loses, measuring the reject path.
	record("upsert-stale", measure("upsert-stale", func(counter int) error {
		key := keys[counter%benchKeySpread]
		_, err := store.Upsert(datastore.KindFeatures, key, datastore.NewRecord(key, 0, value))
		return err
	}))

	record("init", measure("init", func(int) error {
		return store.Init(seed.Build())
	}))

	printPercentiles(results)

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range benchSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// makeKeys creates the fixed key set the operations spread over.
func makeKeys(n int) []string {
	keys := make([]string, n)
	for i := 0; i < n; i++ {
		keys[i] = fmt.Sprintf("bench-key-%d", i)
	}
	return keys
}

// measure runs one operation under testing.Benchmark, recording every call
// in a go-metrics timer and a live Prometheus counter.
func measure(name string, op func(counter int) error) result {
	timer := gometrics.NewTimer()
	opsCounter := vmetrics.GetOrCreateCounter(fmt.Sprintf(`storecheck_bench_ops_total{op=%q}`, name))
	errCounter := vmetrics.GetOrCreateCounter(fmt.Sprintf(`storecheck_bench_errors_total{op=%q}`, name))

	bench := testing.Benchmark(func(b *testing.B) {
		if shouldSkip(name) {
			return
		}

		b.SetParallelism(benchNumThreads)
		b.ReportAllocs()
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				start := time.Now()
				if err := op(counter); err != nil {
					errCounter.Inc()
					log.Printf("(%s) - operation failed: %v\n", name, err)
				}
				timer.UpdateSince(start)
				opsCounter.Inc()
				counter++
			}
		})
	})

	return result{name: name, bench: bench, timer: timer}
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\t%d allocs/op\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec, result.AllocsPerOp())
}

// printPercentiles prints the latency distribution table recorded by the
// go-metrics timers.
func printPercentiles(results []result) {
	fmt.Println("\nLatency percentiles:")
	fmt.Printf("%-20s%12s%12s%12s\n", "operation", "p50", "p95", "p99")
	for _, res := range results {
		if res.timer.Count() == 0 {
			fmt.Printf("%-20s%12s\n", res.name, "skipped")
			continue
		}
		ps := res.timer.Percentiles([]float64{0.5, 0.95, 0.99})
		fmt.Printf(
			"%-20s%12s%12s%12s\n",
			res.name,
			time.Duration(ps[0]).Round(time.Microsecond),
			time.Duration(ps[1]).Round(time.Microsecond),
			time.Duration(ps[2]).Round(time.Microsecond),
		)
	}
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results []result) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Operation", "NsPerOp", "OpsPerSec", "AllocsPerOp",
		"P50Ns", "P95Ns", "P99Ns", "Skipped",
		"Backend", "Threads", "Keys", "ValueSizeBytes",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	backend := viper.GetString("backend")
	for _, res := range results {
		skipped := res.bench.NsPerOp() == 0
		var opsPerSec float64
		if !skipped {
			opsPerSec = 1.0 / (float64(res.bench.NsPerOp()) / 1e9)
		}
		ps := res.timer.Percentiles([]float64{0.5, 0.95, 0.99})

		row := []string{
			res.name,
			strconv.FormatInt(res.bench.NsPerOp(), 10),
			strconv.FormatFloat(opsPerSec, 'f', 0, 64),
			strconv.FormatInt(res.bench.AllocsPerOp(), 10),
			strconv.FormatFloat(ps[0], 'f', 0, 64),
			strconv.FormatFloat(ps[1], 'f', 0, 64),
			strconv.FormatFloat(ps[2], 'f', 0, 64),
			strconv.FormatBool(skipped),
			backend,
			strconv.Itoa(benchNumThreads),
			strconv.Itoa(benchKeySpread),
			strconv.Itoa(benchValueSize),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %v", err)
		}
	}

	return nil
}
