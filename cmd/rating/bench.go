package rating

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dRate/cmd/util"
	statUtil "github.com/ValentinKolb/dRate/lib/db/util"
	"github.com/ValentinKolb/dRate/lib/router"
	"github.com/ValentinKolb/dRate/lib/vclock"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var (
	benchCmd = &cobra.Command{
		Use:     "bench",
		Short:   "Load test a router or node with rating requests",
		RunE:    runBench,
		PreRunE: processBenchConfig,
	}
	benchEntityPrefix = "__bench"
	benchNumThreads   = 10
	benchEntitySpread = 100
	benchSkip         = make([]string, 0)
)

func init() {
	key := "skip"
	benchCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get-weak)"))
	key = "threads"
	benchCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "entities"
	benchCmd.Flags().Int(key, 100, util.WrapString("How many different entities to use for the tests"))
	key = "csv"
	benchCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processBenchConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	benchEntitySpread = viper.GetInt("entities")
	benchNumThreads = viper.GetInt("threads")
	benchSkip = util.ParseList(viper.GetString("skip"))

	if benchEntitySpread < 1 {
		return fmt.Errorf("entities must be at least 1")
	}
	return nil
}

// benchResult is a benchmark run plus the latency distribution of its requests
type benchResult struct {
	testing.BenchmarkResult
	latency statUtil.Stats
	p50     float64
	p99     float64
	errors  int64
}

// latencies collects request durations (in ms) of parallel workers
type latencies struct {
	mu     sync.Mutex
	values []float64
	errors atomic.Int64
}

func (l *latencies) observe(start time.Time, err error) {
	if err != nil {
		l.errors.Add(1)
		return
	}
	ms := float64(time.Since(start)) / float64(time.Millisecond)
	l.mu.Lock()
	l.values = append(l.values, ms)
	l.mu.Unlock()
}

func runBench(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	fmt.Println("Load testing tool for dRate")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", benchNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	results := make(map[string]benchResult)
	var workers atomic.Int64

	// put: every worker writes with its own client id, so every write dominates the previous one of the worker
	results["put"] = bench(ctx, "put", func(ctx context.Context, worker string, n uint64, entity string) error {
		_, err := ratingClient.Put(ctx, entity, float64(n%5+1), vclock.VectorClock{worker: n})
		return err
	}, &workers)

	// the read tests need existing entities
	if !shouldSkip("get-strong") || !shouldSkip("get-weak") {
		if err := seed(ctx); err != nil {
			return err
		}
	}

	results["get-strong"] = bench(ctx, "get-strong", func(ctx context.Context, _ string, _ uint64, entity string) error {
		_, err := ratingClient.Get(ctx, entity, router.Strong)
		return err
	}, &workers)

	results["get-weak"] = bench(ctx, "get-weak", func(ctx context.Context, _ string, _ uint64, entity string) error {
		_, err := ratingClient.Get(ctx, entity, router.Weak)
		return err
	}, &workers)

	results["mixed"] = bench(ctx, "mixed", func(ctx context.Context, worker string, n uint64, entity string) error {
		var err error
		switch n % 4 {
		case 0:
			_, err = ratingClient.Put(ctx, entity, float64(n%5+1), vclock.VectorClock{worker: n})
		case 1, 2:
			_, err = ratingClient.Get(ctx, entity, router.Strong)
		case 3:
			_, err = ratingClient.Get(ctx, entity, router.Weak)
		}
		return err
	}, &workers)

	// cleanup, deletes only reach the owner node
	if err := cleanup(ctx); err != nil {
		log.Printf("(cleanup) - %v\n", err)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}
	return nil
}

// bench runs op in parallel through testing.Benchmark and prints the result
func bench(ctx context.Context, name string, op func(ctx context.Context, worker string, n uint64, entity string) error, workers *atomic.Int64) benchResult {
	if shouldSkip(name) {
		printResult(name, benchResult{})
		return benchResult{}
	}

	lat := &latencies{}
	res := testing.Benchmark(func(b *testing.B) {
		b.SetParallelism(benchNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			worker := fmt.Sprintf("bench-%d", workers.Add(1))
			var n uint64
			for pb.Next() {
				n++
				start := time.Now()
				err := op(ctx, worker, n, entityName(int(n)))
				if err != nil {
					log.Printf("(%s) - request failed: %v\n", name, err)
				}
				lat.observe(start, err)
			}
		})
	})

	result := benchResult{
		BenchmarkResult: res,
		latency:         statUtil.NewStats(lat.values),
		p50:             statUtil.Percentile(lat.values, 50),
		p99:             statUtil.Percentile(lat.values, 99),
		errors:          lat.errors.Load(),
	}
	printResult(name, result)
	return result
}

// seed writes one rating per entity, benchNumThreads requests at a time
func seed(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(benchNumThreads)
	for i := 0; i < benchEntitySpread; i++ {
		g.Go(func() error {
			_, err := ratingClient.Put(ctx, entityName(i), 3, vclock.VectorClock{"bench-seed": 1})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to seed entities: %w", err)
	}
	return nil
}

func cleanup(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(benchNumThreads)
	var failed atomic.Int64
	for i := 0; i < benchEntitySpread; i++ {
		g.Go(func() error {
			if err := ratingClient.Delete(ctx, entityName(i)); err != nil {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d entities could not be deleted", n)
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range benchSkip {
		if test == skip {
			return true
		}
	}
	return false
}

func entityName(i int) string {
	return fmt.Sprintf("%s-%d", benchEntityPrefix, i%benchEntitySpread)
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result benchResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-14sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-14s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%.2fms p99=%.2fms max=%.2fms errors=%d\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec, result.p50, result.p99, result.latency.Max, result.errors)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]benchResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"P50Ms", "P99Ms", "MeanMs", "StdDevMs", "Errors",
		"Endpoint", "Timeout", "Threads", "Entities",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	config := util.GetClientConfig()
	for test, result := range results {
		var nsPerOp, opsPerSec float64
		skipped := "true"
		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			fmt.Sprintf("%.3f", result.p50),
			fmt.Sprintf("%.3f", result.p99),
			fmt.Sprintf("%.3f", result.latency.Mean),
			fmt.Sprintf("%.3f", result.latency.StdDeviation),
			strconv.FormatInt(result.errors, 10),
			config.Endpoint,
			config.Timeout.String(),
			strconv.Itoa(benchNumThreads),
			strconv.Itoa(benchEntitySpread),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}
	return nil
}
