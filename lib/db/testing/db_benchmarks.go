package testing

import (
	"bytes"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dRate/lib/db"
)

// RunHashDBBenchmarks runs all benchmarks for a hash-field database implementation
func RunHashDBBenchmarks(b *testing.B, name string, factory DBFactory) {
	b.Run("HSet", func(b *testing.B) {
		benchmarkHSet(b, factory())
	})

	b.Run("HSetExisting", func(b *testing.B) {
		benchmarkHSetExisting(b, factory())
	})

	b.Run("HGetAll", func(b *testing.B) {
		benchmarkHGetAll(b, factory())
	})

	b.Run("Delete", func(b *testing.B) {
		benchmarkDelete(b, factory())
	})

	b.Run("SaveLoad", func(b *testing.B) {
		benchmarkSaveLoad(b, factory)
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory())
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func benchmarkHSet(b *testing.B, database db.HashDB) {
	defer database.Close()
	var index atomic.Uint64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := index.Add(1)
			database.HSet(fmt.Sprintf("/rating/e%d", i), ratingFields("4"), i)
		}
	})
}

func benchmarkHSetExisting(b *testing.B, database db.HashDB) {
	defer database.Close()
	const numKeys = 1000
	var index atomic.Uint64

	for i := 0; i < numKeys; i++ {
		database.HSet(fmt.Sprintf("/rating/e%d", i), ratingFields("4"), index.Add(1))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			database.HSet(fmt.Sprintf("/rating/e%d", r.Intn(numKeys)), ratingFields("2"), index.Add(1))
		}
	})
}

func benchmarkHGetAll(b *testing.B, database db.HashDB) {
	defer database.Close()
	const numKeys = 10000

	for i := 0; i < numKeys; i++ {
		database.HSet(fmt.Sprintf("/rating/e%d", i), ratingFields("4"), uint64(i+1))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			database.HGetAll(fmt.Sprintf("/rating/e%d", r.Intn(numKeys)))
		}
	})
}

func benchmarkDelete(b *testing.B, database db.HashDB) {
	defer database.Close()

	for i := 0; i < b.N; i++ {
		database.HSet(fmt.Sprintf("/rating/e%d", i), ratingFields("4"), uint64(i+1))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		database.Delete(fmt.Sprintf("/rating/e%d", i), uint64(b.N+i+1))
	}
}

func benchmarkSaveLoad(b *testing.B, factory DBFactory) {
	database := factory()
	defer database.Close()

	for i := 0; i < 100000; i++ {
		database.HSet(fmt.Sprintf("/rating/e%d", i), ratingFields("4"), uint64(i+1))
	}

	var snapshot bytes.Buffer
	if err := database.Save(&snapshot); err != nil {
		b.Fatalf("Save failed: %v", err)
	}

	b.Run("Save", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var buf bytes.Buffer
			if err := database.Save(&buf); err != nil {
				b.Fatalf("Save failed: %v", err)
			}
		}
	})

	b.Run("Load", func(b *testing.B) {
		target := factory()
		defer target.Close()
		for i := 0; i < b.N; i++ {
			if err := target.Load(bytes.NewReader(snapshot.Bytes())); err != nil {
				b.Fatalf("Load failed: %v", err)
			}
		}
	})
}

// 70% reads, 25% writes, 5% deletes
func benchmarkMixedUsage(b *testing.B, database db.HashDB) {
	defer database.Close()
	const numKeys = 10000
	var index atomic.Uint64

	for i := 0; i < numKeys; i++ {
		database.HSet(fmt.Sprintf("/rating/e%d", i), ratingFields("4"), index.Add(1))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key := fmt.Sprintf("/rating/e%d", r.Intn(numKeys))
			switch op := r.Intn(100); {
			case op < 70:
				database.HGetAll(key)
			case op < 95:
				database.HSet(key, ratingFields("3"), index.Add(1))
			default:
				database.Delete(key, index.Add(1))
			}
		}
	})
}
