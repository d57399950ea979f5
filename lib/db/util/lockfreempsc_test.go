package util

import (
	"runtime"
	"sync"
	"testing"
)

// TestBasicOperations tests basic push and pop functionality
func TestBasicOperations(t *testing.T) {
	q := NewLockFreeMPSC[int]()
	defer q.Close()

	if _, ok := q.TryPop(); ok {
		t.Fatalf("New queue should be empty")
	}

	for i := 0; i < 10; i++ {
		if !q.Push(&i) {
			t.Fatalf("Failed to push item %d", i)
		}
	}

	if q.Len() != 10 {
		t.Errorf("Expected length 10, got %d", q.Len())
	}

	for i := 0; i < 10; i++ {
		val, ok := q.TryPop()
		if !ok {
			t.Fatalf("Expected item %d, queue was empty", i)
		}
		if *val != i {
			t.Errorf("Expected %d, got %d", i, *val)
		}
	}

	if _, ok := q.TryPop(); ok {
		t.Errorf("Queue should be empty")
	}
	if q.Len() != 0 {
		t.Errorf("Expected length 0, got %d", q.Len())
	}
}

// TestPushNil verifies that nil values are rejected
func TestPushNil(t *testing.T) {
	q := NewLockFreeMPSC[int]()
	if q.Push(nil) {
		t.Errorf("Push(nil) should return false")
	}
	if q.Len() != 0 {
		t.Errorf("Expected empty queue after Push(nil)")
	}
}

// TestClose verifies that a closed queue rejects pushes but still drains
func TestClose(t *testing.T) {
	q := NewLockFreeMPSC[string]()
	a, b := "a", "b"

	if !q.Push(&a) {
		t.Fatalf("Push before close failed")
	}
	q.Close()

	if !q.IsClosed() {
		t.Errorf("Queue should report closed")
	}
	if q.Push(&b) {
		t.Errorf("Push after close should fail")
	}

	val, ok := q.TryPop()
	if !ok || *val != "a" {
		t.Errorf("Expected to drain 'a' after close, got %v, %v", val, ok)
	}
	if _, ok := q.TryPop(); ok {
		t.Errorf("Queue should be empty after draining")
	}
}

// TestConcurrentProducers verifies the queue works correctly with multiple producers
// while a single consumer pops concurrently
func TestConcurrentProducers(t *testing.T) {
	q := NewLockFreeMPSC[int]()
	defer q.Close()

	const numProducers = 10
	const itemsPerProducer = 1000
	totalItems := numProducers * itemsPerProducer

	var wg sync.WaitGroup
	wg.Add(numProducers)

	for p := 0; p < numProducers; p++ {
		go func(producerID int) {
			defer wg.Done()

			base := producerID * itemsPerProducer
			for i := 0; i < itemsPerProducer; i++ {
				val := base + i
				if !q.Push(&val) {
					t.Errorf("Producer %d failed to push item %d", producerID, i)
				}
				if i%100 == 0 {
					runtime.Gosched()
				}
			}
		}(p)
	}

	// consume while producers are running
	received := make(map[int]bool, totalItems)
	lastPerProducer := make([]int, numProducers)
	for i := range lastPerProducer {
		lastPerProducer[i] = -1
	}

	producersDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(producersDone)
	}()

	consume := func(val *int) {
		if received[*val] {
			t.Errorf("Duplicate item received: %d", *val)
		}
		received[*val] = true

		// per producer order must be preserved
		producer, offset := *val/itemsPerProducer, *val%itemsPerProducer
		if offset <= lastPerProducer[producer] {
			t.Errorf("Item %d of producer %d popped after %d", offset, producer, lastPerProducer[producer])
		}
		lastPerProducer[producer] = offset
	}

	for done := false; !done; {
		select {
		case <-producersDone:
			done = true
		default:
		}
		for {
			val, ok := q.TryPop()
			if !ok {
				break
			}
			consume(val)
		}
		runtime.Gosched()
	}

	// drain what was pushed after the last pass
	for {
		val, ok := q.TryPop()
		if !ok {
			break
		}
		consume(val)
	}

	if len(received) != totalItems {
		t.Errorf("Expected %d items, received %d", totalItems, len(received))
	}
}

// BenchmarkPush measures the cost of concurrent pushes
func BenchmarkPush(b *testing.B) {
	q := NewLockFreeMPSC[int]()
	defer q.Close()

	b.RunParallel(func(pb *testing.PB) {
		v := 1
		for pb.Next() {
			q.Push(&v)
		}
	})
}
