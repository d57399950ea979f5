package gossip

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ValentinKolb/dRate/lib/db"
	"github.com/ValentinKolb/dRate/lib/db/engines/maple"
	"github.com/ValentinKolb/dRate/lib/lockmgr"
	"github.com/ValentinKolb/dRate/lib/register"
	"github.com/ValentinKolb/dRate/lib/replica"
	"github.com/ValentinKolb/dRate/lib/store"
	"github.com/ValentinKolb/dRate/lib/store/lstore"
	"github.com/ValentinKolb/dRate/lib/vclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type node struct {
	replica *replica.Store
	engine  *Engine
}

// put performs a local write the way the node API does
func (n *node) put(t *testing.T, entity string, value float64, clock map[string]uint64) {
	agg, mutated, err := n.replica.Put(entity, value, vclock.FromMap(clock))
	require.NoError(t, err)
	if mutated {
		n.engine.Buffer(entity, agg)
	}
}

func (n *node) get(t *testing.T, entity string) register.Aggregate {
	agg, _, err := n.replica.Get(entity)
	require.NoError(t, err)
	return agg
}

func newRing(ndb int, cfg Config) ([]*node, IQueue) {
	queue := NewMemoryQueue(ndb)
	nodes := make([]*node, ndb)
	for i := range nodes {
		r := replica.NewStore(lstore.NewLocalStore(func() db.HashDB { return maple.NewMapleDB(nil) }), lockmgr.NewLockManager(), time.Second)
		c := cfg
		c.ID, c.NDB = i, ndb
		nodes[i] = &node{replica: r, engine: NewEngine(c, queue, r)}
	}
	return nodes, queue
}

// settle ticks all engines until no record moves anymore
func settle(t *testing.T, nodes []*node) {
	for round := 0; round < 100; round++ {
		moved := 0
		for _, n := range nodes {
			moved += n.engine.Drain()
			moved += n.engine.Flush()
		}
		if moved == 0 {
			return
		}
	}
	t.Fatal("gossip did not settle")
}

func sameMean(t *testing.T, nodes []*node, entity string, want float64) {
	for i, n := range nodes {
		assert.InDelta(t, want, n.get(t, entity).Mean(), 1e-9, "node %d", i)
	}
}

func TestRingConvergence(t *testing.T) {
	nodes, _ := newRing(3, Config{DigestLength: 1})

	nodes[0].put(t, "bob", 5, map[string]uint64{"c1": 1})
	nodes[2].put(t, "bob", 3, map[string]uint64{"c2": 1})
	settle(t, nodes)
	sameMean(t, nodes, "bob", 4)

	// a dominating write collapses both choices everywhere
	nodes[1].put(t, "bob", 1, map[string]uint64{"c1": 1, "c2": 1})
	settle(t, nodes)
	sameMean(t, nodes, "bob", 1)
	for _, n := range nodes {
		assert.Len(t, n.get(t, "bob").Choices, 1)
	}
}

func TestConcurrentWritesCommute(t *testing.T) {
	nodes, _ := newRing(4, Config{DigestLength: 1})

	for i, n := range nodes {
		n.put(t, "alice", float64(i+1), map[string]uint64{fmt.Sprintf("c%d", i): 1})
	}
	settle(t, nodes)
	sameMean(t, nodes, "alice", 2.5)
}

func TestDigestLength(t *testing.T) {
	nodes, queue := newRing(2, Config{DigestLength: 3})
	n := nodes[0]

	n.put(t, "a", 1, map[string]uint64{"c1": 1})
	n.put(t, "b", 1, map[string]uint64{"c1": 1})
	assert.Equal(t, 0, n.engine.Flush())
	records, writes := n.engine.Pending()
	assert.Equal(t, 2, records)
	assert.Equal(t, 2, writes)

	// stale writes are not buffered
	n.put(t, "a", 4, map[string]uint64{"c1": 1})
	assert.Equal(t, 0, n.engine.Flush())

	n.put(t, "c", 1, map[string]uint64{"c1": 1})
	assert.Equal(t, 3, n.engine.Flush())
	records, writes = n.engine.Pending()
	assert.Equal(t, 0, records)
	assert.Equal(t, 0, writes)

	// every record is pushed individually, one hop further
	for _, entity := range []string{"a", "b", "c"} {
		rec, ok, err := queue.Pop(1)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, entity, rec.Entity)
		assert.Equal(t, 0, rec.Origin)
		assert.Equal(t, 1, rec.Hops)
	}
	_, ok, _ := queue.Pop(1)
	assert.False(t, ok)
}

func TestOwnRecordsAreDropped(t *testing.T) {
	nodes, queue := newRing(2, Config{DigestLength: 1})
	n := nodes[0]

	require.NoError(t, queue.Push(0, Record{Origin: 0, Entity: "bob", Mean: 5, Choices: []float64{5},
		Clocks: []vclock.VectorClock{vclock.FromMap(map[string]uint64{"c1": 1})}}))
	assert.Equal(t, 1, n.engine.Drain())

	_, ok, err := n.replica.Get("bob")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(1), n.engine.Stats().DroppedOwn)
}

func TestInvalidRecordsAreDropped(t *testing.T) {
	nodes, queue := newRing(2, Config{DigestLength: 1})
	n := nodes[1]

	require.NoError(t, queue.Push(1, Record{Origin: 0, Entity: "bob", Choices: []float64{5}}))
	require.NoError(t, queue.Push(1, Record{Origin: 0, Entity: ""}))
	assert.Equal(t, 2, n.engine.Drain())

	stats := n.engine.Stats()
	assert.Equal(t, int64(2), stats.DroppedInvalid)
	assert.Equal(t, int64(0), stats.Applied)
	records, _ := n.engine.Pending()
	assert.Equal(t, 0, records)
}

func TestStaleGossipIsNotForwarded(t *testing.T) {
	nodes, queue := newRing(3, Config{DigestLength: 1})
	n := nodes[1]
	n.put(t, "bob", 5, map[string]uint64{"c1": 2})
	n.engine.Flush()
	_, _, _ = queue.Pop(2)

	require.NoError(t, queue.Push(1, NewRecord(0, "bob", register.Aggregate{
		Choices: []float64{1},
		Clocks:  []vclock.VectorClock{vclock.FromMap(map[string]uint64{"c1": 1})},
	})))
	n.engine.Drain()

	records, _ := n.engine.Pending()
	assert.Equal(t, 0, records)
	assert.Equal(t, 5.0, n.get(t, "bob").Mean())
}

func TestMaxAge(t *testing.T) {
	nodes, _ := newRing(2, Config{DigestLength: 10, MaxAge: time.Minute})
	n := nodes[0]

	now := time.Unix(1000, 0)
	n.engine.now = func() time.Time { return now }

	n.put(t, "bob", 5, map[string]uint64{"c1": 1})
	assert.Equal(t, 0, n.engine.Flush())

	now = now.Add(time.Minute)
	assert.Equal(t, 1, n.engine.Flush())
}

func TestMaxHops(t *testing.T) {
	nodes, queue := newRing(3, Config{DigestLength: 1, MaxHops: 1})
	n := nodes[1]

	rec := NewRecord(0, "bob", register.Aggregate{
		Choices: []float64{5},
		Clocks:  []vclock.VectorClock{vclock.FromMap(map[string]uint64{"c1": 1})},
	})
	rec.Hops = 1
	require.NoError(t, queue.Push(1, rec))
	n.engine.Drain()

	// applied locally but not forwarded
	assert.Equal(t, 5.0, n.get(t, "bob").Mean())
	records, _ := n.engine.Pending()
	assert.Equal(t, 0, records)
	assert.Equal(t, int64(1), n.engine.Stats().DroppedHops)
}

func TestPushErrorsAreLogged(t *testing.T) {
	queue := failingQueue{}
	r := replica.NewStore(lstore.NewLocalStore(func() db.HashDB { return maple.NewMapleDB(nil) }), lockmgr.NewLockManager(), time.Second)
	e := NewEngine(Config{ID: 0, NDB: 2, DigestLength: 1}, queue, r)

	e.Buffer("bob", register.Aggregate{Choices: []float64{1}, Clocks: []vclock.VectorClock{vclock.New()}})
	assert.Equal(t, 0, e.Flush())
	assert.Equal(t, int64(1), e.Stats().PushErrors)
	records, _ := e.Pending()
	assert.Equal(t, 0, records, "records are lost on push errors")
}

type failingQueue struct{}

func (failingQueue) Push(int, Record) error {
	return store.NewError(store.RetCUnavailable, "down")
}

func (failingQueue) Pop(int) (*Record, bool, error) {
	return nil, false, store.NewError(store.RetCUnavailable, "down")
}

func TestBackgroundRunner(t *testing.T) {
	nodes, _ := newRing(3, Config{DigestLength: 1, Interval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, n := range nodes {
		n.engine.Start(ctx)
		n.engine.Start(ctx) // no-op
	}

	nodes[0].put(t, "carol", 2, map[string]uint64{"c1": 1})
	nodes[1].put(t, "carol", 4, map[string]uint64{"c2": 1})

	assert.Eventually(t, func() bool {
		for _, n := range nodes {
			agg, _, err := n.replica.Get("carol")
			if err != nil || len(agg.Choices) != 2 {
				return false
			}
		}
		return true
	}, 5*time.Second, 5*time.Millisecond)

	for _, n := range nodes {
		n.engine.Stop()
		n.engine.Stop() // no-op
	}
	sameMean(t, nodes, "carol", 3)
}

func TestMemoryQueueUnknownNode(t *testing.T) {
	q := NewMemoryQueue(2)
	assert.Equal(t, store.RetCInvalidOperation, store.CodeOf(q.Push(5, Record{})))
	_, _, err := q.Pop(-1)
	assert.Equal(t, store.RetCInvalidOperation, store.CodeOf(err))
}
