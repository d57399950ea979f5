package redis

import (
	"testing"
	"time"

	"github.com/ValentinKolb/dRate/lib/db"
	"github.com/ValentinKolb/dRate/lib/db/engines/maple"
	"github.com/ValentinKolb/dRate/lib/gossip"
	"github.com/ValentinKolb/dRate/lib/lockmgr"
	"github.com/ValentinKolb/dRate/lib/register"
	"github.com/ValentinKolb/dRate/lib/replica"
	"github.com/ValentinKolb/dRate/lib/store"
	"github.com/ValentinKolb/dRate/lib/store/lstore"
	"github.com/ValentinKolb/dRate/lib/vclock"
	"github.com/ValentinKolb/dRate/rpc/serializer"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(entity string, hops int) gossip.Record {
	rec := gossip.NewRecord(0, entity, register.Aggregate{
		Choices: []float64{5, 3},
		Clocks:  []vclock.VectorClock{{"c1": 1}, {"c2": 1}},
	})
	rec.Hops = hops
	return rec
}

func TestPushPop(t *testing.T) {
	for _, name := range []string{"json", "gob", "binary"} {
		t.Run(name, func(t *testing.T) {
			mr := miniredis.RunT(t)
			s, err := serializer.New(name)
			require.NoError(t, err)
			q := NewQueue(Options{Addr: mr.Addr(), Prefix: "drate:", NDB: 3}, s)
			defer q.Close()

			_, ok, err := q.Pop(1)
			require.NoError(t, err)
			assert.False(t, ok)

			for i := 0; i < 3; i++ {
				require.NoError(t, q.Push(1, record("bob", i)))
			}
			assert.True(t, mr.Exists("drate:gossip:db1"))

			for i := 0; i < 3; i++ {
				got, ok, err := q.Pop(1)
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, record("bob", i), *got)
			}

			// other inboxes are untouched
			_, ok, err = q.Pop(2)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	q := NewQueue(Options{Addr: mr.Addr(), NDB: 2, Timeout: 200 * time.Millisecond}, serializer.NewJSONSerializer())

	t.Run("UnknownNode", func(t *testing.T) {
		assert.Equal(t, store.RetCInvalidOperation, store.CodeOf(q.Push(2, record("bob", 0))))
		_, _, err := q.Pop(-1)
		assert.Equal(t, store.RetCInvalidOperation, store.CodeOf(err))
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := mr.Lpush(q.Key(0), "{not json")
		require.NoError(t, err)
		_, ok, err := q.Pop(0)
		assert.False(t, ok)
		assert.Equal(t, store.RetCBadRequest, store.CodeOf(err))

		// the broken record is gone
		_, ok, err = q.Pop(0)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Unavailable", func(t *testing.T) {
		down := miniredis.RunT(t)
		dq := NewQueue(Options{Addr: down.Addr(), NDB: 2, Timeout: 200 * time.Millisecond}, serializer.NewJSONSerializer())
		defer dq.Close()
		down.Close()
		assert.Equal(t, store.RetCUnavailable, store.CodeOf(dq.Push(1, record("bob", 0))))
	})

	t.Run("Closed", func(t *testing.T) {
		require.NoError(t, q.Close())
		assert.Equal(t, store.RetCUnavailable, store.CodeOf(q.Push(1, record("bob", 0))))
		require.NoError(t, q.Close())
	})
}

// TestRingOverRedis runs three engines that only share a redis server
func TestRingOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	const ndb = 3

	replicas := make([]*replica.Store, ndb)
	engines := make([]*gossip.Engine, ndb)
	for i := 0; i < ndb; i++ {
		q := NewQueue(Options{Addr: mr.Addr(), Prefix: "ring:", NDB: ndb}, serializer.NewBinarySerializer())
		t.Cleanup(func() { _ = q.Close() })
		replicas[i] = replica.NewStore(lstore.NewLocalStore(func() db.HashDB { return maple.NewMapleDB(nil) }), lockmgr.NewLockManager(), time.Second)
		engines[i] = gossip.NewEngine(gossip.Config{ID: i, NDB: ndb, DigestLength: 1}, q, replicas[i])
	}

	put := func(node int, value float64, clock vclock.VectorClock) {
		agg, mutated, err := replicas[node].Put("bob", value, clock)
		require.NoError(t, err)
		if mutated {
			engines[node].Buffer("bob", agg)
		}
	}
	put(0, 5, vclock.VectorClock{"c1": 1})
	put(2, 3, vclock.VectorClock{"c2": 1})

	for round := 0; round < 20; round++ {
		for _, e := range engines {
			e.Tick()
		}
	}

	for i, r := range replicas {
		agg, ok, err := r.Get("bob")
		require.NoError(t, err)
		require.True(t, ok, "node %d", i)
		assert.InDelta(t, 4.0, agg.Mean(), 1e-9, "node %d", i)
		assert.Len(t, agg.Choices, 2, "node %d", i)
	}
}
