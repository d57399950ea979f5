package tcp

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/ValentinKolb/dRate/lib/gossip"
	"github.com/ValentinKolb/dRate/lib/register"
	"github.com/ValentinKolb/dRate/lib/store"
	"github.com/ValentinKolb/dRate/lib/vclock"
	"github.com/ValentinKolb/dRate/rpc/serializer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func record(origin int, entity string) gossip.Record {
	return gossip.NewRecord(origin, entity, register.Aggregate{
		Choices: []float64{4},
		Clocks:  []vclock.VectorClock{{"c1": 2, "c2": 1}},
	})
}

// ring creates ndb listening queues that know each other
func ring(t *testing.T, ndb int) []*Queue {
	t.Helper()

	listeners := make([]net.Listener, ndb)
	peers := make([]string, ndb)
	for i := range listeners {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		listeners[i] = l
		peers[i] = l.Addr().String()
	}

	queues := make([]*Queue, ndb)
	for i := range queues {
		q, err := NewQueue(i, peers, serializer.NewBinarySerializer(), time.Second)
		require.NoError(t, err)
		q.Serve(listeners[i])
		queues[i] = q
		t.Cleanup(func() { _ = q.Close() })
	}
	return queues
}

// popEventually waits until a record arrives in the inbox of node
func popEventually(t *testing.T, q *Queue, node int) gossip.Record {
	t.Helper()
	var rec *gossip.Record
	require.Eventually(t, func() bool {
		r, ok, err := q.Pop(node)
		if err != nil || !ok {
			return false
		}
		rec = r
		return true
	}, 2*time.Second, 5*time.Millisecond)
	return *rec
}

func TestPushPop(t *testing.T) {
	queues := ring(t, 3)

	sent := record(0, "bob")
	sent.Hops = 1
	require.NoError(t, queues[0].Push(1, sent))
	assert.Equal(t, sent, popEventually(t, queues[1], 1))

	// the connection is reused for later records and keeps their order
	for i := 0; i < 20; i++ {
		rec := record(0, "alice")
		rec.Hops = i
		require.NoError(t, queues[0].Push(2, rec))
	}
	for i := 0; i < 20; i++ {
		assert.Equal(t, i, popEventually(t, queues[2], 2).Hops)
	}
}

func TestReconnect(t *testing.T) {
	queues := ring(t, 2)
	require.NoError(t, queues[0].Push(1, record(0, "bob")))
	popEventually(t, queues[1], 1)

	// break the outgoing connection behind the back of the queue
	p := queues[0].peers[1]
	p.mu.Lock()
	_ = p.conn.Close()
	p.mu.Unlock()

	require.NoError(t, queues[0].Push(1, record(0, "carol")))
	assert.Equal(t, "carol", popEventually(t, queues[1], 1).Entity)
}

func TestErrors(t *testing.T) {
	t.Run("PeerDown", func(t *testing.T) {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := l.Addr().String()
		require.NoError(t, l.Close())

		q, err := NewQueue(0, []string{addr, addr}, serializer.NewJSONSerializer(), 200*time.Millisecond)
		require.NoError(t, err)
		defer q.Close()
		assert.Equal(t, store.RetCUnavailable, store.CodeOf(q.Push(1, record(0, "bob"))))
	})

	t.Run("UnknownNode", func(t *testing.T) {
		q, err := NewQueue(0, []string{"127.0.0.1:1"}, serializer.NewJSONSerializer(), time.Second)
		require.NoError(t, err)
		defer q.Close()
		assert.Equal(t, store.RetCInvalidOperation, store.CodeOf(q.Push(4, record(0, "bob"))))
	})

	t.Run("Closed", func(t *testing.T) {
		queues := ring(t, 2)
		require.NoError(t, queues[0].Close())
		assert.Equal(t, store.RetCUnavailable, store.CodeOf(queues[0].Push(1, record(0, "bob"))))
		// second close is a no-op
		require.NoError(t, queues[0].Close())
	})

	t.Run("GarbageFrame", func(t *testing.T) {
		queues := ring(t, 2)
		conn, err := net.Dial("tcp", queues[1].Addr())
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, writeFrame(conn, 1, []byte("garbage")))
		valid, err := serializer.NewBinarySerializer().Serialize(record(0, "dave"))
		require.NoError(t, err)
		require.NoError(t, writeFrame(conn, 1, valid))

		assert.Equal(t, "dave", popEventually(t, queues[1], 1).Entity)
	})
}

func TestFrame(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		_ = writeFrame(client, 7, []byte("payload"))
		_ = writeFrame(client, 8, nil)
	}()

	node, data, err := readFrame(server, make([]byte, 4))
	require.NoError(t, err)
	assert.Equal(t, uint32(7), node)
	assert.Equal(t, []byte("payload"), data)

	node, data, err = readFrame(server, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(8), node)
	assert.Empty(t, data)

	// oversized frames are rejected before allocating
	oversized := []byte{0, 0, 0, 1, 0xff, 0xff, 0xff, 0xff}
	_, _, err = readFrame(bytes.NewReader(oversized), nil)
	assert.Error(t, err)
}
