package tcp

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dRate/lib/gossip"
	"github.com/ValentinKolb/dRate/lib/store"
	"github.com/ValentinKolb/dRate/rpc/serializer"
	"github.com/ValentinKolb/dRate/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("transport/tcp")

const readBufferSize = 64 * 1024

// peerConn is the outgoing connection to one peer, dialed on first use
type peerConn struct {
	mu   sync.Mutex
	addr string
	conn net.Conn
}

// Queue writes gossip records as frames over one persistent connection per peer and
// reads the frames sent to this node into an inbox. All nodes must use the same serializer.
type Queue struct {
	inbox      *transport.Inbox
	peers      []*peerConn
	serializer serializer.IRecordSerializer
	timeout    time.Duration
	closed     atomic.Bool

	listener net.Listener
	connsMu  sync.Mutex
	accepted map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// NewQueue creates the queue of node id. peers holds the gossip address (host:port)
// of every node, index = node id.
func NewQueue(id int, peers []string, s serializer.IRecordSerializer, timeout time.Duration) (*Queue, error) {
	if id < 0 || id >= len(peers) {
		return nil, fmt.Errorf("node id %d has no peer entry (%d peers)", id, len(peers))
	}
	q := &Queue{
		inbox:      transport.NewInbox(id),
		peers:      make([]*peerConn, len(peers)),
		serializer: s,
		timeout:    timeout,
		accepted:   make(map[net.Conn]struct{}),
	}
	for i, addr := range peers {
		q.peers[i] = &peerConn{addr: addr}
	}
	return q, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IGossipTransport)
// --------------------------------------------------------------------------

func (q *Queue) Push(node int, r gossip.Record) error {
	if q.closed.Load() {
		return store.NewError(store.RetCUnavailable, "tcp gossip queue is closed")
	}
	if node < 0 || node >= len(q.peers) {
		return store.Errorf(store.RetCInvalidOperation, "unknown node %d", node)
	}

	data, err := q.serializer.Serialize(r)
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", r, err)
	}

	p := q.peers[node]
	p.mu.Lock()
	defer p.mu.Unlock()

	// a broken connection is noticed on write, the record is sent once more on a new one
	for attempt := 0; attempt < 2; attempt++ {
		if p.conn == nil {
			conn, err := net.DialTimeout("tcp", p.addr, q.dialTimeout())
			if err != nil {
				return store.Errorf(store.RetCUnavailable, "dial %s (%s): %v", gossip.DBID(node), p.addr, err)
			}
			p.conn = conn
		}
		if q.timeout > 0 {
			if err := p.conn.SetWriteDeadline(time.Now().Add(q.timeout)); err != nil {
				log.Warningf("Failed to set write deadline: %v", err)
			}
		}
		if err = writeFrame(p.conn, uint32(node), data); err == nil {
			return nil
		}
		_ = p.conn.Close()
		p.conn = nil
	}
	return store.Errorf(store.RetCUnavailable, "write to %s (%s): %v", gossip.DBID(node), p.addr, err)
}

func (q *Queue) Pop(node int) (*gossip.Record, bool, error) {
	return q.inbox.Pop(node)
}

// Close closes the listener and every connection and waits for the readers to exit
func (q *Queue) Close() error {
	if q.closed.Swap(true) {
		return nil
	}

	var err error
	q.connsMu.Lock()
	if q.listener != nil {
		err = q.listener.Close()
	}
	for conn := range q.accepted {
		_ = conn.Close()
	}
	q.connsMu.Unlock()

	for _, p := range q.peers {
		p.mu.Lock()
		if p.conn != nil {
			_ = p.conn.Close()
			p.conn = nil
		}
		p.mu.Unlock()
	}

	q.wg.Wait()
	return err
}

// --------------------------------------------------------------------------
// Receiving side
// --------------------------------------------------------------------------

// Listen binds endpoint and accepts peer connections in the background
func (q *Queue) Listen(endpoint string) error {
	l, err := net.Listen("tcp", endpoint)
	if err != nil {
		return fmt.Errorf("failed to create tcp listener: %w", err)
	}
	q.Serve(l)
	return nil
}

// Serve accepts peer connections on l in the background until Close is called
func (q *Queue) Serve(l net.Listener) {
	q.connsMu.Lock()
	q.listener = l
	q.connsMu.Unlock()

	log.Infof("%s: accepting gossip on %s", gossip.DBID(q.inbox.ID()), l.Addr())

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			conn, err := l.Accept()
			if err != nil {
				if q.closed.Load() || errors.Is(err, net.ErrClosed) {
					return
				}
				log.Errorf("Accept error: %v", err)
				continue
			}
			if !q.track(conn) {
				_ = conn.Close()
				return
			}
			q.wg.Add(1)
			go q.handleConnection(conn)
		}
	}()
}

// Addr returns the address of the listener, empty before Listen
func (q *Queue) Addr() string {
	q.connsMu.Lock()
	defer q.connsMu.Unlock()
	if q.listener == nil {
		return ""
	}
	return q.listener.Addr().String()
}

// Inbox returns the inbox of the local node
func (q *Queue) Inbox() *transport.Inbox {
	return q.inbox
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (q *Queue) track(conn net.Conn) bool {
	q.connsMu.Lock()
	defer q.connsMu.Unlock()
	if q.closed.Load() {
		return false
	}
	q.accepted[conn] = struct{}{}
	return true
}

// handleConnection reads frames until the peer hangs up. A frame that cannot be decoded
// is dropped, the stream stays usable since the frame length is known.
func (q *Queue) handleConnection(conn net.Conn) {
	defer q.wg.Done()
	defer func() {
		q.connsMu.Lock()
		delete(q.accepted, conn)
		q.connsMu.Unlock()
		_ = conn.Close()
	}()

	buf := make([]byte, readBufferSize)
	for {
		node, data, err := readFrame(conn, buf)
		if err != nil {
			if !errors.Is(err, io.EOF) && !q.closed.Load() {
				log.Warningf("Closing gossip connection from %s: %v", conn.RemoteAddr(), err)
			}
			return
		}

		var rec gossip.Record
		if err := q.serializer.Deserialize(data, &rec); err != nil {
			log.Warningf("Dropping undecodable gossip frame from %s: %v", conn.RemoteAddr(), err)
			continue
		}
		if err := q.inbox.Deliver(int(node), rec); err != nil {
			log.Warningf("Dropping %s from %s: %v", rec, conn.RemoteAddr(), err)
		}
	}
}

func (q *Queue) dialTimeout() time.Duration {
	if q.timeout > 0 {
		return q.timeout
	}
	return 5 * time.Second
}
