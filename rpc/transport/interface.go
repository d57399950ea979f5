package transport

import (
	"github.com/ValentinKolb/dRate/lib/db/util"
	"github.com/ValentinKolb/dRate/lib/gossip"
	"github.com/ValentinKolb/dRate/lib/store"
)

// --------------------------------------------------------------------------
// Gossip Transport
// --------------------------------------------------------------------------

// IGossipTransport is a gossip.IQueue whose inboxes live in other processes.
// Push must not block on the receiver processing the record.
type IGossipTransport interface {
	gossip.IQueue
	// Close releases the connections held by the transport. Records pushed
	// afterwards fail, records already received can still be popped.
	Close() error
}

// --------------------------------------------------------------------------
// Inbox
// --------------------------------------------------------------------------

// Inbox is the receiving end of a push based transport: records arriving from the
// network are delivered here and popped by the engine of the local node.
type Inbox struct {
	id    int
	queue *util.LockFreeMPSC[gossip.Record]
}

// NewInbox creates the inbox of node id
func NewInbox(id int) *Inbox {
	return &Inbox{
		id:    id,
		queue: util.NewLockFreeMPSC[gossip.Record](),
	}
}

// ID returns the node owning the inbox
func (in *Inbox) ID() int {
	return in.id
}

// Deliver stores a record addressed to node. Records for other nodes are rejected.
func (in *Inbox) Deliver(node int, r gossip.Record) error {
	if node != in.id {
		return store.Errorf(store.RetCInvalidOperation, "record for %s delivered to %s", gossip.DBID(node), gossip.DBID(in.id))
	}
	if !in.queue.Push(&r) {
		return store.Errorf(store.RetCUnavailable, "inbox of %s is closed", gossip.DBID(in.id))
	}
	return nil
}

// Pop implements gossip.IQueue.Pop for the local node
func (in *Inbox) Pop(node int) (*gossip.Record, bool, error) {
	if node != in.id {
		return nil, false, store.Errorf(store.RetCInvalidOperation, "cannot pop the inbox of %s from %s", gossip.DBID(node), gossip.DBID(in.id))
	}
	r, ok := in.queue.TryPop()
	return r, ok, nil
}

// Len returns the number of waiting records
func (in *Inbox) Len() int {
	return in.queue.Len()
}

// Close stops accepting records
func (in *Inbox) Close() {
	in.queue.Close()
}
