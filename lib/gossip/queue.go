package gossip

import (
	"github.com/ValentinKolb/dRate/lib/db/util"
	"github.com/ValentinKolb/dRate/lib/store"
)

// IQueue delivers gossip records to the inbox of a node.
//
// Push may be called concurrently. Pop of one node is only called by the engine of that
// node and never concurrently.
type IQueue interface {
	// Push appends a record to the inbox of node
	Push(node int, r Record) error
	// Pop removes the oldest record of the inbox of node. The boolean is false when the inbox is empty.
	Pop(node int) (*Record, bool, error)
}

// memoryQueue is an in-process queue with one lock-free inbox per node
type memoryQueue struct {
	inboxes []*util.LockFreeMPSC[Record]
}

// NewMemoryQueue creates an in-process queue for ndb nodes
func NewMemoryQueue(ndb int) IQueue {
	q := &memoryQueue{inboxes: make([]*util.LockFreeMPSC[Record], ndb)}
	for i := range q.inboxes {
		q.inboxes[i] = util.NewLockFreeMPSC[Record]()
	}
	return q
}

func (q *memoryQueue) inbox(node int) (*util.LockFreeMPSC[Record], error) {
	if node < 0 || node >= len(q.inboxes) {
		return nil, store.Errorf(store.RetCInvalidOperation, "unknown node %d", node)
	}
	return q.inboxes[node], nil
}

func (q *memoryQueue) Push(node int, r Record) error {
	inbox, err := q.inbox(node)
	if err != nil {
		return err
	}
	if !inbox.Push(&r) {
		return store.Errorf(store.RetCUnavailable, "inbox of %s is closed", DBID(node))
	}
	return nil
}

func (q *memoryQueue) Pop(node int) (*Record, bool, error) {
	inbox, err := q.inbox(node)
	if err != nil {
		return nil, false, err
	}
	r, ok := inbox.TryPop()
	return r, ok, nil
}
