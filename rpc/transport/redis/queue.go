package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dRate/lib/gossip"
	"github.com/ValentinKolb/dRate/lib/store"
	"github.com/ValentinKolb/dRate/rpc/serializer"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/redis/go-redis/v9"
)

var log = logger.GetLogger("transport/redis")

// Options configures the redis gossip queue
type Options struct {
	Addr    string        // host:port of the redis server
	DB      int           // redis database number
	Prefix  string        // prepended to every inbox key
	NDB     int           // number of nodes, pushes to other nodes are rejected
	Timeout time.Duration // per operation timeout
}

// Queue keeps the inbox of every node as a redis list. All nodes of a ring share the
// redis server, Push appends with RPUSH and Pop takes the head with LPOP.
type Queue struct {
	client     *redis.Client
	prefix     string
	ndb        int
	timeout    time.Duration
	serializer serializer.IRecordSerializer
	closed     atomic.Bool
}

// NewQueue creates a redis queue. The connection is established lazily by the redis client.
func NewQueue(opts Options, s serializer.IRecordSerializer) *Queue {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	log.Infof("using redis gossip queue at %s (db=%d, prefix=%q)", opts.Addr, opts.DB, opts.Prefix)
	return &Queue{
		client: redis.NewClient(&redis.Options{
			Addr: opts.Addr,
			DB:   opts.DB,
		}),
		prefix:     opts.Prefix,
		ndb:        opts.NDB,
		timeout:    opts.Timeout,
		serializer: s,
	}
}

// Key returns the list holding the inbox of node
func (q *Queue) Key(node int) string {
	return q.prefix + "gossip:" + gossip.DBID(node)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IGossipTransport)
// --------------------------------------------------------------------------

func (q *Queue) Push(node int, r gossip.Record) error {
	if err := q.check(node); err != nil {
		return err
	}
	data, err := q.serializer.Serialize(r)
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", r, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	return wrapErr(q.client.RPush(ctx, q.Key(node), data).Err())
}

// Pop takes the oldest record of the inbox. A record that cannot be decoded is removed
// from the list and reported as an error.
func (q *Queue) Pop(node int) (*gossip.Record, bool, error) {
	if err := q.check(node); err != nil {
		return nil, false, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	data, err := q.client.LPop(ctx, q.Key(node)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapErr(err)
	}

	var rec gossip.Record
	if err := q.serializer.Deserialize(data, &rec); err != nil {
		return nil, false, store.Errorf(store.RetCBadRequest, "undecodable record in %s: %v", q.Key(node), err)
	}
	return &rec, true, nil
}

func (q *Queue) Close() error {
	if q.closed.Swap(true) {
		return nil
	}
	return q.client.Close()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func (q *Queue) check(node int) error {
	if q.closed.Load() {
		return store.NewError(store.RetCUnavailable, "redis gossip queue is closed")
	}
	if node < 0 || (q.ndb > 0 && node >= q.ndb) {
		return store.Errorf(store.RetCInvalidOperation, "unknown node %d", node)
	}
	return nil
}

// wrapErr maps redis client errors to store errors. Network problems and timeouts
// mean the queue is unavailable.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return store.NewError(store.RetCUnavailable, err.Error())
	}
	return store.NewError(store.RetCInternalError, err.Error())
}
