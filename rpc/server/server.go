package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ValentinKolb/dRate/lib/db"
	"github.com/ValentinKolb/dRate/lib/db/engines/maple"
	"github.com/ValentinKolb/dRate/lib/gossip"
	"github.com/ValentinKolb/dRate/lib/lockmgr"
	"github.com/ValentinKolb/dRate/lib/replica"
	"github.com/ValentinKolb/dRate/lib/store"
	"github.com/ValentinKolb/dRate/lib/store/dstore"
	"github.com/ValentinKolb/dRate/lib/store/lstore"
	"github.com/ValentinKolb/dRate/lib/store/rstore"
	"github.com/ValentinKolb/dRate/rpc/common"
	"github.com/ValentinKolb/dRate/rpc/serializer"
	"github.com/ValentinKolb/dRate/rpc/transport"
	httptransport "github.com/ValentinKolb/dRate/rpc/transport/http"
	redisqueue "github.com/ValentinKolb/dRate/rpc/transport/redis"
	"github.com/ValentinKolb/dRate/rpc/transport/tcp"
	"github.com/lni/dragonboat/v4"
)

// shutdownTimeout bounds the graceful shutdown of an HTTP server
const shutdownTimeout = 5 * time.Second

// NodeServer owns everything a running rating node needs: the backing store, the gossip
// queue, the engine and the HTTP server.
type NodeServer struct {
	cfg      common.NodeConfig
	node     *Node
	engine   *gossip.Engine
	queue    gossip.IQueue
	tcpQueue *tcp.Queue
	nodeHost *dragonboat.NodeHost
	http     *httptransport.Server
	errc     chan error
}

// NewNodeServer builds a node from cfg. shared is the gossip queue used with
// cfg.Queue == memory, it has to be shared by all nodes of the ring (see the local command).
//
// Usage:
//
//	s, err := server.NewNodeServer(cfg, nil)
//	if err != nil {
//		return err
//	}
//	return s.Serve(ctx)
func NewNodeServer(cfg common.NodeConfig, shared gossip.IQueue) (*NodeServer, error) {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &NodeServer{cfg: cfg, errc: make(chan error, 1)}

	backend, err := s.createBackend()
	if err != nil {
		return nil, err
	}

	gossipHandler, err := s.createQueue(shared)
	if err != nil {
		s.closeBackend()
		return nil, err
	}

	r := replica.NewStore(backend, lockmgr.NewLockManager(), cfg.LockTimeout)
	s.engine = gossip.NewEngine(gossip.Config{
		ID:           cfg.ID,
		NDB:          cfg.NDB,
		DigestLength: cfg.DigestLength,
		Interval:     cfg.GossipInterval,
		MaxAge:       cfg.DigestMaxAge,
		MaxHops:      cfg.MaxHops,
	}, s.queue, r)
	s.node = NewNode(cfg, r, s.engine, gossipHandler)
	s.http = httptransport.NewServer(cfg.Endpoint, s.node.Handler())

	log.Infof("%s: node created", gossip.DBID(cfg.ID))
	return s, nil
}

// createBackend creates the field store selected by cfg.Backend
func (s *NodeServer) createBackend() (store.IStore, error) {
	dbFactory := func() db.HashDB { return maple.NewMapleDB(nil) }

	switch s.cfg.Backend {
	case common.BackendLocal:
		return lstore.NewLocalStore(dbFactory), nil

	case common.BackendRedis:
		return rstore.NewRedisStore(rstore.Options{
			Addr:    s.cfg.RedisAddr,
			DB:      s.cfg.RedisDB,
			Prefix:  fmt.Sprintf("drate:%s:", gossip.DBID(s.cfg.ID)),
			Timeout: s.cfg.Timeout,
		}), nil

	case common.BackendDistributed:
		nh, err := dragonboat.NewNodeHost(s.cfg.ToNodeHostConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create node host: %w", err)
		}
		s.nodeHost = nh

		shardID := common.RaftShardID(s.cfg.ID)
		if err := nh.StartConcurrentReplica(s.cfg.ClusterMembers, false, dstore.CreateStateMachineFactory(dbFactory), s.cfg.ToDragonboatConfig()); err != nil {
			nh.Close()
			return nil, fmt.Errorf("failed to start shard %d: %w", shardID, err)
		}
		log.Infof("%s: raft shard %d started (replica %d)", gossip.DBID(s.cfg.ID), shardID, s.cfg.ReplicaID)
		return dstore.NewDistributedStore(nh, shardID, s.cfg.Timeout), nil
	}
	return nil, fmt.Errorf("invalid backend %q", s.cfg.Backend)
}

// createQueue creates the gossip queue selected by cfg.Queue and returns the handler of
// POST /gossip/{node} when the queue needs one
func (s *NodeServer) createQueue(shared gossip.IQueue) (http.Handler, error) {
	ser, err := serializer.New(s.cfg.Serializer)
	if err != nil {
		return nil, err
	}

	switch s.cfg.Queue {
	case common.QueueMemory:
		if shared == nil {
			if s.cfg.NDB > 1 {
				return nil, fmt.Errorf("the memory queue only works inside one process, use http, tcp or redis for %d nodes", s.cfg.NDB)
			}
			shared = gossip.NewMemoryQueue(s.cfg.NDB)
		}
		s.queue = shared

	case common.QueueHTTP:
		q, err := httptransport.NewQueue(s.cfg.ID, s.cfg.Peers, ser, s.cfg.Timeout)
		if err != nil {
			return nil, err
		}
		s.queue = q
		return q.Handler(), nil

	case common.QueueTCP:
		q, err := tcp.NewQueue(s.cfg.ID, s.cfg.GossipPeers, ser, s.cfg.Timeout)
		if err != nil {
			return nil, err
		}
		s.queue = q
		s.tcpQueue = q

	case common.QueueRedis:
		s.queue = redisqueue.NewQueue(redisqueue.Options{
			Addr:    s.cfg.QueueRedisAddr,
			Prefix:  "drate:",
			NDB:     s.cfg.NDB,
			Timeout: s.cfg.Timeout,
		}, ser)

	default:
		return nil, fmt.Errorf("invalid queue %q", s.cfg.Queue)
	}
	return nil, nil
}

// Node returns the HTTP surface of the node
func (s *NodeServer) Node() *Node {
	return s.node
}

// Addr returns the address of the HTTP api, the bound one after Start
func (s *NodeServer) Addr() string {
	return s.http.Addr()
}

// Start binds the listeners and runs the gossip engine and the HTTP server in the
// background. The engine stops when ctx is cancelled or Shutdown is called.
func (s *NodeServer) Start(ctx context.Context) error {
	if s.tcpQueue != nil {
		if err := s.tcpQueue.Listen(s.cfg.GossipEndpoint); err != nil {
			return err
		}
	}
	if err := s.http.Listen(); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Endpoint, err)
	}

	s.engine.Start(ctx)
	go func() {
		s.errc <- s.http.Serve()
	}()
	log.Infof("%s: serving the rating api on %s", gossip.DBID(s.cfg.ID), s.Addr())
	return nil
}

// Serve starts the node and blocks until ctx is cancelled or the HTTP server fails
func (s *NodeServer) Serve(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		_ = s.Close()
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-s.errc:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(serveErr, s.Shutdown(shutdownCtx))
}

// Shutdown stops the HTTP server and the engine and releases the queue and the backend
func (s *NodeServer) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	return errors.Join(err, s.Close())
}

// Close stops the engine and releases the queue and the backend without waiting for
// running requests
func (s *NodeServer) Close() error {
	s.engine.Stop()

	var err error
	if closer, ok := s.queue.(transport.IGossipTransport); ok {
		err = closer.Close()
	}
	s.closeBackend()
	return err
}

func (s *NodeServer) closeBackend() {
	if s.nodeHost != nil {
		s.nodeHost.Close()
		s.nodeHost = nil
	}
}

// --------------------------------------------------------------------------
// Router
// --------------------------------------------------------------------------

// ServeRouter runs the router for cfg until ctx is cancelled
func ServeRouter(ctx context.Context, cfg common.RouterConfig) error {
	rt, err := NewRouter(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv := httptransport.NewServer(cfg.Endpoint, rt.Handler())
	if err := srv.Listen(); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Endpoint, err)
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve()
	}()
	log.Infof("router: forwarding to %d shards on %s", cfg.NDB(), srv.Addr())

	select {
	case <-ctx.Done():
	case err := <-errc:
		return err
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
