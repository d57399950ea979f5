package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/ValentinKolb/dRate/lib/gossip"
	"github.com/ValentinKolb/dRate/rpc/common"
	httptransport "github.com/ValentinKolb/dRate/rpc/transport/http"
)

// LocalCluster is a complete ring plus router inside one process. The nodes exchange
// gossip through a shared in-memory queue.
type LocalCluster struct {
	nodes  []*NodeServer
	router *Router
	http   *httptransport.Server
	errc   chan error
}

// StartLocalCluster starts one node per entry of nodes and a router in front of them.
// The queue of every node is forced to memory, the shards of rcfg are filled in with
// the bound node addresses.
func StartLocalCluster(ctx context.Context, nodes []common.NodeConfig, rcfg common.RouterConfig) (*LocalCluster, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("at least one node is required")
	}
	c := &LocalCluster{errc: make(chan error, 1)}
	shared := gossip.NewMemoryQueue(len(nodes))

	rcfg.Shards = nil
	for i, cfg := range nodes {
		cfg.ID = i
		cfg.NDB = len(nodes)
		cfg.Queue = common.QueueMemory

		s, err := NewNodeServer(cfg, shared)
		if err != nil {
			c.close()
			return nil, err
		}
		if err := s.Start(ctx); err != nil {
			_ = s.Close()
			c.close()
			return nil, err
		}
		c.nodes = append(c.nodes, s)
		rcfg.Shards = append(rcfg.Shards, s.Addr())
	}

	rt, err := NewRouter(rcfg)
	if err != nil {
		c.close()
		return nil, err
	}
	c.router = rt
	c.http = httptransport.NewServer(rcfg.Endpoint, rt.Handler())
	if err := c.http.Listen(); err != nil {
		c.close()
		return nil, fmt.Errorf("failed to listen on %s: %w", rcfg.Endpoint, err)
	}
	go func() {
		c.errc <- c.http.Serve()
	}()

	log.Infof("local cluster: %d nodes behind the router on %s", len(c.nodes), c.Addr())
	return c, nil
}

// Addr returns the bound address of the router
func (c *LocalCluster) Addr() string {
	return c.http.Addr()
}

// Nodes returns the node servers, index = node id
func (c *LocalCluster) Nodes() []*NodeServer {
	return c.nodes
}

// Wait blocks until ctx is cancelled or the router fails, then shuts the cluster down
func (c *LocalCluster) Wait(ctx context.Context) error {
	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-c.errc:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(serveErr, c.Shutdown(shutdownCtx))
}

// Shutdown stops the router first and the nodes afterwards
func (c *LocalCluster) Shutdown(ctx context.Context) error {
	var errs []error
	if c.http != nil {
		errs = append(errs, c.http.Shutdown(ctx))
	}
	if c.router != nil {
		c.router.Close()
	}
	for _, s := range c.nodes {
		errs = append(errs, s.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// close releases the nodes started so far (used when the start fails)
func (c *LocalCluster) close() {
	for _, s := range c.nodes {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		_ = s.Shutdown(shutdownCtx)
		cancel()
	}
	if c.router != nil {
		c.router.Close()
	}
}
