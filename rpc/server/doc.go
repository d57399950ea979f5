// Package server implements the HTTP services of dRate: the storage node and the
// shard router.
//
// A Node serves the rating api on top of a replica.Store and a gossip.Engine:
//
//	PUT    /rating/{entity}   merge {"rating": <number>, "clock": {...}} into the register
//	GET    /rating/{entity}   {"rating", "choices", "clocks"} (zero values when absent)
//	DELETE /rating/{entity}   {"rating": null}, 404 when absent
//	POST   /gossip/{node}     inbound gossip record (http queue only)
//	GET    /gossip/stats      engine counters
//	GET    /info              node identity and backing store info
//	GET    /healthz           liveness
//	GET    /metrics           prometheus text format
//
// Every mutating PUT is buffered in the engine, which pushes it to the ring successor
// on its next tick. With GossipInline the engine additionally ticks inside each rating
// request.
//
// NodeServer builds a complete node from a common.NodeConfig: the backing store
// (lstore, rstore or dstore with a dragonboat NodeHost), the gossip queue (memory, http,
// tcp or redis), the engine and the HTTP server.
//
// A Router forwards the same rating api to the shards. Writes and deletes go to the
// owning shard, reads to the owner or, with ?consistency=weak, to a random shard. The
// answer of the shard is passed through unchanged. Timeouts, connection errors and an
// open circuit breaker (one per shard) are answered with 503, requests are never retried.
//
// StartLocalCluster runs a whole ring and a router in one process, the nodes share a
// memory gossip queue.
//
// Usage Example:
//
//	s, err := server.NewNodeServer(cfg, nil)
//	if err != nil {
//		log.Fatalf("failed to create node: %v", err)
//	}
//	if err := s.Serve(ctx); err != nil {
//		log.Fatalf("node failed: %v", err)
//	}
package server
