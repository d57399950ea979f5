// Package gossip implements the anti-entropy engine that makes the replicas of all
// shards converge.
//
// The nodes form a ring, node id pushes to (id+1) mod ndb. Every mutating local write is
// buffered as a Record carrying the full register snapshot of the entity. Once the buffer
// holds digest-length records (or, with MaxAge set, is older than MaxAge) every record is
// pushed to the inbox of the successor and the buffer is cleared.
//
// A node drains its inbox on every tick. A record produced by the node itself went around
// the ring and is dropped. Other records are merged into the local replica, and if that
// changed anything the merged snapshot is buffered again with the original origin, so it
// travels on until every node has seen it. Since merging is idempotent a record stops
// circulating once it reaches a node that already knows it.
//
// The inbox transport is an IQueue: NewMemoryQueue for nodes in one process, the http and
// redis transports of the rpc package for separate processes.
package gossip
