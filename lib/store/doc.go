// Package store provides the per-shard storage abstraction of dRate together with the
// error type used across the whole module.
//
// Key Components:
//
//   - IStore Interface: hash-field operations (HSet, HGetAll, Delete) on top of which a
//     replica keeps its rating aggregates. All backends share this interface, so a node
//     can switch between them with a flag.
//
//   - Error System: *Error carries a RetCode and a message. RetCode maps to the HTTP
//     status of the public API (HTTPStatus), CodeOf extracts the code from any error.
//
//   - DBFactory: creates the db.HashDB instance used by local and raft backed stores.
//
// Implementations:
//
//   - Local Store (lstore): a db.HashDB in this process with an atomic write index.
//
//   - Distributed Store (dstore): a dragonboat raft group per shard, for deployments
//     that want a replica to survive the loss of a single machine.
//
//   - Redis Store (rstore): keeps the aggregates in redis hashes, so the replica process
//     itself is stateless.
package store
