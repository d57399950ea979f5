// Package rpc contains everything that crosses a process boundary in dRate.
//
// The package is organized into several subpackages:
//
//   - common: configuration of nodes, routers and clients, the JSON payloads of the
//     rating api and the dragonboat logger factory used by all packages.
//
//   - serializer: encoding of gossip records (JSON, GOB, Binary).
//
//   - transport: gossip queues between nodes (http, tcp, redis) and the HTTP server
//     used by nodes and routers.
//
//   - server: the storage node and the shard router.
//
//   - client: HTTP client of the rating api.
package rpc
