// Package util provides utility components shared by the storage and gossip layers.
//
// The package contains:
//   - statistics: summary statistics, distribution quality and a SizeHistogram used by
//     database info reports and the benchmark command
//   - functions: seeded FNV-1a string hashing, seed and id generation
//   - lockfreempsc: a lock-free Multi-Producer Single-Consumer queue with non-blocking
//     pop, used as the in-process gossip inbox
package util
