// Package db provides a standardized interface for hash-field database implementations.
// It defines the HashDB interface that lets the storage layer interact with different
// in-process backends while abstracting implementation details.
//
// The package focuses on:
//   - A unified interface for field-level operations on keys (HSet, HGetAll, Delete, Has)
//   - Feature discovery through capability flags
//   - Standardized persistence operations (Save, Load), used for raft snapshots
//   - Metadata reporting (GetInfo)
//
// Key Components:
//
//   - HashDB Interface: The core interface that all database implementations must satisfy.
//     A key maps to a set of named string fields, exactly like a redis hash. Rating
//     aggregates are stored this way with the fields "rating", "choices" and "clocks".
//
//   - Feature Flags: The Feature type defines capability flags that implementations
//     can advertise through the SupportsFeature method.
//
//   - Database Information: The DatabaseInfo structure reports database state, including
//     size estimates, key count, implementation type and implementation-specific metadata.
//
// Note on the write index:
//   - All write operations take a write-index parameter that serves as a logical
//     timestamp. Entries remember the index of their last write and the database tracks
//     the highest index it has seen. When used below raft the index is the raft log index,
//     the local store uses an atomic counter.
//   - Implementations must ensure that the write-index only increases monotonically.
//
// Related Packages:
//
// The engines/maple package provides a sharded in-memory implementation of HashDB built
// on xsync maps with atomic per-key compute operations and a binary snapshot format.
//
// The util package provides the lock-free MPSC queue used as gossip inbox, hash helpers
// and statistics used for database info reports.
//
// The testing package provides a conformance suite (RunHashDBTests) and benchmarks
// (RunHashDBBenchmarks) for HashDB implementations.
package db
