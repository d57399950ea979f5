// Package maple implements an in-memory hash-field database (HashDB). Every key
// maps to a small set of named string fields, which is exactly the shape of a
// stored rating aggregate (rating, choices, clocks).
//
// Key Components:
//
//   - mapleImpl: The central database structure implementing db.HashDB. It manages
//     the shards and the write index. The write index is not generated by the database
//     itself, the caller passes one with every write (a raft log index, a local counter, ...).
//
//   - Shard: A partition of the key space backed by an xsync.MapOf. Keys are mapped
//     to shards by hashing them with a per database seed (FNV-1a) and using the
//     higher bits of the hash.
//
//   - Entry: The stored fields together with the write index of the last update.
//     Field maps are never mutated in place, every write installs a fresh copy, so
//     readers and snapshots can hold on to an entry without locking.
//
// Stale Write Prevention: a write (HSet or Delete) is only applied if its write index
// is greater than or equal to the stored index of the entry. Out of order replays of
// a replicated log therefore never overwrite newer data.
//
// Persistence Format (little endian):
//  1. Magic number "MAPLEDB\x00"
//  2. Version number (currently 4)
//  3. Database seed
//  4. Number of entries
//  5. For each entry: key, index, field count and the (name, value) pairs
//
// Snapshots are fuzzy: Save does not lock the database, concurrent writes may or may not
// be part of the snapshot. Load replaces the complete content.
package maple
