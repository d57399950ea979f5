// Package internal provides the raft log format of the dstore package.
//
//   - Command: a write operation (HSet, Delete) that is serialized and proposed to the
//     raft group. The state machine applies it with the raft log index as write index.
//
//   - Query: a read operation (HGetAll, GetDBInfo). Queries are executed locally on the
//     state machine and are never serialized.
//
// Command Format (big endian):
//
//   - 1 byte: Command type
//   - 4 bytes: Key length, followed by the key
//   - 4 bytes: Number of fields
//   - per field (sorted by name): 4 bytes name length, name, 4 bytes value length, value
package internal
