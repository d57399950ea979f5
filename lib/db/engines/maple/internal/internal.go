package internal

import (
	"github.com/ValentinKolb/dRate/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Entry Type (hash with metadata)
// --------------------------------------------------------------------------

// Entry stores the fields of a key together with the write index of its last update.
// The Fields map is never mutated after the entry was stored, writers always
// install a fresh copy.
type Entry struct {
	Fields map[string]string // field name -> value
	Index  uint64            // Write index when this entry was created/updated
}

// SizeBytes returns the number of bytes held by field names and values
func (e Entry) SizeBytes() int {
	size := 0
	for name, value := range e.Fields {
		size += len(name) + len(value)
	}
	return size
}

// CopyFields returns a copy of the entry fields merged with the update (which may be nil)
func (e Entry) CopyFields(update map[string]string) map[string]string {
	fields := make(map[string]string, len(e.Fields)+len(update))
	for name, value := range e.Fields {
		fields[name] = value
	}
	for name, value := range update {
		fields[name] = value
	}
	return fields
}

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the database
type Shard struct {
	Data *xsync.MapOf[string, Entry] // Map of active entries
}

// NewShard creates a new, empty shard
func NewShard() *Shard {
	return &Shard{
		Data: xsync.NewMapOf[string, Entry](),
	}
}

// GetShard returns the appropriate shard for a given key hash
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard[T any](key util.UintKey, shards []*T) *T {
	// Shift right by 7 bits to use higher-quality bits for distribution
	shiftedKey := uint64(key) >> 7
	shardPos := shiftedKey % uint64(len(shards))
	return shards[shardPos]
}
