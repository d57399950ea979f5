package maple

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/dRate/lib/db"
	"github.com/ValentinKolb/dRate/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/dRate/lib/db/util"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Constants for database behavior and structure
const (
	magicNum     = "MAPLEDB\x00" // File format identifier
	mapleVersion = 4             // Database version (4 = hash entries)
	maxFieldLen  = 64 << 20      // Upper bound for a single decoded string (64 MB)
)

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl implements a sharded in-memory hash-field database
type mapleImpl struct {
	numShards int               // Number of shards
	seed      uint64            // Seed for hash function
	shards    []*internal.Shard // Array of shards
	currIndex atomic.Uint64     // Current logical timestamp

	// guards the shards slice, which is replaced by Load
	shardsMu sync.RWMutex
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	NumShards int // Number of shards (0 = auto)
}

// DefaultOptions returns the default mapleImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards: runtime.NumCPU(), // Auto-determine based on CPU count
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewMapleDB creates a new MapleDB instance with the specified options (optional)
func NewMapleDB(opts *DBOptions) db.HashDB {

	// Generate default options if not provided
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.NumShards <= 0 {
		opts.NumShards = runtime.NumCPU()
	}

	return &mapleImpl{
		numShards: opts.NumShards,
		seed:      util.GenerateSeed(),
		shards:    newShards(opts.NumShards),
	}
}

func newShards(n int) []*internal.Shard {
	shards := make([]*internal.Shard, n)
	for i := 0; i < n; i++ {
		shards[i] = internal.NewShard()
	}
	return shards
}

// shardFor returns the shard responsible for key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) shardFor(key string) *internal.Shard {
	maple.shardsMu.RLock()
	defer maple.shardsMu.RUnlock()
	return internal.GetShard(util.HashString(key, maple.seed), maple.shards)
}

// --------------------------------------------------------------------------
// HashDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// HSet merges the fields into the entry of key.
// A write carrying a smaller index than the stored entry is ignored (stale write).
func (maple *mapleImpl) HSet(key string, fields map[string]string, writeIndex uint64) {
	maple.shardFor(key).Data.Compute(key, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
		if loaded && writeIndex < old.Index {
			return old, false
		}
		return internal.Entry{
			Fields: old.CopyFields(fields),
			Index:  writeIndex,
		}, false
	})
	maple.SetWriteIdx(writeIndex)
}

func (maple *mapleImpl) Delete(key string, writeIndex uint64) bool {
	deleted := false
	maple.shardFor(key).Data.Compute(key, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
		if !loaded {
			// returning delete=true for a missing key is a no-op
			return old, true
		}
		if writeIndex < old.Index {
			return old, false
		}
		deleted = true
		return old, true
	})
	maple.SetWriteIdx(writeIndex)
	return deleted
}

// --------------------------------------------------------------------------
// HashDB Interface Methods - Query Operations
// --------------------------------------------------------------------------

func (maple *mapleImpl) HGetAll(key string) (map[string]string, bool) {
	entry, ok := maple.shardFor(key).Data.Load(key)
	if !ok {
		return nil, false
	}
	return entry.CopyFields(nil), true
}

func (maple *mapleImpl) Has(key string) bool {
	_, ok := maple.shardFor(key).Data.Load(key)
	return ok
}

// --------------------------------------------------------------------------
// Persistence
// --------------------------------------------------------------------------

// Save writes a fuzzy snapshot of the database to the writer.
// Concurrent reading and writing is allowed during Save operation.
//
// Format (little endian): magic, version, seed, entry count, then per entry
// key, index, field count and the (name, value) pairs. Strings are length-prefixed (uint32).
func (maple *mapleImpl) Save(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	type entryToSave struct {
		key   string
		entry internal.Entry
	}

	// collect a snapshot of all shards, entries are immutable so no deep copy is needed
	var entries []entryToSave
	maple.shardsMu.RLock()
	for _, shard := range maple.shards {
		shard.Data.Range(func(key string, entry internal.Entry) bool {
			entries = append(entries, entryToSave{key, entry})
			return true
		})
	}
	maple.shardsMu.RUnlock()

	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(mapleVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, maple.seed); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}

	for _, item := range entries {
		if err := writeString(bw, item.key); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, item.entry.Index); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(item.entry.Fields))); err != nil {
			return err
		}
		for name, value := range item.entry.Fields {
			if err := writeString(bw, name); err != nil {
				return err
			}
			if err := writeString(bw, value); err != nil {
				return err
			}
		}
	}

	return bw.Flush()
}

// Load replaces the database content with a snapshot written by Save
//
// Thread-safety: writes running concurrently with Load may be lost
func (maple *mapleImpl) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify magic number
	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	// Read and verify version
	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != mapleVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, mapleVersion)
	}

	var seed uint64
	if err := binary.Read(br, binary.LittleEndian, &seed); err != nil {
		return err
	}

	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return err
	}

	shards := newShards(maple.numShards)
	var maxIndex uint64

	for i := uint64(0); i < count; i++ {
		key, err := readString(br)
		if err != nil {
			return err
		}

		var index uint64
		if err := binary.Read(br, binary.LittleEndian, &index); err != nil {
			return err
		}
		if index > maxIndex {
			maxIndex = index
		}

		var fieldCount uint32
		if err := binary.Read(br, binary.LittleEndian, &fieldCount); err != nil {
			return err
		}

		fields := make(map[string]string, fieldCount)
		for j := uint32(0); j < fieldCount; j++ {
			name, err := readString(br)
			if err != nil {
				return err
			}
			value, err := readString(br)
			if err != nil {
				return err
			}
			fields[name] = value
		}

		internal.GetShard(util.HashString(key, seed), shards).Data.Store(key, internal.Entry{
			Fields: fields,
			Index:  index,
		})
	}

	maple.shardsMu.Lock()
	maple.shards = shards
	maple.seed = seed
	maple.shardsMu.Unlock()

	maple.currIndex.Store(0)
	maple.SetWriteIdx(maxIndex)
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n > maxFieldLen {
		return "", fmt.Errorf("string of length %d exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// --------------------------------------------------------------------------
// HashDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (maple *mapleImpl) GetInfo() db.DatabaseInfo {
	maple.shardsMu.RLock()
	shards := maple.shards
	maple.shardsMu.RUnlock()

	histogram := util.NewSizeHistogram()
	samplesPerShard := 100
	shardSizes := make([]float64, len(shards))
	keys := 0

	// sample a few entries per shard, sizes are estimates
	for i, shard := range shards {
		count := 0
		shard.Data.Range(func(key string, entry internal.Entry) bool {
			histogram.AddSample(len(key) + entry.SizeBytes())
			count++
			return count < samplesPerShard
		})
		size := shard.Data.Size()
		shardSizes[i] = float64(size)
		keys += size
	}

	// 8 bytes for the index plus the map header
	entryOverhead := 8 + 48
	medianSize := histogram.MedianEstimate() + entryOverhead
	avgSize := histogram.AverageSize() + entryOverhead

	// weighted estimate per entry (60% median, 40% average)
	sizeBytes := keys * ((medianSize*60 + avgSize*40) / 100)

	meta := &struct {
		CurrentWriteIndex uint64                 `json:"current_write_index"`
		ShardCount        int                    `json:"shard_count"`
		ShardDistribution util.DistributionStats `json:"shard_distribution"`
		Info              string                 `json:"info"`
	}{
		CurrentWriteIndex: maple.currIndex.Load(),
		ShardCount:        len(shards),
		ShardDistribution: util.NewDistributionStats(shardSizes),
		Info:              "SizeBytes is an estimate based on sampled entries.",
	}

	return db.DatabaseInfo{
		SizeBytes: sizeBytes,
		Keys:      keys,
		DbType:    db.ImplMaple,
		SupportedFeatures: []db.Feature{
			db.FeatureHSet, db.FeatureHGetAll, db.FeatureDelete,
			db.FeatureHas, db.FeatureSave, db.FeatureLoad,
		},
		Metadata: meta,
	}
}

// SupportsFeature checks if this implementation supports a specific HashDB feature
func (maple *mapleImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureHSet |
		db.FeatureHGetAll |
		db.FeatureDelete |
		db.FeatureHas |
		db.FeatureSave |
		db.FeatureLoad
	return supportedFeatures&feature == feature
}

// Close is a no-op, maple holds no background resources
func (maple *mapleImpl) Close() error {
	return nil
}

// --------------------------------------------------------------------------
// Index and Timestamp Management
// --------------------------------------------------------------------------

// SetWriteIdx safely updates the current index
// It only updates if the new index is greater than the current one
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) SetWriteIdx(newIdx uint64) {
	for {
		currIdx := maple.currIndex.Load()
		if newIdx <= currIdx {
			return
		}
		if maple.currIndex.CompareAndSwap(currIdx, newIdx) {
			return
		}
	}
}

// WriteIdx returns the current index of the database
func (maple *mapleImpl) WriteIdx() uint64 {
	return maple.currIndex.Load()
}
