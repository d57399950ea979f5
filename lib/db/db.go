package db

import "io"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMaple Implementation = "maple"
	ImplRedis Implementation = "redis"
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeatureHSet    Feature = 1 << iota // Support for HSet operations
	FeatureHGetAll                     // Support for HGetAll operations
	FeatureDelete                      // Support for Delete operations
	FeatureHas                         // Support for Has operations
	FeatureSave                        // Support for Save operations
	FeatureLoad                        // Support for Load operations
)

func (f Feature) String() string {
	switch f {
	case FeatureHSet:
		return "HSet"
	case FeatureHGetAll:
		return "HGetAll"
	case FeatureDelete:
		return "Delete"
	case FeatureHas:
		return "Has"
	case FeatureSave:
		return "Save"
	case FeatureLoad:
		return "Load"
	default:
		return "Unknown"
	}
}

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	Keys              int            `json:"keys"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// HashDB defines an interface for hash-field database implementations. Every key maps to
// a set of named string fields. Implementations can vary in their feature support,
// which can be queried with SupportsFeature.
type HashDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// HSet creates the key if it does not exist and sets the given fields.
	// Fields not mentioned keep their current value.
	// The writeIndex parameter is used as a logical timestamp for the entry.
	HSet(key string, fields map[string]string, writeIndex uint64)

	// Delete removes the key with all its fields. It returns whether the key existed.
	Delete(key string, writeIndex uint64) (deleted bool)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// HGetAll returns a copy of all fields of a key.
	// The boolean return value indicates whether the key was found.
	HGetAll(key string) (fields map[string]string, loaded bool)

	// Has checks whether a key exists in the database.
	Has(key string) (loaded bool)

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save persists the current state of the database to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load restores the database state data provided by an io.Reader.
	Load(r io.Reader) (err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// --------------------------------------------------------------------------
	// Write Index Operations
	// --------------------------------------------------------------------------

	// SetWriteIdx sets the current index of the database only if the provided index is greater than the current index.
	SetWriteIdx(index uint64)

	// WriteIdx returns the current index of the database.
	WriteIdx() (index uint64)

	// Close closes the database.
	Close() (err error)
}
