package internal

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTHGetAll   QueryType = iota // Retrieve all fields of a key.
	QueryTGetDBInfo                  // Retrieve metadata about the database underlying the machine.
)

func (q QueryType) String() string {
	switch q {
	case QueryTHGetAll:
		return "HGetAll"
	case QueryTGetDBInfo:
		return "GetDBInfo"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or StaleRead
type Query struct {
	Type QueryType // The type of Query to perform.
	Key  string    // The key for the Query (empty for GetDBInfo).
}

// QueryResult is the result of a QueryTHGetAll operation.
// GetDBInfo returns a db.DatabaseInfo directly.
type QueryResult struct {
	Ok     bool
	Fields map[string]string
}
