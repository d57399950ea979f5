// Package lstore implements a local, in-memory store based on the store.IStore
// interface. It is a thin wrapper around any db.HashDB implementation that hands out
// the write indices itself with an atomic counter. Data is not persisted between
// process restarts.
//
// Before executing an operation the store checks if the underlying db.HashDB supports it,
// unsupported operations return store.RetCUnsupportedOperation.
//
// Usage Example:
//
//	factory := func() db.HashDB { return maple.NewMapleDB(nil) }
//	s := lstore.NewLocalStore(factory)
//
//	err := s.HSet("/rating/bob", map[string]string{"rating": "5"})
//	fields, exists, err := s.HGetAll("/rating/bob")
//
// For a replicated shard use the dstore package, for an external backend the rstore package.
package lstore
