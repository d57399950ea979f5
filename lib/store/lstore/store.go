package lstore

import (
	"github.com/ValentinKolb/dRate/lib/db"
	"github.com/ValentinKolb/dRate/lib/store"
	"sync/atomic"
)

type storeImpl struct {
	db    db.HashDB
	index atomic.Uint64
}

// NewLocalStore creates a new local store instance.
// This store implementation is not replicated and only lives inside this process.
func NewLocalStore(factory store.DBFactory) store.IStore {
	return &storeImpl{
		db:    factory(),
		index: atomic.Uint64{},
	}
}

// incAndGetIndex increments the index and returns the new value.
// It is used to ensure that each write operation has a unique index.
//
// Thread-safety: This method is thread-safe since it uses atomic operations.
func (s *storeImpl) incAndGetIndex() uint64 {
	return s.index.Add(1)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) HSet(key string, fields map[string]string) error {
	if !s.db.SupportsFeature(db.FeatureHSet) {
		return store.NewError(store.RetCUnsupportedOperation, "HSet operation is not supported")
	}
	s.db.HSet(key, fields, s.incAndGetIndex())
	return nil
}

func (s *storeImpl) HGetAll(key string) (map[string]string, bool, error) {
	if !s.db.SupportsFeature(db.FeatureHGetAll) {
		return nil, false, store.NewError(store.RetCUnsupportedOperation, "HGetAll operation is not supported")
	}
	fields, ok := s.db.HGetAll(key)
	return fields, ok, nil
}

func (s *storeImpl) Delete(key string) (bool, error) {
	if !s.db.SupportsFeature(db.FeatureDelete) {
		return false, store.NewError(store.RetCUnsupportedOperation, "Delete operation is not supported")
	}
	return s.db.Delete(key, s.incAndGetIndex()), nil
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return s.db.GetInfo(), nil
}
