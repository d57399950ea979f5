package dstore

import (
	"fmt"
	"github.com/ValentinKolb/dRate/lib/db"
	"github.com/ValentinKolb/dRate/lib/store"
	"github.com/ValentinKolb/dRate/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
	"io"
	"time"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// HashStateMachine is a dragonboat state machine holding the aggregates of one shard
type HashStateMachine struct {
	replicaID uint64
	shardID   uint64
	database  db.HashDB
}

// CreateStateMachineFactory returns a function that can be used by dragonboat to create a new state machine for a node host
// The factory pattern is used to enable the caller to pass an interchangeable dbFactory
func CreateStateMachineFactory(dbFactory store.DBFactory) func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		return &HashStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			database:  dbFactory(),
		}
	}
}

// Lookup handles read-only queries by mapping each Query operation to the corresponding HashDB method.
func (fsm *HashStateMachine) Lookup(itf interface{}) (interface{}, error) {

	q, ok := itf.(internal.Query)
	if !ok {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}

	switch q.Type {
	case internal.QueryTHGetAll:
		if !fsm.database.SupportsFeature(db.FeatureHGetAll) {
			return nil, store.NewError(store.RetCUnsupportedOperation, "HGetAll operation is not supported")
		}
		fields, ok := fsm.database.HGetAll(q.Key)
		return internal.QueryResult{
			Fields: fields,
			Ok:     ok,
		}, nil
	case internal.QueryTGetDBInfo:
		return fsm.database.GetInfo(), nil
	default:
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown Query operation: %d", q.Type))
	}
}

// Update applies write commands to the HashDB, the raft log index is used as write index
func (fsm *HashStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {

	if len(entries) == 0 {
		return entries, nil
	}

	start := time.Now()

	for idx, e := range entries {
		if len(e.Cmd) == 0 {
			entries[idx].Result = sm.Result{Value: uint64(store.RetCInvalidOperation), Data: []byte("empty command ignored")}
			continue
		}

		cmd := internal.Command{}
		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = sm.Result{Value: uint64(store.RetCInternalError), Data: []byte(fmt.Sprintf("failed to deserialize command: %v", err))}
			continue
		}

		feat, err := cmd.Type.ToDBFeature()
		if err != nil {
			entries[idx].Result = sm.Result{
				Value: uint64(store.RetCInvalidOperation),
				Data:  []byte(fmt.Sprintf("unknown Command operation: %s", cmd.Type)),
			}
			continue
		}
		if !fsm.database.SupportsFeature(feat) {
			entries[idx].Result = sm.Result{
				Value: uint64(store.RetCUnsupportedOperation),
				Data:  []byte(fmt.Sprintf("%s operation is not supported", cmd.Type)),
			}
			continue
		}

		switch cmd.Type {
		case internal.CommandTHSet:
			fsm.database.HSet(cmd.Key, cmd.Fields, e.Index)
			entries[idx].Result = sm.Result{Value: uint64(store.RetCSuccess)}
		case internal.CommandTDelete:
			// Data carries whether the key existed
			deleted := byte(0)
			if fsm.database.Delete(cmd.Key, e.Index) {
				deleted = 1
			}
			entries[idx].Result = sm.Result{Value: uint64(store.RetCSuccess), Data: []byte{deleted}}
		}
	}

	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine took long to update. Batch updated %d entries, took %.2fms:", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// PrepareSnapshot is not used. We don't need to prepare anything since we use fuzzy snapshotting
func (fsm *HashStateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

// SaveSnapshot saves a fuzzy db snapshot to the writer
func (fsm *HashStateMachine) SaveSnapshot(_ interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureSave) {
		return fmt.Errorf("the used HashDB implementation does not support Save() operations")
	}
	return fsm.database.Save(writer)
}

// RecoverFromSnapshot replaces the database content with the snapshot
func (fsm *HashStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureLoad) {
		return fmt.Errorf("the used HashDB implementation does not support Load() operations")
	}
	return fsm.database.Load(r)
}

// Close performs any necessary cleanup.
func (fsm *HashStateMachine) Close() error {
	return fsm.database.Close()
}
