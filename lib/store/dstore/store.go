package dstore

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dRate/lib/db"
	"github.com/ValentinKolb/dRate/lib/store"
	"github.com/ValentinKolb/dRate/lib/store/dstore/internal"
	"github.com/lni/dragonboat/v4/logger"
	"time"

	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
)

var (
	retries = 5
	log     = logger.GetLogger("store")
)

// storeImpl implements store.IStore on top of a raft group.
// It encapsulates a Dragonboat NodeHost which is used to communicate with the state machine.
type storeImpl struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
}

// NewDistributedStore creates a new store that replicates every write of a dRate shard
// through the raft group shardID.
func NewDistributedStore(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration) store.IStore {
	cs := nh.GetNoOPSession(shardID)
	return &storeImpl{
		nh:      nh,
		shardID: shardID,
		cs:      cs,
		timeout: timeout,
	}
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// write proposes a Command via SyncPropose and returns the result data on success.
func (s *storeImpl) write(cmd internal.Command) ([]byte, error) {
	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)

		res, err := s.nh.SyncPropose(ctx, s.cs, cmd.Serialize())
		cancel()

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}

		if errors.Is(err, dragonboat.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, store.NewError(store.RetCUnavailable, err.Error())
		}
		if err != nil {
			return nil, store.NewError(store.RetCInternalError, err.Error())
		}
		if res.Value != uint64(store.RetCSuccess) {
			return nil, store.NewError(store.RetCode(res.Value), string(res.Data))
		}
		return res.Data, nil
	}
	return nil, store.NewError(store.RetCUnavailable, "raft group busy")
}

// read queries the state machine and converts the response into the expected type R.
//
// SyncRead is used by default. If linearizability is not required, stale can be set
// to use the faster StaleRead.
// A read failing with a system busy error is retried up to 5 times.
func read[R any](r *storeImpl, q internal.Query, stale bool) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {

		var res interface{}
		var err error

		if stale {
			res, err = r.nh.StaleRead(r.shardID, q)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			res, err = r.nh.SyncRead(ctx, r.shardID, q)
			cancel()
		}

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(r.timeout / 10)
			continue
		}

		if err != nil {
			var rse *store.Error
			if errors.As(err, &rse) {
				return zero, rse
			}
			if errors.Is(err, dragonboat.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				return zero, store.NewError(store.RetCUnavailable, err.Error())
			}
			return zero, store.NewError(store.RetCInternalError, err.Error())
		}

		casted, ok := res.(R)
		if !ok {
			return zero, store.NewError(store.RetCInternalError,
				fmt.Sprintf("unexpected type: received %T, expected %T", res, zero))
		}
		return casted, nil
	}
	return zero, store.NewError(store.RetCUnavailable, "raft group busy")
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) HSet(key string, fields map[string]string) error {
	_, err := s.write(internal.Command{
		Type:   internal.CommandTHSet,
		Key:    key,
		Fields: fields,
	})
	return err
}

func (s *storeImpl) HGetAll(key string) (map[string]string, bool, error) {
	res, err := read[internal.QueryResult](s, internal.Query{
		Type: internal.QueryTHGetAll,
		Key:  key,
	}, false)
	if err != nil {
		return nil, false, err
	}
	return res.Fields, res.Ok, nil
}

func (s *storeImpl) Delete(key string) (bool, error) {
	data, err := s.write(internal.Command{
		Type: internal.CommandTDelete,
		Key:  key,
	})
	if err != nil {
		return false, err
	}
	return len(data) == 1 && data[0] == 1, nil
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return read[db.DatabaseInfo](
		s,
		internal.Query{
			Type: internal.QueryTGetDBInfo,
		},
		true, // Note: allow for stale reads
	)
}
