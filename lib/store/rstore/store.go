package rstore

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/ValentinKolb/dRate/lib/db"
	"github.com/ValentinKolb/dRate/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/redis/go-redis/v9"
)

var log = logger.GetLogger("store")

// Options configures the redis backed store
type Options struct {
	Addr    string        // host:port of the redis server
	DB      int           // redis database number
	Prefix  string        // prepended to every key, allows several shards per redis database
	Timeout time.Duration // per operation timeout
}

type storeImpl struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// NewRedisStore creates a store that keeps every key as a redis hash.
// The connection is established lazily by the redis client.
func NewRedisStore(opts Options) store.IStore {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	log.Infof("using redis store at %s (db=%d, prefix=%q)", opts.Addr, opts.DB, opts.Prefix)
	return &storeImpl{
		client: redis.NewClient(&redis.Options{
			Addr: opts.Addr,
			DB:   opts.DB,
		}),
		prefix:  opts.Prefix,
		timeout: opts.Timeout,
	}
}

func (s *storeImpl) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// wrapErr maps redis client errors to store errors. Network problems and timeouts
// mean the backend is unavailable.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return store.NewError(store.RetCUnavailable, err.Error())
	}
	return store.NewError(store.RetCInternalError, err.Error())
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

// HSet writes the fields in a single HSET. Redis can not hold a hash without fields,
// so an empty update is a no-op.
func (s *storeImpl) HSet(key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	ctx, cancel := s.ctx()
	defer cancel()

	values := make([]interface{}, 0, 2*len(fields))
	for name, value := range fields {
		values = append(values, name, value)
	}
	return wrapErr(s.client.HSet(ctx, s.prefix+key, values...).Err())
}

func (s *storeImpl) HGetAll(key string) (map[string]string, bool, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	fields, err := s.client.HGetAll(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapErr(err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}
	return fields, true, nil
}

func (s *storeImpl) Delete(key string) (bool, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	n, err := s.client.Del(ctx, s.prefix+key).Result()
	if err != nil {
		return false, wrapErr(err)
	}
	return n > 0, nil
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	size, err := s.client.DBSize(ctx).Result()
	if err != nil {
		return db.DatabaseInfo{}, wrapErr(err)
	}
	return db.DatabaseInfo{
		Keys:   int(size),
		DbType: db.ImplRedis,
		SupportedFeatures: []db.Feature{
			db.FeatureHSet, db.FeatureHGetAll, db.FeatureDelete,
		},
		Metadata: map[string]interface{}{
			"addr":   s.client.Options().Addr,
			"db":     s.client.Options().DB,
			"prefix": s.prefix,
			"info":   "Keys counts all keys of the redis database, not only this prefix.",
		},
	}, nil
}
