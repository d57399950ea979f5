package replica

import (
	"strconv"
	"time"

	"github.com/ValentinKolb/dRate/lib/lockmgr"
	"github.com/ValentinKolb/dRate/lib/register"
	"github.com/ValentinKolb/dRate/lib/store"
	"github.com/ValentinKolb/dRate/lib/vclock"
	jsoniter "github.com/json-iterator/go"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	log  = logger.GetLogger("replica")
	json = jsoniter.ConfigCompatibleWithStandardLibrary
)

const (
	keyPrefix    = "/rating/"
	fieldRating  = "rating"
	fieldChoices = "choices"
	fieldClocks  = "clocks"
)

// Key returns the backing store key of an entity
func Key(entity string) string {
	return keyPrefix + entity
}

// Store is the replica of a single shard
type Store struct {
	backend     store.IStore
	locks       lockmgr.ILockManager
	lockTimeout time.Duration
}

// NewStore creates a replica on top of backend. lockTimeout bounds how long a write waits
// for a concurrent write to the same entity (0 = wait forever).
func NewStore(backend store.IStore, locks lockmgr.ILockManager, lockTimeout time.Duration) *Store {
	return &Store{
		backend:     backend,
		locks:       locks,
		lockTimeout: lockTimeout,
	}
}

// Backend returns the store holding the aggregates
func (s *Store) Backend() store.IStore {
	return s.backend
}

// Get returns the aggregate of entity. The boolean is false if the entity has no
// aggregate, the returned aggregate is empty in that case.
func (s *Store) Get(entity string) (register.Aggregate, bool, error) {
	return s.load(entity)
}

// Put merges a local write into the aggregate of entity and returns the aggregate after
// the merge. mutated is false for stale or duplicate writes, the aggregate is unchanged then.
func (s *Store) Put(entity string, value float64, clock vclock.VectorClock) (register.Aggregate, bool, error) {
	var (
		res     register.Aggregate
		mutated bool
	)
	err := lockmgr.WithLock(s.locks, entity, s.lockTimeout, func() error {
		current, _, err := s.load(entity)
		if err != nil {
			return err
		}
		res, _, mutated = register.Merge(current, value, clock)
		if !mutated {
			return nil
		}
		return s.save(entity, res)
	})
	return res, mutated, err
}

// Apply merges a complete snapshot (a gossip record) into the aggregate of entity.
func (s *Store) Apply(entity string, choices []float64, clocks []vclock.VectorClock) (register.Aggregate, bool, error) {
	var (
		res     register.Aggregate
		mutated bool
	)
	err := lockmgr.WithLock(s.locks, entity, s.lockTimeout, func() error {
		current, _, err := s.load(entity)
		if err != nil {
			return err
		}
		res, _, mutated, err = register.MergeAll(current, choices, clocks)
		if err != nil || !mutated {
			return err
		}
		return s.save(entity, res)
	})
	return res, mutated, err
}

// Delete removes the aggregate of entity. Deletes are not replicated, a later write
// starts a fresh aggregate.
func (s *Store) Delete(entity string) (bool, error) {
	var deleted bool
	err := lockmgr.WithLock(s.locks, entity, s.lockTimeout, func() (err error) {
		deleted, err = s.backend.Delete(Key(entity))
		return err
	})
	return deleted, err
}

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

func (s *Store) load(entity string) (register.Aggregate, bool, error) {
	fields, ok, err := s.backend.HGetAll(Key(entity))
	if err != nil {
		return register.Aggregate{}, false, err
	}
	if !ok {
		return register.Empty(), false, nil
	}
	agg, err := Decode(fields)
	if err != nil {
		log.Errorf("aggregate of %q is corrupted: %v", entity, err)
		return register.Aggregate{}, false, err
	}
	return agg, true, nil
}

func (s *Store) save(entity string, agg register.Aggregate) error {
	fields, err := Encode(agg)
	if err != nil {
		return err
	}
	return s.backend.HSet(Key(entity), fields)
}

// Encode converts an aggregate into the stored fields
func Encode(agg register.Aggregate) (map[string]string, error) {
	if err := agg.Validate(); err != nil {
		return nil, err
	}
	choices, err := json.Marshal(agg.Choices)
	if err != nil {
		return nil, store.NewError(store.RetCInternalError, err.Error())
	}
	clocks := make([]map[string]uint64, len(agg.Clocks))
	for i, c := range agg.Clocks {
		clocks[i] = c.Map()
	}
	encodedClocks, err := json.Marshal(clocks)
	if err != nil {
		return nil, store.NewError(store.RetCInternalError, err.Error())
	}
	return map[string]string{
		fieldRating:  strconv.FormatFloat(agg.Mean(), 'g', -1, 64),
		fieldChoices: string(choices),
		fieldClocks:  string(encodedClocks),
	}, nil
}

// Decode parses stored fields. Missing fields count as empty lists, a length mismatch
// between choices and clocks is an invariant violation.
func Decode(fields map[string]string) (register.Aggregate, error) {
	agg := register.Empty()

	if raw, ok := fields[fieldChoices]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &agg.Choices); err != nil {
			return agg, store.Errorf(store.RetCInvariantViolation, "invalid choices field: %v", err)
		}
	}

	if raw, ok := fields[fieldClocks]; ok && raw != "" {
		var clocks []map[string]uint64
		if err := json.Unmarshal([]byte(raw), &clocks); err != nil {
			return agg, store.Errorf(store.RetCInvariantViolation, "invalid clocks field: %v", err)
		}
		agg.Clocks = make([]vclock.VectorClock, len(clocks))
		for i, c := range clocks {
			agg.Clocks[i] = vclock.FromMap(c)
		}
	}

	if agg.Choices == nil {
		agg.Choices = []float64{}
	}
	if agg.Clocks == nil {
		agg.Clocks = []vclock.VectorClock{}
	}
	return agg, agg.Validate()
}
