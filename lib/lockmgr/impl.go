package lockmgr

import (
	"bytes"
	"sync"
	"time"

	"github.com/ValentinKolb/dRate/lib/db/util"
	"github.com/ValentinKolb/dRate/lib/store"
	"github.com/puzpuzpuz/xsync/v3"
)

// ownerIDLength is the size of a lock owner id (256 bit)
const ownerIDLength = 32

// ErrLockTimeout is returned by WithLock when the lock could not be acquired in time
var ErrLockTimeout = store.NewError(store.RetCUnavailable, "timeout while waiting for lock")

// keyLock is the lock of a single key. refs counts holders and waiters, the entry
// is removed from the map once nobody references it anymore.
type keyLock struct {
	sem   chan struct{}
	mu    sync.Mutex
	owner []byte
	refs  int
}

type lockMgrImpl struct {
	locks *xsync.MapOf[string, *keyLock]
}

// NewLockManager creates an in-process lock manager. Locks on different keys never block each other.
func NewLockManager() ILockManager {
	return &lockMgrImpl{
		locks: xsync.NewMapOf[string, *keyLock](),
	}
}

// ref returns the lock of key and registers the caller as holder or waiter
func (lm *lockMgrImpl) ref(key string) *keyLock {
	l, _ := lm.locks.Compute(key, func(old *keyLock, loaded bool) (*keyLock, bool) {
		if !loaded {
			old = &keyLock{sem: make(chan struct{}, 1)}
		}
		old.refs++
		return old, false
	})
	return l
}

// unref drops the reference of the caller and removes unused locks
func (lm *lockMgrImpl) unref(key string) {
	lm.locks.Compute(key, func(old *keyLock, loaded bool) (*keyLock, bool) {
		if !loaded {
			return old, true
		}
		old.refs--
		return old, old.refs <= 0
	})
}

// --------------------------------------------------------------------------
// Interface Methods (docu see lockmgr/interface.go)
// --------------------------------------------------------------------------

func (lm *lockMgrImpl) AcquireLock(key string, timeout time.Duration) (bool, []byte, error) {
	ownerID := util.GenerateID(ownerIDLength)
	l := lm.ref(key)

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case l.sem <- struct{}{}:
		l.mu.Lock()
		l.owner = ownerID
		l.mu.Unlock()
		return true, ownerID, nil
	case <-expired:
		lm.unref(key)
		return false, nil, nil
	}
}

func (lm *lockMgrImpl) ReleaseLock(key string, ownerID []byte) (bool, error) {
	l, ok := lm.locks.Load(key)
	if !ok {
		return true, nil
	}

	l.mu.Lock()
	if l.owner == nil || !bytes.Equal(l.owner, ownerID) {
		held := l.owner != nil
		l.mu.Unlock()
		// an unheld lock counts as released
		return !held, nil
	}
	l.owner = nil
	l.mu.Unlock()

	<-l.sem
	lm.unref(key)
	return true, nil
}
