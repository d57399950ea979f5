package lockmgr

import "time"

// ILockManager defines the interface for a keyed lock provider.
type ILockManager interface {
	// AcquireLock blocks until the lock for key is held or the timeout expires (0 = wait forever).
	// Return a boolean indicating whether the lock was acquired, an owner ID, and an error if any.
	AcquireLock(key string, timeout time.Duration) (ok bool, ownerID []byte, err error)

	// ReleaseLock releases the lock for the given key.
	// Return a boolean indicating whether the lock was released, and an error if any.
	// The method will also return True if the lock did not exist.
	ReleaseLock(key string, ownerID []byte) (ok bool, err error)
}

// WithLock runs fn while holding the lock for key
func WithLock(m ILockManager, key string, timeout time.Duration, fn func() error) error {
	ok, owner, err := m.AcquireLock(key, timeout)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockTimeout
	}
	defer m.ReleaseLock(key, owner)
	return fn()
}
