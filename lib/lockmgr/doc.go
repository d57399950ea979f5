// Package lockmgr provides keyed locks. A replica serializes the read, merge and write
// of an aggregate per entity with it, while writes to different entities run in parallel.
//
// Every successful AcquireLock returns a random owner ID that must be passed to
// ReleaseLock. Releasing with a wrong owner ID fails, releasing a lock that is not held
// succeeds. Locks are reference counted and removed from the internal map once no
// goroutine holds or waits for them, so the number of tracked keys stays bounded by
// the number of concurrent writers.
//
// Usage:
//
//	lm := lockmgr.NewLockManager()
//	err := lockmgr.WithLock(lm, "bob", time.Second, func() error {
//	    // load, merge and store the aggregate of bob
//	    return nil
//	})
package lockmgr
