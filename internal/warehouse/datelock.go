package warehouse

import (
	"sync"
	"time"
)

// dateLocks serializes writers per partition day within one process.
// Entries are dropped when the last holder releases them.
type dateLocks struct {
	mu    sync.Mutex
	locks map[string]*dateLock
}

type dateLock struct {
	mu   sync.Mutex
	refs int
}

func newDateLocks() *dateLocks {
	return &dateLocks{locks: make(map[string]*dateLock)}
}

// lock blocks until the partition for day is free and returns the release
// func and the time spent waiting.
func (d *dateLocks) lock(day time.Time) (func(), time.Duration) {
	key := day.Format(time.DateOnly)

	d.mu.Lock()
	l, ok := d.locks[key]
	if !ok {
		l = &dateLock{}
		d.locks[key] = l
	}
	l.refs++
	d.mu.Unlock()

	start := time.Now()
	l.mu.Lock()
	waited := time.Since(start)

	return func() {
		l.mu.Unlock()
		d.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(d.locks, key)
		}
		d.mu.Unlock()
	}, waited
}
