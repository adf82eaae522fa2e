package indexer

import (
	"sync/atomic"
	"time"
)

// IndexLock guards rebuilds without blocking. A caller that fails to take
// it reports ErrRebuildInProgress instead of waiting.
type IndexLock struct {
	since atomic.Int64 // unix nanos of acquisition, 0 when free
}

// TryAcquire takes the lock if it is free
func (l *IndexLock) TryAcquire() bool {
	return l.since.CompareAndSwap(0, time.Now().UnixNano())
}

// Release frees the lock. Only the holder may call it.
func (l *IndexLock) Release() {
	l.since.Store(0)
}

// Held reports whether a rebuild currently holds the lock
func (l *IndexLock) Held() bool {
	return l.since.Load() != 0
}

// Since returns when the current holder took the lock, or the zero time
func (l *IndexLock) Since() time.Time {
	ns := l.since.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
