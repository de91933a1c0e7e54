package booking

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

// DayKeys returns the lock keys for every UTC calendar day touched by [start, end).
// Two overlapping intervals always share at least one day, so locking these keys
// serializes exactly the bookings that could conflict
func DayKeys(start, end time.Time) []string {
	if !end.After(start) {
		end = start.Add(time.Nanosecond)
	}

	var keys []string
	day := time.Date(start.UTC().Year(), start.UTC().Month(), start.UTC().Day(), 0, 0, 0, 0, time.UTC)
	for day.Before(end) {
		keys = append(keys, "booking:"+day.Format("2006-01-02"))
		day = day.AddDate(0, 0, 1)
	}

	return keys
}

// MemoryLocker is a single-process Locker backed by one mutex per key
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewMemoryLocker creates a new in-process locker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]chan struct{})}
}

// Lock acquires every key in sorted order, honoring ctx cancellation while waiting
func (l *MemoryLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	sorted = slices.Compact(sorted)

	var held []chan struct{}
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}

	for _, key := range sorted {
		ch := l.slot(key)
		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

// slot returns the single-capacity channel acting as the mutex for key
func (l *MemoryLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	return ch
}
