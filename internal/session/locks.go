package session

import "sync"

// Locks hands out one mutex per session ID. An entry exists only while
// some caller holds or waits for it, so closed and unknown sessions leave
// nothing behind. The zero value is ready to use.
type Locks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	sync.Mutex
	refs int
}

// Lock acquires the mutex for id and returns the function that releases
// it. The release function must be called exactly once.
func (l *Locks) Lock(id string) (unlock func()) {
	l.mu.Lock()
	if l.entries == nil {
		l.entries = make(map[string]*lockEntry)
	}
	e, ok := l.entries[id]
	if !ok {
		e = &lockEntry{}
		l.entries[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.Unlock()
			l.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(l.entries, id)
			}
			l.mu.Unlock()
		})
	}
}

// Len returns the number of IDs currently locked or waited on.
func (l *Locks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
