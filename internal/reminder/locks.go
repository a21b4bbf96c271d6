package reminder

import "sync"

// Locks serializes due-time mutations per task id.
// Entries are reference counted and dropped once nobody holds or waits on them.
type Locks struct {
	mu sync.Mutex
	m  map[int64]*taskLock
}

type taskLock struct {
	mu   sync.Mutex
	refs int
}

func NewLocks() *Locks {
	return &Locks{m: map[int64]*taskLock{}}
}

// Lock blocks until id is free and returns the matching unlock.
func (l *Locks) Lock(id int64) func() {
	l.mu.Lock()
	tl, ok := l.m[id]
	if !ok {
		tl = &taskLock{}
		l.m[id] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			tl.mu.Unlock()
			l.mu.Lock()
			tl.refs--
			if tl.refs == 0 {
				delete(l.m, id)
			}
			l.mu.Unlock()
		})
	}
}

func (l *Locks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
